package models

// Status is the shared lifecycle enum for matches and tournaments,
// corresponding to the ENUM in the DB.
type Status string

const (
	StatusCreated   Status = "created"
	StatusGather    Status = "gather"
	StatusAssign    Status = "assign"
	StatusBattle    Status = "battle"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
)

// statusProgress ranks statuses so that backward transitions can be
// rejected. Cancelled is 0: it is reachable from anywhere and nothing
// is reachable from it.
var statusProgress = map[Status]int{
	StatusCancelled: 0,
	StatusCreated:   20,
	StatusGather:    40,
	StatusAssign:    60,
	StatusBattle:    80,
	StatusComplete:  100,
}

// Progress returns the numeric rank of a status, or -1 for an
// unrecognized value.
func (s Status) Progress() int {
	p, ok := statusProgress[s]
	if !ok {
		return -1
	}
	return p
}

func (s Status) Valid() bool {
	_, ok := statusProgress[s]
	return ok
}

// CanTransitionTo reports whether moving to target is allowed under the
// progress ordering. Transitions to cancelled are always allowed except
// from cancelled itself.
func (s Status) CanTransitionTo(target Status) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	if target == StatusCancelled {
		return s != StatusCancelled
	}
	return target.Progress() >= s.Progress() && s != StatusCancelled
}
