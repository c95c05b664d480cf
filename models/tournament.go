package models

import "time"

type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elimination"
	FormatDoubleElimination TournamentFormat = "double_elimination"
)

// Tournament owns zero or more TournamentTeam and drives bracket match
// generation. It shares the Status enum with Match.
type Tournament struct {
	ID              int              `json:"id" db:"id"`
	GameID          int              `json:"game_id" db:"game_id"`
	ModeID          int              `json:"mode_id" db:"mode_id"`
	Format          TournamentFormat `json:"format" db:"format"`
	Status          Status           `json:"status" db:"status"`
	RoundsPerMatch  int              `json:"rounds_per_match" db:"rounds_per_match"`
	MaxParticipants *int             `json:"max_participants,omitempty" db:"max_participants"`
	StartTime       *time.Time       `json:"start_time,omitempty" db:"start_time"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`

	Teams []TournamentTeam `json:"teams,omitempty" db:"-"`
}

func (f TournamentFormat) Valid() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}
