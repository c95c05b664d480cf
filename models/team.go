package models

import "time"

// TournamentTeam belongs to exactly one tournament. A team is treated as
// immutable once a generated match references it.
type TournamentTeam struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Name         string    `json:"name" db:"name"`
	Seed         int       `json:"seed" db:"seed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Members []TournamentTeamMember `json:"members,omitempty" db:"-"`
}

type TournamentTeamMember struct {
	ID     int    `json:"id" db:"id"`
	TeamID int    `json:"team_id" db:"team_id"`
	UserID string `json:"user_id" db:"user_id"`
}
