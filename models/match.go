package models

import "time"

// Match is a single lobby: standalone or part of a tournament bracket.
// Matches are never deleted, only marked cancelled or complete.
type Match struct {
	ID           int        `json:"id" db:"id"`
	GameID       int        `json:"game_id" db:"game_id"`
	Status       Status     `json:"status" db:"status"`
	StartTime    *time.Time `json:"start_time,omitempty" db:"start_time"`
	TournamentID *int       `json:"tournament_id,omitempty" db:"tournament_id"`
	BracketType  *BracketType `json:"bracket_type,omitempty" db:"bracket_type"`
	BracketRound *int       `json:"bracket_round,omitempty" db:"bracket_round"`
	Team1ID      *int       `json:"team1_id,omitempty" db:"team1_id"`
	Team2ID      *int       `json:"team2_id,omitempty" db:"team2_id"`
	WinnerTeamID *int       `json:"winner_team_id,omitempty" db:"winner_team_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`

	// Loaded on demand, not mapped directly.
	Maps     []int          `json:"maps,omitempty" db:"-"`
	MapCodes map[int]string `json:"map_codes,omitempty" db:"-"`
}

type MatchSide string

const (
	SideRed  MatchSide = "red"
	SideBlue MatchSide = "blue"
)

// MatchParticipant is a team member cloned onto a match at generation
// time. Team rosters stay mutable; the clone freezes who actually plays.
type MatchParticipant struct {
	MatchID int       `json:"match_id" db:"match_id"`
	UserID  string    `json:"user_id" db:"user_id"`
	TeamID  int       `json:"team_id" db:"team_id"`
	Side    MatchSide `json:"side" db:"side"`
}

// MatchGame is one scheduled map inside a match, created when the match
// enters battle or when the bracket generator creates the match.
type MatchGame struct {
	ID           int    `json:"id" db:"id"`
	MatchID      int    `json:"match_id" db:"match_id"`
	GameNumber   int    `json:"game_number" db:"game_number"`
	MapID        int    `json:"map_id" db:"map_id"`
	WinnerTeamID *int   `json:"winner_team_id,omitempty" db:"winner_team_id"`
	Status       string `json:"status" db:"status"`
}
