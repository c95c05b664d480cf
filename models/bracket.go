package models

type BracketType string

const (
	BracketWinners BracketType = "winners"
	BracketLosers  BracketType = "losers"
	BracketFinal   BracketType = "final"
)

// TournamentMatchEdge is one node of the bracket graph, keyed by
// (round, bracket_type, match_order) within a tournament. Parent match
// ids point at the matches whose winners feed this one.
type TournamentMatchEdge struct {
	MatchID        int         `json:"match_id" db:"match_id"`
	TournamentID   int         `json:"tournament_id" db:"tournament_id"`
	Round          int         `json:"round" db:"round"`
	BracketType    BracketType `json:"bracket_type" db:"bracket_type"`
	Team1ID        *int        `json:"team1_id,omitempty" db:"team1_id"`
	Team2ID        *int        `json:"team2_id,omitempty" db:"team2_id"`
	MatchOrder     int         `json:"match_order" db:"match_order"`
	ParentMatch1ID *int        `json:"parent_match1_id,omitempty" db:"parent_match1_id"`
	ParentMatch2ID *int        `json:"parent_match2_id,omitempty" db:"parent_match2_id"`
}

// MessageRef points at a message the bot posted for a match, so later
// edits and deletions can find it again.
type MessageRef struct {
	ChannelID string `json:"channel_id" db:"channel_id"`
	MessageID string `json:"message_id" db:"message_id"`
}
