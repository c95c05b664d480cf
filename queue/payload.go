package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/mkaryagin/scrim-system/models"
)

// Kind identifies a queue table. One table per side-effect type.
type Kind string

const (
	KindAnnouncement      Kind = "announcement"
	KindDeletion          Kind = "deletion"
	KindStatusUpdate      Kind = "status_update"
	KindReminder          Kind = "reminder"
	KindTimedReminder     Kind = "timed_reminder"
	KindScoreNotification Kind = "score_notification"
	KindVoiceAnnouncement Kind = "voice_announcement"
	KindMapCode           Kind = "map_code"
	KindMatchWinner       Kind = "match_winner"
)

// Table returns the backing table name for a queue kind.
func (k Kind) Table() string {
	return string(k) + "_queue"
}

// Kinds lists every queue kind, in dispatch-registration order.
func Kinds() []Kind {
	return []Kind{
		KindAnnouncement,
		KindDeletion,
		KindStatusUpdate,
		KindReminder,
		KindTimedReminder,
		KindScoreNotification,
		KindVoiceAnnouncement,
		KindMapCode,
		KindMatchWinner,
	}
}

// ParseKind validates a queue name from an external source, e.g. a URL
// segment.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown queue kind %q", s)
}

// Payload is the sealed set of queue item payloads. Each variant is
// validated at enqueue time and again after decode, so an untyped blob
// never crosses the store boundary.
type Payload interface {
	Kind() Kind
	Validate() error
}

type AnnouncementStyle string

const (
	AnnouncementStandard   AnnouncementStyle = "standard"
	AnnouncementMatchStart AnnouncementStyle = "match_start"
)

// AnnouncementPayload targets either a match or a tournament;
// exactly one of the two ids is set.
type AnnouncementPayload struct {
	MatchID      int               `json:"match_id,omitempty"`
	TournamentID int               `json:"tournament_id,omitempty"`
	Style        AnnouncementStyle `json:"style"`
}

func (AnnouncementPayload) Kind() Kind { return KindAnnouncement }

func (p AnnouncementPayload) Validate() error {
	if p.MatchID == 0 && p.TournamentID == 0 {
		return errors.New("announcement payload: match_id or tournament_id is required")
	}
	if p.Style != AnnouncementStandard && p.Style != AnnouncementMatchStart {
		return fmt.Errorf("announcement payload: unknown style %q", p.Style)
	}
	return nil
}

type DeletionPayload struct {
	MatchID      int                 `json:"match_id,omitempty"`
	TournamentID int                 `json:"tournament_id,omitempty"`
	Refs         []models.MessageRef `json:"refs"`
	EventID      string              `json:"event_id,omitempty"`
}

func (DeletionPayload) Kind() Kind { return KindDeletion }

func (p DeletionPayload) Validate() error {
	if p.MatchID == 0 && p.TournamentID == 0 {
		return errors.New("deletion payload: match_id or tournament_id is required")
	}
	if len(p.Refs) == 0 && p.EventID == "" {
		return errors.New("deletion payload: nothing to delete")
	}
	return nil
}

type StatusUpdatePayload struct {
	MatchID      int                 `json:"match_id,omitempty"`
	TournamentID int                 `json:"tournament_id,omitempty"`
	Refs         []models.MessageRef `json:"refs"`
}

func (StatusUpdatePayload) Kind() Kind { return KindStatusUpdate }

func (p StatusUpdatePayload) Validate() error {
	if p.MatchID == 0 && p.TournamentID == 0 {
		return errors.New("status update payload: match_id or tournament_id is required")
	}
	if len(p.Refs) == 0 {
		return errors.New("status update payload: refs are required")
	}
	return nil
}

type ReminderPayload struct {
	MatchID  int       `json:"match_id"`
	UserIDs  []string  `json:"user_ids"`
	RemindAt time.Time `json:"remind_at"`
}

func (ReminderPayload) Kind() Kind { return KindReminder }

func (p ReminderPayload) Validate() error {
	if p.MatchID == 0 {
		return errors.New("reminder payload: match_id is required")
	}
	if len(p.UserIDs) == 0 {
		return errors.New("reminder payload: user_ids are required")
	}
	if p.RemindAt.IsZero() {
		return errors.New("reminder payload: remind_at is required")
	}
	return nil
}

// Countdown is the display descriptor computed at enqueue time from the
// match start time minus the reminder offset. It drives the message
// text only; gating is done on RemindAt.
type Countdown struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"` // "minutes" or "hours"
}

type TimedReminderPayload struct {
	MatchID   int       `json:"match_id"`
	StartsAt  time.Time `json:"starts_at"`
	RemindAt  time.Time `json:"remind_at"`
	Countdown Countdown `json:"countdown"`
}

func (TimedReminderPayload) Kind() Kind { return KindTimedReminder }

func (p TimedReminderPayload) Validate() error {
	if p.MatchID == 0 {
		return errors.New("timed reminder payload: match_id is required")
	}
	if p.StartsAt.IsZero() || p.RemindAt.IsZero() {
		return errors.New("timed reminder payload: starts_at and remind_at are required")
	}
	if p.Countdown.Value <= 0 {
		return errors.New("timed reminder payload: countdown value must be positive")
	}
	return nil
}

type ScoreNotificationPayload struct {
	MatchID      int `json:"match_id"`
	GameNumber   int `json:"game_number"`
	WinnerTeamID int `json:"winner_team_id"`
}

func (ScoreNotificationPayload) Kind() Kind { return KindScoreNotification }

func (p ScoreNotificationPayload) Validate() error {
	if p.MatchID == 0 || p.GameNumber == 0 {
		return errors.New("score notification payload: match_id and game_number are required")
	}
	if p.WinnerTeamID == 0 {
		return errors.New("score notification payload: winner_team_id is required")
	}
	return nil
}

type VoiceLine string

const (
	VoiceLineWelcome    VoiceLine = "welcome"
	VoiceLineMatchStart VoiceLine = "match_start"
)

type VoiceAnnouncementPayload struct {
	MatchID   int       `json:"match_id"`
	ChannelID string    `json:"channel_id"`
	Line      VoiceLine `json:"line"`
}

func (VoiceAnnouncementPayload) Kind() Kind { return KindVoiceAnnouncement }

func (p VoiceAnnouncementPayload) Validate() error {
	if p.MatchID == 0 {
		return errors.New("voice announcement payload: match_id is required")
	}
	if p.ChannelID == "" {
		return errors.New("voice announcement payload: channel_id is required")
	}
	if p.Line == "" {
		return errors.New("voice announcement payload: line is required")
	}
	return nil
}

type MapCodePayload struct {
	MatchID int      `json:"match_id"`
	MapID   int      `json:"map_id"`
	Code    string   `json:"code"`
	UserIDs []string `json:"user_ids"`
}

func (MapCodePayload) Kind() Kind { return KindMapCode }

func (p MapCodePayload) Validate() error {
	if p.MatchID == 0 || p.MapID == 0 {
		return errors.New("map code payload: match_id and map_id are required")
	}
	if p.Code == "" {
		return errors.New("map code payload: code is required")
	}
	if len(p.UserIDs) == 0 {
		return errors.New("map code payload: user_ids are required")
	}
	return nil
}

type MatchWinnerPayload struct {
	MatchID      int `json:"match_id"`
	TournamentID int `json:"tournament_id"`
	WinnerTeamID int `json:"winner_team_id"`
}

func (MatchWinnerPayload) Kind() Kind { return KindMatchWinner }

func (p MatchWinnerPayload) Validate() error {
	if p.MatchID == 0 || p.WinnerTeamID == 0 {
		return errors.New("match winner payload: match_id and winner_team_id are required")
	}
	return nil
}
