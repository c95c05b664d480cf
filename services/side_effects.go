package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
)

// SideEffectService turns claimed queue items into executor calls. Each
// Exec* method matches queue.ExecFunc for its payload type and is wired
// to one dispatcher. A returned error marks the item failed; failed is
// terminal.
type SideEffectService struct {
	executor SideEffectExecutor
	matches  repositories.MatchRepository
	voice    repositories.VoiceRepository
	msgRefs  repositories.MessageRefRepository
	forms    *SignupFormLoader
	logger   *slog.Logger
}

func NewSideEffectService(
	executor SideEffectExecutor,
	matches repositories.MatchRepository,
	voice repositories.VoiceRepository,
	msgRefs repositories.MessageRefRepository,
	forms *SignupFormLoader,
	logger *slog.Logger,
) *SideEffectService {
	return &SideEffectService{
		executor: executor,
		matches:  matches,
		voice:    voice,
		msgRefs:  msgRefs,
		forms:    forms,
		logger:   logger,
	}
}

func (s *SideEffectService) ExecAnnouncement(ctx context.Context, item queue.Item[queue.AnnouncementPayload]) error {
	p := item.Payload

	var content string
	switch p.Style {
	case queue.AnnouncementMatchStart:
		content = fmt.Sprintf("Match #%d is starting now. Good luck!", p.MatchID)
	default:
		if p.TournamentID != 0 {
			content = fmt.Sprintf("Tournament #%d is open for signups.", p.TournamentID)
		} else {
			content = fmt.Sprintf("Match #%d is gathering players.", p.MatchID)
		}
	}

	refs, err := s.executor.PostAnnouncement(ctx, content)
	if err != nil {
		return err
	}

	owner, ownerID := repositories.RefOwnerMatch, p.MatchID
	if p.TournamentID != 0 {
		owner, ownerID = repositories.RefOwnerTournament, p.TournamentID
	}
	if err := s.msgRefs.Save(ctx, owner, ownerID, string(p.Style), refs); err != nil {
		// The message is out; losing the ref only costs a later edit.
		s.logger.Error("failed to save announcement refs",
			slog.Int("owner_id", ownerID),
			slog.Any("error", err))
	}
	return nil
}

func (s *SideEffectService) ExecDeletion(ctx context.Context, item queue.Item[queue.DeletionPayload]) error {
	return s.executor.DeleteAnnouncement(ctx, item.Payload.Refs, item.Payload.EventID)
}

func (s *SideEffectService) ExecStatusUpdate(ctx context.Context, item queue.Item[queue.StatusUpdatePayload]) error {
	return s.executor.UpdateForSignupClosure(ctx, item.Payload.Refs)
}

func (s *SideEffectService) ExecReminder(ctx context.Context, item queue.Item[queue.ReminderPayload]) error {
	content := fmt.Sprintf("Reminder: match #%d needs you. Check in!", item.Payload.MatchID)
	var failed int
	for _, userID := range item.Payload.UserIDs {
		if err := s.executor.SendDirectMessage(ctx, userID, content); err != nil {
			failed++
			s.logger.Warn("reminder DM failed",
				slog.String("user_id", userID),
				slog.Int("match_id", item.Payload.MatchID),
				slog.Any("error", err))
		}
	}
	if failed == len(item.Payload.UserIDs) {
		return errors.New("all reminder DMs failed")
	}
	return nil
}

// ExecTimedReminder recomputes the countdown text from the match start
// time at send time; the enqueue-time descriptor only seeded the
// initial wording. Gating already happened in the dispatcher's Ready
// hook, on RemindAt alone.
func (s *SideEffectService) ExecTimedReminder(ctx context.Context, item queue.Item[queue.TimedReminderPayload]) error {
	p := item.Payload

	remaining := time.Until(p.StartsAt)
	var display string
	switch {
	case remaining <= 0:
		display = "now"
	case remaining < time.Hour:
		display = fmt.Sprintf("in %d minutes", int(remaining.Minutes())+1)
	default:
		display = fmt.Sprintf("in %d hours", int(remaining.Hours()))
	}

	participants, err := s.matches.ListParticipants(ctx, p.MatchID)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("Match #%d starts %s.", p.MatchID, display)
	var failed int
	for _, participant := range participants {
		if err := s.executor.SendDirectMessage(ctx, participant.UserID, content); err != nil {
			failed++
		}
	}
	if len(participants) > 0 && failed == len(participants) {
		return errors.New("all timed reminder DMs failed")
	}
	return nil
}

func (s *SideEffectService) ExecScoreNotification(ctx context.Context, item queue.Item[queue.ScoreNotificationPayload]) error {
	p := item.Payload
	content := fmt.Sprintf("Match #%d, game %d goes to team %d.", p.MatchID, p.GameNumber, p.WinnerTeamID)
	_, err := s.executor.PostAnnouncement(ctx, content)
	return err
}

func (s *SideEffectService) ExecMatchWinner(ctx context.Context, item queue.Item[queue.MatchWinnerPayload]) error {
	p := item.Payload
	content := fmt.Sprintf("Match #%d is over. Team %d takes it!", p.MatchID, p.WinnerTeamID)
	_, err := s.executor.PostAnnouncement(ctx, content)
	return err
}

// ExecVoiceAnnouncement plays the line and flips which team is named
// first, so repeated announcements for one match alternate fairly.
func (s *SideEffectService) ExecVoiceAnnouncement(ctx context.Context, item queue.Item[queue.VoiceAnnouncementPayload]) error {
	p := item.Payload

	if err := s.executor.PlayVoiceLine(ctx, p.ChannelID, p.Line); err != nil {
		return err
	}

	match, err := s.matches.GetByID(ctx, p.MatchID)
	if err != nil {
		return nil
	}
	if match.Team1ID == nil || match.Team2ID == nil {
		return nil
	}
	last, err := s.voice.LastFirstTeam(ctx, p.MatchID)
	if err != nil {
		s.logger.Warn("voice alternation lookup failed", slog.Int("match_id", p.MatchID), slog.Any("error", err))
		return nil
	}
	first := *match.Team1ID
	if last != nil && *last == *match.Team1ID {
		first = *match.Team2ID
	}
	if err := s.voice.SetLastFirstTeam(ctx, p.MatchID, first); err != nil {
		s.logger.Warn("voice alternation update failed", slog.Int("match_id", p.MatchID), slog.Any("error", err))
	}
	return nil
}

func (s *SideEffectService) ExecMapCode(ctx context.Context, item queue.Item[queue.MapCodePayload]) error {
	p := item.Payload

	match, err := s.matches.GetByID(ctx, p.MatchID)
	if err != nil {
		return err
	}

	content := fmt.Sprintf("Map code for match #%d: %s", p.MatchID, p.Code)
	if form, err := s.forms.Form(match.GameID); err == nil {
		label := form.CodeLabel
		if label == "" {
			label = "Map code"
		}
		if form.CodeDisplay == "block" {
			content = fmt.Sprintf("%s for match #%d:\n```%s```", label, p.MatchID, p.Code)
		} else {
			content = fmt.Sprintf("%s for match #%d: `%s`", label, p.MatchID, p.Code)
		}
	} else if !errors.Is(err, ErrSignupFormNotFound) {
		s.logger.Warn("signup form lookup failed", slog.Int("game_id", match.GameID), slog.Any("error", err))
	}

	var failed int
	for _, userID := range p.UserIDs {
		if err := s.executor.SendDirectMessage(ctx, userID, content); err != nil {
			failed++
		}
	}
	if failed == len(p.UserIDs) {
		return errors.New("all map code DMs failed")
	}
	return nil
}

// TimedReminderReady is the dispatcher Ready hook for the timed
// reminder queue: an item stays pending until its remind time.
func TimedReminderReady(item queue.Item[queue.TimedReminderPayload], now time.Time) bool {
	return !item.Payload.RemindAt.After(now)
}

// ReminderReady gates plain reminders the same way.
func ReminderReady(item queue.Item[queue.ReminderPayload], now time.Time) bool {
	return !item.Payload.RemindAt.After(now)
}
