package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
)

// LifecycleDeps bundles everything the state machine touches.
type LifecycleDeps struct {
	DB          repositories.Querier
	Tx          repositories.TxRunner
	Matches     repositories.MatchRepository
	Tournaments repositories.TournamentRepository
	Teams       repositories.TeamRepository
	Games       repositories.GameRepository
	Signups     repositories.SignupRepository
	MessageRefs repositories.MessageRefRepository
	Voice       repositories.VoiceRepository

	AnnouncementQueue  Enqueuer[queue.AnnouncementPayload]
	DeletionQueue      Enqueuer[queue.DeletionPayload]
	StatusQueue        Enqueuer[queue.StatusUpdatePayload]
	VoiceQueue         Enqueuer[queue.VoiceAnnouncementPayload]
	MapCodeQueue       Enqueuer[queue.MapCodePayload]
	WinnerQueue        Enqueuer[queue.MatchWinnerPayload]
	ReminderQueue      Enqueuer[queue.ReminderPayload]
	TimedReminderQueue Enqueuer[queue.TimedReminderPayload]

	Scoring     ScoringInitializer
	Provisioner VoiceChannelProvisioner
	Generator   BracketProgression
	Hub         RoomBroadcaster
	Logger      *slog.Logger
}

// LifecycleService validates and applies status transitions for matches
// and tournaments. Status persistence is synchronous; every side effect
// is enqueued best-effort after persistence and can never fail the
// transition itself.
type LifecycleService struct {
	deps   LifecycleDeps
	logger *slog.Logger
}

func NewLifecycleService(deps LifecycleDeps) *LifecycleService {
	return &LifecycleService{deps: deps, logger: deps.Logger}
}

func (s *LifecycleService) TransitionMatch(ctx context.Context, matchID int, target models.Status) (*models.Match, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	match, err := s.deps.Matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		return nil, err
	}

	if !match.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: match %d cannot move from %s to %s",
			ErrInvalidTransition, matchID, match.Status, target)
	}

	if err := s.deps.Matches.UpdateStatus(ctx, s.deps.DB, matchID, target); err != nil {
		return nil, err
	}
	match.Status = target

	s.applyMatchSideEffects(ctx, match)
	s.broadcastMatch(match)
	return match, nil
}

func (s *LifecycleService) TransitionTournament(ctx context.Context, tournamentID int, target models.Status) (*models.Tournament, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	tournament, err := s.deps.Tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, fmt.Errorf("%w: tournament %d", ErrNotFound, tournamentID)
		}
		return nil, err
	}

	if !tournament.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: tournament %d cannot move from %s to %s",
			ErrInvalidTransition, tournamentID, tournament.Status, target)
	}

	if target == models.StatusBattle {
		if err := s.checkBattlePrecondition(ctx, tournamentID); err != nil {
			return nil, err
		}
	}

	if err := s.deps.Tournaments.UpdateStatus(ctx, s.deps.DB, tournamentID, target); err != nil {
		return nil, err
	}
	tournament.Status = target

	s.applyTournamentSideEffects(ctx, tournament)
	s.deps.Hub.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.Event{
		Type:    brackets.EventTournamentUpdated,
		Payload: tournament,
	})
	return tournament, nil
}

// checkBattlePrecondition requires at least two teams and at least one
// team with a member before a tournament may enter battle.
func (s *LifecycleService) checkBattlePrecondition(ctx context.Context, tournamentID int) error {
	teams, err := s.deps.Teams.ListByTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if len(teams) < 2 {
		return fmt.Errorf("%w: tournament %d has %d teams, need at least 2",
			ErrPreconditionFailed, tournamentID, len(teams))
	}
	for _, team := range teams {
		if len(team.Members) > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: tournament %d has no team with members", ErrPreconditionFailed, tournamentID)
}

// applyMatchSideEffects runs after persistence. Every failure here is
// logged and swallowed: a broken announcement must never roll back a
// status change.
func (s *LifecycleService) applyMatchSideEffects(ctx context.Context, match *models.Match) {
	switch match.Status {
	case models.StatusGather:
		s.enqueueStandardAnnouncement(ctx, match.ID, 0)
		s.scheduleTimedReminder(ctx, match)
	case models.StatusAssign:
		s.enqueueSignupClosure(ctx, repositories.RefOwnerMatch, match.ID)
		s.ensureVoiceChannels(ctx, match.ID)
		s.scheduleParticipantReminder(ctx, match)
	case models.StatusBattle:
		s.applyBattleEntry(ctx, match)
	case models.StatusComplete:
		s.enqueueMatchWinner(ctx, match)
		s.enqueueDeletion(ctx, repositories.RefOwnerMatch, match.ID)
	case models.StatusCancelled:
		s.enqueueDeletion(ctx, repositories.RefOwnerMatch, match.ID)
	}
}

func (s *LifecycleService) applyTournamentSideEffects(ctx context.Context, tournament *models.Tournament) {
	switch tournament.Status {
	case models.StatusGather:
		s.enqueueStandardAnnouncement(ctx, 0, tournament.ID)
	case models.StatusAssign:
		s.enqueueSignupClosure(ctx, repositories.RefOwnerTournament, tournament.ID)
		s.autoCreateSoloTeams(ctx, tournament)
	case models.StatusBattle:
		s.startTournamentBattle(ctx, tournament)
	case models.StatusComplete, models.StatusCancelled:
		s.enqueueDeletion(ctx, repositories.RefOwnerTournament, tournament.ID)
	}
}

// enqueueStandardAnnouncement is idempotent: a pending or posted
// standard announcement for the same entity suppresses a second one.
func (s *LifecycleService) enqueueStandardAnnouncement(ctx context.Context, matchID, tournamentID int) {
	entityID := matchID
	if entityID == 0 {
		entityID = tournamentID
	}
	exists, err := s.deps.AnnouncementQueue.ActiveExists(ctx, entityID, func(p queue.AnnouncementPayload) bool {
		return p.Style == queue.AnnouncementStandard
	})
	if err != nil {
		s.logger.Error("announcement dedupe check failed", slog.Int("entity_id", entityID), slog.Any("error", err))
		return
	}
	if exists {
		return
	}
	_, err = s.deps.AnnouncementQueue.Enqueue(ctx, entityID, queue.AnnouncementPayload{
		MatchID:      matchID,
		TournamentID: tournamentID,
		Style:        queue.AnnouncementStandard,
	})
	if err != nil {
		s.logger.Error("failed to enqueue announcement", slog.Int("entity_id", entityID), slog.Any("error", err))
	}
}

func (s *LifecycleService) enqueueSignupClosure(ctx context.Context, owner repositories.RefOwner, ownerID int) {
	refs, err := s.deps.MessageRefs.ListByOwner(ctx, owner, ownerID)
	if err != nil {
		s.logger.Error("failed to load announcement refs", slog.Int("owner_id", ownerID), slog.Any("error", err))
		return
	}
	if len(refs) == 0 {
		return
	}
	payload := queue.StatusUpdatePayload{Refs: refs}
	if owner == repositories.RefOwnerMatch {
		payload.MatchID = ownerID
	} else {
		payload.TournamentID = ownerID
	}
	if _, err := s.deps.StatusQueue.Enqueue(ctx, ownerID, payload); err != nil {
		s.logger.Error("failed to enqueue signup closure", slog.Int("owner_id", ownerID), slog.Any("error", err))
	}
}

func (s *LifecycleService) enqueueDeletion(ctx context.Context, owner repositories.RefOwner, ownerID int) {
	refs, err := s.deps.MessageRefs.ListByOwner(ctx, owner, ownerID)
	if err != nil {
		s.logger.Error("failed to load announcement refs", slog.Int("owner_id", ownerID), slog.Any("error", err))
		return
	}
	if len(refs) == 0 {
		// Nothing was ever posted. Not an error.
		return
	}
	payload := queue.DeletionPayload{Refs: refs}
	if owner == repositories.RefOwnerMatch {
		payload.MatchID = ownerID
	} else {
		payload.TournamentID = ownerID
	}
	if _, err := s.deps.DeletionQueue.Enqueue(ctx, ownerID, payload); err != nil {
		s.logger.Error("failed to enqueue deletion", slog.Int("owner_id", ownerID), slog.Any("error", err))
	}
}

func (s *LifecycleService) enqueueMatchWinner(ctx context.Context, match *models.Match) {
	if match.WinnerTeamID == nil || match.TournamentID == nil {
		return
	}
	_, err := s.deps.WinnerQueue.Enqueue(ctx, match.ID, queue.MatchWinnerPayload{
		MatchID:      match.ID,
		TournamentID: *match.TournamentID,
		WinnerTeamID: *match.WinnerTeamID,
	})
	if err != nil {
		s.logger.Error("failed to enqueue match winner notification", slog.Int("match_id", match.ID), slog.Any("error", err))
	}
}

// Reminder offsets relative to the match start time.
const (
	timedReminderLead       = time.Hour
	participantReminderLead = 15 * time.Minute
)

// scheduleTimedReminder queues the pre-match countdown message when
// the match enters gather with a scheduled start. The countdown is
// fixed at enqueue time; dispatch gates on RemindAt only.
func (s *LifecycleService) scheduleTimedReminder(ctx context.Context, match *models.Match) {
	if match.StartTime == nil {
		return
	}
	remindAt := match.StartTime.Add(-timedReminderLead)
	if !remindAt.After(time.Now()) {
		return
	}

	exists, err := s.deps.TimedReminderQueue.ActiveExists(ctx, match.ID, func(queue.TimedReminderPayload) bool {
		return true
	})
	if err != nil {
		s.logger.Error("timed reminder dedupe check failed", slog.Int("match_id", match.ID), slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	_, err = s.deps.TimedReminderQueue.Enqueue(ctx, match.ID, queue.TimedReminderPayload{
		MatchID:   match.ID,
		StartsAt:  *match.StartTime,
		RemindAt:  remindAt,
		Countdown: countdownFor(timedReminderLead),
	})
	if err != nil {
		s.logger.Error("failed to enqueue timed reminder", slog.Int("match_id", match.ID), slog.Any("error", err))
	}
}

func countdownFor(lead time.Duration) queue.Countdown {
	if lead >= time.Hour {
		return queue.Countdown{Value: int(lead / time.Hour), Unit: "hours"}
	}
	return queue.Countdown{Value: int(lead / time.Minute), Unit: "minutes"}
}

// scheduleParticipantReminder pings the roster shortly before the
// start time once rosters are locked in assign.
func (s *LifecycleService) scheduleParticipantReminder(ctx context.Context, match *models.Match) {
	if match.StartTime == nil {
		return
	}
	remindAt := match.StartTime.Add(-participantReminderLead)
	if !remindAt.After(time.Now()) {
		return
	}

	participants, err := s.deps.Matches.ListParticipants(ctx, match.ID)
	if err != nil {
		s.logger.Error("failed to load participants", slog.Int("match_id", match.ID), slog.Any("error", err))
		return
	}
	if len(participants) == 0 {
		return
	}
	userIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}

	exists, err := s.deps.ReminderQueue.ActiveExists(ctx, match.ID, func(queue.ReminderPayload) bool {
		return true
	})
	if err != nil {
		s.logger.Error("reminder dedupe check failed", slog.Int("match_id", match.ID), slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	_, err = s.deps.ReminderQueue.Enqueue(ctx, match.ID, queue.ReminderPayload{
		MatchID:  match.ID,
		UserIDs:  userIDs,
		RemindAt: remindAt,
	})
	if err != nil {
		s.logger.Error("failed to enqueue participant reminder", slog.Int("match_id", match.ID), slog.Any("error", err))
	}
}

// applyBattleEntry is the full battle-entry sequence for one match:
// match-start announcement, welcome voice line, score rows, and the
// map-code PM for the first map when the game supports codes.
func (s *LifecycleService) applyBattleEntry(ctx context.Context, match *models.Match) {
	// Bracket matches are born in assign, so the assign-transition hook
	// never runs for them. Provision here when channels are missing.
	s.ensureVoiceChannels(ctx, match.ID)

	_, err := s.deps.AnnouncementQueue.Enqueue(ctx, match.ID, queue.AnnouncementPayload{
		MatchID: match.ID,
		Style:   queue.AnnouncementMatchStart,
	})
	if err != nil {
		s.logger.Error("failed to enqueue match start announcement", slog.Int("match_id", match.ID), slog.Any("error", err))
	}

	if blue, _, err := s.deps.Voice.GetChannels(ctx, match.ID); err == nil {
		_, err = s.deps.VoiceQueue.Enqueue(ctx, match.ID, queue.VoiceAnnouncementPayload{
			MatchID:   match.ID,
			ChannelID: blue,
			Line:      queue.VoiceLineWelcome,
		})
		if err != nil {
			s.logger.Error("failed to enqueue voice announcement", slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	} else if !errors.Is(err, repositories.ErrVoiceChannelsNotFound) {
		s.logger.Error("failed to load voice channels", slog.Int("match_id", match.ID), slog.Any("error", err))
	}

	maps, err := s.deps.Matches.GetMaps(ctx, match.ID)
	if err != nil {
		s.logger.Error("failed to load match maps", slog.Int("match_id", match.ID), slog.Any("error", err))
		return
	}

	count, err := s.deps.Matches.CountGames(ctx, match.ID)
	if err != nil {
		s.logger.Error("failed to count match games", slog.Int("match_id", match.ID), slog.Any("error", err))
	} else if count == 0 && len(maps) > 0 {
		if err := s.deps.Scoring.InitializeMatchGames(ctx, s.deps.DB, match.ID, maps); err != nil {
			s.logger.Error("failed to initialize score rows", slog.Int("match_id", match.ID), slog.Any("error", err))
		}
	}

	s.enqueueFirstMapCode(ctx, match, maps)
}

func (s *LifecycleService) enqueueFirstMapCode(ctx context.Context, match *models.Match, maps []int) {
	if len(maps) == 0 {
		return
	}
	game, err := s.deps.Games.GetGame(ctx, match.GameID)
	if err != nil {
		s.logger.Error("failed to load game", slog.Int("game_id", match.GameID), slog.Any("error", err))
		return
	}
	if !game.SupportsMapCodes {
		return
	}

	code, err := s.deps.Games.GetMapCode(ctx, game.ID, maps[0])
	if err != nil {
		if !errors.Is(err, repositories.ErrMapCodeNotFound) {
			s.logger.Error("failed to resolve map code", slog.Int("map_id", maps[0]), slog.Any("error", err))
		}
		return
	}

	participants, err := s.deps.Matches.ListParticipants(ctx, match.ID)
	if err != nil {
		s.logger.Error("failed to load participants", slog.Int("match_id", match.ID), slog.Any("error", err))
		return
	}
	userIDs := make([]string, 0, len(participants))
	for _, p := range participants {
		userIDs = append(userIDs, p.UserID)
	}
	if len(userIDs) == 0 {
		return
	}

	_, err = s.deps.MapCodeQueue.Enqueue(ctx, match.ID, queue.MapCodePayload{
		MatchID: match.ID,
		MapID:   maps[0],
		Code:    code,
		UserIDs: userIDs,
	})
	if err != nil {
		s.logger.Error("failed to enqueue map code", slog.Int("match_id", match.ID), slog.Any("error", err))
	}
}

// ensureVoiceChannels reuses an existing assignment or requests a new
// one through the bot-request broker.
func (s *LifecycleService) ensureVoiceChannels(ctx context.Context, matchID int) {
	if _, _, err := s.deps.Voice.GetChannels(ctx, matchID); err == nil {
		return
	} else if !errors.Is(err, repositories.ErrVoiceChannelsNotFound) {
		s.logger.Error("failed to load voice channels", slog.Int("match_id", matchID), slog.Any("error", err))
		return
	}

	resp, err := s.deps.Provisioner.RequestVoiceChannels(ctx, matchID)
	if err != nil {
		s.logger.Warn("voice channel request failed", slog.Int("match_id", matchID), slog.Any("error", err))
		return
	}
	if err := s.deps.Voice.SaveChannels(ctx, matchID, resp.BlueChannelID, resp.RedChannelID); err != nil {
		s.logger.Error("failed to save voice channels", slog.Int("match_id", matchID), slog.Any("error", err))
	}
}

// autoCreateSoloTeams turns pre-team signups into one-member teams when
// the tournament's mode is solo and no teams exist yet.
func (s *LifecycleService) autoCreateSoloTeams(ctx context.Context, tournament *models.Tournament) {
	mode, err := s.deps.Games.GetMode(ctx, tournament.ModeID)
	if err != nil {
		s.logger.Error("failed to load mode", slog.Int("mode_id", tournament.ModeID), slog.Any("error", err))
		return
	}
	if mode.TeamSize != 1 {
		return
	}

	count, err := s.deps.Teams.CountByTournament(ctx, tournament.ID)
	if err != nil {
		s.logger.Error("failed to count teams", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	if count > 0 {
		return
	}

	userIDs, err := s.deps.Signups.ListUserIDs(ctx, tournament.ID)
	if err != nil {
		s.logger.Error("failed to list signups", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	if len(userIDs) == 0 {
		return
	}

	err = s.deps.Tx.InTx(ctx, func(q repositories.Querier) error {
		for i, userID := range userIDs {
			team := &models.TournamentTeam{
				TournamentID: tournament.ID,
				Name:         userID,
				Seed:         i + 1,
			}
			if err := s.deps.Teams.Create(ctx, q, team); err != nil {
				return err
			}
			member := &models.TournamentTeamMember{TeamID: team.ID, UserID: userID}
			if err := s.deps.Teams.AddMember(ctx, q, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create solo teams", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	s.logger.Info("created solo teams from signups",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("teams", len(userIDs)))
}

// startTournamentBattle generates the first round when it does not
// exist yet, then cascades battle entry to every first-round match
// still in assign.
func (s *LifecycleService) startTournamentBattle(ctx context.Context, tournament *models.Tournament) {
	created, err := s.deps.Generator.GenerateFirstRound(ctx, tournament)
	if err != nil {
		s.logger.Error("first round generation failed", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
	} else if len(created) > 0 {
		s.deps.Hub.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.Event{
			Type:    brackets.EventRoundGenerated,
			Payload: created,
		})
	}

	pending, err := s.deps.Matches.ListFirstRound(ctx, tournament.ID, models.StatusAssign)
	if err != nil {
		s.logger.Error("failed to list first round", slog.Int("tournament_id", tournament.ID), slog.Any("error", err))
		return
	}
	for _, match := range pending {
		if _, err := s.TransitionMatch(ctx, match.ID, models.StatusBattle); err != nil {
			s.logger.Error("battle cascade failed",
				slog.Int("tournament_id", tournament.ID),
				slog.Int("match_id", match.ID),
				slog.Any("error", err))
		}
	}
}

func (s *LifecycleService) broadcastMatch(match *models.Match) {
	if match.TournamentID == nil {
		return
	}
	s.deps.Hub.BroadcastToRoom(brackets.TournamentRoom(*match.TournamentID), brackets.Event{
		Type:    brackets.EventMatchUpdated,
		Payload: match,
	})
}
