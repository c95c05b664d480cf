package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/repositories"
)

// Transitioner is the slice of LifecycleService the poller needs.
type Transitioner interface {
	TransitionMatch(ctx context.Context, matchID int, target models.Status) (*models.Match, error)
	TransitionTournament(ctx context.Context, tournamentID int, target models.Status) (*models.Tournament, error)
}

// ProgressionService is the round-completion poller: it scans active
// tournaments on a scheduler tick and feeds the bracket generator
// whenever a round finishes. Per-tournament failures are logged and do
// not stop the sweep.
type ProgressionService struct {
	tournaments repositories.TournamentRepository
	matches     repositories.MatchRepository
	generator   BracketProgression
	lifecycle   Transitioner
	hub         RoomBroadcaster
	logger      *slog.Logger
}

func NewProgressionService(
	tournaments repositories.TournamentRepository,
	matches repositories.MatchRepository,
	generator BracketProgression,
	lifecycle Transitioner,
	hub RoomBroadcaster,
	logger *slog.Logger,
) *ProgressionService {
	return &ProgressionService{
		tournaments: tournaments,
		matches:     matches,
		generator:   generator,
		lifecycle:   lifecycle,
		hub:         hub,
		logger:      logger,
	}
}

func (s *ProgressionService) RunCycle(ctx context.Context) {
	active, err := s.tournaments.ListByStatus(ctx, models.StatusBattle)
	if err != nil {
		s.logger.Error("failed to list active tournaments", slog.Any("error", err))
		return
	}
	for _, tournament := range active {
		if ctx.Err() != nil {
			return
		}
		if err := s.advance(ctx, tournament); err != nil {
			s.logger.Error("tournament progression failed",
				slog.Int("tournament_id", tournament.ID),
				slog.Any("error", err))
		}
	}
}

func (s *ProgressionService) advance(ctx context.Context, tournament *models.Tournament) error {
	if err := s.advanceBracket(ctx, tournament, models.BracketWinners); err != nil {
		return err
	}
	if tournament.Format == models.FormatDoubleElimination {
		if err := s.advanceBracket(ctx, tournament, models.BracketLosers); err != nil {
			return err
		}
	}
	return s.settleFinals(ctx, tournament)
}

// advanceBracket generates the next round of one bracket when its
// current max round is complete. For the winners bracket of a double
// elimination it also drops the losers into the losers bracket first.
func (s *ProgressionService) advanceBracket(ctx context.Context, tournament *models.Tournament, bracket models.BracketType) error {
	maxRound, err := s.matches.MaxRound(ctx, tournament.ID, bracket)
	if err != nil {
		return err
	}
	if maxRound == 0 {
		return nil
	}

	done, err := s.generator.IsRoundComplete(ctx, tournament.ID, maxRound, bracket)
	if err != nil || !done {
		return err
	}

	if bracket == models.BracketWinners && tournament.Format == models.FormatDoubleElimination {
		eliminated, err := s.eliminatedTeams(ctx, tournament.ID, maxRound)
		if err != nil {
			return err
		}
		if len(eliminated) > 0 {
			dropped, err := s.generator.GenerateLosersRound(ctx, tournament.ID, maxRound, eliminated)
			if err != nil {
				return err
			}
			s.announceRound(tournament.ID, dropped)
			s.startMatches(ctx, tournament.ID, dropped)
		}
	}

	created, err := s.generator.GenerateNextRound(ctx, tournament.ID, maxRound, bracket)
	if err != nil {
		if errors.Is(err, brackets.ErrNoCompletedMatches) {
			return nil
		}
		return err
	}
	s.announceRound(tournament.ID, created)
	s.startMatches(ctx, tournament.ID, created)
	return nil
}

// settleFinals generates the grand final once both brackets are decided
// (double elimination) and completes the tournament when its deciding
// match is done.
func (s *ProgressionService) settleFinals(ctx context.Context, tournament *models.Tournament) error {
	winnersReady, err := s.generator.IsBracketReadyForFinals(ctx, tournament.ID, models.BracketWinners)
	if err != nil || !winnersReady {
		return err
	}

	if tournament.Format == models.FormatSingleElimination {
		return s.completeTournament(ctx, tournament)
	}

	finalDone, err := s.generator.IsRoundComplete(ctx, tournament.ID, 1, models.BracketFinal)
	if err != nil {
		return err
	}
	if finalDone {
		return s.completeTournament(ctx, tournament)
	}

	losersReady, err := s.generator.IsBracketReadyForFinals(ctx, tournament.ID, models.BracketLosers)
	if err != nil || !losersReady {
		return err
	}

	winnersWinner, err := s.generator.GetBracketWinner(ctx, tournament.ID, models.BracketWinners)
	if err != nil {
		return err
	}
	losersWinner, err := s.generator.GetBracketWinner(ctx, tournament.ID, models.BracketLosers)
	if err != nil {
		return err
	}
	if winnersWinner == nil || losersWinner == nil {
		return nil
	}

	final, err := s.generator.GenerateGrandFinal(ctx, tournament.ID, *winnersWinner, *losersWinner)
	if err != nil {
		return err
	}
	if final != nil {
		s.announceRound(tournament.ID, []*models.Match{final})
		s.startMatches(ctx, tournament.ID, []*models.Match{final})
	}
	return nil
}

func (s *ProgressionService) completeTournament(ctx context.Context, tournament *models.Tournament) error {
	if _, err := s.lifecycle.TransitionTournament(ctx, tournament.ID, models.StatusComplete); err != nil {
		return err
	}
	winner, err := s.finalWinner(ctx, tournament)
	if err != nil {
		return err
	}
	s.hub.BroadcastToRoom(brackets.TournamentRoom(tournament.ID), brackets.Event{
		Type:    brackets.EventBracketComplete,
		Payload: map[string]interface{}{"tournament_id": tournament.ID, "winner_team_id": winner},
	})
	s.logger.Info("tournament completed",
		slog.Int("tournament_id", tournament.ID),
		slog.Any("winner_team_id", winner))
	return nil
}

func (s *ProgressionService) finalWinner(ctx context.Context, tournament *models.Tournament) (*int, error) {
	if tournament.Format == models.FormatDoubleElimination {
		return s.generator.GetBracketWinner(ctx, tournament.ID, models.BracketFinal)
	}
	return s.generator.GetBracketWinner(ctx, tournament.ID, models.BracketWinners)
}

// eliminatedTeams returns the losing team of every completed match in a
// winners round.
func (s *ProgressionService) eliminatedTeams(ctx context.Context, tournamentID, round int) ([]int, error) {
	roundMatches, err := s.matches.ListByTournamentRound(ctx, tournamentID, round, models.BracketWinners)
	if err != nil {
		return nil, err
	}
	eliminated := make([]int, 0, len(roundMatches))
	for _, match := range roundMatches {
		if match.Status != models.StatusComplete || match.WinnerTeamID == nil {
			continue
		}
		if match.Team1ID != nil && *match.Team1ID != *match.WinnerTeamID {
			eliminated = append(eliminated, *match.Team1ID)
		} else if match.Team2ID != nil && *match.Team2ID != *match.WinnerTeamID {
			eliminated = append(eliminated, *match.Team2ID)
		}
	}
	return eliminated, nil
}

func (s *ProgressionService) announceRound(tournamentID int, created []*models.Match) {
	if len(created) == 0 {
		return
	}
	s.hub.BroadcastToRoom(brackets.TournamentRoom(tournamentID), brackets.Event{
		Type:    brackets.EventRoundGenerated,
		Payload: created,
	})
}

// startMatches pushes freshly generated matches into battle so their
// announcements and voice lines go out.
func (s *ProgressionService) startMatches(ctx context.Context, tournamentID int, created []*models.Match) {
	for _, match := range created {
		if _, err := s.lifecycle.TransitionMatch(ctx, match.ID, models.StatusBattle); err != nil {
			s.logger.Error("failed to start generated match",
				slog.Int("tournament_id", tournamentID),
				slog.Int("match_id", match.ID),
				slog.Any("error", err))
		}
	}
}
