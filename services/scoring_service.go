package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
)

// ScoringService creates score rows per selected map and records game
// results. It decides the match winner by majority but leaves the
// complete transition to the caller so the lifecycle stays the single
// writer of match status.
type ScoringService struct {
	matches repositories.MatchRepository
	scoreQ  Enqueuer[queue.ScoreNotificationPayload]
	logger  *slog.Logger
}

func NewScoringService(
	matches repositories.MatchRepository,
	scoreQ Enqueuer[queue.ScoreNotificationPayload],
	logger *slog.Logger,
) *ScoringService {
	return &ScoringService{matches: matches, scoreQ: scoreQ, logger: logger}
}

// InitializeMatchGames creates one pending score row per map. Existing
// rows make it a no-op, so battle entry and bracket generation cannot
// double-create.
func (s *ScoringService) InitializeMatchGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	count, err := s.matches.CountGames(ctx, matchID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.matches.CreateGames(ctx, q, matchID, mapIDs)
}

// ReportGameResult records one game's winner and enqueues the score
// notification. It returns true when the result decides the whole
// match, in which case the winner has been written to the match row and
// the caller should transition the match to complete.
func (s *ScoringService) ReportGameResult(ctx context.Context, matchID, gameNumber, winnerTeamID int) (bool, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return false, fmt.Errorf("%w: match %d", ErrNotFound, matchID)
		}
		return false, err
	}
	if match.Status != models.StatusBattle {
		return false, fmt.Errorf("%w: match %d is %s, results accepted only in battle",
			ErrPreconditionFailed, matchID, match.Status)
	}

	if err := s.matches.SetGameWinner(ctx, matchID, gameNumber, winnerTeamID); err != nil {
		return false, err
	}

	_, err = s.scoreQ.Enqueue(ctx, matchID, queue.ScoreNotificationPayload{
		MatchID:      matchID,
		GameNumber:   gameNumber,
		WinnerTeamID: winnerTeamID,
	})
	if err != nil {
		s.logger.Error("failed to enqueue score notification",
			slog.Int("match_id", matchID),
			slog.Any("error", err))
	}

	total, err := s.matches.CountGames(ctx, matchID)
	if err != nil {
		return false, err
	}
	wins, err := s.matches.GameWins(ctx, matchID)
	if err != nil {
		return false, err
	}
	if wins[winnerTeamID]*2 <= total {
		return false, nil
	}

	if err := s.matches.SetWinner(ctx, matchID, winnerTeamID); err != nil {
		return false, err
	}
	return true, nil
}
