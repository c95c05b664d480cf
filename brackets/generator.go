package brackets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/repositories"
)

var (
	ErrNotEnoughTeams     = errors.New("not enough teams to generate a bracket (minimum 2)")
	ErrNoCompletedMatches = errors.New("no completed matches in the requested round")
	ErrRoundIncomplete    = errors.New("round has matches without a winner")
)

// ScoringInitializer is invoked after match creation so score rows
// exist before anyone reports a result.
type ScoringInitializer interface {
	InitializeMatchGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error
}

// Generator produces bracket matches round by round. Every generation
// call commits its match rows, edges and participant clones in one
// transaction; a failed call rolls back and touches nothing.
type Generator struct {
	tx          repositories.TxRunner
	matches     repositories.MatchRepository
	edges       repositories.EdgeRepository
	teams       repositories.TeamRepository
	tournaments repositories.TournamentRepository
	games       repositories.GameRepository
	scoring     ScoringInitializer
	logger      *slog.Logger
}

func NewGenerator(
	tx repositories.TxRunner,
	matches repositories.MatchRepository,
	edges repositories.EdgeRepository,
	teams repositories.TeamRepository,
	tournaments repositories.TournamentRepository,
	games repositories.GameRepository,
	scoring ScoringInitializer,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		tx:          tx,
		matches:     matches,
		edges:       edges,
		teams:       teams,
		tournaments: tournaments,
		games:       games,
		scoring:     scoring,
		logger:      logger,
	}
}

// GenerateFirstRound pairs teams by seed position and creates the round
// 1 winners matches. An unpaired trailing team is a bye: no match is
// generated and the team is not auto-advanced.
func (g *Generator) GenerateFirstRound(ctx context.Context, tournament *models.Tournament) ([]*models.Match, error) {
	teams, err := g.teams.ListByTournament(ctx, tournament.ID)
	if err != nil {
		return nil, fmt.Errorf("list teams for tournament %d: %w", tournament.ID, err)
	}
	if len(teams) < 2 {
		return nil, ErrNotEnoughTeams
	}

	if existing, err := g.edges.CountByRound(ctx, tournament.ID, 1, models.BracketWinners); err != nil {
		return nil, err
	} else if existing > 0 {
		return nil, nil
	}

	pools, err := g.loadPools(ctx, tournament)
	if err != nil {
		return nil, err
	}

	teamIDs := make([]int, len(teams))
	byID := make(map[int]*models.TournamentTeam, len(teams))
	for i, team := range teams {
		teamIDs[i] = team.ID
		byID[team.ID] = team
	}

	pairs, bye := pairConsecutive(teamIDs)
	if bye != nil {
		g.logger.Info("unpaired team gets a bye, no match generated",
			slog.Int("tournament_id", tournament.ID),
			slog.Int("team_id", *bye))
	}

	created := make([]*models.Match, 0, len(pairs))
	err = g.tx.InTx(ctx, func(q repositories.Querier) error {
		for i, pair := range pairs {
			match, mErr := g.createBracketMatch(ctx, q, tournament, pools, byID, bracketSlot{
				round:      1,
				bracket:    models.BracketWinners,
				matchOrder: i + 1,
				team1:      &pair[0],
				team2:      &pair[1],
			})
			if mErr != nil {
				return mErr
			}
			created = append(created, match)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GenerateNextRound pairs the winners of a completed round. Returns an
// empty slice when the bracket is already decided (a single completed
// winners match) or when the next round was generated earlier.
func (g *Generator) GenerateNextRound(ctx context.Context, tournamentID, currentRound int, bracket models.BracketType) ([]*models.Match, error) {
	roundMatches, err := g.matches.ListByTournamentRound(ctx, tournamentID, currentRound, bracket)
	if err != nil {
		return nil, err
	}
	completed := make([]*models.Match, 0, len(roundMatches))
	for _, match := range roundMatches {
		if match.Status == models.StatusComplete {
			completed = append(completed, match)
		}
	}
	if len(completed) == 0 {
		return nil, ErrNoCompletedMatches
	}
	if len(completed) == 1 && bracket == models.BracketWinners {
		// The bracket already has its winner.
		return nil, nil
	}

	if existing, err := g.edges.CountByRound(ctx, tournamentID, currentRound+1, bracket); err != nil {
		return nil, err
	} else if existing > 0 {
		return nil, nil
	}

	tournament, err := g.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	pools, err := g.loadPools(ctx, tournament)
	if err != nil {
		return nil, err
	}
	byID, err := g.teamsByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	winners := make([]int, 0, len(completed))
	parents := make([]int, 0, len(completed))
	for _, match := range completed {
		if match.WinnerTeamID == nil {
			return nil, fmt.Errorf("%w: match %d", ErrRoundIncomplete, match.ID)
		}
		winners = append(winners, *match.WinnerTeamID)
		parents = append(parents, match.ID)
	}

	created := make([]*models.Match, 0, len(winners)/2)
	err = g.tx.InTx(ctx, func(q repositories.Querier) error {
		for i := 0; i+1 < len(winners); i += 2 {
			parent1, parent2 := parents[i], parents[i+1]
			match, mErr := g.createBracketMatch(ctx, q, tournament, pools, byID, bracketSlot{
				round:      currentRound + 1,
				bracket:    bracket,
				matchOrder: i/2 + 1,
				team1:      &winners[i],
				team2:      &winners[i+1],
				parent1:    &parent1,
				parent2:    &parent2,
			})
			if mErr != nil {
				return mErr
			}
			created = append(created, match)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(winners)%2 == 1 {
		g.logger.Info("unpaired winner gets a bye, no match generated",
			slog.Int("tournament_id", tournamentID),
			slog.Int("team_id", winners[len(winners)-1]))
	}
	return created, nil
}

// GenerateLosersRound drops freshly eliminated teams into the losers
// bracket, merging them with teams already waiting in that round.
// A leftover unpaired team stays queued for the next drop.
func (g *Generator) GenerateLosersRound(ctx context.Context, tournamentID, eliminatedFromWinnersRound int, eliminatedTeamIDs []int) ([]*models.Match, error) {
	losersRound := LosersRoundFor(eliminatedFromWinnersRound)

	fresh := make([]int, 0, len(eliminatedTeamIDs))
	for _, teamID := range eliminatedTeamIDs {
		placed, err := g.edges.TeamPlaced(ctx, tournamentID, models.BracketLosers, teamID)
		if err != nil {
			return nil, err
		}
		if !placed {
			fresh = append(fresh, teamID)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	tournament, err := g.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	pools, err := g.loadPools(ctx, tournament)
	if err != nil {
		return nil, err
	}
	byID, err := g.teamsByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	orderBase, err := g.edges.CountByRound(ctx, tournamentID, losersRound, models.BracketLosers)
	if err != nil {
		return nil, err
	}

	created := make([]*models.Match, 0)
	err = g.tx.InTx(ctx, func(q repositories.Querier) error {
		waiting, tErr := g.edges.TakeSlots(ctx, q, tournamentID, losersRound, models.BracketLosers)
		if tErr != nil {
			return tErr
		}
		entrants := append(waiting, fresh...)

		pairs, leftover := pairConsecutive(entrants)
		for i, pair := range pairs {
			match, mErr := g.createBracketMatch(ctx, q, tournament, pools, byID, bracketSlot{
				round:      losersRound,
				bracket:    models.BracketLosers,
				matchOrder: orderBase + i + 1,
				team1:      &pair[0],
				team2:      &pair[1],
			})
			if mErr != nil {
				return mErr
			}
			created = append(created, match)
		}
		if leftover != nil {
			return g.edges.AddSlot(ctx, q, tournamentID, losersRound, models.BracketLosers, *leftover)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GenerateGrandFinal produces exactly one match tagged final.
func (g *Generator) GenerateGrandFinal(ctx context.Context, tournamentID, winnersBracketWinnerID, losersBracketWinnerID int) (*models.Match, error) {
	if existing, err := g.edges.CountByRound(ctx, tournamentID, 1, models.BracketFinal); err != nil {
		return nil, err
	} else if existing > 0 {
		return nil, nil
	}

	tournament, err := g.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	pools, err := g.loadPools(ctx, tournament)
	if err != nil {
		return nil, err
	}
	byID, err := g.teamsByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	var match *models.Match
	err = g.tx.InTx(ctx, func(q repositories.Querier) error {
		var mErr error
		match, mErr = g.createBracketMatch(ctx, q, tournament, pools, byID, bracketSlot{
			round:      1,
			bracket:    models.BracketFinal,
			matchOrder: 1,
			team1:      &winnersBracketWinnerID,
			team2:      &losersBracketWinnerID,
		})
		return mErr
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// IsRoundComplete reports whether every match of the round is complete
// with a winner. A round with no matches is not complete.
func (g *Generator) IsRoundComplete(ctx context.Context, tournamentID, round int, bracket models.BracketType) (bool, error) {
	matches, err := g.matches.ListByTournamentRound(ctx, tournamentID, round, bracket)
	if err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, nil
	}
	for _, match := range matches {
		if match.Status != models.StatusComplete || match.WinnerTeamID == nil {
			return false, nil
		}
	}
	return true, nil
}

// IsBracketReadyForFinals holds when the bracket's max round has
// exactly one match and it is complete.
func (g *Generator) IsBracketReadyForFinals(ctx context.Context, tournamentID int, bracket models.BracketType) (bool, error) {
	maxRound, err := g.matches.MaxRound(ctx, tournamentID, bracket)
	if err != nil {
		return false, err
	}
	if maxRound == 0 {
		return false, nil
	}
	matches, err := g.matches.ListByTournamentRound(ctx, tournamentID, maxRound, bracket)
	if err != nil {
		return false, err
	}
	if len(matches) != 1 {
		return false, nil
	}
	return matches[0].Status == models.StatusComplete && matches[0].WinnerTeamID != nil, nil
}

// GetBracketWinner returns the winner of the most recent completed
// match in the bracket.
func (g *Generator) GetBracketWinner(ctx context.Context, tournamentID int, bracket models.BracketType) (*int, error) {
	match, err := g.matches.LatestCompleted(ctx, tournamentID, bracket)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return match.WinnerTeamID, nil
}

type bracketSlot struct {
	round      int
	bracket    models.BracketType
	matchOrder int
	team1      *int
	team2      *int
	parent1    *int
	parent2    *int
}

func (g *Generator) createBracketMatch(
	ctx context.Context,
	q repositories.Querier,
	tournament *models.Tournament,
	pools []ModePool,
	teamsByID map[int]*models.TournamentTeam,
	slot bracketSlot,
) (*models.Match, error) {
	mapIDs, err := SelectMaps(pools, tournament.RoundsPerMatch, newRNG())
	if err != nil {
		return nil, fmt.Errorf("select maps for tournament %d: %w", tournament.ID, err)
	}

	round := slot.round
	bracket := slot.bracket
	match := &models.Match{
		GameID:       tournament.GameID,
		Status:       models.StatusAssign,
		StartTime:    tournament.StartTime,
		TournamentID: &tournament.ID,
		BracketType:  &bracket,
		BracketRound: &round,
		Team1ID:      slot.team1,
		Team2ID:      slot.team2,
	}
	if err := g.matches.Create(ctx, q, match); err != nil {
		return nil, err
	}
	if err := g.matches.AddMaps(ctx, q, match.ID, mapIDs); err != nil {
		return nil, err
	}
	match.Maps = mapIDs

	edge := &models.TournamentMatchEdge{
		MatchID:        match.ID,
		TournamentID:   tournament.ID,
		Round:          slot.round,
		BracketType:    slot.bracket,
		Team1ID:        slot.team1,
		Team2ID:        slot.team2,
		MatchOrder:     slot.matchOrder,
		ParentMatch1ID: slot.parent1,
		ParentMatch2ID: slot.parent2,
	}
	if err := g.edges.Create(ctx, q, edge); err != nil {
		return nil, err
	}

	participants := make([]models.MatchParticipant, 0)
	participants = appendTeamParticipants(participants, match.ID, slot.team1, models.SideBlue, teamsByID)
	participants = appendTeamParticipants(participants, match.ID, slot.team2, models.SideRed, teamsByID)
	if err := g.matches.AddParticipants(ctx, q, participants); err != nil {
		return nil, err
	}

	if err := g.scoring.InitializeMatchGames(ctx, q, match.ID, mapIDs); err != nil {
		return nil, err
	}
	return match, nil
}

func appendTeamParticipants(dst []models.MatchParticipant, matchID int, teamID *int, side models.MatchSide, teamsByID map[int]*models.TournamentTeam) []models.MatchParticipant {
	if teamID == nil {
		return dst
	}
	team, ok := teamsByID[*teamID]
	if !ok {
		return dst
	}
	for _, member := range team.Members {
		dst = append(dst, models.MatchParticipant{
			MatchID: matchID,
			UserID:  member.UserID,
			TeamID:  team.ID,
			Side:    side,
		})
	}
	return dst
}

// loadPools collects the maps of every mode with the tournament's team
// size, excluding custom (workshop) modes.
func (g *Generator) loadPools(ctx context.Context, tournament *models.Tournament) ([]ModePool, error) {
	mode, err := g.games.GetMode(ctx, tournament.ModeID)
	if err != nil {
		return nil, err
	}
	modes, err := g.games.ListModes(ctx, tournament.GameID)
	if err != nil {
		return nil, err
	}

	pools := make([]ModePool, 0, len(modes))
	for _, candidate := range modes {
		if candidate.IsCustom || candidate.TeamSize != mode.TeamSize {
			continue
		}
		maps, err := g.games.ListMapsByMode(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		pool := ModePool{ModeID: candidate.ID}
		for _, m := range maps {
			pool.MapIDs = append(pool.MapIDs, m.ID)
		}
		if len(pool.MapIDs) > 0 {
			pools = append(pools, pool)
		}
	}
	return pools, nil
}

func (g *Generator) teamsByID(ctx context.Context, tournamentID int) (map[int]*models.TournamentTeam, error) {
	teams, err := g.teams.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*models.TournamentTeam, len(teams))
	for _, team := range teams {
		byID[team.ID] = team
	}
	return byID, nil
}

// pairConsecutive pairs entries (0,1), (2,3), ... and returns the
// unpaired trailing entry if the count is odd.
func pairConsecutive(ids []int) ([][2]int, *int) {
	pairs := make([][2]int, 0, len(ids)/2)
	for i := 0; i+1 < len(ids); i += 2 {
		pairs = append(pairs, [2]int{ids[i], ids[i+1]})
	}
	if len(ids)%2 == 1 {
		last := ids[len(ids)-1]
		return pairs, &last
	}
	return pairs, nil
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>32)))
}
