package brackets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/repositories"
)

type fakeTxRunner struct{}

func (fakeTxRunner) InTx(ctx context.Context, fn func(q repositories.Querier) error) error {
	return fn(nil)
}

type fakeMatchRepo struct {
	nextID       int
	order        []int
	matches      map[int]*models.Match
	maps         map[int][]int
	participants map[int][]models.MatchParticipant
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{
		matches:      make(map[int]*models.Match),
		maps:         make(map[int][]int),
		participants: make(map[int][]models.MatchParticipant),
	}
}

func (r *fakeMatchRepo) Create(ctx context.Context, q repositories.Querier, match *models.Match) error {
	r.nextID++
	match.ID = r.nextID
	r.matches[match.ID] = match
	r.order = append(r.order, match.ID)
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return match, nil
}

func (r *fakeMatchRepo) UpdateStatus(ctx context.Context, q repositories.Querier, id int, status models.Status) error {
	match, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	match.Status = status
	return nil
}

func (r *fakeMatchRepo) SetWinner(ctx context.Context, id int, teamID int) error {
	match, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	match.WinnerTeamID = &teamID
	return nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, id := range r.order {
		m := r.matches[id]
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) ListByTournamentRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, id := range r.order {
		m := r.matches[id]
		if m.TournamentID != nil && *m.TournamentID == tournamentID &&
			m.BracketRound != nil && *m.BracketRound == round &&
			m.BracketType != nil && *m.BracketType == bracket {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) ListFirstRound(ctx context.Context, tournamentID int, status models.Status) ([]*models.Match, error) {
	all, _ := r.ListByTournamentRound(ctx, tournamentID, 1, models.BracketWinners)
	out := make([]*models.Match, 0)
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMatchRepo) MaxRound(ctx context.Context, tournamentID int, bracket models.BracketType) (int, error) {
	max := 0
	for _, m := range r.matches {
		if m.TournamentID != nil && *m.TournamentID == tournamentID &&
			m.BracketType != nil && *m.BracketType == bracket &&
			m.BracketRound != nil && *m.BracketRound > max {
			max = *m.BracketRound
		}
	}
	return max, nil
}

func (r *fakeMatchRepo) LatestCompleted(ctx context.Context, tournamentID int, bracket models.BracketType) (*models.Match, error) {
	var best *models.Match
	for _, id := range r.order {
		m := r.matches[id]
		if m.TournamentID == nil || *m.TournamentID != tournamentID ||
			m.BracketType == nil || *m.BracketType != bracket ||
			m.Status != models.StatusComplete {
			continue
		}
		if best == nil || *m.BracketRound >= *best.BracketRound {
			best = m
		}
	}
	if best == nil {
		return nil, repositories.ErrMatchNotFound
	}
	return best, nil
}

func (r *fakeMatchRepo) Exists(ctx context.Context, id int) (bool, error) {
	_, ok := r.matches[id]
	return ok, nil
}

func (r *fakeMatchRepo) AddMaps(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	r.maps[matchID] = append(r.maps[matchID], mapIDs...)
	return nil
}

func (r *fakeMatchRepo) GetMaps(ctx context.Context, matchID int) ([]int, error) {
	return r.maps[matchID], nil
}

func (r *fakeMatchRepo) AddParticipants(ctx context.Context, q repositories.Querier, participants []models.MatchParticipant) error {
	for _, p := range participants {
		r.participants[p.MatchID] = append(r.participants[p.MatchID], p)
	}
	return nil
}

func (r *fakeMatchRepo) ListParticipants(ctx context.Context, matchID int) ([]models.MatchParticipant, error) {
	return r.participants[matchID], nil
}

func (r *fakeMatchRepo) CreateGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	return nil
}

func (r *fakeMatchRepo) CountGames(ctx context.Context, matchID int) (int, error) {
	return 0, nil
}

func (r *fakeMatchRepo) SetGameWinner(ctx context.Context, matchID, gameNumber, winnerTeamID int) error {
	return nil
}

func (r *fakeMatchRepo) GameWins(ctx context.Context, matchID int) (map[int]int, error) {
	return nil, nil
}

type slotKey struct {
	tournamentID int
	round        int
	bracket      models.BracketType
}

type fakeEdgeRepo struct {
	edges []*models.TournamentMatchEdge
	slots map[slotKey][]int
}

func newFakeEdgeRepo() *fakeEdgeRepo {
	return &fakeEdgeRepo{slots: make(map[slotKey][]int)}
}

func (r *fakeEdgeRepo) Create(ctx context.Context, q repositories.Querier, edge *models.TournamentMatchEdge) error {
	r.edges = append(r.edges, edge)
	return nil
}

func (r *fakeEdgeRepo) ListByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.TournamentMatchEdge, error) {
	out := make([]*models.TournamentMatchEdge, 0)
	for _, e := range r.edges {
		if e.TournamentID == tournamentID && e.Round == round && e.BracketType == bracket {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEdgeRepo) CountByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) (int, error) {
	edges, _ := r.ListByRound(ctx, tournamentID, round, bracket)
	return len(edges), nil
}

func (r *fakeEdgeRepo) GetByMatch(ctx context.Context, matchID int) (*models.TournamentMatchEdge, error) {
	for _, e := range r.edges {
		if e.MatchID == matchID {
			return e, nil
		}
	}
	return nil, repositories.ErrEdgeNotFound
}

func (r *fakeEdgeRepo) AddSlot(ctx context.Context, q repositories.Querier, tournamentID, round int, bracket models.BracketType, teamID int) error {
	key := slotKey{tournamentID, round, bracket}
	r.slots[key] = append(r.slots[key], teamID)
	return nil
}

func (r *fakeEdgeRepo) TakeSlots(ctx context.Context, q repositories.Querier, tournamentID, round int, bracket models.BracketType) ([]int, error) {
	key := slotKey{tournamentID, round, bracket}
	taken := r.slots[key]
	delete(r.slots, key)
	return taken, nil
}

func (r *fakeEdgeRepo) TeamPlaced(ctx context.Context, tournamentID int, bracket models.BracketType, teamID int) (bool, error) {
	for _, e := range r.edges {
		if e.TournamentID != tournamentID || e.BracketType != bracket {
			continue
		}
		if (e.Team1ID != nil && *e.Team1ID == teamID) || (e.Team2ID != nil && *e.Team2ID == teamID) {
			return true, nil
		}
	}
	for key, teams := range r.slots {
		if key.tournamentID != tournamentID || key.bracket != bracket {
			continue
		}
		for _, id := range teams {
			if id == teamID {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeTeamRepo struct {
	teams []*models.TournamentTeam
}

func (r *fakeTeamRepo) Create(ctx context.Context, q repositories.Querier, team *models.TournamentTeam) error {
	r.teams = append(r.teams, team)
	return nil
}

func (r *fakeTeamRepo) AddMember(ctx context.Context, q repositories.Querier, member *models.TournamentTeamMember) error {
	return nil
}

func (r *fakeTeamRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error) {
	out := make([]*models.TournamentTeam, 0)
	for _, team := range r.teams {
		if team.TournamentID == tournamentID {
			out = append(out, team)
		}
	}
	return out, nil
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.TournamentTeam, error) {
	for _, team := range r.teams {
		if team.ID == id {
			return team, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r *fakeTeamRepo) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	teams, _ := r.ListByTournament(ctx, tournamentID)
	return len(teams), nil
}

type fakeTournamentRepo struct {
	tournament *models.Tournament
}

func (r *fakeTournamentRepo) Create(ctx context.Context, tournament *models.Tournament) error {
	r.tournament = tournament
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	if r.tournament == nil || r.tournament.ID != id {
		return nil, repositories.ErrTournamentNotFound
	}
	return r.tournament, nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, q repositories.Querier, id int, status models.Status) error {
	if r.tournament == nil || r.tournament.ID != id {
		return repositories.ErrTournamentNotFound
	}
	r.tournament.Status = status
	return nil
}

func (r *fakeTournamentRepo) ListByStatus(ctx context.Context, status models.Status) ([]*models.Tournament, error) {
	if r.tournament != nil && r.tournament.Status == status {
		return []*models.Tournament{r.tournament}, nil
	}
	return nil, nil
}

func (r *fakeTournamentRepo) Exists(ctx context.Context, id int) (bool, error) {
	return r.tournament != nil && r.tournament.ID == id, nil
}

type fakeGameRepo struct {
	modes []*models.GameMode
	maps  map[int][]*models.GameMap
}

func (r *fakeGameRepo) GetGame(ctx context.Context, id int) (*models.Game, error) {
	return &models.Game{ID: id, Name: "test game"}, nil
}

func (r *fakeGameRepo) GetMode(ctx context.Context, id int) (*models.GameMode, error) {
	for _, mode := range r.modes {
		if mode.ID == id {
			return mode, nil
		}
	}
	return nil, repositories.ErrGameNotFound
}

func (r *fakeGameRepo) ListModes(ctx context.Context, gameID int) ([]*models.GameMode, error) {
	out := make([]*models.GameMode, 0)
	for _, mode := range r.modes {
		if mode.GameID == gameID {
			out = append(out, mode)
		}
	}
	return out, nil
}

func (r *fakeGameRepo) ListMapsByMode(ctx context.Context, modeID int) ([]*models.GameMap, error) {
	return r.maps[modeID], nil
}

func (r *fakeGameRepo) GetMapCode(ctx context.Context, gameID, mapID int) (string, error) {
	return "", repositories.ErrMapCodeNotFound
}

type fakeScoring struct {
	initialized map[int][]int
}

func (s *fakeScoring) InitializeMatchGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	if s.initialized == nil {
		s.initialized = make(map[int][]int)
	}
	s.initialized[matchID] = mapIDs
	return nil
}

type generatorFixture struct {
	gen     *Generator
	matches *fakeMatchRepo
	edges   *fakeEdgeRepo
	teams   *fakeTeamRepo
	scoring *fakeScoring
}

func newGeneratorFixture(t *testing.T, teamCount int) (*generatorFixture, *models.Tournament) {
	t.Helper()

	tournament := &models.Tournament{
		ID:             1,
		GameID:         1,
		ModeID:         1,
		Format:         models.FormatSingleElimination,
		Status:         models.StatusAssign,
		RoundsPerMatch: 3,
	}

	teams := &fakeTeamRepo{}
	for i := 1; i <= teamCount; i++ {
		teams.teams = append(teams.teams, &models.TournamentTeam{
			ID:           i,
			TournamentID: tournament.ID,
			Name:         fmt.Sprintf("team-%d", i),
			Seed:         i,
			Members: []models.TournamentTeamMember{
				{TeamID: i, UserID: fmt.Sprintf("user-%d-a", i)},
				{TeamID: i, UserID: fmt.Sprintf("user-%d-b", i)},
			},
		})
	}

	games := &fakeGameRepo{
		modes: []*models.GameMode{
			{ID: 1, GameID: 1, Name: "control", TeamSize: 2},
			{ID: 2, GameID: 1, Name: "escort", TeamSize: 2},
			{ID: 3, GameID: 1, Name: "workshop", TeamSize: 2, IsCustom: true},
		},
		maps: map[int][]*models.GameMap{
			1: {{ID: 10, ModeID: 1}, {ID: 11, ModeID: 1}, {ID: 12, ModeID: 1}},
			2: {{ID: 20, ModeID: 2}, {ID: 21, ModeID: 2}},
			3: {{ID: 30, ModeID: 3}},
		},
	}

	f := &generatorFixture{
		matches: newFakeMatchRepo(),
		edges:   newFakeEdgeRepo(),
		teams:   teams,
		scoring: &fakeScoring{},
	}
	f.gen = NewGenerator(
		fakeTxRunner{},
		f.matches,
		f.edges,
		f.teams,
		&fakeTournamentRepo{tournament: tournament},
		games,
		f.scoring,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f, tournament
}

func completeMatch(t *testing.T, f *generatorFixture, match *models.Match, winnerTeamID int) {
	t.Helper()
	require.NoError(t, f.matches.SetWinner(context.Background(), match.ID, winnerTeamID))
	require.NoError(t, f.matches.UpdateStatus(context.Background(), nil, match.ID, models.StatusComplete))
}

func TestGenerateFirstRoundPairsBySeed(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	created, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.Equal(t, 1, *created[0].Team1ID)
	assert.Equal(t, 2, *created[0].Team2ID)
	assert.Equal(t, 3, *created[1].Team1ID)
	assert.Equal(t, 4, *created[1].Team2ID)

	for i, match := range created {
		assert.Equal(t, models.StatusAssign, match.Status)
		assert.Equal(t, models.BracketWinners, *match.BracketType)
		assert.Equal(t, 1, *match.BracketRound)
		assert.Len(t, match.Maps, tournament.RoundsPerMatch)

		edge, err := f.edges.GetByMatch(context.Background(), match.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, edge.MatchOrder)

		// Each team contributes two cloned members, split by side.
		participants, err := f.matches.ListParticipants(context.Background(), match.ID)
		require.NoError(t, err)
		require.Len(t, participants, 4)
		sides := map[models.MatchSide]int{}
		for _, p := range participants {
			sides[p.Side]++
		}
		assert.Equal(t, 2, sides[models.SideBlue])
		assert.Equal(t, 2, sides[models.SideRed])

		assert.Equal(t, match.Maps, f.scoring.initialized[match.ID])
	}
}

func TestGenerateFirstRoundSkipsCustomModeMaps(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 2)

	created, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotContains(t, created[0].Maps, 30)
}

func TestGenerateFirstRoundOddTeamGetsBye(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 5)

	created, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	require.Len(t, created, 2)

	placed, err := f.edges.TeamPlaced(context.Background(), tournament.ID, models.BracketWinners, 5)
	require.NoError(t, err)
	assert.False(t, placed, "bye team must not be placed in a match")
}

func TestGenerateFirstRoundRequiresTwoTeams(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 1)

	_, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	assert.ErrorIs(t, err, ErrNotEnoughTeams)
}

func TestGenerateFirstRoundIsIdempotent(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	first, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.matches.matches, 2)
}

func TestGenerateNextRoundPairsWinners(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	firstRound, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	completeMatch(t, f, firstRound[0], 1)
	completeMatch(t, f, firstRound[1], 4)

	nextRound, err := f.gen.GenerateNextRound(context.Background(), tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	require.Len(t, nextRound, 1)

	final := nextRound[0]
	assert.Equal(t, 1, *final.Team1ID)
	assert.Equal(t, 4, *final.Team2ID)
	assert.Equal(t, 2, *final.BracketRound)

	edge, err := f.edges.GetByMatch(context.Background(), final.ID)
	require.NoError(t, err)
	assert.Equal(t, firstRound[0].ID, *edge.ParentMatch1ID)
	assert.Equal(t, firstRound[1].ID, *edge.ParentMatch2ID)

	// Regenerating the same round is a no-op.
	again, err := f.gen.GenerateNextRound(context.Background(), tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGenerateNextRoundNoCompletedMatches(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	_, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)

	_, err = f.gen.GenerateNextRound(context.Background(), tournament.ID, 1, models.BracketWinners)
	assert.ErrorIs(t, err, ErrNoCompletedMatches)
}

func TestGenerateNextRoundStopsAtBracketWinner(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 2)

	firstRound, err := f.gen.GenerateFirstRound(context.Background(), tournament)
	require.NoError(t, err)
	completeMatch(t, f, firstRound[0], 2)

	nextRound, err := f.gen.GenerateNextRound(context.Background(), tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	assert.Empty(t, nextRound)
}

func TestGenerateLosersRoundMergesWaitingTeams(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	// Team 9 dropped earlier and has been waiting for an opponent.
	require.NoError(t, f.edges.AddSlot(context.Background(), nil, tournament.ID, 1, models.BracketLosers, 9))
	f.teams.teams = append(f.teams.teams, &models.TournamentTeam{
		ID: 9, TournamentID: tournament.ID, Name: "team-9", Seed: 9,
	})

	created, err := f.gen.GenerateLosersRound(context.Background(), tournament.ID, 1, []int{2, 3})
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Waiting team pairs first, the unpaired fresh team goes back to a slot.
	assert.Equal(t, 9, *created[0].Team1ID)
	assert.Equal(t, 2, *created[0].Team2ID)
	assert.Equal(t, models.BracketLosers, *created[0].BracketType)
	assert.Equal(t, 1, *created[0].BracketRound)

	placed, err := f.edges.TeamPlaced(context.Background(), tournament.ID, models.BracketLosers, 3)
	require.NoError(t, err)
	assert.True(t, placed, "leftover team must wait in a slot")
}

func TestGenerateLosersRoundSkipsAlreadyPlacedTeams(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	first, err := f.gen.GenerateLosersRound(context.Background(), tournament.ID, 1, []int{2, 3})
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := f.gen.GenerateLosersRound(context.Background(), tournament.ID, 1, []int{2, 3})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGenerateLosersRoundMapsWinnersRound(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	created, err := f.gen.GenerateLosersRound(context.Background(), tournament.ID, 3, []int{1, 2})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 4, *created[0].BracketRound)
}

func TestGenerateGrandFinal(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)

	final, err := f.gen.GenerateGrandFinal(context.Background(), tournament.ID, 1, 3)
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, models.BracketFinal, *final.BracketType)
	assert.Equal(t, 1, *final.BracketRound)
	assert.Equal(t, 1, *final.Team1ID)
	assert.Equal(t, 3, *final.Team2ID)

	again, err := f.gen.GenerateGrandFinal(context.Background(), tournament.ID, 1, 3)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestSingleEliminationRunsToCompletion(t *testing.T) {
	f, tournament := newGeneratorFixture(t, 4)
	ctx := context.Background()

	firstRound, err := f.gen.GenerateFirstRound(ctx, tournament)
	require.NoError(t, err)
	require.Len(t, firstRound, 2)

	done, err := f.gen.IsRoundComplete(ctx, tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	assert.False(t, done)

	completeMatch(t, f, firstRound[0], 2)
	completeMatch(t, f, firstRound[1], 3)

	done, err = f.gen.IsRoundComplete(ctx, tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	assert.True(t, done)

	finalRound, err := f.gen.GenerateNextRound(ctx, tournament.ID, 1, models.BracketWinners)
	require.NoError(t, err)
	require.Len(t, finalRound, 1)

	ready, err := f.gen.IsBracketReadyForFinals(ctx, tournament.ID, models.BracketWinners)
	require.NoError(t, err)
	assert.False(t, ready)

	completeMatch(t, f, finalRound[0], 3)

	ready, err = f.gen.IsBracketReadyForFinals(ctx, tournament.ID, models.BracketWinners)
	require.NoError(t, err)
	assert.True(t, ready)

	winner, err := f.gen.GetBracketWinner(ctx, tournament.ID, models.BracketWinners)
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, 3, *winner)
}

func TestIsRoundCompleteEmptyRound(t *testing.T) {
	f, _ := newGeneratorFixture(t, 4)

	done, err := f.gen.IsRoundComplete(context.Background(), 1, 7, models.BracketWinners)
	require.NoError(t, err)
	assert.False(t, done)
}
