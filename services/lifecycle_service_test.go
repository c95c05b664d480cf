package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
)

type memGenerator struct {
	firstRound []*models.Match
	nextRound  []*models.Match
	final      *models.Match
	roundDone  bool
	ready      map[models.BracketType]bool
	winners    map[models.BracketType]*int
}

func (g *memGenerator) GenerateFirstRound(ctx context.Context, tournament *models.Tournament) ([]*models.Match, error) {
	return g.firstRound, nil
}

func (g *memGenerator) GenerateNextRound(ctx context.Context, tournamentID, currentRound int, bracket models.BracketType) ([]*models.Match, error) {
	return g.nextRound, nil
}

func (g *memGenerator) GenerateLosersRound(ctx context.Context, tournamentID, round int, teamIDs []int) ([]*models.Match, error) {
	return nil, nil
}

func (g *memGenerator) GenerateGrandFinal(ctx context.Context, tournamentID, w, l int) (*models.Match, error) {
	return g.final, nil
}

func (g *memGenerator) IsRoundComplete(ctx context.Context, tournamentID, round int, bracket models.BracketType) (bool, error) {
	return g.roundDone, nil
}

func (g *memGenerator) IsBracketReadyForFinals(ctx context.Context, tournamentID int, bracket models.BracketType) (bool, error) {
	return g.ready[bracket], nil
}

func (g *memGenerator) GetBracketWinner(ctx context.Context, tournamentID int, bracket models.BracketType) (*int, error) {
	return g.winners[bracket], nil
}

type lifecycleFixture struct {
	svc         *LifecycleService
	matches     *memMatchRepo
	tournaments *memTournamentRepo
	teams       *memTeamRepo
	games       *memGameRepo
	signups     *memSignupRepo
	msgRefs     *memMessageRefRepo
	voice       *memVoiceRepo
	provisioner *memProvisioner
	generator   *memGenerator
	hub         *memHub

	announceQ      *memQueue[queue.AnnouncementPayload]
	deletionQ      *memQueue[queue.DeletionPayload]
	statusQ        *memQueue[queue.StatusUpdatePayload]
	voiceQ         *memQueue[queue.VoiceAnnouncementPayload]
	mapCodeQ       *memQueue[queue.MapCodePayload]
	winnerQ        *memQueue[queue.MatchWinnerPayload]
	scoreQ         *memQueue[queue.ScoreNotificationPayload]
	reminderQ      *memQueue[queue.ReminderPayload]
	timedReminderQ *memQueue[queue.TimedReminderPayload]
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		matches:        newMemMatchRepo(),
		tournaments:    newMemTournamentRepo(),
		teams:          &memTeamRepo{},
		games:          &memGameRepo{game: models.Game{Name: "test game"}},
		signups:        &memSignupRepo{},
		msgRefs:        newMemMessageRefRepo(),
		voice:          newMemVoiceRepo(),
		provisioner:    &memProvisioner{},
		generator:      &memGenerator{},
		hub:            &memHub{},
		announceQ:      &memQueue[queue.AnnouncementPayload]{},
		deletionQ:      &memQueue[queue.DeletionPayload]{},
		statusQ:        &memQueue[queue.StatusUpdatePayload]{},
		voiceQ:         &memQueue[queue.VoiceAnnouncementPayload]{},
		mapCodeQ:       &memQueue[queue.MapCodePayload]{},
		winnerQ:        &memQueue[queue.MatchWinnerPayload]{},
		scoreQ:         &memQueue[queue.ScoreNotificationPayload]{},
		reminderQ:      &memQueue[queue.ReminderPayload]{},
		timedReminderQ: &memQueue[queue.TimedReminderPayload]{},
	}

	scoring := NewScoringService(f.matches, f.scoreQ, discardLogger())
	f.svc = NewLifecycleService(LifecycleDeps{
		DB:                 nil,
		Tx:                 memTxRunner{},
		Matches:            f.matches,
		Tournaments:        f.tournaments,
		Teams:              f.teams,
		Games:              f.games,
		Signups:            f.signups,
		MessageRefs:        f.msgRefs,
		Voice:              f.voice,
		AnnouncementQueue:  f.announceQ,
		DeletionQueue:      f.deletionQ,
		StatusQueue:        f.statusQ,
		VoiceQueue:         f.voiceQ,
		MapCodeQueue:       f.mapCodeQ,
		WinnerQueue:        f.winnerQ,
		ReminderQueue:      f.reminderQ,
		TimedReminderQueue: f.timedReminderQ,
		Scoring:            scoring,
		Provisioner:        f.provisioner,
		Generator:          f.generator,
		Hub:                f.hub,
		Logger:             discardLogger(),
	})
	return f
}

func (f *lifecycleFixture) seedMatch(id int, status models.Status) *models.Match {
	match := &models.Match{ID: id, GameID: 1, Status: status}
	f.matches.add(match)
	return match
}

func TestTransitionMatchMonotonicity(t *testing.T) {
	cases := []struct {
		name    string
		from    models.Status
		to      models.Status
		wantErr error
	}{
		{"forward created to gather", models.StatusCreated, models.StatusGather, nil},
		{"forward gather to battle skipping assign", models.StatusGather, models.StatusBattle, nil},
		{"backward battle to gather", models.StatusBattle, models.StatusGather, ErrInvalidTransition},
		{"backward complete to battle", models.StatusComplete, models.StatusBattle, ErrInvalidTransition},
		{"cancel from battle", models.StatusBattle, models.StatusCancelled, nil},
		{"cancel from created", models.StatusCreated, models.StatusCancelled, nil},
		{"nothing leaves cancelled", models.StatusCancelled, models.StatusGather, ErrInvalidTransition},
		{"unknown target", models.StatusCreated, models.Status("limbo"), ErrInvalidStatus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLifecycleFixture()
			f.seedMatch(1, tc.from)

			updated, err := f.svc.TransitionMatch(context.Background(), 1, tc.to)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				stored, _ := f.matches.GetByID(context.Background(), 1)
				assert.Equal(t, tc.from, stored.Status, "rejected transition must not persist")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, updated.Status)
		})
	}
}

func TestTransitionMatchNotFound(t *testing.T) {
	f := newLifecycleFixture()
	_, err := f.svc.TransitionMatch(context.Background(), 42, models.StatusGather)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatherAnnouncementIsIdempotent(t *testing.T) {
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusCreated)

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	require.Len(t, f.announceQ.items, 1)

	// Re-entering gather (equal progress is allowed) must not enqueue a
	// second standard announcement.
	_, err = f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	assert.Len(t, f.announceQ.items, 1)
}

func TestFailedEnqueueDoesNotBlockTransition(t *testing.T) {
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusCreated)
	f.announceQ.failing = true

	updated, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGather, updated.Status)

	stored, _ := f.matches.GetByID(context.Background(), 1)
	assert.Equal(t, models.StatusGather, stored.Status)
}

func TestAssignRequestsVoiceChannelsOnce(t *testing.T) {
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusGather)

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusAssign)
	require.NoError(t, err)
	require.Equal(t, []int{1}, f.provisioner.requests)

	blue, red, err := f.voice.GetChannels(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "blue", blue)
	assert.Equal(t, "red", red)

	// An existing assignment is reused, not re-requested.
	f2 := newLifecycleFixture()
	f2.seedMatch(1, models.StatusGather)
	require.NoError(t, f2.voice.SaveChannels(context.Background(), 1, "b", "r"))
	_, err = f2.svc.TransitionMatch(context.Background(), 1, models.StatusAssign)
	require.NoError(t, err)
	assert.Empty(t, f2.provisioner.requests)
}

func TestGatherSchedulesTimedReminder(t *testing.T) {
	f := newLifecycleFixture()
	start := time.Now().Add(3 * time.Hour).Truncate(time.Second)
	match := f.seedMatch(1, models.StatusCreated)
	match.StartTime = &start

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	require.Len(t, f.timedReminderQ.items, 1)

	item := f.timedReminderQ.items[0]
	assert.Equal(t, 1, item.MatchID)
	assert.True(t, item.StartsAt.Equal(start))
	assert.True(t, item.RemindAt.Equal(start.Add(-time.Hour)))
	assert.Equal(t, queue.Countdown{Value: 1, Unit: "hours"}, item.Countdown)

	// Re-entering gather must not stack a second reminder.
	_, err = f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	assert.Len(t, f.timedReminderQ.items, 1)
}

func TestGatherSkipsTimedReminderWithoutFutureStart(t *testing.T) {
	// No start time at all.
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusCreated)
	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	assert.Empty(t, f.timedReminderQ.items)

	// Start so close the reminder moment already passed.
	f2 := newLifecycleFixture()
	soon := time.Now().Add(10 * time.Minute)
	match := f2.seedMatch(1, models.StatusCreated)
	match.StartTime = &soon
	_, err = f2.svc.TransitionMatch(context.Background(), 1, models.StatusGather)
	require.NoError(t, err)
	assert.Empty(t, f2.timedReminderQ.items)
}

func TestAssignSchedulesParticipantReminder(t *testing.T) {
	f := newLifecycleFixture()
	start := time.Now().Add(time.Hour).Truncate(time.Second)
	match := f.seedMatch(1, models.StatusGather)
	match.StartTime = &start
	require.NoError(t, f.matches.AddParticipants(context.Background(), nil, []models.MatchParticipant{
		{MatchID: 1, UserID: "u1", TeamID: 1, Side: models.SideBlue},
		{MatchID: 1, UserID: "u2", TeamID: 2, Side: models.SideRed},
	}))

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusAssign)
	require.NoError(t, err)
	require.Len(t, f.reminderQ.items, 1)

	item := f.reminderQ.items[0]
	assert.Equal(t, 1, item.MatchID)
	assert.ElementsMatch(t, []string{"u1", "u2"}, item.UserIDs)
	assert.True(t, item.RemindAt.Equal(start.Add(-15*time.Minute)))
}

func TestAssignSkipsParticipantReminderWithEmptyRoster(t *testing.T) {
	f := newLifecycleFixture()
	start := time.Now().Add(time.Hour)
	match := f.seedMatch(1, models.StatusGather)
	match.StartTime = &start

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusAssign)
	require.NoError(t, err)
	assert.Empty(t, f.reminderQ.items)
}

// Bracket-generated matches start life in assign, so the assign hook
// never provisioned channels for them. Battle entry must cover that.
func TestBattleEntryProvisionsMissingVoiceChannels(t *testing.T) {
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusAssign)

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusBattle)
	require.NoError(t, err)

	require.Equal(t, []int{1}, f.provisioner.requests)
	blue, red, err := f.voice.GetChannels(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "blue", blue)
	assert.Equal(t, "red", red)

	require.Len(t, f.voiceQ.items, 1)
	assert.Equal(t, "blue", f.voiceQ.items[0].ChannelID)
	assert.Equal(t, queue.VoiceLineWelcome, f.voiceQ.items[0].Line)
}

func TestBattleEntryEnqueuesStartSideEffects(t *testing.T) {
	f := newLifecycleFixture()
	f.games.game.SupportsMapCodes = true
	f.games.mapCode = "ABC123"

	match := f.seedMatch(1, models.StatusAssign)
	require.NoError(t, f.matches.AddMaps(context.Background(), nil, match.ID, []int{10, 11, 12}))
	require.NoError(t, f.matches.AddParticipants(context.Background(), nil, []models.MatchParticipant{
		{MatchID: 1, UserID: "u1", TeamID: 1, Side: models.SideBlue},
		{MatchID: 1, UserID: "u2", TeamID: 2, Side: models.SideRed},
	}))
	require.NoError(t, f.voice.SaveChannels(context.Background(), 1, "blue-ch", "red-ch"))

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusBattle)
	require.NoError(t, err)

	require.Len(t, f.announceQ.items, 1)
	assert.Equal(t, queue.AnnouncementMatchStart, f.announceQ.items[0].Style)

	require.Len(t, f.voiceQ.items, 1)
	assert.Equal(t, "blue-ch", f.voiceQ.items[0].ChannelID)
	assert.Equal(t, queue.VoiceLineWelcome, f.voiceQ.items[0].Line)

	games, err := f.matches.CountGames(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, games)

	require.Len(t, f.mapCodeQ.items, 1)
	assert.Equal(t, "ABC123", f.mapCodeQ.items[0].Code)
	assert.Equal(t, 10, f.mapCodeQ.items[0].MapID)
	assert.ElementsMatch(t, []string{"u1", "u2"}, f.mapCodeQ.items[0].UserIDs)
}

func TestCompleteEnqueuesWinnerAndDeletion(t *testing.T) {
	f := newLifecycleFixture()
	tournamentID, winner := 7, 3
	match := f.seedMatch(1, models.StatusBattle)
	match.TournamentID = &tournamentID
	match.WinnerTeamID = &winner

	require.NoError(t, f.msgRefs.Save(context.Background(), "match", 1, "standard",
		[]models.MessageRef{{ChannelID: "c", MessageID: "m"}}))

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusComplete)
	require.NoError(t, err)

	require.Len(t, f.winnerQ.items, 1)
	assert.Equal(t, winner, f.winnerQ.items[0].WinnerTeamID)
	assert.Equal(t, tournamentID, f.winnerQ.items[0].TournamentID)

	require.Len(t, f.deletionQ.items, 1)
	assert.Len(t, f.deletionQ.items[0].Refs, 1)
}

func TestCancelledWithoutRefsEnqueuesNothing(t *testing.T) {
	f := newLifecycleFixture()
	f.seedMatch(1, models.StatusGather)

	_, err := f.svc.TransitionMatch(context.Background(), 1, models.StatusCancelled)
	require.NoError(t, err)
	assert.Empty(t, f.deletionQ.items)
}

func TestTournamentBattlePrecondition(t *testing.T) {
	ctx := context.Background()

	t.Run("one team", func(t *testing.T) {
		f := newLifecycleFixture()
		tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusAssign}
		require.NoError(t, f.tournaments.Create(ctx, tournament))
		f.teams.teams = []*models.TournamentTeam{{ID: 1, TournamentID: tournament.ID}}

		_, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusBattle)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("teams without members", func(t *testing.T) {
		f := newLifecycleFixture()
		tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusAssign}
		require.NoError(t, f.tournaments.Create(ctx, tournament))
		f.teams.teams = []*models.TournamentTeam{
			{ID: 1, TournamentID: tournament.ID},
			{ID: 2, TournamentID: tournament.ID},
		}

		_, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusBattle)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})

	t.Run("enough teams and members", func(t *testing.T) {
		f := newLifecycleFixture()
		tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusAssign}
		require.NoError(t, f.tournaments.Create(ctx, tournament))
		f.teams.teams = []*models.TournamentTeam{
			{ID: 1, TournamentID: tournament.ID, Members: []models.TournamentTeamMember{{TeamID: 1, UserID: "u1"}}},
			{ID: 2, TournamentID: tournament.ID},
		}

		updated, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusBattle)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBattle, updated.Status)
	})
}

func TestTournamentBattleCascadesToFirstRound(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()

	tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusAssign}
	require.NoError(t, f.tournaments.Create(ctx, tournament))
	f.teams.teams = []*models.TournamentTeam{
		{ID: 1, TournamentID: tournament.ID, Members: []models.TournamentTeamMember{{TeamID: 1, UserID: "u1"}}},
		{ID: 2, TournamentID: tournament.ID, Members: []models.TournamentTeamMember{{TeamID: 2, UserID: "u2"}}},
	}

	winners := models.BracketWinners
	round := 1
	for i := 1; i <= 2; i++ {
		match := f.seedMatch(i, models.StatusAssign)
		match.TournamentID = &tournament.ID
		match.BracketType = &winners
		match.BracketRound = &round
	}

	_, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusBattle)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		stored, _ := f.matches.GetByID(ctx, i)
		assert.Equal(t, models.StatusBattle, stored.Status, "match %d", i)
	}
	assert.Contains(t, f.hub.eventTypes(), brackets.EventTournamentUpdated)
}

func TestAutoCreateSoloTeamsFromSignups(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.games.modes = []*models.GameMode{{ID: 1, GameID: 1, TeamSize: 1}}

	tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusGather}
	require.NoError(t, f.tournaments.Create(ctx, tournament))
	require.NoError(t, f.signups.Add(ctx, tournament.ID, "u1"))
	require.NoError(t, f.signups.Add(ctx, tournament.ID, "u2"))
	require.NoError(t, f.signups.Add(ctx, tournament.ID, "u3"))

	_, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusAssign)
	require.NoError(t, err)

	teams, err := f.teams.ListByTournament(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, teams, 3)
	for i, team := range teams {
		assert.Equal(t, i+1, team.Seed)
		require.Len(t, team.Members, 1)
	}
}

func TestAutoCreateSoloTeamsSkipsTeamModes(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	f.games.modes = []*models.GameMode{{ID: 1, GameID: 1, TeamSize: 5}}

	tournament := &models.Tournament{GameID: 1, ModeID: 1, Format: models.FormatSingleElimination, Status: models.StatusGather}
	require.NoError(t, f.tournaments.Create(ctx, tournament))
	require.NoError(t, f.signups.Add(ctx, tournament.ID, "u1"))

	_, err := f.svc.TransitionTournament(ctx, tournament.ID, models.StatusAssign)
	require.NoError(t, err)

	count, _ := f.teams.CountByTournament(ctx, tournament.ID)
	assert.Zero(t, count)
}
