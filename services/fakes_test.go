package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTxRunner struct{}

func (memTxRunner) InTx(ctx context.Context, fn func(q repositories.Querier) error) error {
	return fn(nil)
}

type memQueue[P queue.Payload] struct {
	mu      sync.Mutex
	items   []P
	failing bool
}

func (q *memQueue[P]) Enqueue(ctx context.Context, entityID int, payload P) (*queue.Item[P], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failing {
		return nil, errors.New("enqueue failed")
	}
	q.items = append(q.items, payload)
	return &queue.Item[P]{ID: len(q.items), EntityID: entityID, Payload: payload}, nil
}

func (q *memQueue[P]) ActiveExists(ctx context.Context, entityID int, match func(P) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, payload := range q.items {
		if match == nil || match(payload) {
			return true, nil
		}
	}
	return false, nil
}

type memMatchRepo struct {
	matches      map[int]*models.Match
	order        []int
	maps         map[int][]int
	participants map[int][]models.MatchParticipant
	games        map[int]map[int]int // matchID -> gameNumber -> winner
	gameCounts   map[int]int
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{
		matches:      make(map[int]*models.Match),
		maps:         make(map[int][]int),
		participants: make(map[int][]models.MatchParticipant),
		games:        make(map[int]map[int]int),
		gameCounts:   make(map[int]int),
	}
}

func (r *memMatchRepo) add(match *models.Match) {
	r.matches[match.ID] = match
	r.order = append(r.order, match.ID)
}

func (r *memMatchRepo) Create(ctx context.Context, q repositories.Querier, match *models.Match) error {
	match.ID = len(r.matches) + 1
	r.add(match)
	return nil
}

func (r *memMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return match, nil
}

func (r *memMatchRepo) UpdateStatus(ctx context.Context, q repositories.Querier, id int, status models.Status) error {
	match, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	match.Status = status
	return nil
}

func (r *memMatchRepo) SetWinner(ctx context.Context, id int, teamID int) error {
	match, ok := r.matches[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	match.WinnerTeamID = &teamID
	return nil
}

func (r *memMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	out := make([]*models.Match, 0)
	for _, id := range r.order {
		m := r.matches[id]
		if m.TournamentID != nil && *m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMatchRepo) ListByTournamentRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.Match, error) {
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

func (r *memMatchRepo) ListFirstRound(ctx context.Context, tournamentID int, status models.Status) ([]*models.Match, error) {
	all, _ := r.ListByTournamentRound(ctx, tournamentID, 1, models.BracketWinners)
	out := make([]*models.Match, 0)
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMatchRepo) MaxRound(ctx context.Context, tournamentID int, bracket models.BracketType) (int, error) {
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

func (r *memMatchRepo) LatestCompleted(ctx context.Context, tournamentID int, bracket models.BracketType) (*models.Match, error) {
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

func (r *memMatchRepo) Exists(ctx context.Context, id int) (bool, error) {
	_, ok := r.matches[id]
	return ok, nil
}

func (r *memMatchRepo) AddMaps(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	r.maps[matchID] = append(r.maps[matchID], mapIDs...)
	return nil
}

func (r *memMatchRepo) GetMaps(ctx context.Context, matchID int) ([]int, error) {
	return r.maps[matchID], nil
}

func (r *memMatchRepo) AddParticipants(ctx context.Context, q repositories.Querier, participants []models.MatchParticipant) error {
	for _, p := range participants {
		r.participants[p.MatchID] = append(r.participants[p.MatchID], p)
	}
	return nil
}

func (r *memMatchRepo) ListParticipants(ctx context.Context, matchID int) ([]models.MatchParticipant, error) {
	return r.participants[matchID], nil
}

func (r *memMatchRepo) CreateGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error {
	r.gameCounts[matchID] = len(mapIDs)
	if r.games[matchID] == nil {
		r.games[matchID] = make(map[int]int)
	}
	return nil
}

func (r *memMatchRepo) CountGames(ctx context.Context, matchID int) (int, error) {
	return r.gameCounts[matchID], nil
}

func (r *memMatchRepo) SetGameWinner(ctx context.Context, matchID, gameNumber, winnerTeamID int) error {
	if r.games[matchID] == nil {
		r.games[matchID] = make(map[int]int)
	}
	r.games[matchID][gameNumber] = winnerTeamID
	return nil
}

func (r *memMatchRepo) GameWins(ctx context.Context, matchID int) (map[int]int, error) {
	wins := make(map[int]int)
	for _, teamID := range r.games[matchID] {
		wins[teamID]++
	}
	return wins, nil
}

type memTournamentRepo struct {
	tournaments map[int]*models.Tournament
}

func newMemTournamentRepo() *memTournamentRepo {
	return &memTournamentRepo{tournaments: make(map[int]*models.Tournament)}
}

func (r *memTournamentRepo) Create(ctx context.Context, tournament *models.Tournament) error {
	tournament.ID = len(r.tournaments) + 1
	r.tournaments[tournament.ID] = tournament
	return nil
}

func (r *memTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return tournament, nil
}

func (r *memTournamentRepo) UpdateStatus(ctx context.Context, q repositories.Querier, id int, status models.Status) error {
	tournament, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	tournament.Status = status
	return nil
}

func (r *memTournamentRepo) ListByStatus(ctx context.Context, status models.Status) ([]*models.Tournament, error) {
	out := make([]*models.Tournament, 0)
	for _, t := range r.tournaments {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTournamentRepo) Exists(ctx context.Context, id int) (bool, error) {
	_, ok := r.tournaments[id]
	return ok, nil
}

type memTeamRepo struct {
	teams  []*models.TournamentTeam
	nextID int
}

func (r *memTeamRepo) Create(ctx context.Context, q repositories.Querier, team *models.TournamentTeam) error {
	r.nextID++
	team.ID = r.nextID
	r.teams = append(r.teams, team)
	return nil
}

func (r *memTeamRepo) AddMember(ctx context.Context, q repositories.Querier, member *models.TournamentTeamMember) error {
	for _, team := range r.teams {
		if team.ID == member.TeamID {
			team.Members = append(team.Members, *member)
			return nil
		}
	}
	return repositories.ErrTeamNotFound
}

func (r *memTeamRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error) {
	out := make([]*models.TournamentTeam, 0)
	for _, team := range r.teams {
		if team.TournamentID == tournamentID {
			out = append(out, team)
		}
	}
	return out, nil
}

func (r *memTeamRepo) GetByID(ctx context.Context, id int) (*models.TournamentTeam, error) {
	for _, team := range r.teams {
		if team.ID == id {
			return team, nil
		}
	}
	return nil, repositories.ErrTeamNotFound
}

func (r *memTeamRepo) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	teams, _ := r.ListByTournament(ctx, tournamentID)
	return len(teams), nil
}

type memGameRepo struct {
	game    models.Game
	modes   []*models.GameMode
	maps    map[int][]*models.GameMap
	mapCode string
}

func (r *memGameRepo) GetGame(ctx context.Context, id int) (*models.Game, error) {
	g := r.game
	g.ID = id
	return &g, nil
}

func (r *memGameRepo) GetMode(ctx context.Context, id int) (*models.GameMode, error) {
	for _, mode := range r.modes {
		if mode.ID == id {
			return mode, nil
		}
	}
	return nil, repositories.ErrGameNotFound
}

func (r *memGameRepo) ListModes(ctx context.Context, gameID int) ([]*models.GameMode, error) {
	return r.modes, nil
}

func (r *memGameRepo) ListMapsByMode(ctx context.Context, modeID int) ([]*models.GameMap, error) {
	return r.maps[modeID], nil
}

func (r *memGameRepo) GetMapCode(ctx context.Context, gameID, mapID int) (string, error) {
	if r.mapCode == "" {
		return "", repositories.ErrMapCodeNotFound
	}
	return r.mapCode, nil
}

type memSignupRepo struct {
	userIDs map[int][]string
}

func (r *memSignupRepo) ListUserIDs(ctx context.Context, tournamentID int) ([]string, error) {
	return r.userIDs[tournamentID], nil
}

func (r *memSignupRepo) Add(ctx context.Context, tournamentID int, userID string) error {
	if r.userIDs == nil {
		r.userIDs = make(map[int][]string)
	}
	r.userIDs[tournamentID] = append(r.userIDs[tournamentID], userID)
	return nil
}

func (r *memSignupRepo) Remove(ctx context.Context, tournamentID int, userID string) error {
	return nil
}

type refKey struct {
	owner   repositories.RefOwner
	ownerID int
}

type memMessageRefRepo struct {
	refs map[refKey][]models.MessageRef
}

func newMemMessageRefRepo() *memMessageRefRepo {
	return &memMessageRefRepo{refs: make(map[refKey][]models.MessageRef)}
}

func (r *memMessageRefRepo) Save(ctx context.Context, owner repositories.RefOwner, ownerID int, style string, refs []models.MessageRef) error {
	key := refKey{owner, ownerID}
	r.refs[key] = append(r.refs[key], refs...)
	return nil
}

func (r *memMessageRefRepo) ListByOwner(ctx context.Context, owner repositories.RefOwner, ownerID int) ([]models.MessageRef, error) {
	return r.refs[refKey{owner, ownerID}], nil
}

type memVoiceRepo struct {
	channels  map[int][2]string
	lastFirst map[int]int
}

func newMemVoiceRepo() *memVoiceRepo {
	return &memVoiceRepo{channels: make(map[int][2]string), lastFirst: make(map[int]int)}
}

func (r *memVoiceRepo) SaveChannels(ctx context.Context, matchID int, blueChannelID, redChannelID string) error {
	r.channels[matchID] = [2]string{blueChannelID, redChannelID}
	return nil
}

func (r *memVoiceRepo) GetChannels(ctx context.Context, matchID int) (string, string, error) {
	pair, ok := r.channels[matchID]
	if !ok {
		return "", "", repositories.ErrVoiceChannelsNotFound
	}
	return pair[0], pair[1], nil
}

func (r *memVoiceRepo) LastFirstTeam(ctx context.Context, matchID int) (*int, error) {
	teamID, ok := r.lastFirst[matchID]
	if !ok {
		return nil, nil
	}
	return &teamID, nil
}

func (r *memVoiceRepo) SetLastFirstTeam(ctx context.Context, matchID, teamID int) error {
	r.lastFirst[matchID] = teamID
	return nil
}

type memProvisioner struct {
	resp     *models.VoiceChannelsResponse
	err      error
	requests []int
}

func (p *memProvisioner) RequestVoiceChannels(ctx context.Context, matchID int) (*models.VoiceChannelsResponse, error) {
	p.requests = append(p.requests, matchID)
	if p.err != nil {
		return nil, p.err
	}
	if p.resp != nil {
		return p.resp, nil
	}
	return &models.VoiceChannelsResponse{BlueChannelID: "blue", RedChannelID: "red"}, nil
}

type memHub struct {
	mu     sync.Mutex
	events []brackets.Event
}

func (h *memHub) BroadcastToRoom(roomID string, event brackets.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	event.RoomID = roomID
	h.events = append(h.events, event)
}

func (h *memHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}
