package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mkaryagin/scrim-system/models"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
	ErrMatchTeamInvalid       = errors.New("match team conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, q Querier, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	UpdateStatus(ctx context.Context, q Querier, id int, status models.Status) error
	SetWinner(ctx context.Context, id int, teamID int) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	ListByTournamentRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.Match, error)
	ListFirstRound(ctx context.Context, tournamentID int, status models.Status) ([]*models.Match, error)
	MaxRound(ctx context.Context, tournamentID int, bracket models.BracketType) (int, error)
	LatestCompleted(ctx context.Context, tournamentID int, bracket models.BracketType) (*models.Match, error)
	Exists(ctx context.Context, id int) (bool, error)

	AddMaps(ctx context.Context, q Querier, matchID int, mapIDs []int) error
	GetMaps(ctx context.Context, matchID int) ([]int, error)
	AddParticipants(ctx context.Context, q Querier, participants []models.MatchParticipant) error
	ListParticipants(ctx context.Context, matchID int) ([]models.MatchParticipant, error)
	CreateGames(ctx context.Context, q Querier, matchID int, mapIDs []int) error
	CountGames(ctx context.Context, matchID int) (int, error)
	SetGameWinner(ctx context.Context, matchID, gameNumber, winnerTeamID int) error
	GameWins(ctx context.Context, matchID int) (map[int]int, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, game_id, status, start_time, tournament_id, bracket_type, bracket_round, team1_id, team2_id, winner_team_id, created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, q Querier, match *models.Match) error {
	query := `
		INSERT INTO matches
			(game_id, status, start_time, tournament_id, bracket_type, bracket_round, team1_id, team2_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := q.QueryRowContext(ctx, query,
		match.GameID,
		match.Status,
		match.StartTime,
		match.TournamentID,
		match.BracketType,
		match.BracketRound,
		match.Team1ID,
		match.Team2ID,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.GameID,
		&match.Status,
		&match.StartTime,
		&match.TournamentID,
		&match.BracketType,
		&match.BracketRound,
		&match.Team1ID,
		&match.Team2ID,
		&match.WinnerTeamID,
		&match.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, q Querier, id int, status models.Status) error {
	result, err := q.ExecContext(ctx, `UPDATE matches SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetWinner(ctx context.Context, id int, teamID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE matches SET winner_team_id = $1 WHERE id = $2`, teamID, id)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `
		SELECT m.id, m.game_id, m.status, m.start_time, m.tournament_id, m.bracket_type, m.bracket_round,
		       m.team1_id, m.team2_id, m.winner_team_id, m.created_at
		FROM matches m
		LEFT JOIN tournament_match_edges e ON e.match_id = m.id
		WHERE m.tournament_id = $1
		ORDER BY m.bracket_type ASC, m.bracket_round ASC, e.match_order ASC`

	return r.queryMatches(ctx, query, tournamentID)
}

func (r *postgresMatchRepository) ListByTournamentRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.Match, error) {
	query := `
		SELECT m.id, m.game_id, m.status, m.start_time, m.tournament_id, m.bracket_type, m.bracket_round,
		       m.team1_id, m.team2_id, m.winner_team_id, m.created_at
		FROM matches m
		JOIN tournament_match_edges e ON e.match_id = m.id
		WHERE m.tournament_id = $1 AND m.bracket_round = $2 AND m.bracket_type = $3
		ORDER BY e.match_order ASC`

	return r.queryMatches(ctx, query, tournamentID, round, bracket)
}

func (r *postgresMatchRepository) ListFirstRound(ctx context.Context, tournamentID int, status models.Status) ([]*models.Match, error) {
	query := `
		SELECT m.id, m.game_id, m.status, m.start_time, m.tournament_id, m.bracket_type, m.bracket_round,
		       m.team1_id, m.team2_id, m.winner_team_id, m.created_at
		FROM matches m
		JOIN tournament_match_edges e ON e.match_id = m.id
		WHERE m.tournament_id = $1 AND m.bracket_round = 1 AND m.bracket_type = 'winners' AND m.status = $2
		ORDER BY e.match_order ASC`

	return r.queryMatches(ctx, query, tournamentID, status)
}

func (r *postgresMatchRepository) MaxRound(ctx context.Context, tournamentID int, bracket models.BracketType) (int, error) {
	var round sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(bracket_round)
		FROM matches
		WHERE tournament_id = $1 AND bracket_type = $2`,
		tournamentID, bracket,
	).Scan(&round)
	if err != nil {
		return 0, err
	}
	if !round.Valid {
		return 0, nil
	}
	return int(round.Int64), nil
}

func (r *postgresMatchRepository) LatestCompleted(ctx context.Context, tournamentID int, bracket models.BracketType) (*models.Match, error) {
	query := `
		SELECT m.id, m.game_id, m.status, m.start_time, m.tournament_id, m.bracket_type, m.bracket_round,
		       m.team1_id, m.team2_id, m.winner_team_id, m.created_at
		FROM matches m
		JOIN tournament_match_edges e ON e.match_id = m.id
		WHERE m.tournament_id = $1 AND m.bracket_type = $2 AND m.status = 'complete'
		ORDER BY m.bracket_round DESC, e.match_order DESC
		LIMIT 1`

	matches, err := r.queryMatches(ctx, query, tournamentID, bracket)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrMatchNotFound
	}
	return matches[0], nil
}

func (r *postgresMatchRepository) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1 AND status <> 'cancelled')`, id,
	).Scan(&exists)
	return exists, err
}

func (r *postgresMatchRepository) AddMaps(ctx context.Context, q Querier, matchID int, mapIDs []int) error {
	for i, mapID := range mapIDs {
		_, err := q.ExecContext(ctx, `
			INSERT INTO match_maps (match_id, map_id, play_order)
			VALUES ($1, $2, $3)`,
			matchID, mapID, i+1)
		if err != nil {
			return r.handleMatchError(err)
		}
	}
	return nil
}

func (r *postgresMatchRepository) GetMaps(ctx context.Context, matchID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT map_id FROM match_maps WHERE match_id = $1 ORDER BY play_order ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapIDs := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		mapIDs = append(mapIDs, id)
	}
	return mapIDs, rows.Err()
}

func (r *postgresMatchRepository) AddParticipants(ctx context.Context, q Querier, participants []models.MatchParticipant) error {
	for _, p := range participants {
		_, err := q.ExecContext(ctx, `
			INSERT INTO match_participants (match_id, user_id, team_id, side)
			VALUES ($1, $2, $3, $4)`,
			p.MatchID, p.UserID, p.TeamID, p.Side)
		if err != nil {
			return r.handleMatchError(err)
		}
	}
	return nil
}

func (r *postgresMatchRepository) ListParticipants(ctx context.Context, matchID int) ([]models.MatchParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, user_id, team_id, side
		FROM match_participants
		WHERE match_id = $1`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.MatchParticipant, 0)
	for rows.Next() {
		var p models.MatchParticipant
		if err := rows.Scan(&p.MatchID, &p.UserID, &p.TeamID, &p.Side); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresMatchRepository) CreateGames(ctx context.Context, q Querier, matchID int, mapIDs []int) error {
	for i, mapID := range mapIDs {
		_, err := q.ExecContext(ctx, `
			INSERT INTO match_games (match_id, game_number, map_id, status)
			VALUES ($1, $2, $3, 'pending')`,
			matchID, i+1, mapID)
		if err != nil {
			return r.handleMatchError(err)
		}
	}
	return nil
}

func (r *postgresMatchRepository) CountGames(ctx context.Context, matchID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_games WHERE match_id = $1`, matchID,
	).Scan(&count)
	return count, err
}

func (r *postgresMatchRepository) SetGameWinner(ctx context.Context, matchID, gameNumber, winnerTeamID int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE match_games
		SET winner_team_id = $1, status = 'complete'
		WHERE match_id = $2 AND game_number = $3`,
		winnerTeamID, matchID, gameNumber)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) GameWins(ctx context.Context, matchID int) (map[int]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT winner_team_id, COUNT(*)
		FROM match_games
		WHERE match_id = $1 AND winner_team_id IS NOT NULL
		GROUP BY winner_team_id`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wins := make(map[int]int)
	for rows.Next() {
		var teamID, count int
		if err := rows.Scan(&teamID, &count); err != nil {
			return nil, err
		}
		wins[teamID] = count
	}
	return wins, rows.Err()
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := rows.Scan(
			&match.ID,
			&match.GameID,
			&match.Status,
			&match.StartTime,
			&match.TournamentID,
			&match.BracketType,
			&match.BracketRound,
			&match.Team1ID,
			&match.Team2ID,
			&match.WinnerTeamID,
			&match.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, &match)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23503" { // foreign_key_violation
			switch pqErr.Constraint {
			case "matches_tournament_id_fkey":
				return ErrMatchTournamentInvalid
			case "matches_team1_id_fkey", "matches_team2_id_fkey":
				return ErrMatchTeamInvalid
			}
		}
	}
	return err
}
