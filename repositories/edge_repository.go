package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mkaryagin/scrim-system/models"
)

var ErrEdgeNotFound = errors.New("tournament match edge not found")

// EdgeRepository persists the bracket DAG plus the waiting slots of
// teams that dropped into a losers round but have no opponent yet.
type EdgeRepository interface {
	Create(ctx context.Context, q Querier, edge *models.TournamentMatchEdge) error
	ListByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.TournamentMatchEdge, error)
	CountByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) (int, error)
	GetByMatch(ctx context.Context, matchID int) (*models.TournamentMatchEdge, error)

	AddSlot(ctx context.Context, q Querier, tournamentID, round int, bracket models.BracketType, teamID int) error
	// TakeSlots removes and returns the waiting team ids for a round,
	// in insertion order.
	TakeSlots(ctx context.Context, q Querier, tournamentID, round int, bracket models.BracketType) ([]int, error)
	TeamPlaced(ctx context.Context, tournamentID int, bracket models.BracketType, teamID int) (bool, error)
}

type postgresEdgeRepository struct {
	db *sql.DB
}

func NewPostgresEdgeRepository(db *sql.DB) EdgeRepository {
	return &postgresEdgeRepository{db: db}
}

func (r *postgresEdgeRepository) Create(ctx context.Context, q Querier, edge *models.TournamentMatchEdge) error {
	query := `
		INSERT INTO tournament_match_edges
			(match_id, tournament_id, round, bracket_type, team1_id, team2_id, match_order, parent_match1_id, parent_match2_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := q.ExecContext(ctx, query,
		edge.MatchID,
		edge.TournamentID,
		edge.Round,
		edge.BracketType,
		edge.Team1ID,
		edge.Team2ID,
		edge.MatchOrder,
		edge.ParentMatch1ID,
		edge.ParentMatch2ID,
	)
	return err
}

func (r *postgresEdgeRepository) ListByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) ([]*models.TournamentMatchEdge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, tournament_id, round, bracket_type, team1_id, team2_id, match_order, parent_match1_id, parent_match2_id
		FROM tournament_match_edges
		WHERE tournament_id = $1 AND round = $2 AND bracket_type = $3
		ORDER BY match_order ASC`,
		tournamentID, round, bracket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edges := make([]*models.TournamentMatchEdge, 0)
	for rows.Next() {
		var edge models.TournamentMatchEdge
		if scanErr := rows.Scan(
			&edge.MatchID,
			&edge.TournamentID,
			&edge.Round,
			&edge.BracketType,
			&edge.Team1ID,
			&edge.Team2ID,
			&edge.MatchOrder,
			&edge.ParentMatch1ID,
			&edge.ParentMatch2ID,
		); scanErr != nil {
			return nil, scanErr
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

func (r *postgresEdgeRepository) CountByRound(ctx context.Context, tournamentID, round int, bracket models.BracketType) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM tournament_match_edges
		WHERE tournament_id = $1 AND round = $2 AND bracket_type = $3`,
		tournamentID, round, bracket,
	).Scan(&count)
	return count, err
}

func (r *postgresEdgeRepository) GetByMatch(ctx context.Context, matchID int) (*models.TournamentMatchEdge, error) {
	edge := &models.TournamentMatchEdge{}
	err := r.db.QueryRowContext(ctx, `
		SELECT match_id, tournament_id, round, bracket_type, team1_id, team2_id, match_order, parent_match1_id, parent_match2_id
		FROM tournament_match_edges
		WHERE match_id = $1`, matchID,
	).Scan(
		&edge.MatchID,
		&edge.TournamentID,
		&edge.Round,
		&edge.BracketType,
		&edge.Team1ID,
		&edge.Team2ID,
		&edge.MatchOrder,
		&edge.ParentMatch1ID,
		&edge.ParentMatch2ID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEdgeNotFound
		}
		return nil, err
	}
	return edge, nil
}

func (r *postgresEdgeRepository) AddSlot(ctx context.Context, q Querier, tournamentID, round int, bracket models.BracketType, teamID int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO bracket_slots (tournament_id, round, bracket_type, team_id)
		VALUES ($1, $2, $3, $4)`,
		tournamentID, round, bracket, teamID)
	return err
}

func (r *postgresEdgeRepository) TakeSlots(ctx context.Context, q Querier, tournamentID, round int, bracket models.BracketType) ([]int, error) {
	rows, err := q.QueryContext(ctx, `
		DELETE FROM bracket_slots
		WHERE tournament_id = $1 AND round = $2 AND bracket_type = $3
		RETURNING team_id`,
		tournamentID, round, bracket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teamIDs := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		teamIDs = append(teamIDs, id)
	}
	return teamIDs, rows.Err()
}

func (r *postgresEdgeRepository) TeamPlaced(ctx context.Context, tournamentID int, bracket models.BracketType, teamID int) (bool, error) {
	var placed bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tournament_match_edges
			WHERE tournament_id = $1 AND bracket_type = $2 AND (team1_id = $3 OR team2_id = $3)
			UNION
			SELECT 1 FROM bracket_slots
			WHERE tournament_id = $1 AND bracket_type = $2 AND team_id = $3
		)`,
		tournamentID, bracket, teamID,
	).Scan(&placed)
	return placed, err
}
