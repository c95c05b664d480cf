package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mkaryagin/scrim-system/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, q Querier, id int, status models.Status) error
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Tournament, error)
	Exists(ctx context.Context, id int) (bool, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, game_id, mode_id, format, status, rounds_per_match, max_participants, start_time, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, tournament *models.Tournament) error {
	query := `
		INSERT INTO tournaments
			(game_id, mode_id, format, status, rounds_per_match, max_participants, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		tournament.GameID,
		tournament.ModeID,
		tournament.Format,
		tournament.Status,
		tournament.RoundsPerMatch,
		tournament.MaxParticipants,
		tournament.StartTime,
	).Scan(&tournament.ID, &tournament.CreatedAt)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	tournament := &models.Tournament{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tournament.ID,
		&tournament.GameID,
		&tournament.ModeID,
		&tournament.Format,
		&tournament.Status,
		&tournament.RoundsPerMatch,
		&tournament.MaxParticipants,
		&tournament.StartTime,
		&tournament.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, q Querier, id int, status models.Status) error {
	result, err := q.ExecContext(ctx, `UPDATE tournaments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListByStatus(ctx context.Context, status models.Status) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE status = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := rows.Scan(
			&t.ID,
			&t.GameID,
			&t.ModeID,
			&t.Format,
			&t.Status,
			&t.RoundsPerMatch,
			&t.MaxParticipants,
			&t.StartTime,
			&t.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Exists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tournaments WHERE id = $1 AND status <> 'cancelled')`, id,
	).Scan(&exists)
	return exists, err
}
