package repositories

import (
	"context"
	"database/sql"
)

// SignupRepository lists individual signups collected before teams are
// formed. Solo-mode tournaments turn these into one-member teams when
// they enter assign.
type SignupRepository interface {
	ListUserIDs(ctx context.Context, tournamentID int) ([]string, error)
	Add(ctx context.Context, tournamentID int, userID string) error
	Remove(ctx context.Context, tournamentID int, userID string) error
}

type postgresSignupRepository struct {
	db *sql.DB
}

func NewPostgresSignupRepository(db *sql.DB) SignupRepository {
	return &postgresSignupRepository{db: db}
}

func (r *postgresSignupRepository) ListUserIDs(ctx context.Context, tournamentID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id
		FROM tournament_signups
		WHERE tournament_id = $1
		ORDER BY created_at ASC`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	userIDs := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (r *postgresSignupRepository) Add(ctx context.Context, tournamentID int, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tournament_signups (tournament_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (tournament_id, user_id) DO NOTHING`,
		tournamentID, userID)
	return err
}

func (r *postgresSignupRepository) Remove(ctx context.Context, tournamentID int, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tournament_signups
		WHERE tournament_id = $1 AND user_id = $2`,
		tournamentID, userID)
	return err
}
