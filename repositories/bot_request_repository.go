package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkaryagin/scrim-system/models"
)

var ErrBotRequestNotFound = errors.New("bot request not found")

// BotRequestRepository backs the cross-process request/response broker:
// services insert requests, the bot-side worker claims and fulfils
// them, and the requester polls Get until a response appears.
type BotRequestRepository interface {
	Create(ctx context.Context, request *models.BotRequest) error
	Get(ctx context.Context, id int) (*models.BotRequest, error)
	// ClaimNext atomically takes the oldest pending request of a kind.
	// A nil request with nil error means nothing is pending.
	ClaimNext(ctx context.Context, kind models.BotRequestKind) (*models.BotRequest, error)
	Complete(ctx context.Context, id int, response string) error
	Fail(ctx context.Context, id int, detail string) error
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

type postgresBotRequestRepository struct {
	db *sql.DB
}

func NewPostgresBotRequestRepository(db *sql.DB) BotRequestRepository {
	return &postgresBotRequestRepository{db: db}
}

const botRequestColumns = `id, kind, match_id, status, response, error_detail, created_at`

func (r *postgresBotRequestRepository) Create(ctx context.Context, request *models.BotRequest) error {
	query := `
		INSERT INTO bot_requests (kind, match_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, created_at`

	request.Status = models.BotRequestPending
	return r.db.QueryRowContext(ctx, query, request.Kind, request.MatchID).
		Scan(&request.ID, &request.CreatedAt)
}

func (r *postgresBotRequestRepository) Get(ctx context.Context, id int) (*models.BotRequest, error) {
	query := `SELECT ` + botRequestColumns + ` FROM bot_requests WHERE id = $1`

	request := &models.BotRequest{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&request.ID,
		&request.Kind,
		&request.MatchID,
		&request.Status,
		&request.Response,
		&request.ErrorDetail,
		&request.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

func (r *postgresBotRequestRepository) ClaimNext(ctx context.Context, kind models.BotRequestKind) (*models.BotRequest, error) {
	query := `
		UPDATE bot_requests
		SET status = 'processing'
		WHERE id = (
			SELECT id FROM bot_requests
			WHERE kind = $1 AND status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + botRequestColumns

	request := &models.BotRequest{}
	err := r.db.QueryRowContext(ctx, query, kind).Scan(
		&request.ID,
		&request.Kind,
		&request.MatchID,
		&request.Status,
		&request.Response,
		&request.ErrorDetail,
		&request.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (r *postgresBotRequestRepository) Complete(ctx context.Context, id int, response string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bot_requests
		SET status = 'completed', response = $2
		WHERE id = $1`, id, response)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrBotRequestNotFound)
}

func (r *postgresBotRequestRepository) Fail(ctx context.Context, id int, detail string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bot_requests
		SET status = 'failed', error_detail = $2
		WHERE id = $1`, id, detail)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrBotRequestNotFound)
}

func (r *postgresBotRequestRepository) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM bot_requests
		WHERE created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(retention.Seconds())))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
