package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrItemNotFound = errors.New("queue item not found")

// Store is the durable table behind one queue kind. All queue tables
// share the same column shape; the typed payload lives in a JSON column
// and is validated on both enqueue and decode.
type Store[P Payload] struct {
	db    *sql.DB
	table string
}

func NewStore[P Payload](db *sql.DB) *Store[P] {
	var zero P
	return &Store[P]{db: db, table: zero.Kind().Table()}
}

// Table returns the backing table name, used by the admin surface to
// address stores by name.
func (s *Store[P]) Table() string { return s.table }

func (s *Store[P]) Enqueue(ctx context.Context, entityID int, payload P) (*Item[P], error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("enqueue into %s: %w", s.table, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue into %s: encode payload: %w", s.table, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (entity_id, status, payload)
		VALUES ($1, 'pending', $2)
		RETURNING id, created_at`, s.table)

	item := &Item[P]{EntityID: entityID, Status: ItemPending, Payload: payload}
	if err := s.db.QueryRowContext(ctx, query, entityID, raw).Scan(&item.ID, &item.CreatedAt); err != nil {
		return nil, fmt.Errorf("enqueue into %s: %w", s.table, err)
	}
	return item, nil
}

// PendingBatch returns up to limit pending rows, oldest first.
func (s *Store[P]) PendingBatch(ctx context.Context, limit int) ([]Item[P], error) {
	query := fmt.Sprintf(`
		SELECT id, entity_id, status, created_at, processed_at, error_message, payload
		FROM %s
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pending batch from %s: %w", s.table, err)
	}
	defer rows.Close()

	items := make([]Item[P], 0, limit)
	for rows.Next() {
		item, scanErr := scanItem[P](rows)
		if scanErr != nil {
			return nil, fmt.Errorf("pending batch from %s: %w", s.table, scanErr)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Claim flips a pending row to processing. A false return with nil
// error means another cycle got there first; the caller must skip the
// item without side effects.
func (s *Store[P]) Claim(ctx context.Context, id int) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'processing'
		WHERE id = $1 AND status = 'pending'`, s.table)

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim %s item %d: %w", s.table, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim %s item %d: %w", s.table, id, err)
	}
	return n > 0, nil
}

func (s *Store[P]) MarkCompleted(ctx context.Context, id int) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'completed', processed_at = now()
		WHERE id = $1`, s.table)
	return s.exec(ctx, query, id)
}

func (s *Store[P]) MarkFailed(ctx context.Context, id int, message string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed', processed_at = now(), error_message = $2
		WHERE id = $1`, s.table)
	return s.exec(ctx, query, id, message)
}

// ActiveExists reports whether a pending, processing or completed item
// for the entity satisfies match. Used for idempotent enqueues such as
// the standard announcement.
func (s *Store[P]) ActiveExists(ctx context.Context, entityID int, match func(P) bool) (bool, error) {
	query := fmt.Sprintf(`
		SELECT payload
		FROM %s
		WHERE entity_id = $1 AND status IN ('pending', 'processing', 'completed')`, s.table)

	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return false, fmt.Errorf("active lookup in %s: %w", s.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return false, err
		}
		var payload P
		if err := json.Unmarshal(raw, &payload); err != nil {
			return false, fmt.Errorf("active lookup in %s: decode payload: %w", s.table, err)
		}
		if match == nil || match(payload) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Requeue copies a failed row's payload into a fresh pending row.
// Failed rows themselves are never reactivated.
func (s *Store[P]) Requeue(ctx context.Context, id int) (int, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (entity_id, status, payload)
		SELECT entity_id, 'pending', payload
		FROM %s
		WHERE id = $1 AND status = 'failed'
		RETURNING id`, s.table, s.table)

	var newID int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&newID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("requeue %s item %d: %w", s.table, id, err)
	}
	return newID, nil
}

// PurgeOlderThan removes terminal rows older than the retention window.
func (s *Store[P]) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE status IN ('completed', 'failed')
		  AND created_at < now() - $1::interval`, s.table)

	result, err := s.db.ExecContext(ctx, query, interval(retention))
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", s.table, err)
	}
	return result.RowsAffected()
}

// FailStuckProcessing force-fails rows that have sat in processing past
// the window, e.g. because the process died mid-execution.
func (s *Store[P]) FailStuckProcessing(ctx context.Context, window time.Duration) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed', processed_at = now(), error_message = 'abandoned by retention sweep'
		WHERE status = 'processing'
		  AND created_at < now() - $1::interval`, s.table)

	result, err := s.db.ExecContext(ctx, query, interval(window))
	if err != nil {
		return 0, fmt.Errorf("fail stuck rows in %s: %w", s.table, err)
	}
	return result.RowsAffected()
}

func (s *Store[P]) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanItem[P Payload](rows *sql.Rows) (*Item[P], error) {
	var item Item[P]
	var raw []byte
	if err := rows.Scan(&item.ID, &item.EntityID, &item.Status, &item.CreatedAt, &item.ProcessedAt, &item.ErrorMessage, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &item.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of item %d: %w", item.ID, err)
	}
	if err := item.Payload.Validate(); err != nil {
		return nil, fmt.Errorf("item %d: %w", item.ID, err)
	}
	return &item, nil
}

func interval(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs <= 0 {
		return "0 seconds"
	}
	return fmt.Sprintf("%d seconds", secs)
}
