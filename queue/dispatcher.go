package queue

import (
	"context"
	"log/slog"
	"time"
)

// ItemStore is the slice of Store the dispatcher needs. Tests provide
// an in-memory implementation.
type ItemStore[P Payload] interface {
	PendingBatch(ctx context.Context, limit int) ([]Item[P], error)
	Claim(ctx context.Context, id int) (bool, error)
	MarkCompleted(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, message string) error
}

// ExecFunc performs the side effect for one claimed item. A non-nil
// error marks the item failed; failure is terminal.
type ExecFunc[P Payload] func(ctx context.Context, item Item[P]) error

// Dispatcher runs the claim/execute/resolve loop for one queue kind.
// Overlapping cycles of the same dispatcher are safe: the conditional
// claim update is the only ownership mechanism.
type Dispatcher[P Payload] struct {
	name      string
	store     ItemStore[P]
	exec      ExecFunc[P]
	logger    *slog.Logger
	batchSize int

	// Ready gates execution without claiming: an item for which Ready
	// returns false stays pending for a later cycle. Nil means always
	// ready. Used for reminder_time gating.
	Ready func(item Item[P], now time.Time) bool

	// SkipOrphaned reports whether the owning entity is gone. Orphaned
	// items are skipped silently and left for the retention sweep.
	SkipOrphaned func(ctx context.Context, entityID int) (bool, error)

	// ExecDelay is waited after a successful claim, before executing.
	// Match-winner notifications use 15s so a same-timeframe score
	// notification posts first.
	ExecDelay time.Duration
}

func NewDispatcher[P Payload](name string, store ItemStore[P], exec ExecFunc[P], logger *slog.Logger) *Dispatcher[P] {
	return &Dispatcher[P]{
		name:      name,
		store:     store,
		exec:      exec,
		logger:    logger.With(slog.String("queue", name)),
		batchSize: 10,
	}
}

func (d *Dispatcher[P]) WithBatchSize(n int) *Dispatcher[P] {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

// RunCycle processes one batch. Items are handled independently: one
// item's failure never aborts the rest of the batch, and errors are
// recorded on the row, never returned to the transition that enqueued
// the work.
func (d *Dispatcher[P]) RunCycle(ctx context.Context) {
	batch, err := d.store.PendingBatch(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("failed to fetch pending batch", slog.Any("error", err))
		return
	}

	now := time.Now()
	for _, item := range batch {
		if ctx.Err() != nil {
			return
		}
		d.processItem(ctx, item, now)
	}
}

func (d *Dispatcher[P]) processItem(ctx context.Context, item Item[P], now time.Time) {
	if d.Ready != nil && !d.Ready(item, now) {
		return
	}

	if d.SkipOrphaned != nil {
		orphaned, err := d.SkipOrphaned(ctx, item.EntityID)
		if err != nil {
			d.logger.Error("orphan check failed", slog.Int("item_id", item.ID), slog.Any("error", err))
			return
		}
		if orphaned {
			return
		}
	}

	claimed, err := d.store.Claim(ctx, item.ID)
	if err != nil {
		d.logger.Error("claim failed", slog.Int("item_id", item.ID), slog.Any("error", err))
		return
	}
	if !claimed {
		// Another cycle owns this row. Not an error.
		return
	}

	if d.ExecDelay > 0 {
		select {
		case <-time.After(d.ExecDelay):
		case <-ctx.Done():
			d.fail(ctx, item.ID, ctx.Err().Error())
			return
		}
	}

	if err := d.exec(ctx, item); err != nil {
		d.logger.Warn("side effect failed",
			slog.Int("item_id", item.ID),
			slog.Int("entity_id", item.EntityID),
			slog.Any("error", err))
		d.fail(ctx, item.ID, err.Error())
		return
	}

	if err := d.store.MarkCompleted(ctx, item.ID); err != nil {
		d.logger.Error("failed to mark item completed", slog.Int("item_id", item.ID), slog.Any("error", err))
	}
}

func (d *Dispatcher[P]) fail(ctx context.Context, id int, message string) {
	if err := d.store.MarkFailed(ctx, id, message); err != nil {
		d.logger.Error("failed to mark item failed", slog.Int("item_id", id), slog.Any("error", err))
	}
}
