package repositories

import (
	"context"
	"database/sql"

	"github.com/mkaryagin/scrim-system/models"
)

// RefOwner is the entity an announcement belongs to.
type RefOwner string

const (
	RefOwnerMatch      RefOwner = "match"
	RefOwnerTournament RefOwner = "tournament"
)

// MessageRefRepository remembers where announcements were posted, so
// signup-closure edits and deletions can find them later.
type MessageRefRepository interface {
	Save(ctx context.Context, owner RefOwner, ownerID int, style string, refs []models.MessageRef) error
	ListByOwner(ctx context.Context, owner RefOwner, ownerID int) ([]models.MessageRef, error)
}

type postgresMessageRefRepository struct {
	db *sql.DB
}

func NewPostgresMessageRefRepository(db *sql.DB) MessageRefRepository {
	return &postgresMessageRefRepository{db: db}
}

func (r *postgresMessageRefRepository) Save(ctx context.Context, owner RefOwner, ownerID int, style string, refs []models.MessageRef) error {
	for _, ref := range refs {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO announcement_refs (owner_kind, owner_id, style, channel_id, message_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (channel_id, message_id) DO NOTHING`,
			owner, ownerID, style, ref.ChannelID, ref.MessageID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresMessageRefRepository) ListByOwner(ctx context.Context, owner RefOwner, ownerID int) ([]models.MessageRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel_id, message_id
		FROM announcement_refs
		WHERE owner_kind = $1 AND owner_id = $2
		ORDER BY id ASC`, owner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]models.MessageRef, 0)
	for rows.Next() {
		var ref models.MessageRef
		if err := rows.Scan(&ref.ChannelID, &ref.MessageID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
