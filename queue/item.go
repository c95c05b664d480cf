package queue

import "time"

// ItemStatus is the shared row lifecycle across all queue tables.
// Failed is terminal: recovery means creating a new row, never flipping
// a failed one back to pending.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

// Item is one unit of side-effect work. EntityID references the owning
// match or tournament depending on the queue kind.
type Item[P Payload] struct {
	ID           int        `json:"id"`
	EntityID     int        `json:"entity_id"`
	Status       ItemStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Payload      P          `json:"payload"`
}
