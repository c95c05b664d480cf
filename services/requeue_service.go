package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkaryagin/scrim-system/queue"
)

// Requeuer is the single non-generic method every queue store exposes,
// so stores of different payload types fit one registry.
type Requeuer interface {
	Requeue(ctx context.Context, id int) (int, error)
}

// RequeueService is the human re-queue action behind failed items: it
// copies a failed row's payload into a new pending row in the named
// queue. The failed row itself stays terminal.
type RequeueService struct {
	queues map[queue.Kind]Requeuer
}

func NewRequeueService(queues map[queue.Kind]Requeuer) *RequeueService {
	return &RequeueService{queues: queues}
}

func (s *RequeueService) Requeue(ctx context.Context, kind queue.Kind, itemID int) (int, error) {
	store, ok := s.queues[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrQueueUnknown, kind)
	}
	newID, err := store.Requeue(ctx, itemID)
	if err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			return 0, fmt.Errorf("%w: item %d in %s", ErrItemNotRequeueable, itemID, kind)
		}
		return 0, err
	}
	return newID, nil
}
