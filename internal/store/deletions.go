package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/darmiel/kartei/internal/core"
)

type InMemoryDeletionQueue struct {
	mu      sync.Mutex
	pending map[string]core.PendingDeletion
	now     func() time.Time
}

func NewInMemoryDeletionQueue() *InMemoryDeletionQueue {
	return &InMemoryDeletionQueue{
		pending: make(map[string]core.PendingDeletion),
		now:     time.Now,
	}
}

// Enqueue is idempotent per ref.
func (q *InMemoryDeletionQueue) Enqueue(_ context.Context, ref, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[ref]; ok {
		return nil
	}
	q.pending[ref] = core.PendingDeletion{
		Ref:       ref,
		Reason:    reason,
		CreatedAt: q.now(),
	}
	return nil
}

// List returns the oldest pending deletions first.
func (q *InMemoryDeletionQueue) List(_ context.Context, limit int) ([]core.PendingDeletion, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.PendingDeletion, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref < out[j].Ref
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *InMemoryDeletionQueue) Done(_ context.Context, ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.pending, ref)
	return nil
}

func (q *InMemoryDeletionQueue) Failed(_ context.Context, ref string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.pending[ref]
	if !ok {
		return core.ErrNotFound
	}
	p.Attempts++
	q.pending[ref] = p
	return nil
}
