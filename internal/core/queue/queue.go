// Package queue implements the durable pending-transaction queue. The list
// lives in memory and is written through to a repository as one whole
// document; order is insertion order and removal preserves the relative order
// of the remainder.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
)

// PersistentQueue is the ordered collection of pending items. The scheduler
// holds exclusive mutation rights through this type; the intake worker only
// appends.
type PersistentQueue struct {
	repo storage.QueueRepository

	mu    sync.Mutex
	items []domain.QueueItem
}

// New creates a queue backed by the given repository. Call Load before use.
func New(repo storage.QueueRepository) *PersistentQueue {
	return &PersistentQueue{repo: repo}
}

// Load replaces the in-memory list with the persisted document. A corrupt
// document is fatal: no partial queue is ever used.
func (q *PersistentQueue) Load(ctx context.Context) error {
	items, err := q.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()
	return nil
}

// Items returns a snapshot of the queue in order. Mutation during a cycle
// does not affect a snapshot taken at cycle start.
func (q *PersistentQueue) Items() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending items.
func (q *PersistentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Append adds an item at the tail.
func (q *PersistentQueue) Append(item domain.QueueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Remove deletes the item with the given fingerprint, preserving the relative
// order of the remainder. It reports whether an item was removed.
func (q *PersistentQueue) Remove(fingerprint string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.Fingerprint() == fingerprint {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// IncrementAttempts bumps the attempt counter of the item with the given
// fingerprint and returns the new count, or 0 if the item is gone.
func (q *PersistentQueue) IncrementAttempts(fingerprint string) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].Fingerprint() == fingerprint {
			q.items[i].Attempts++
			return q.items[i].Attempts
		}
	}
	return 0
}

// Save rewrites the backing document with the current list. A failure leaves
// the in-memory queue untouched; the caller retries on the next write
// opportunity.
func (q *PersistentQueue) Save(ctx context.Context) error {
	q.mu.Lock()
	items := make([]domain.QueueItem, len(q.items))
	copy(items, q.items)
	q.mu.Unlock()

	if err := q.repo.Save(ctx, items); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}
