// Package memory provides in-memory repositories, used in tests and when the
// sentinel runs without backing documents.
package memory

import (
	"context"
	"sync"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// QueueRepo keeps the queue in memory.
type QueueRepo struct {
	mu    sync.Mutex
	items []domain.QueueItem
}

// NewQueueRepo creates an empty in-memory queue repository.
func NewQueueRepo() *QueueRepo {
	return &QueueRepo{}
}

func (r *QueueRepo) Load(ctx context.Context) ([]domain.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.QueueItem, len(r.items))
	copy(out, r.items)
	return out, nil
}

func (r *QueueRepo) Save(ctx context.Context, items []domain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make([]domain.QueueItem, len(items))
	copy(r.items, items)
	return nil
}

// LedgerRepo keeps broadcast records in memory.
type LedgerRepo struct {
	mu      sync.Mutex
	records map[string]domain.BroadcastRecord
}

// NewLedgerRepo creates an empty in-memory ledger repository.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{records: make(map[string]domain.BroadcastRecord)}
}

func (r *LedgerRepo) Load(ctx context.Context) (map[string]domain.BroadcastRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.BroadcastRecord, len(r.records))
	for k, v := range r.records {
		out[k] = v
	}
	return out, nil
}

func (r *LedgerRepo) Save(ctx context.Context, records map[string]domain.BroadcastRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]domain.BroadcastRecord, len(records))
	for k, v := range records {
		r.records[k] = v
	}
	return nil
}
