// Package ledger implements the durable record of already-broadcast
// transactions, keyed by item fingerprint. The fingerprint set is append-only
// and is the proof that guards against duplicate submission across restarts.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
)

// BroadcastLedger holds the fingerprint -> record map and writes it through
// to a repository as one whole document.
type BroadcastLedger struct {
	repo storage.LedgerRepository

	mu      sync.Mutex
	records map[string]domain.BroadcastRecord
}

// New creates a ledger backed by the given repository. Call Load before use.
func New(repo storage.LedgerRepository) *BroadcastLedger {
	return &BroadcastLedger{
		repo:    repo,
		records: make(map[string]domain.BroadcastRecord),
	}
}

// Load replaces the in-memory map with the persisted document. A corrupt
// document is fatal.
func (l *BroadcastLedger) Load(ctx context.Context) error {
	records, err := l.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	l.mu.Lock()
	l.records = records
	l.mu.Unlock()
	return nil
}

// Contains reports whether a fingerprint has been broadcast.
func (l *BroadcastLedger) Contains(fingerprint string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[fingerprint]
	return ok
}

// Record stores the broadcast proof for a fingerprint. Recording an existing
// fingerprint is a no-op success: the first record wins, guarding against a
// duplicate fire.
func (l *BroadcastLedger) Record(fingerprint, txHash string, broadcastAt int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[fingerprint]; ok {
		return
	}
	l.records[fingerprint] = domain.BroadcastRecord{
		TxHash:      txHash,
		BroadcastAt: broadcastAt,
	}
}

// Get returns the record for a fingerprint, if present.
func (l *BroadcastLedger) Get(fingerprint string) (domain.BroadcastRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[fingerprint]
	return rec, ok
}

// Records returns a copy of the fingerprint map.
func (l *BroadcastLedger) Records() map[string]domain.BroadcastRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]domain.BroadcastRecord, len(l.records))
	for k, v := range l.records {
		out[k] = v
	}
	return out
}

// Len returns the number of recorded broadcasts.
func (l *BroadcastLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Save rewrites the backing document with the current map.
func (l *BroadcastLedger) Save(ctx context.Context) error {
	l.mu.Lock()
	records := make(map[string]domain.BroadcastRecord, len(l.records))
	for k, v := range l.records {
		records[k] = v
	}
	l.mu.Unlock()

	if err := l.repo.Save(ctx, records); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
