package storage

import (
	"context"
	"errors"

	"github.com/vietddude/sentinel/internal/core/domain"
)

var (
	// ErrCorruptQueue is returned when the queue document exists but cannot
	// be parsed. Silently dropping pending transactions is unacceptable, so
	// this is fatal at load.
	ErrCorruptQueue = errors.New("queue document is corrupt")

	// ErrCorruptLedger is returned when the ledger document exists but
	// cannot be parsed. Fatal at load for the same reason.
	ErrCorruptLedger = errors.New("ledger document is corrupt")
)

// QueueRepository persists the ordered list of pending items. Save rewrites
// the backing document in full; Load of a missing document yields an empty
// list, not an error.
type QueueRepository interface {
	Load(ctx context.Context) ([]domain.QueueItem, error)
	Save(ctx context.Context, items []domain.QueueItem) error
}

// LedgerRepository persists the fingerprint -> record map of broadcast
// transactions, with the same full-rewrite and missing-document contract as
// QueueRepository.
type LedgerRepository interface {
	Load(ctx context.Context) (map[string]domain.BroadcastRecord, error)
	Save(ctx context.Context, records map[string]domain.BroadcastRecord) error
}
