package postgres

import (
	"context"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// HistoryEntry is one archived broadcast.
type HistoryEntry struct {
	Chain       string `db:"chain"`
	Label       string `db:"label"`
	Fingerprint string `db:"fingerprint"`
	TxHash      string `db:"tx_hash"`
	BroadcastAt int64  `db:"broadcast_at"`
}

// HistoryRepo mirrors ledger records into an append-only broadcast_history
// table for operator queries. The file-backed ledger stays the source of
// truth; an archive failure never blocks the fire path.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Insert archives one broadcast. Re-inserting the same fingerprint is a no-op.
func (r *HistoryRepo) Insert(
	ctx context.Context,
	item domain.QueueItem,
	fingerprint string,
	rec domain.BroadcastRecord,
) error {
	query := `
		INSERT INTO broadcast_history (chain, label, fingerprint, tx_hash, broadcast_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		item.Chain, item.Label, fingerprint, rec.TxHash, rec.BroadcastAt)
	return err
}

// Recent returns the most recent archived broadcasts, newest first.
func (r *HistoryRepo) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	query := `
		SELECT chain, label, fingerprint, tx_hash, broadcast_at
		FROM broadcast_history
		ORDER BY broadcast_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, err
	}
	return entries, nil
}
