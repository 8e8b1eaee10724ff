package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
)

// stateDocument is the on-disk shape of the ledger.
type stateDocument struct {
	Broadcasted map[string]domain.BroadcastRecord `json:"broadcasted"`
}

// LedgerRepo stores broadcast records as a JSON state document.
type LedgerRepo struct {
	path string
}

// NewLedgerRepo creates a ledger repository backed by the document at path.
func NewLedgerRepo(path string) *LedgerRepo {
	return &LedgerRepo{path: path}
}

// Load reads the fingerprint map. A missing document is an empty ledger; a
// malformed one is ErrCorruptLedger.
func (r *LedgerRepo) Load(ctx context.Context) (map[string]domain.BroadcastRecord, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return map[string]domain.BroadcastRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state document: %w", err)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptLedger, r.path, err)
	}
	if doc.Broadcasted == nil {
		doc.Broadcasted = map[string]domain.BroadcastRecord{}
	}
	return doc.Broadcasted, nil
}

// Save rewrites the state document with the given records.
func (r *LedgerRepo) Save(ctx context.Context, records map[string]domain.BroadcastRecord) error {
	if records == nil {
		records = map[string]domain.BroadcastRecord{}
	}
	data, err := json.MarshalIndent(stateDocument{Broadcasted: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeAtomic(r.path, data)
}
