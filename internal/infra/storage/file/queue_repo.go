package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
)

// QueueRepo stores the pending queue as an ordered YAML list.
type QueueRepo struct {
	path string
}

// NewQueueRepo creates a queue repository backed by the document at path.
func NewQueueRepo(path string) *QueueRepo {
	return &QueueRepo{path: path}
}

// Load reads the full queue in document order. A missing document is an
// empty queue; a malformed one is ErrCorruptQueue.
func (r *QueueRepo) Load(ctx context.Context) ([]domain.QueueItem, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue document: %w", err)
	}

	var items []domain.QueueItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorruptQueue, r.path, err)
	}
	return items, nil
}

// Save rewrites the queue document with the given items in order.
func (r *QueueRepo) Save(ctx context.Context, items []domain.QueueItem) error {
	if items == nil {
		items = []domain.QueueItem{}
	}
	data, err := yaml.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	return writeAtomic(r.path, data)
}
