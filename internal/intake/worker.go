// Package intake drains externally submitted items from redis into the
// persistent queue while the sentinel runs.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/core/ledger"
	"github.com/vietddude/sentinel/internal/core/queue"
	"github.com/vietddude/sentinel/internal/metrics"
)

// Source yields externally submitted items. Implemented by the redis client.
type Source interface {
	PopItem(ctx context.Context, timeout time.Duration) (domain.QueueItem, bool, error)
}

// Config holds intake worker settings.
type Config struct {
	// PopTimeout bounds each blocking pop so shutdown is responsive.
	PopTimeout time.Duration

	// ErrorBackoff is the pause after a source error.
	ErrorBackoff time.Duration
}

// DefaultConfig returns sensible intake defaults.
func DefaultConfig() Config {
	return Config{
		PopTimeout:   5 * time.Second,
		ErrorBackoff: 3 * time.Second,
	}
}

// Worker validates and appends intake items to the queue.
type Worker struct {
	cfg    Config
	source Source
	queue  *queue.PersistentQueue
	ledger *ledger.BroadcastLedger
	chains map[string]struct{}
	log    *slog.Logger
}

// NewWorker creates an intake worker. chains is the set of configured chain
// names; items referencing anything else are rejected.
func NewWorker(
	cfg Config,
	source Source,
	q *queue.PersistentQueue,
	l *ledger.BroadcastLedger,
	chains []string,
) *Worker {
	set := make(map[string]struct{}, len(chains))
	for _, c := range chains {
		set[c] = struct{}{}
	}
	return &Worker{
		cfg:    cfg,
		source: source,
		queue:  q,
		ledger: l,
		chains: set,
		log:    slog.Default(),
	}
}

// Run drains the intake queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Intake worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		item, found, err := w.source.PopItem(ctx, w.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("Intake pop failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		if !found {
			continue
		}

		if err := w.accept(ctx, item); err != nil {
			w.log.Warn("Rejected intake item",
				"chain", item.Chain, "label", item.Label, "error", err)
		}
	}
}

// accept validates one item and appends it to the persistent queue.
func (w *Worker) accept(ctx context.Context, item domain.QueueItem) error {
	if item.RawTx == "" {
		return fmt.Errorf("empty rawTx")
	}
	if _, ok := w.chains[item.Chain]; !ok {
		return fmt.Errorf("unknown chain %q", item.Chain)
	}

	fp := item.Fingerprint()
	if w.ledger.Contains(fp) {
		return fmt.Errorf("already broadcast (fingerprint %s)", fp)
	}
	for _, queued := range w.queue.Items() {
		if queued.Fingerprint() == fp {
			return fmt.Errorf("already queued (fingerprint %s)", fp)
		}
	}

	if item.Label == "" {
		item.Label = "intake-" + uuid.NewString()[:8]
	}
	item.Attempts = 0

	w.queue.Append(item)
	if err := w.queue.Save(ctx); err != nil {
		// The item is safely in memory; the scheduler persists it on its
		// next write opportunity.
		w.log.Error("Failed to persist queue after intake", "error", err)
	}

	w.log.Info("Accepted intake item",
		"chain", item.Chain, "label", item.Label,
		"min_gwei", item.MinBaseFeeGwei, "pending", w.queue.Len())
	metrics.IntakeItemsTotal.WithLabelValues(item.Chain).Inc()
	return nil
}
