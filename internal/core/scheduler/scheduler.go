// Package scheduler implements the firing state machine: one sequential pass
// over the pending queue per poll cycle, a per-item fire decision against the
// chain's current base fee, at-most-once broadcast, and the ledger-then-queue
// persistence order that makes restarts resume-safe.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/core/ledger"
	"github.com/vietddude/sentinel/internal/core/queue"
	"github.com/vietddude/sentinel/internal/infra/chain"
	"github.com/vietddude/sentinel/internal/metrics"
)

// ErrNoChains is returned when no oracles are configured. This is a startup
// precondition, not a runtime failure.
var ErrNoChains = errors.New("no chains configured")

// prefetchConcurrency bounds parallel per-chain base-fee queries.
const prefetchConcurrency = 4

// Config holds scheduler settings.
type Config struct {
	// Oracles maps chain name to its oracle capability.
	Oracles map[string]chain.Oracle

	// MaxFeeGwei is the global fee ceiling. A per-item value can only
	// tighten it, never loosen it.
	MaxFeeGwei uint64

	// PollInterval is the base sleep between cycles.
	PollInterval time.Duration

	// Jitter is the upper bound of the random extra sleep added to each
	// interval, to desynchronize polling against shared endpoints.
	Jitter time.Duration

	// SaveEvery persists the queue every Nth attempt of an item that did
	// not fire, bounding write amplification.
	SaveEvery uint64
}

// ChainStatus is the last observed oracle state for one chain.
type ChainStatus struct {
	BaseFeeGwei uint64    `json:"base_fee_gwei"`
	LastError   string    `json:"last_error,omitempty"`
	PolledAt    time.Time `json:"polled_at"`
}

// BroadcastFunc is invoked after a successful broadcast has been recorded,
// e.g. to mirror the record into the history archive.
type BroadcastFunc func(ctx context.Context, item domain.QueueItem, fingerprint string, rec domain.BroadcastRecord)

type feeResult struct {
	fee uint64
	err error
}

// Scheduler owns the poll loop and holds exclusive mutation rights over the
// queue and ledger.
type Scheduler struct {
	cfg    Config
	queue  *queue.PersistentQueue
	ledger *ledger.BroadcastLedger
	log    *slog.Logger

	running atomic.Bool
	stop    chan struct{}

	mu          sync.Mutex
	itemStates  map[string]ItemState
	chainStatus map[string]ChainStatus
	queueDirty  bool
	ledgerDirty bool

	onBroadcast   BroadcastFunc
	stateCallback func(fingerprint string, t Transition)
}

// New creates a scheduler. At least one oracle must be configured.
func New(cfg Config, q *queue.PersistentQueue, l *ledger.BroadcastLedger) (*Scheduler, error) {
	if len(cfg.Oracles) == 0 {
		return nil, ErrNoChains
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.SaveEvery == 0 {
		cfg.SaveEvery = 20
	}

	return &Scheduler{
		cfg:         cfg,
		queue:       q,
		ledger:      l,
		log:         slog.Default(),
		stop:        make(chan struct{}),
		itemStates:  make(map[string]ItemState),
		chainStatus: make(map[string]ChainStatus),
	}, nil
}

// SetBroadcastCallback registers a callback for successful broadcasts.
func (s *Scheduler) SetBroadcastCallback(fn BroadcastFunc) {
	s.onBroadcast = fn
}

// SetStateChangeCallback registers a callback for item state transitions.
func (s *Scheduler) SetStateChangeCallback(fn func(fingerprint string, t Transition)) {
	s.stateCallback = fn
}

// Reconcile enforces the resume-safety contract at startup: any queued item
// whose fingerprint is already in the ledger was broadcast before a crash and
// must leave the queue without a second broadcast.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	removed := 0
	for _, item := range s.queue.Items() {
		fp := item.Fingerprint()
		if !s.ledger.Contains(fp) {
			continue
		}
		if s.queue.Remove(fp) {
			removed++
			s.log.Warn("Item already broadcast, removing from queue",
				"chain", item.Chain, "label", item.Label, "fingerprint", fp)
		}
	}

	if removed == 0 {
		return nil
	}
	if err := s.queue.Save(ctx); err != nil {
		// Memory state is already consistent; the save is retried on the
		// next write opportunity.
		s.markQueueDirty(err)
	}
	s.log.Info("Reconciled queue against ledger", "removed", removed, "pending", s.queue.Len())
	return nil
}

// Start runs the poll loop until the context is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	if err := s.Reconcile(ctx); err != nil {
		return err
	}

	s.log.Info("Scheduler started",
		"chains", len(s.cfg.Oracles),
		"pending", s.queue.Len(),
		"max_fee_gwei", s.cfg.MaxFeeGwei,
		"poll_interval", s.cfg.PollInterval)

	for {
		s.RunCycle(ctx)

		timer := time.NewTimer(s.sleepInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop stops the poll loop.
func (s *Scheduler) Stop() error {
	if s.running.Load() {
		close(s.stop)
	}
	return nil
}

// Status returns the last observed per-chain oracle state.
func (s *Scheduler) Status() map[string]ChainStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ChainStatus, len(s.chainStatus))
	for k, v := range s.chainStatus {
		out[k] = v
	}
	return out
}

// PendingItems returns the current queue snapshot.
func (s *Scheduler) PendingItems() []domain.QueueItem {
	return s.queue.Items()
}

// RunCycle executes one full pass over the queue. The snapshot is taken at
// cycle start, so mutation during the cycle does not affect iteration.
func (s *Scheduler) RunCycle(ctx context.Context) {
	snapshot := s.queue.Items()

	if len(snapshot) > 0 {
		fees := s.prefetchBaseFees(ctx, snapshot)
		for _, item := range snapshot {
			s.evaluate(ctx, item, fees)
		}
	}

	s.flushDirty(ctx)
	metrics.CyclesTotal.Inc()
	metrics.QueueDepth.Set(float64(s.queue.Len()))
}

// prefetchBaseFees queries each distinct chain's oracle once per cycle, in
// parallel. Per-item decisions depend only on their own chain's fee, so this
// preserves the per-item transition order.
func (s *Scheduler) prefetchBaseFees(ctx context.Context, snapshot []domain.QueueItem) map[string]feeResult {
	chains := make(map[string]chain.Oracle)
	for _, item := range snapshot {
		if oracle, ok := s.cfg.Oracles[item.Chain]; ok {
			chains[item.Chain] = oracle
		}
	}

	var mu sync.Mutex
	fees := make(map[string]feeResult, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	for name, oracle := range chains {
		g.Go(func() error {
			fee, err := oracle.BaseFeeGwei(gctx)

			mu.Lock()
			fees[name] = feeResult{fee: fee, err: err}
			mu.Unlock()

			status := ChainStatus{PolledAt: time.Now()}
			if err != nil {
				status.LastError = err.Error()
			} else {
				status.BaseFeeGwei = fee
				metrics.BaseFeeGwei.WithLabelValues(name).Set(float64(fee))
			}
			s.mu.Lock()
			s.chainStatus[name] = status
			s.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return fees
}

// evaluate runs the firing state machine for one item.
func (s *Scheduler) evaluate(ctx context.Context, item domain.QueueItem, fees map[string]feeResult) {
	fp := item.Fingerprint()
	s.setState(fp, StateEvaluating, "cycle start")

	// Resume-safety: a fingerprint already in the ledger means this exact
	// transaction was broadcast before a crash interrupted the queue save.
	if s.ledger.Contains(fp) {
		s.queue.Remove(fp)
		s.markQueueDirty(nil)
		s.setState(fp, StateSkipped, "already in ledger")
		s.clearState(fp)
		s.log.Warn("Skipping already-broadcast item",
			"chain", item.Chain, "label", item.Label, "decision", DecisionSkip)
		metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionSkip)).Inc()
		return
	}

	oracle, ok := s.cfg.Oracles[item.Chain]
	if !ok {
		// A missing chain is a configuration problem, not a retryable
		// condition: no attempts increment, item stays pending.
		s.setState(fp, StatePending, "unknown chain")
		s.log.Warn("Item references unknown chain, leaving pending",
			"chain", item.Chain, "label", item.Label, "decision", DecisionErr)
		metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionErr)).Inc()
		return
	}

	res, polled := fees[item.Chain]
	if !polled || res.err != nil {
		s.setState(fp, StatePending, "oracle unavailable")
		s.log.Error("Base fee query failed, leaving item pending",
			"chain", item.Chain, "label", item.Label, "decision", DecisionErr, "error", res.err)
		metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionErr)).Inc()
		return
	}

	// Both ceilings must hold: the global bound can only be tightened per
	// item, never loosened.
	if res.fee <= item.MinBaseFeeGwei && res.fee <= s.cfg.MaxFeeGwei {
		s.fire(ctx, item, fp, oracle, res.fee)
		return
	}

	s.setState(fp, StateWaiting, "fee above threshold")
	s.setState(fp, StatePending, "next cycle")
	s.log.Info("Base fee above threshold",
		"chain", item.Chain, "label", item.Label,
		"basefee_gwei", res.fee, "min_gwei", item.MinBaseFeeGwei, "max_gwei", s.cfg.MaxFeeGwei,
		"decision", DecisionWait)
	metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionWait)).Inc()

	attempts := s.queue.IncrementAttempts(fp)
	if attempts > 0 && attempts%s.cfg.SaveEvery == 0 {
		s.saveQueue(ctx)
	}
}

// fire broadcasts the item and, on success, records it in the ledger and
// removes it from the queue, persisting in that order.
func (s *Scheduler) fire(ctx context.Context, item domain.QueueItem, fp string, oracle chain.Oracle, fee uint64) {
	txHash, err := oracle.BroadcastRaw(ctx, item.RawTx)
	if err != nil {
		// Not accepted by the network: safe to retry next cycle.
		s.setState(fp, StatePending, "broadcast rejected")
		s.log.Error("Broadcast failed, leaving item pending",
			"chain", item.Chain, "label", item.Label, "decision", DecisionErr, "error", err)
		metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionErr)).Inc()
		return
	}

	rec := domain.BroadcastRecord{TxHash: txHash, BroadcastAt: time.Now().Unix()}
	s.ledger.Record(fp, rec.TxHash, rec.BroadcastAt)
	s.queue.Remove(fp)
	s.setState(fp, StateFired, "broadcast succeeded")
	s.clearState(fp)

	s.log.Info("Broadcast succeeded",
		"chain", item.Chain, "label", item.Label,
		"tx_hash", txHash, "basefee_gwei", fee, "decision", DecisionFire)
	metrics.EvaluationsTotal.WithLabelValues(item.Chain, string(DecisionFire)).Inc()
	metrics.BroadcastsTotal.WithLabelValues(item.Chain).Inc()

	// Ledger before queue: a crash between the two writes leaves the item
	// both recorded and queued, which Reconcile resolves without a second
	// broadcast. The reverse order could lose the broadcast proof.
	s.saveLedger(ctx)
	s.saveQueue(ctx)

	if s.onBroadcast != nil {
		s.onBroadcast(ctx, item, fp, rec)
	}
}

// saveLedger persists the ledger, tracking failure for retry.
func (s *Scheduler) saveLedger(ctx context.Context) {
	err := s.ledger.Save(ctx)

	s.mu.Lock()
	s.ledgerDirty = err != nil
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Failed to save ledger, will retry", "error", err)
		metrics.PersistenceErrorsTotal.WithLabelValues("ledger").Inc()
	}
}

// saveQueue persists the queue. While the ledger has unsaved records the
// queue document must not be rewritten: persisting an item's removal without
// its broadcast proof would drop the proof on restart.
func (s *Scheduler) saveQueue(ctx context.Context) {
	s.mu.Lock()
	blocked := s.ledgerDirty
	s.mu.Unlock()

	if blocked {
		s.saveLedger(ctx)
		s.mu.Lock()
		blocked = s.ledgerDirty
		s.mu.Unlock()
		if blocked {
			s.markQueueDirty(nil)
			return
		}
	}

	err := s.queue.Save(ctx)

	s.mu.Lock()
	s.queueDirty = err != nil
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Failed to save queue, will retry", "error", err)
		metrics.PersistenceErrorsTotal.WithLabelValues("queue").Inc()
	}
}

// flushDirty retries failed saves at the end of a cycle.
func (s *Scheduler) flushDirty(ctx context.Context) {
	s.mu.Lock()
	ledgerDirty, queueDirty := s.ledgerDirty, s.queueDirty
	s.mu.Unlock()

	if ledgerDirty {
		s.saveLedger(ctx)
	}
	if queueDirty {
		s.saveQueue(ctx)
	}
}

func (s *Scheduler) markQueueDirty(err error) {
	s.mu.Lock()
	s.queueDirty = true
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Failed to save queue, will retry", "error", err)
		metrics.PersistenceErrorsTotal.WithLabelValues("queue").Inc()
	}
}

// setState records an item transition and notifies the callback. Invalid
// transitions are programming errors and reported, not enforced at runtime.
func (s *Scheduler) setState(fp string, to ItemState, reason string) {
	s.mu.Lock()
	from, ok := s.itemStates[fp]
	if !ok {
		from = StatePending
	}
	s.itemStates[fp] = to
	s.mu.Unlock()

	if from == to {
		return
	}
	t := NewTransition(from, to, reason)
	if !t.IsValid() {
		s.log.Warn("Invalid item state transition", "from", from, "to", to, "reason", reason)
	}
	if s.stateCallback != nil {
		s.stateCallback(fp, t)
	}
}

func (s *Scheduler) clearState(fp string) {
	s.mu.Lock()
	delete(s.itemStates, fp)
	s.mu.Unlock()
}

// sleepInterval returns the poll interval plus random jitter.
func (s *Scheduler) sleepInterval() time.Duration {
	interval := s.cfg.PollInterval
	if s.cfg.Jitter > 0 {
		interval += rand.N(s.cfg.Jitter + 1)
	}
	return interval
}
