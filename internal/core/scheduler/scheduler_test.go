package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/core/ledger"
	"github.com/vietddude/sentinel/internal/core/queue"
	"github.com/vietddude/sentinel/internal/infra/chain"
	"github.com/vietddude/sentinel/internal/infra/storage/memory"
)

// =============================================================================
// Mocks
// =============================================================================

type mockOracle struct {
	mu             sync.Mutex
	baseFee        uint64
	feeErr         error
	txHash         string
	broadcastErr   error
	broadcastCount int
	lastRawTx      string
}

func (m *mockOracle) BaseFeeGwei(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feeErr != nil {
		return 0, m.feeErr
	}
	return m.baseFee, nil
}

func (m *mockOracle) BroadcastRaw(ctx context.Context, rawTxHex string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broadcastErr != nil {
		return "", m.broadcastErr
	}
	m.broadcastCount++
	m.lastRawTx = rawTxHex
	return m.txHash, nil
}

func (m *mockOracle) broadcasts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcastCount
}

// failingQueueRepo wraps the memory repo and fails saves on demand.
type failingQueueRepo struct {
	*memory.QueueRepo
	failSaves bool
}

func (r *failingQueueRepo) Save(ctx context.Context, items []domain.QueueItem) error {
	if r.failSaves {
		return errors.New("disk full")
	}
	return r.QueueRepo.Save(ctx, items)
}

type failingLedgerRepo struct {
	*memory.LedgerRepo
	failSaves bool
}

func (r *failingLedgerRepo) Save(ctx context.Context, records map[string]domain.BroadcastRecord) error {
	if r.failSaves {
		return errors.New("disk full")
	}
	return r.LedgerRepo.Save(ctx, records)
}

// =============================================================================
// Helpers
// =============================================================================

func testItem(chainName string, minGwei uint64) domain.QueueItem {
	return domain.QueueItem{
		Chain:          chainName,
		RawTx:          "0x02f86b0180843b9aca00",
		Label:          "treasury-topup",
		MinBaseFeeGwei: minGwei,
	}
}

func newTestScheduler(
	t *testing.T,
	cfg Config,
	items ...domain.QueueItem,
) (*Scheduler, *queue.PersistentQueue, *ledger.BroadcastLedger) {
	t.Helper()

	q := queue.New(memory.NewQueueRepo())
	for _, item := range items {
		q.Append(item)
	}
	l := ledger.New(memory.NewLedgerRepo())

	s, err := New(cfg, q, l)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, q, l
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_NoChains(t *testing.T) {
	q := queue.New(memory.NewQueueRepo())
	l := ledger.New(memory.NewLedgerRepo())

	_, err := New(Config{MaxFeeGwei: 18}, q, l)
	if !errors.Is(err, ErrNoChains) {
		t.Fatalf("expected ErrNoChains, got %v", err)
	}
}

// =============================================================================
// Fire condition
// =============================================================================

func TestFireCondition(t *testing.T) {
	tests := []struct {
		name       string
		minGwei    uint64
		maxFeeGwei uint64
		baseFee    uint64
		wantFire   bool
	}{
		{"fee above item threshold", 14, 18, 15, false},
		{"fee at item threshold", 14, 18, 14, true},
		{"fee below both thresholds", 14, 18, 10, true},
		{"global ceiling cannot be loosened", 20, 18, 19, false},
		{"fee at global ceiling", 20, 18, 18, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &mockOracle{baseFee: tt.baseFee, txHash: "0xhash"}
			s, q, l := newTestScheduler(t, Config{
				Oracles:    map[string]chain.Oracle{"ethereum": oracle},
				MaxFeeGwei: tt.maxFeeGwei,
			}, testItem("ethereum", tt.minGwei))

			s.RunCycle(context.Background())

			if tt.wantFire {
				if oracle.broadcasts() != 1 {
					t.Errorf("expected 1 broadcast, got %d", oracle.broadcasts())
				}
				if q.Len() != 0 {
					t.Errorf("expected empty queue after fire, got %d items", q.Len())
				}
				if l.Len() != 1 {
					t.Errorf("expected 1 ledger record, got %d", l.Len())
				}
			} else {
				if oracle.broadcasts() != 0 {
					t.Errorf("expected no broadcast, got %d", oracle.broadcasts())
				}
				if q.Len() != 1 {
					t.Errorf("expected item to stay pending, queue has %d items", q.Len())
				}
				if l.Len() != 0 {
					t.Errorf("expected empty ledger, got %d records", l.Len())
				}
			}
		})
	}
}

func TestFire_RecordsLedgerEntry(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xdeadbeef"}
	item := testItem("ethereum", 14)
	s, _, l := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	s.RunCycle(context.Background())

	rec, ok := l.Get(item.Fingerprint())
	if !ok {
		t.Fatal("expected ledger record for fired item")
	}
	if rec.TxHash != "0xdeadbeef" {
		t.Errorf("expected tx hash 0xdeadbeef, got %s", rec.TxHash)
	}
	if rec.BroadcastAt == 0 {
		t.Error("expected broadcast timestamp to be set")
	}
}

// =============================================================================
// Duplicate broadcast prevention
// =============================================================================

func TestNoDuplicateBroadcast(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	item := testItem("ethereum", 14)
	s, q, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	ctx := context.Background()
	s.RunCycle(ctx)

	if oracle.broadcasts() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", oracle.broadcasts())
	}

	// Simulate the same item reappearing in the queue (e.g. crash between
	// ledger write and queue save, then restart).
	q.Append(item)
	s.RunCycle(ctx)

	if oracle.broadcasts() != 1 {
		t.Errorf("expected broadcast count to stay 1, got %d", oracle.broadcasts())
	}
	if q.Len() != 0 {
		t.Errorf("expected duplicate to be removed without broadcast, queue has %d", q.Len())
	}
}

func TestReconcile_RemovesAlreadyBroadcastItems(t *testing.T) {
	oracle := &mockOracle{baseFee: 100, txHash: "0xhash"}
	item := testItem("ethereum", 14)
	other := domain.QueueItem{Chain: "ethereum", RawTx: "0xother", Label: "other", MinBaseFeeGwei: 5}

	s, q, l := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item, other)

	// Crash-after-broadcast scenario: ledger has the fingerprint, queue
	// still holds the item.
	l.Record(item.Fingerprint(), "0xold", 1700000000)

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if q.Len() != 1 {
		t.Fatalf("expected 1 item after reconcile, got %d", q.Len())
	}
	if q.Items()[0].Label != "other" {
		t.Errorf("expected surviving item 'other', got %s", q.Items()[0].Label)
	}
	if oracle.broadcasts() != 0 {
		t.Errorf("reconcile must never broadcast, got %d", oracle.broadcasts())
	}
}

// =============================================================================
// Transient failures
// =============================================================================

func TestOracleError_LeavesItemPending(t *testing.T) {
	oracle := &mockOracle{feeErr: chain.ErrOracleUnavailable}
	item := testItem("ethereum", 14)
	s, q, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	s.RunCycle(context.Background())

	if q.Len() != 1 {
		t.Fatalf("expected item to stay pending, queue has %d", q.Len())
	}
	if got := q.Items()[0].Attempts; got != 0 {
		t.Errorf("oracle error must not increment attempts, got %d", got)
	}
}

func TestUnknownChain_LeavesItemPending(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	item := testItem("arbitrum", 14) // not configured
	s, q, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	s.RunCycle(context.Background())

	if q.Len() != 1 {
		t.Fatalf("expected item to stay pending, queue has %d", q.Len())
	}
	if got := q.Items()[0].Attempts; got != 0 {
		t.Errorf("unknown chain must not increment attempts, got %d", got)
	}
	if oracle.broadcasts() != 0 {
		t.Errorf("expected no broadcast, got %d", oracle.broadcasts())
	}
}

func TestBroadcastFailure_LeavesItemPending(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, broadcastErr: chain.ErrBroadcastRejected}
	item := testItem("ethereum", 14)
	s, q, l := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	s.RunCycle(context.Background())

	if q.Len() != 1 {
		t.Fatalf("expected item to stay pending, queue has %d", q.Len())
	}
	if l.Len() != 0 {
		t.Errorf("rejected broadcast must not be recorded, ledger has %d", l.Len())
	}
}

// =============================================================================
// Attempts and persistence cadence
// =============================================================================

func TestAttempts_IncrementOnPriceMiss(t *testing.T) {
	oracle := &mockOracle{baseFee: 50}
	item := testItem("ethereum", 14)
	s, q, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.RunCycle(ctx)
	}

	if got := q.Items()[0].Attempts; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestQueueSave_CoarseCadence(t *testing.T) {
	oracle := &mockOracle{baseFee: 50}
	repo := memory.NewQueueRepo()
	q := queue.New(repo)
	q.Append(testItem("ethereum", 14))
	l := ledger.New(memory.NewLedgerRepo())

	s, err := New(Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
		SaveEvery:  5,
	}, q, l)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s.RunCycle(ctx)
	}
	persisted, _ := repo.Load(ctx)
	if len(persisted) != 0 {
		t.Fatalf("expected no save before the Nth attempt, document has %d items", len(persisted))
	}

	s.RunCycle(ctx) // 5th attempt triggers the save
	persisted, _ = repo.Load(ctx)
	if len(persisted) != 1 {
		t.Fatalf("expected queue persisted on the Nth attempt, got %d items", len(persisted))
	}
	if persisted[0].Attempts != 5 {
		t.Errorf("expected persisted attempts 5, got %d", persisted[0].Attempts)
	}
}

// =============================================================================
// Persistence failures and write ordering
// =============================================================================

func TestFire_PersistsLedgerBeforeQueue(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	item := testItem("ethereum", 14)

	qRepo := &failingQueueRepo{QueueRepo: memory.NewQueueRepo()}
	lRepo := &failingLedgerRepo{LedgerRepo: memory.NewLedgerRepo(), failSaves: true}

	q := queue.New(qRepo)
	q.Append(item)
	_ = q.Save(context.Background())
	l := ledger.New(lRepo)

	s, err := New(Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, q, l)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	s.RunCycle(ctx)

	if oracle.broadcasts() != 1 {
		t.Fatalf("expected broadcast, got %d", oracle.broadcasts())
	}

	// While the ledger save keeps failing, the queue document must still
	// contain the item: persisting its removal without the broadcast proof
	// would lose the proof on restart.
	persisted, _ := qRepo.QueueRepo.Load(ctx)
	if len(persisted) != 1 {
		t.Fatalf("queue document rewritten before ledger was saved: %d items", len(persisted))
	}

	// Once the ledger save recovers, the next cycle flushes both.
	lRepo.failSaves = false
	s.RunCycle(ctx)

	records, _ := lRepo.LedgerRepo.Load(ctx)
	if len(records) != 1 {
		t.Fatalf("expected ledger persisted after recovery, got %d records", len(records))
	}
	persisted, _ = qRepo.QueueRepo.Load(ctx)
	if len(persisted) != 0 {
		t.Errorf("expected queue document emptied after recovery, got %d items", len(persisted))
	}
}

func TestQueueSaveFailure_KeepsMemoryState(t *testing.T) {
	oracle := &mockOracle{baseFee: 50}
	qRepo := &failingQueueRepo{QueueRepo: memory.NewQueueRepo(), failSaves: true}
	q := queue.New(qRepo)
	q.Append(testItem("ethereum", 14))
	l := ledger.New(memory.NewLedgerRepo())

	s, err := New(Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
		SaveEvery:  1,
	}, q, l)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.RunCycle(context.Background())

	// The save failed but the loop keeps operating on memory.
	if q.Len() != 1 {
		t.Errorf("expected in-memory queue intact, got %d items", q.Len())
	}
	if got := q.Items()[0].Attempts; got != 1 {
		t.Errorf("expected attempts 1 despite save failure, got %d", got)
	}
}

// =============================================================================
// State transitions and evaluation order
// =============================================================================

func TestStateTransitions_OnFire(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	item := testItem("ethereum", 14)
	s, _, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	var transitions []Transition
	s.SetStateChangeCallback(func(fp string, tr Transition) {
		transitions = append(transitions, tr)
	})

	s.RunCycle(context.Background())

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].From != StatePending || transitions[0].To != StateEvaluating {
		t.Errorf("expected pending->evaluating, got %s->%s", transitions[0].From, transitions[0].To)
	}
	if transitions[1].To != StateFired {
		t.Errorf("expected terminal state fired, got %s", transitions[1].To)
	}
}

func TestStateTransitions_OnWait(t *testing.T) {
	oracle := &mockOracle{baseFee: 50}
	item := testItem("ethereum", 14)
	s, _, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	var transitions []Transition
	s.SetStateChangeCallback(func(fp string, tr Transition) {
		transitions = append(transitions, tr)
	})

	s.RunCycle(context.Background())

	// pending -> evaluating -> waiting -> pending
	want := []ItemState{StateEvaluating, StateWaiting, StatePending}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, to := range want {
		if transitions[i].To != to {
			t.Errorf("transition %d: expected to=%s, got %s", i, to, transitions[i].To)
		}
		if !transitions[i].IsValid() {
			t.Errorf("transition %d (%s->%s) not allowed by state machine",
				i, transitions[i].From, transitions[i].To)
		}
	}
}

func TestEvaluationOrder_IsQueueOrder(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	first := domain.QueueItem{Chain: "ethereum", RawTx: "0xaaa", Label: "first", MinBaseFeeGwei: 14}
	second := domain.QueueItem{Chain: "ethereum", RawTx: "0xbbb", Label: "second", MinBaseFeeGwei: 14}

	s, _, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, first, second)

	var order []string
	s.SetStateChangeCallback(func(fp string, tr Transition) {
		if tr.To == StateEvaluating {
			order = append(order, fp)
		}
	})

	s.RunCycle(context.Background())

	if len(order) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(order))
	}
	if order[0] != first.Fingerprint() || order[1] != second.Fingerprint() {
		t.Error("items evaluated out of queue order")
	}
}

// =============================================================================
// Broadcast callback
// =============================================================================

func TestBroadcastCallback_Invoked(t *testing.T) {
	oracle := &mockOracle{baseFee: 10, txHash: "0xhash"}
	item := testItem("ethereum", 14)
	s, _, _ := newTestScheduler(t, Config{
		Oracles:    map[string]chain.Oracle{"ethereum": oracle},
		MaxFeeGwei: 18,
	}, item)

	var gotFp string
	var gotRec domain.BroadcastRecord
	s.SetBroadcastCallback(func(ctx context.Context, it domain.QueueItem, fp string, rec domain.BroadcastRecord) {
		gotFp = fp
		gotRec = rec
	})

	s.RunCycle(context.Background())

	if gotFp != item.Fingerprint() {
		t.Errorf("expected callback fingerprint %s, got %s", item.Fingerprint(), gotFp)
	}
	if gotRec.TxHash != "0xhash" {
		t.Errorf("expected callback tx hash 0xhash, got %s", gotRec.TxHash)
	}
}
