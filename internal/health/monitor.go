package health

import (
	"time"

	"github.com/vietddude/sentinel/internal/core/scheduler"
)

// SchedulerStatus exposes what the monitor needs from the scheduler.
type SchedulerStatus interface {
	Status() map[string]scheduler.ChainStatus
}

// Counter reports a collection size.
type Counter interface {
	Len() int
}

// Monitor aggregates health status from the scheduler, queue and ledger.
type Monitor struct {
	chains    []string
	sched     SchedulerStatus
	queue     Counter
	ledger    Counter
	staleness time.Duration
}

// NewMonitor creates a health monitor. staleness is how old a chain's last
// successful poll may be before the chain counts as degraded; it should be a
// small multiple of the poll interval.
func NewMonitor(
	chains []string,
	sched SchedulerStatus,
	queue Counter,
	ledger Counter,
	staleness time.Duration,
) *Monitor {
	return &Monitor{
		chains:    chains,
		sched:     sched,
		queue:     queue,
		ledger:    ledger,
		staleness: staleness,
	}
}

// CheckHealth builds the current health report.
func (m *Monitor) CheckHealth() Report {
	statuses := m.sched.Status()

	report := Report{
		SystemStatus: StatusHealthy,
		QueueDepth:   m.queue.Len(),
		LedgerSize:   m.ledger.Len(),
		Chains:       make(map[string]ChainHealth, len(m.chains)),
	}

	degraded := 0
	for _, name := range m.chains {
		ch := ChainHealth{Chain: name, Status: StatusHealthy}

		status, polled := statuses[name]
		switch {
		case !polled:
			// Not polled yet; healthy until proven otherwise.
		case status.LastError != "":
			ch.Status = StatusDegraded
			ch.LastError = status.LastError
			degraded++
		case m.staleness > 0 && time.Since(status.PolledAt) > m.staleness:
			ch.Status = StatusDegraded
			degraded++
		}

		if polled {
			ch.BaseFeeGwei = status.BaseFeeGwei
			ch.PolledAgo = time.Since(status.PolledAt).Round(time.Second).String()
		}
		report.Chains[name] = ch
	}

	// Worst case wins: all chains down means the sentinel cannot fire
	// anything at all.
	if degraded > 0 {
		report.SystemStatus = StatusDegraded
		if degraded == len(m.chains) {
			report.SystemStatus = StatusCritical
		}
	}

	return report
}
