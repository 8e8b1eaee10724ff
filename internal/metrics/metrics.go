package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts completed poll cycles.
	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_cycles_total",
			Help: "Total number of completed poll cycles",
		},
	)

	// EvaluationsTotal counts per-item decisions by outcome.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_evaluations_total",
			Help: "Total number of item evaluations",
		},
		[]string{"chain", "decision"},
	)

	// BroadcastsTotal counts successful broadcasts per chain.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_broadcasts_total",
			Help: "Total number of successful broadcasts",
		},
		[]string{"chain"},
	)

	// PersistenceErrorsTotal counts failed document saves.
	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_persistence_errors_total",
			Help: "Total number of failed queue/ledger saves",
		},
		[]string{"document"},
	)

	// BaseFeeGwei tracks the last observed base fee per chain.
	BaseFeeGwei = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_base_fee_gwei",
			Help: "Last observed base fee in gwei",
		},
		[]string{"chain"},
	)

	// QueueDepth tracks the number of pending items.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_queue_depth",
			Help: "Number of pending items in the queue",
		},
	)

	// IntakeItemsTotal counts items accepted from the runtime intake queue.
	IntakeItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_intake_items_total",
			Help: "Total number of items accepted from the intake queue",
		},
		[]string{"chain"},
	)
)
