// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for one configured chain.
type ChainHealth struct {
	Chain       string       `json:"chain"`
	Status      SystemStatus `json:"status"`
	BaseFeeGwei uint64       `json:"base_fee_gwei"`
	LastError   string       `json:"last_error,omitempty"`
	PolledAgo   string       `json:"polled_ago,omitempty"`
}

// Report contains the full health report.
type Report struct {
	SystemStatus SystemStatus           `json:"system_status"`
	QueueDepth   int                    `json:"queue_depth"`
	LedgerSize   int                    `json:"ledger_size"`
	Chains       map[string]ChainHealth `json:"chains"`
}
