// Package rpc provides JSON-RPC connectivity for chain oracles: HTTP
// providers with health tracking, plus a client that retries with backoff
// and fails over across a chain's provider list.
package rpc

import (
	"context"
	"time"
)

// Provider is the core interface for a single RPC endpoint.
type Provider interface {
	// Call makes a single JSON-RPC call.
	Call(ctx context.Context, method string, params []any) (any, error)

	// GetName returns the provider's name.
	GetName() string

	// GetHealth returns the provider's health status.
	GetHealth() HealthStatus

	// Close cleans up resources.
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
}
