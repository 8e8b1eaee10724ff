// Package chain defines the per-chain oracle capability the scheduler
// depends on. Any concrete transport implements Oracle behind this boundary.
package chain

import (
	"context"
	"errors"
)

var (
	// ErrOracleUnavailable wraps any network or RPC failure while reading
	// the current base fee. Always transient: the item stays pending.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrBroadcastRejected wraps any submission failure (duplicate nonce,
	// underpriced, network error). Always transient: safe to retry next
	// cycle because the transaction was not accepted.
	ErrBroadcastRejected = errors.New("broadcast rejected")
)

// Oracle exposes the two calls the scheduler needs per chain. The oracle is
// responsible for its own call timeout and must fail fast rather than block
// a poll cycle.
type Oracle interface {
	// BaseFeeGwei returns the current base fee in gwei.
	BaseFeeGwei(ctx context.Context) (uint64, error)

	// BroadcastRaw submits a hex-encoded signed transaction and returns the
	// transaction hash.
	BroadcastRaw(ctx context.Context, rawTxHex string) (string, error)
}
