package rpc

import (
	"context"
	"fmt"
)

// Client fans a call across a chain's ordered provider list: each provider
// gets its retry budget, then the next one is tried.
type Client struct {
	chain     string
	providers []Provider
	retry     RetryConfig
}

// NewClient creates a client over the given providers.
func NewClient(chain string, providers []Provider) *Client {
	return &Client{
		chain:     chain,
		providers: providers,
		retry:     DefaultRetryConfig,
	}
}

// Call executes a JSON-RPC call with retry and failover.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no providers for chain %s", c.chain)
	}

	var lastErr error
	for _, p := range c.providers {
		result, err := CallWithRetry(ctx, p, method, params, c.retry)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ClassifyError(err) == ActionFatal {
			return nil, fmt.Errorf("fatal error from provider %s: %w", p.GetName(), err)
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Providers returns the client's provider list, for health reporting.
func (c *Client) Providers() []Provider {
	return c.providers
}

// Close closes all providers.
func (c *Client) Close() error {
	for _, p := range c.providers {
		_ = p.Close()
	}
	return nil
}
