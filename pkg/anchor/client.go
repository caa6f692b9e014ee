package anchor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Client submits roots to a Registry with a submission throttle. Ledger
// writes cost gas; the limiter spaces them out without the core imposing
// any retry policy.
type Client struct {
	registry Registry
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient creates a submission client. interval is the minimum spacing
// between anchor transactions; zero disables throttling.
func NewClient(registry Registry, interval time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Client{
		registry: registry,
		limiter:  limiter,
		logger:   logger.With("component", "anchor-client"),
	}
}

// Submit anchors root, waiting for the throttle first. A single failed
// submission is reported, not retried.
func (c *Client) Submit(ctx context.Context, root string) (*Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("anchor: throttle wait: %w", err)
	}

	rec, err := c.registry.Anchor(ctx, root)
	if err != nil {
		c.logger.WarnContext(ctx, "anchor submission failed", "root", root, "error", err)
		return nil, err
	}

	c.logger.InfoContext(ctx, "root anchored",
		"root", rec.Root,
		"tx_id", rec.TxID,
		"block_height", rec.BlockHeight,
		"chain_id", rec.ChainID,
	)
	return rec, nil
}
