package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimestampSource reports the latest block timestamp.
type TimestampSource interface {
	LatestTimestamp(ctx context.Context) (uint64, error)
}

// ChainConfig tunes a Chain clock.
type ChainConfig struct {
	MaxVestingDuration uint64
	MaxRetries         int
	RetryBackoff       time.Duration
}

// Chain follows the block time of a node. The value only changes on Refresh.
type Chain struct {
	activations

	cfg    ChainConfig
	source TimestampSource
	logger *zap.Logger

	mu  sync.RWMutex
	now uint64
}

// NewChain builds a Chain clock. Call Refresh before use.
func NewChain(cfg ChainConfig, source TimestampSource, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{cfg: cfg, source: source, logger: logger}
}

func (c *Chain) CurrentPoint() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Chain) MaxVestingDuration() uint64 {
	return c.cfg.MaxVestingDuration
}

// Refresh reads the head timestamp with retries.
func (c *Chain) Refresh(ctx context.Context) (uint64, error) {
	if c.source == nil {
		return 0, fmt.Errorf("timestamp source is nil")
	}
	var ts uint64
	err := withRetry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = c.source.LatestTimestamp(ctx)
		if err != nil {
			c.logger.Warn("latest timestamp fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("refresh chain clock: %w", err)
	}

	c.mu.Lock()
	if ts > c.now {
		c.now = ts
	}
	now := c.now
	c.mu.Unlock()
	return now, nil
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
