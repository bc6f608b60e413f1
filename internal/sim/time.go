package sim

import (
	"context"

	"poolcore/internal/clock"
)

// TimeSource positions the pool clock before each op.
type TimeSource interface {
	Tick(ctx context.Context, at, advance uint64) (uint64, error)
}

// ManualTime drives a clock.Manual from the script.
type ManualTime struct {
	Clock *clock.Manual
}

func (m ManualTime) Tick(_ context.Context, at, advance uint64) (uint64, error) {
	if at > 0 {
		m.Clock.Set(at)
	}
	if advance > 0 {
		m.Clock.Advance(advance)
	}
	return m.Clock.CurrentPoint(), nil
}

// ChainTime follows the chain head; script points are ignored.
type ChainTime struct {
	Clock *clock.Chain
}

func (c ChainTime) Tick(ctx context.Context, _, _ uint64) (uint64, error) {
	return c.Clock.Refresh(ctx)
}
