// Package clock supplies the time source pools read: the current point, the
// maximum vesting duration and per-pool activation points.
package clock

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Clock is the only source of time for a pool.
type Clock interface {
	CurrentPoint() uint64
	MaxVestingDuration() uint64
	ActivationPoint(pool common.Address) uint64
}

// activations holds per-pool activation points.
type activations struct {
	mu     sync.RWMutex
	points map[common.Address]uint64
}

func (a *activations) ActivationPoint(pool common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.points[pool]
}

// SetActivation records when pool starts trading.
func (a *activations) SetActivation(pool common.Address, point uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.points == nil {
		a.points = make(map[common.Address]uint64)
	}
	a.points[pool] = point
}

// Manual is a clock advanced by hand. Used by tests and scripted simulations.
type Manual struct {
	activations

	mu         sync.RWMutex
	now        uint64
	maxVesting uint64
}

// NewManual returns a clock at now.
func NewManual(now, maxVesting uint64) *Manual {
	return &Manual{now: now, maxVesting: maxVesting}
}

func (m *Manual) CurrentPoint() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *Manual) MaxVestingDuration() uint64 {
	return m.maxVesting
}

// Set moves the clock to now. Time never goes backwards.
func (m *Manual) Set(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now > m.now {
		m.now = now
	}
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
}

var (
	_ Clock = (*Manual)(nil)
	_ Clock = (*Chain)(nil)
)
