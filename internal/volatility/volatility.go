// Package volatility tracks short-term price movement in bin-step units for
// the dynamic fee.
package volatility

import (
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
)

// BasisPointMax is the scale of reduction factors and of one bin in the accumulator.
const BasisPointMax = 10_000

// Params configure the tracker. Enabled=false disables the variable fee.
type Params struct {
	Enabled                  bool   `json:"enabled"`
	BinStep                  uint64 `json:"binStep"`
	FilterPeriod             uint64 `json:"filterPeriod"`
	DecayPeriod              uint64 `json:"decayPeriod"`
	ReductionFactor          uint64 `json:"reductionFactor"`
	MaxVolatilityAccumulator uint64 `json:"maxVolatilityAccumulator"`
	VariableFeeControl       uint64 `json:"variableFeeControl"`
}

// State is the mutable half of the dynamic fee.
type State struct {
	LastUpdateTimestamp   uint64
	SqrtPriceReference    *uint256.Int
	VolatilityAccumulator *uint256.Int
	VolatilityReference   *uint256.Int
}

// NewState returns a tracker anchored at sqrtPrice.
func NewState(sqrtPrice *uint256.Int, now uint64) State {
	return State{
		LastUpdateTimestamp:   now,
		SqrtPriceReference:    sqrtPrice.Clone(),
		VolatilityAccumulator: new(uint256.Int),
		VolatilityReference:   new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		LastUpdateTimestamp:   s.LastUpdateTimestamp,
		SqrtPriceReference:    cloneOrZero(s.SqrtPriceReference),
		VolatilityAccumulator: cloneOrZero(s.VolatilityAccumulator),
		VolatilityReference:   cloneOrZero(s.VolatilityReference),
	}
}

func cloneOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}

// UpdateReferences must run before the trade moves the price. It is a no-op
// until filterPeriod has elapsed since the last update.
func (s *State) UpdateReferences(p Params, now uint64, sqrtPrice *uint256.Int) {
	if !p.Enabled || now < s.LastUpdateTimestamp {
		return
	}
	elapsed := now - s.LastUpdateTimestamp
	if elapsed < p.FilterPeriod {
		return
	}

	s.SqrtPriceReference = sqrtPrice.Clone()
	s.LastUpdateTimestamp = now
	if elapsed < p.DecayPeriod {
		ref := new(uint256.Int).Mul(cloneOrZero(s.VolatilityAccumulator), uint256.NewInt(p.ReductionFactor))
		s.VolatilityReference = ref.Div(ref, uint256.NewInt(BasisPointMax))
		return
	}
	s.VolatilityReference = new(uint256.Int)
}

// UpdateVolatilityAccumulator runs after the trade and returns the bin delta
// between the reference price and newSqrtPrice. The accumulator clamps at
// MaxVolatilityAccumulator and never fails.
func (s *State) UpdateVolatilityAccumulator(p Params, newSqrtPrice *uint256.Int) *uint256.Int {
	if !p.Enabled {
		return new(uint256.Int)
	}
	delta := BinDelta(p.BinStep, cloneOrZero(s.SqrtPriceReference), newSqrtPrice)

	limit := uint256.NewInt(p.MaxVolatilityAccumulator)
	acc, overflow := new(uint256.Int).MulOverflow(delta, uint256.NewInt(BasisPointMax))
	if !overflow {
		acc, overflow = acc.AddOverflow(acc, cloneOrZero(s.VolatilityReference))
	}
	if overflow || acc.Gt(limit) {
		acc = limit
	}
	s.VolatilityAccumulator = acc
	return delta
}

// MarkUpdated stamps the tracker after a trade that moved at least one bin.
func (s *State) MarkUpdated(now uint64) {
	s.LastUpdateTimestamp = now
}

// BinDelta returns 2*floor((max*2^96/min - 2^96) / binStepQ96) where
// binStepQ96 = binStep*2^96/10000. Degenerate inputs count as zero movement.
func BinDelta(binStep uint64, a, b *uint256.Int) *uint256.Int {
	if binStep == 0 || a.IsZero() || b.IsZero() {
		return new(uint256.Int)
	}
	upper, lower := a, b
	if lower.Gt(upper) {
		upper, lower = lower, upper
	}
	ratio, err := fm.MulDiv(upper, fm.Q96, lower)
	if err != nil {
		return new(uint256.Int).SetAllOne()
	}
	ratio.Sub(ratio, fm.Q96)

	binStepQ96 := new(uint256.Int).Mul(uint256.NewInt(binStep), fm.Q96)
	binStepQ96.Div(binStepQ96, uint256.NewInt(BasisPointMax))

	delta := ratio.Div(ratio, binStepQ96)
	if delta.BitLen() >= 255 {
		return delta.SetAllOne()
	}
	return delta.Lsh(delta, 1)
}
