package volatility

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	fm "poolcore/internal/fullmath"
)

func testParams() Params {
	return Params{
		Enabled:                  true,
		BinStep:                  100,
		FilterPeriod:             10,
		DecayPeriod:              120,
		ReductionFactor:          5000,
		MaxVolatilityAccumulator: 350_000,
		VariableFeeControl:       1000,
	}
}

func pricePct(pct uint64) *uint256.Int {
	p := new(uint256.Int).Mul(fm.Q96, uint256.NewInt(pct))
	return p.Div(p, uint256.NewInt(100))
}

func TestBinDeltaOneStep(t *testing.T) {
	delta := BinDelta(100, fm.Q96, pricePct(101))
	require.Equal(t, uint64(2), delta.Uint64())

	// symmetric in argument order
	require.Equal(t, delta, BinDelta(100, pricePct(101), fm.Q96))
	require.True(t, BinDelta(100, fm.Q96, fm.Q96).IsZero())
	require.True(t, BinDelta(0, fm.Q96, pricePct(300)).IsZero())
}

func TestAccumulatorClamps(t *testing.T) {
	p := testParams()
	s := NewState(fm.Q96, 0)

	delta := s.UpdateVolatilityAccumulator(p, pricePct(101))
	require.Equal(t, uint64(2), delta.Uint64())
	require.Equal(t, uint64(20_000), s.VolatilityAccumulator.Uint64())

	s.UpdateVolatilityAccumulator(p, pricePct(300))
	require.Equal(t, p.MaxVolatilityAccumulator, s.VolatilityAccumulator.Uint64())
}

func TestUpdateReferencesFilterAndDecay(t *testing.T) {
	p := testParams()
	s := NewState(fm.Q96, 100)
	s.VolatilityAccumulator = uint256.NewInt(40_000)

	// inside the filter period nothing changes
	s.UpdateReferences(p, 105, pricePct(150))
	require.Equal(t, uint64(100), s.LastUpdateTimestamp)
	require.Equal(t, fm.Q96, s.SqrtPriceReference)

	// within decay period the reference keeps half of the accumulator
	s.UpdateReferences(p, 150, pricePct(150))
	require.Equal(t, uint64(150), s.LastUpdateTimestamp)
	require.Equal(t, pricePct(150), s.SqrtPriceReference)
	require.Equal(t, uint64(20_000), s.VolatilityReference.Uint64())

	// past the decay period the reference resets
	s.UpdateReferences(p, 1000, pricePct(160))
	require.True(t, s.VolatilityReference.IsZero())
}

func TestDisabledTrackerIsInert(t *testing.T) {
	s := NewState(fm.Q96, 0)
	delta := s.UpdateVolatilityAccumulator(Params{}, pricePct(200))
	require.True(t, delta.IsZero())
	require.True(t, s.VolatilityAccumulator.IsZero())

	clone := s.Clone()
	clone.VolatilityAccumulator.SetUint64(9)
	require.True(t, s.VolatilityAccumulator.IsZero())
}
