package vesting

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/internal/poolerr"
)

const t0 = 10_000

func scheduleC() *Schedule {
	return New(Params{
		CliffPoint:           t0,
		PeriodFrequency:      100,
		CliffUnlockLiquidity: uint256.NewInt(50),
		LiquidityPerPeriod:   uint256.NewInt(10),
		NumberOfPeriod:       4,
	})
}

func TestMaxUnlocked(t *testing.T) {
	s := scheduleC()

	cases := map[uint64]uint64{
		t0 - 1:   0,
		t0:       50,
		t0 + 99:  50,
		t0 + 250: 70,
		t0 + 400: 90,
		t0 + 500: 90,
	}
	for now, want := range cases {
		got, err := s.MaxUnlocked(now)
		require.NoError(t, err)
		require.Equal(t, want, got.Uint64(), "now=%d", now)
	}
}

func TestReleaseConsistency(t *testing.T) {
	s := scheduleC()
	total, err := s.TotalLockAmount()
	require.NoError(t, err)
	require.Equal(t, uint64(90), total.Uint64())

	for now := uint64(t0 - 50); now <= t0+600; now += 37 {
		before := s.TotalReleasedLiquidity.Clone()
		release, err := s.NewRelease(now)
		require.NoError(t, err)

		maxUnlocked, err := s.MaxUnlocked(now)
		require.NoError(t, err)
		require.Equal(t, maxUnlocked, new(uint256.Int).Add(release, before))

		require.NoError(t, s.Release(release))
		require.True(t, s.TotalReleasedLiquidity.Cmp(total) <= 0)
	}
	require.True(t, s.Done())
}

func TestReleaseBeyondTotal(t *testing.T) {
	s := scheduleC()
	err := s.Release(uint256.NewInt(91))
	require.ErrorIs(t, err, poolerr.ErrInsufficientVested)
	require.True(t, s.TotalReleasedLiquidity.IsZero())
}

func TestCliffOnly(t *testing.T) {
	s := New(Params{CliffPoint: 5, CliffUnlockLiquidity: uint256.NewInt(42)})
	got, err := s.MaxUnlocked(5)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got.Uint64())
	require.Equal(t, uint64(5), s.EndPoint())
}

func TestValidate(t *testing.T) {
	good := scheduleC().Params
	require.NoError(t, good.Validate(t0, 1_000))
	require.NoError(t, good.Validate(t0-100, 500))

	err := good.Validate(t0+1, 1_000)
	require.ErrorIs(t, err, poolerr.ErrInvalidVesting)
	require.Equal(t, poolerr.KindValidation, poolerr.KindOf(err))

	require.ErrorIs(t, good.Validate(t0-100, 499), poolerr.ErrInvalidVesting)

	noFreq := good
	noFreq.PeriodFrequency = 0
	require.ErrorIs(t, noFreq.Validate(t0, 1_000), poolerr.ErrInvalidVesting)

	empty := Params{CliffPoint: t0}
	require.ErrorIs(t, empty.Validate(t0, 1_000), poolerr.ErrInvalidVesting)
}

func TestCloneIsDeep(t *testing.T) {
	s := scheduleC()
	c := s.Clone()
	c.TotalReleasedLiquidity.SetUint64(7)
	c.CliffUnlockLiquidity.SetUint64(1)
	require.True(t, s.TotalReleasedLiquidity.IsZero())
	require.Equal(t, uint64(50), s.CliffUnlockLiquidity.Uint64())
}
