// Package vesting holds cliff-plus-periodic unlock schedules for locked liquidity.
package vesting

import (
	"fmt"

	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
)

// Params describe a lock request.
type Params struct {
	CliffPoint           uint64       `json:"cliffPoint"`
	PeriodFrequency      uint64       `json:"periodFrequency"`
	CliffUnlockLiquidity *uint256.Int `json:"cliffUnlockLiquidity"`
	LiquidityPerPeriod   *uint256.Int `json:"liquidityPerPeriod"`
	NumberOfPeriod       uint64       `json:"numberOfPeriod"`
}

// Schedule is an active lock.
type Schedule struct {
	Params
	TotalReleasedLiquidity *uint256.Int `json:"totalReleasedLiquidity"`
}

func zeroIfNil(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// TotalLockAmount returns cliffUnlock + perPeriod*numberOfPeriod.
func (p Params) TotalLockAmount() (*uint256.Int, error) {
	periodic, err := fm.Mul(zeroIfNil(p.LiquidityPerPeriod), uint256.NewInt(p.NumberOfPeriod))
	if err != nil {
		return nil, err
	}
	return fm.AddU128(zeroIfNil(p.CliffUnlockLiquidity), periodic)
}

// EndPoint is the first point at which everything is unlocked.
func (p Params) EndPoint() uint64 {
	return p.CliffPoint + p.PeriodFrequency*p.NumberOfPeriod
}

// Validate checks lock parameters at now against the maximum lock duration.
func (p Params) Validate(now, maxDuration uint64) error {
	if p.CliffPoint < now {
		return fmt.Errorf("cliff point %d before now %d: %w", p.CliffPoint, now, poolerr.ErrInvalidVesting)
	}
	periodic := !zeroIfNil(p.LiquidityPerPeriod).IsZero() || p.NumberOfPeriod > 0 || p.PeriodFrequency > 0
	if periodic && (p.NumberOfPeriod == 0 || p.PeriodFrequency == 0) {
		return fmt.Errorf("periodic unlock needs frequency and periods: %w", poolerr.ErrInvalidVesting)
	}

	span, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(p.PeriodFrequency), uint256.NewInt(p.NumberOfPeriod))
	if !overflow {
		span, overflow = span.AddOverflow(span, uint256.NewInt(p.CliffPoint-now))
	}
	if overflow || span.Gt(uint256.NewInt(maxDuration)) {
		return fmt.Errorf("lock duration exceeds %d: %w", maxDuration, poolerr.ErrInvalidVesting)
	}

	total, err := p.TotalLockAmount()
	if err != nil {
		return fmt.Errorf("total lock amount: %w", err)
	}
	if total.IsZero() {
		return fmt.Errorf("empty lock: %w", poolerr.ErrInvalidVesting)
	}
	return nil
}

// New starts a schedule with nothing released.
func New(p Params) *Schedule {
	return &Schedule{
		Params: Params{
			CliffPoint:           p.CliffPoint,
			PeriodFrequency:      p.PeriodFrequency,
			CliffUnlockLiquidity: zeroIfNil(p.CliffUnlockLiquidity).Clone(),
			LiquidityPerPeriod:   zeroIfNil(p.LiquidityPerPeriod).Clone(),
			NumberOfPeriod:       p.NumberOfPeriod,
		},
		TotalReleasedLiquidity: new(uint256.Int),
	}
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := New(s.Params)
	out.TotalReleasedLiquidity = zeroIfNil(s.TotalReleasedLiquidity).Clone()
	return out
}

// MaxUnlocked returns the cumulative amount unlocked at now.
func (s *Schedule) MaxUnlocked(now uint64) (*uint256.Int, error) {
	if now < s.CliffPoint {
		return new(uint256.Int), nil
	}
	cliff := zeroIfNil(s.CliffUnlockLiquidity)
	if s.PeriodFrequency == 0 {
		return cliff.Clone(), nil
	}
	passed := (now - s.CliffPoint) / s.PeriodFrequency
	if passed > s.NumberOfPeriod {
		passed = s.NumberOfPeriod
	}
	periodic, err := fm.Mul(zeroIfNil(s.LiquidityPerPeriod), uint256.NewInt(passed))
	if err != nil {
		return nil, err
	}
	return fm.AddU128(cliff, periodic)
}

// NewRelease returns how much can be released at now.
func (s *Schedule) NewRelease(now uint64) (*uint256.Int, error) {
	unlocked, err := s.MaxUnlocked(now)
	if err != nil {
		return nil, err
	}
	return fm.Sub(unlocked, zeroIfNil(s.TotalReleasedLiquidity))
}

// Release books amount as released.
func (s *Schedule) Release(amount *uint256.Int) error {
	total, err := s.TotalLockAmount()
	if err != nil {
		return err
	}
	released, err := fm.Add(zeroIfNil(s.TotalReleasedLiquidity), amount)
	if err != nil {
		return err
	}
	if released.Gt(total) {
		return poolerr.ErrInsufficientVested
	}
	s.TotalReleasedLiquidity = released
	return nil
}

// Done reports whether the schedule is fully released.
func (s *Schedule) Done() bool {
	total, err := s.TotalLockAmount()
	if err != nil {
		return false
	}
	return zeroIfNil(s.TotalReleasedLiquidity).Eq(total)
}
