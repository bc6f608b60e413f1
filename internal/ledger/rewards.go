package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
)

const (
	MinRewardDuration = 1
	MaxRewardDuration = 31_536_000
)

// RewardChannel emits one token linearly over a funded duration. Rate is
// Q128.128 tokens per second; PerTokenStored is Q128 tokens per liquidity.
// Emissions of seconds without liquidity are priced at the rate in force at
// the time and held in IneligibleAmount for the funder.
type RewardChannel struct {
	Token                           common.Address
	Funder                          common.Address
	Duration                        uint64
	DurationEnd                     uint64
	Rate                            *uint256.Int
	PerTokenStored                  *uint256.Int
	LastUpdateTime                  uint64
	CumulativeEmptyLiquiditySeconds uint64
	IneligibleAmount                *uint256.Int
	Initialized                     bool
}

func newRewardChannel() RewardChannel {
	return RewardChannel{Rate: new(uint256.Int), PerTokenStored: new(uint256.Int), IneligibleAmount: new(uint256.Int)}
}

// Clone returns a deep copy.
func (c RewardChannel) Clone() RewardChannel {
	out := c
	out.Rate = c.Rate.Clone()
	out.PerTokenStored = c.PerTokenStored.Clone()
	out.IneligibleAmount = cloneOrZero(c.IneligibleAmount)
	return out
}

// update accrues emissions up to min(now, DurationEnd). Emissions of seconds
// with no liquidity go to IneligibleAmount at the current rate, before any
// refunding can change it.
func (c *RewardChannel) update(now uint64, liquidity *uint256.Int) error {
	if !c.Initialized {
		return nil
	}
	applicable := now
	if c.DurationEnd < applicable {
		applicable = c.DurationEnd
	}
	if applicable <= c.LastUpdateTime {
		return nil
	}
	elapsed := applicable - c.LastUpdateTime

	if liquidity.IsZero() {
		emitted, err := fm.MulShr(c.Rate, uint256.NewInt(elapsed), 128)
		if err != nil {
			return err
		}
		ineligible, err := fm.Add(cloneOrZero(c.IneligibleAmount), emitted)
		if err != nil {
			return err
		}
		c.IneligibleAmount = ineligible
		c.CumulativeEmptyLiquiditySeconds += elapsed
	} else {
		emitted, err := fm.Mul(c.Rate, uint256.NewInt(elapsed))
		if err != nil {
			return err
		}
		growth := emitted.Div(emitted, liquidity)
		stored, err := fm.Add(c.PerTokenStored, growth)
		if err != nil {
			return err
		}
		c.PerTokenStored = stored
	}
	c.LastUpdateTime = applicable
	return nil
}

func validDuration(d uint64) bool {
	return d >= MinRewardDuration && d <= MaxRewardDuration
}

func (l *Ledger) channel(index int) (*RewardChannel, error) {
	if index < 0 || index >= NumRewards {
		return nil, poolerr.ErrInvalidRewardIndex
	}
	return &l.Rewards[index], nil
}

// UpdateRewards brings both channels to now.
func (l *Ledger) UpdateRewards(now uint64) error {
	return l.run(now, func(*Tx) error { return nil })
}

// InitializeReward configures channel index.
func (l *Ledger) InitializeReward(index int, token, funder common.Address, duration uint64) error {
	ch, err := l.channel(index)
	if err != nil {
		return err
	}
	if ch.Initialized {
		return poolerr.ErrRewardInitialized
	}
	if token == (common.Address{}) || funder == (common.Address{}) {
		return poolerr.ErrZeroAddress
	}
	if !validDuration(duration) {
		return fmt.Errorf("duration %d: %w", duration, poolerr.ErrInvalidRewardConfig)
	}
	*ch = newRewardChannel()
	ch.Token = token
	ch.Funder = funder
	ch.Duration = duration
	ch.Initialized = true
	return nil
}

func (tx *Tx) channel(index int) (*RewardChannel, error) {
	if index < 0 || index >= NumRewards {
		return nil, poolerr.ErrInvalidRewardIndex
	}
	if !tx.rewards[index].Initialized {
		return nil, poolerr.ErrRewardUninitialized
	}
	return &tx.rewards[index], nil
}

// Reward returns the staged channel index.
func (tx *Tx) Reward(index int) (RewardChannel, error) {
	ch, err := tx.channel(index)
	if err != nil {
		return RewardChannel{}, err
	}
	return ch.Clone(), nil
}

// FundReward adds amount to channel index and restarts its period at the
// transaction point. Undistributed emissions of a running period roll into
// the new rate.
func (tx *Tx) FundReward(index int, amount *uint256.Int) error {
	ch, err := tx.channel(index)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return poolerr.ErrInvalidAmount
	}
	now := tx.now

	total := amount.Clone()
	if now < ch.DurationEnd {
		leftover, err := fm.MulShr(ch.Rate, uint256.NewInt(ch.DurationEnd-now), 128)
		if err != nil {
			return err
		}
		if total, err = fm.Add(total, leftover); err != nil {
			return err
		}
	}
	rate, err := fm.ShlDiv(total, 128, uint256.NewInt(ch.Duration))
	if err != nil {
		return fmt.Errorf("reward rate: %w", err)
	}
	ch.Rate = rate
	ch.LastUpdateTime = now
	ch.DurationEnd = now + ch.Duration
	return nil
}

// WithdrawIneligible returns emissions that accrued while the pool had no
// liquidity. Only allowed after the period ended.
func (tx *Tx) WithdrawIneligible(index int) (*uint256.Int, error) {
	ch, err := tx.channel(index)
	if err != nil {
		return nil, err
	}
	if tx.now < ch.DurationEnd {
		return nil, poolerr.ErrRewardPeriodActive
	}
	amount := cloneOrZero(ch.IneligibleAmount)
	if amount.IsZero() {
		return nil, poolerr.ErrNothingToWithdraw
	}
	ch.IneligibleAmount = new(uint256.Int)
	ch.CumulativeEmptyLiquiditySeconds = 0
	return amount, nil
}

// FundReward adds amount to channel index at now.
func (l *Ledger) FundReward(index int, amount *uint256.Int, now uint64) error {
	return l.run(now, func(tx *Tx) error { return tx.FundReward(index, amount) })
}

// WithdrawIneligible returns emissions accrued with no liquidity in the pool.
func (l *Ledger) WithdrawIneligible(index int, now uint64) (amount *uint256.Int, err error) {
	err = l.run(now, func(tx *Tx) error {
		amount, err = tx.WithdrawIneligible(index)
		return err
	})
	return amount, err
}

// UpdateRewardDuration changes the emission length once the period ended.
func (l *Ledger) UpdateRewardDuration(index int, duration, now uint64) error {
	ch, err := l.channel(index)
	if err != nil {
		return err
	}
	if !ch.Initialized {
		return poolerr.ErrRewardUninitialized
	}
	if now < ch.DurationEnd {
		return poolerr.ErrRewardPeriodActive
	}
	if !validDuration(duration) || duration == ch.Duration {
		return fmt.Errorf("duration %d: %w", duration, poolerr.ErrInvalidRewardConfig)
	}
	ch.Duration = duration
	return nil
}

// UpdateRewardFunder replaces the account allowed to fund channel index.
func (l *Ledger) UpdateRewardFunder(index int, funder common.Address) error {
	ch, err := l.channel(index)
	if err != nil {
		return err
	}
	if !ch.Initialized {
		return poolerr.ErrRewardUninitialized
	}
	if funder == (common.Address{}) {
		return poolerr.ErrZeroAddress
	}
	if funder == ch.Funder {
		return fmt.Errorf("funder unchanged: %w", poolerr.ErrInvalidRewardConfig)
	}
	ch.Funder = funder
	return nil
}

func cloneOrZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x.Clone()
}
