package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
)

// InitializeReward configures reward channel index.
func (p *Pool) InitializeReward(index int, rewardToken, funder common.Address, duration uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.st.ledger.InitializeReward(index, rewardToken, funder, duration); err != nil {
		return fmt.Errorf("initialize reward: %w", err)
	}
	p.version++
	p.logger.Info("reward initialized",
		zap.Int("index", index),
		zap.String("token", rewardToken.Hex()),
		zap.Uint64("duration", duration),
	)
	return nil
}

// Reward returns a copy of channel index.
func (p *Pool) Reward(index int) (ledger.RewardChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= ledger.NumRewards {
		return ledger.RewardChannel{}, poolerr.ErrInvalidRewardIndex
	}
	return p.st.ledger.Rewards[index].Clone(), nil
}

// FundReward pulls amount from the funder and restarts the emission period.
func (p *Pool) FundReward(ctx context.Context, funder common.Address, index int, amount *uint256.Int) error {
	if isZero(amount) {
		return fmt.Errorf("fund reward: %w", poolerr.ErrInvalidAmount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return fmt.Errorf("fund reward: %w", err)
	}
	ch, err := tx.Reward(index)
	if err != nil {
		return fmt.Errorf("fund reward: %w", err)
	}
	if funder != ch.Funder {
		return poolerr.ErrUnauthorized
	}
	if err := tx.FundReward(index, amount); err != nil {
		return fmt.Errorf("fund reward: %w", err)
	}
	reserve, err := fm.Add(p.st.rewardReserves[index], amount)
	if err != nil {
		return err
	}
	if err := p.pull(ctx, ch.Token, funder, amount); err != nil {
		return fmt.Errorf("fund reward: %w", err)
	}

	tx.Commit()
	p.st.rewardReserves[index] = reserve
	p.version++

	funded, _ := tx.Reward(index)
	p.emit(now, model.EventRewardFunded, model.RewardFundedData{
		Funder:      funder.Hex(),
		RewardIndex: uint8(index),
		Amount:      amount.Dec(),
		DurationEnd: funded.DurationEnd,
	})
	return nil
}

// WithdrawIneligibleReward returns emissions that accrued while the pool had
// no liquidity to the funder.
func (p *Pool) WithdrawIneligibleReward(ctx context.Context, funder common.Address, index int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, fmt.Errorf("withdraw ineligible reward: %w", err)
	}
	ch, err := tx.Reward(index)
	if err != nil {
		return nil, fmt.Errorf("withdraw ineligible reward: %w", err)
	}
	if funder != ch.Funder {
		return nil, poolerr.ErrUnauthorized
	}
	amount, err := tx.WithdrawIneligible(index)
	if err != nil {
		return nil, fmt.Errorf("withdraw ineligible reward: %w", err)
	}
	reserve, err := debit(p.st.rewardReserves[index], amount, poolerr.ErrInsufficientReward)
	if err != nil {
		return nil, err
	}
	if err := p.payout(ctx, transfer{token: ch.Token, to: funder, amount: amount}); err != nil {
		return nil, fmt.Errorf("withdraw ineligible reward: %w", err)
	}

	tx.Commit()
	p.st.rewardReserves[index] = reserve
	p.version++
	return amount, nil
}

// UpdateRewardDuration changes the emission length of an idle channel.
func (p *Pool) UpdateRewardDuration(index int, duration uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.st.ledger.UpdateRewardDuration(index, duration, p.clock.CurrentPoint()); err != nil {
		return fmt.Errorf("update reward duration: %w", err)
	}
	p.version++
	return nil
}

// UpdateRewardFunder replaces the funder of channel index.
func (p *Pool) UpdateRewardFunder(index int, funder common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.st.ledger.UpdateRewardFunder(index, funder); err != nil {
		return fmt.Errorf("update reward funder: %w", err)
	}
	p.version++
	return nil
}
