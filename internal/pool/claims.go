package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/model"
	"poolcore/internal/poolerr"
)

// ClaimPositionFee pays owner's settled LP fees.
func (p *Pool) ClaimPositionFee(ctx context.Context, owner common.Address) (amountA, amountB *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, nil, fmt.Errorf("claim position fee: %w", err)
	}
	amountA, amountB, err = tx.ClaimFees(owner)
	if err != nil {
		return nil, nil, fmt.Errorf("claim position fee: %w", err)
	}
	reserveA, err := debit(p.st.reserveA, amountA, poolerr.ErrInsufficientFee)
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := debit(p.st.reserveB, amountB, poolerr.ErrInsufficientFee)
	if err != nil {
		return nil, nil, err
	}
	err = p.payout(ctx,
		transfer{token: p.cfg.TokenA, to: owner, amount: amountA},
		transfer{token: p.cfg.TokenB, to: owner, amount: amountB},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("claim position fee: %w", err)
	}

	tx.Commit()
	p.st.reserveA, p.st.reserveB = reserveA, reserveB
	p.version++

	p.emit(now, model.EventFeesClaimed, model.FeesClaimedData{
		Owner:   owner.Hex(),
		AmountA: amountA.Dec(),
		AmountB: amountB.Dec(),
	})
	p.emitReserveSync(now)
	return amountA, amountB, nil
}

// ClaimReward pays owner's settled emissions from channel index.
func (p *Pool) ClaimReward(ctx context.Context, owner common.Address, index int) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, fmt.Errorf("claim reward: %w", err)
	}
	amount, err := tx.ClaimReward(owner, index)
	if err != nil {
		return nil, fmt.Errorf("claim reward: %w", err)
	}
	ch, err := tx.Reward(index)
	if err != nil {
		return nil, err
	}
	reserve, err := debit(p.st.rewardReserves[index], amount, poolerr.ErrInsufficientReward)
	if err != nil {
		return nil, err
	}
	if err := p.payout(ctx, transfer{token: ch.Token, to: owner, amount: amount}); err != nil {
		return nil, fmt.Errorf("claim reward: %w", err)
	}

	tx.Commit()
	p.st.rewardReserves[index] = reserve
	p.version++

	p.emit(now, model.EventRewardsClaimed, model.RewardsClaimedData{
		Owner:       owner.Hex(),
		RewardIndex: uint8(index),
		Token:       ch.Token.Hex(),
		Amount:      amount.Dec(),
	})
	return amount, nil
}

// ClaimProtocolFee sends accrued protocol fees to the treasury.
func (p *Pool) ClaimProtocolFee(ctx context.Context) (amountA, amountB *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Treasury == (common.Address{}) {
		return nil, nil, poolerr.ErrZeroAddress
	}
	amountA, amountB = p.st.protocolAFee.Clone(), p.st.protocolBFee.Clone()
	if err := p.claimFees(ctx, p.cfg.Treasury, amountA, amountB); err != nil {
		return nil, nil, fmt.Errorf("claim protocol fee: %w", err)
	}
	p.st.protocolAFee, p.st.protocolBFee = new(uint256.Int), new(uint256.Int)
	p.logger.Info("protocol fee claimed", zap.String("amount_a", amountA.Dec()), zap.String("amount_b", amountB.Dec()))
	return amountA, amountB, nil
}

// ClaimPartnerFee sends up to maxA / maxB of the partner share to the partner.
// Nil maximums take everything.
func (p *Pool) ClaimPartnerFee(ctx context.Context, caller common.Address, maxA, maxB *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Partner == (common.Address{}) || caller != p.cfg.Partner {
		return nil, nil, poolerr.ErrUnauthorized
	}
	amountA, amountB = capAt(p.st.partnerAFee, maxA), capAt(p.st.partnerBFee, maxB)
	if err := p.claimFees(ctx, p.cfg.Partner, amountA, amountB); err != nil {
		return nil, nil, fmt.Errorf("claim partner fee: %w", err)
	}
	p.st.partnerAFee = new(uint256.Int).Sub(p.st.partnerAFee, amountA)
	p.st.partnerBFee = new(uint256.Int).Sub(p.st.partnerBFee, amountB)
	return amountA, amountB, nil
}

func capAt(x, max *uint256.Int) *uint256.Int {
	if max != nil && max.Lt(x) {
		return max.Clone()
	}
	return x.Clone()
}

// claimFees pays out of the reserves and bumps the version. Callers adjust
// their own fee counters after it succeeds.
func (p *Pool) claimFees(ctx context.Context, to common.Address, amountA, amountB *uint256.Int) error {
	reserveA, err := debit(p.st.reserveA, amountA, poolerr.ErrInsufficientReserve)
	if err != nil {
		return err
	}
	reserveB, err := debit(p.st.reserveB, amountB, poolerr.ErrInsufficientReserve)
	if err != nil {
		return err
	}
	err = p.payout(ctx,
		transfer{token: p.cfg.TokenA, to: to, amount: amountA},
		transfer{token: p.cfg.TokenB, to: to, amount: amountB},
	)
	if err != nil {
		return err
	}
	now := p.clock.CurrentPoint()
	p.st.reserveA, p.st.reserveB = reserveA, reserveB
	p.version++
	p.emitReserveSync(now)
	return nil
}
