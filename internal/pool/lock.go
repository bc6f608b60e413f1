package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
	"poolcore/internal/vesting"
)

// LockPosition moves unlocked liquidity into a vesting schedule.
func (p *Pool) LockPosition(owner common.Address, params vesting.Params) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	if err := params.Validate(now, p.clock.MaxVestingDuration()); err != nil {
		return nil, fmt.Errorf("lock position: %w", err)
	}
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, fmt.Errorf("lock position: %w", err)
	}
	amount, err := tx.Lock(owner, params)
	if err != nil {
		return nil, fmt.Errorf("lock position: %w", err)
	}
	tx.Commit()
	p.version++

	p.emit(now, model.EventPositionLocked, model.PositionLockedData{
		Owner:    owner.Hex(),
		Amount:   amount.Dec(),
		EndPoint: params.EndPoint(),
	})
	p.logger.Debug("lock position", zap.String("owner", owner.Hex()), zap.String("amount", amount.Dec()))
	return amount, nil
}

// PermanentLockPosition locks unlocked liquidity forever.
func (p *Pool) PermanentLockPosition(owner common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isZero(amount) {
		return fmt.Errorf("permanent lock: %w", poolerr.ErrInvalidAmount)
	}
	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return fmt.Errorf("permanent lock: %w", err)
	}
	if err := tx.PermanentLock(owner, amount); err != nil {
		return fmt.Errorf("permanent lock: %w", err)
	}
	tx.Commit()
	p.version++

	p.emit(now, model.EventPositionLocked, model.PositionLockedData{
		Owner:     owner.Hex(),
		Permanent: true,
		Amount:    amount.Dec(),
	})
	return nil
}

// RefreshVesting releases whatever the owner's schedule has unlocked so far.
func (p *Pool) RefreshVesting(owner common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, fmt.Errorf("refresh vesting: %w", err)
	}
	released, err := tx.Release(owner)
	if err != nil {
		return nil, fmt.Errorf("refresh vesting: %w", err)
	}
	tx.Commit()
	p.version++
	p.logger.Debug("vesting released", zap.String("owner", owner.Hex()), zap.String("amount", released.Dec()))
	return released, nil
}

// SplitPosition moves a share of owner's position to dst.
func (p *Pool) SplitPosition(owner, dst common.Address, pct ledger.SplitPercentages) (ledger.SplitAmounts, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.CurrentPoint()
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return ledger.SplitAmounts{}, fmt.Errorf("split position: %w", err)
	}
	moved, err := tx.Split(owner, dst, pct)
	if err != nil {
		return ledger.SplitAmounts{}, fmt.Errorf("split position: %w", err)
	}
	tx.Commit()
	p.version++

	if tx.Created(dst) {
		p.emit(now, model.EventPositionCreated, model.PositionCreatedData{Owner: dst.Hex()})
	}
	p.emit(now, model.EventPositionSplit, model.PositionSplitData{
		From:      owner.Hex(),
		To:        dst.Hex(),
		Unlocked:  moved.Unlocked.Dec(),
		Permanent: moved.Permanent.Dec(),
		FeeA:      moved.FeeA.Dec(),
		FeeB:      moved.FeeB.Dec(),
		Reward0:   moved.Rewards[0].Dec(),
		Reward1:   moved.Rewards[1].Dec(),
	})
	return moved, nil
}
