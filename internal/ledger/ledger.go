// Package ledger keeps per-position liquidity and the fee and reward
// accumulators. Every mutation settles the touched positions first, then
// applies the change to staged copies and commits them together, so a failed
// call leaves the ledger untouched.
package ledger

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
	"poolcore/internal/vesting"
)

// Ledger is the accounting state of one pool. It is not safe for concurrent
// use; the pool lock serializes access.
type Ledger struct {
	Liquidity        *uint256.Int
	FeeAPerLiquidity *uint256.Int
	FeeBPerLiquidity *uint256.Int
	Rewards          [NumRewards]RewardChannel
	Positions        map[common.Address]*Position
}

// New returns an empty ledger.
func New() *Ledger {
	l := &Ledger{
		Liquidity:        new(uint256.Int),
		FeeAPerLiquidity: new(uint256.Int),
		FeeBPerLiquidity: new(uint256.Int),
		Positions:        make(map[common.Address]*Position),
	}
	for i := range l.Rewards {
		l.Rewards[i] = newRewardChannel()
	}
	return l
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		Liquidity:        l.Liquidity.Clone(),
		FeeAPerLiquidity: l.FeeAPerLiquidity.Clone(),
		FeeBPerLiquidity: l.FeeBPerLiquidity.Clone(),
		Positions:        make(map[common.Address]*Position, len(l.Positions)),
	}
	for i := range l.Rewards {
		out.Rewards[i] = l.Rewards[i].Clone()
	}
	for owner, pos := range l.Positions {
		out.Positions[owner] = pos.Clone()
	}
	return out
}

// Position returns a copy of owner's position.
func (l *Ledger) Position(owner common.Address) (*Position, bool) {
	pos, ok := l.Positions[owner]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// Owners returns position owners in a stable order.
func (l *Ledger) Owners() []common.Address {
	owners := make([]common.Address, 0, len(l.Positions))
	for owner := range l.Positions {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].Cmp(owners[j]) < 0
	})
	return owners
}

// FeeGrowth returns lpFee*2^128/liquidity, the accumulator increment for a fee.
func FeeGrowth(lpFee, liquidity *uint256.Int) (*uint256.Int, error) {
	if liquidity.IsZero() {
		return nil, poolerr.ErrZeroLiquidity
	}
	return fm.ShlDiv(lpFee, 128, liquidity)
}

// AddFeeGrowth bumps a fee accumulator. Accumulators only grow.
func (l *Ledger) AddFeeGrowth(tokenA bool, delta *uint256.Int) error {
	next, err := l.NextFeeGrowth(tokenA, delta)
	if err != nil {
		return err
	}
	l.SetFeeGrowth(tokenA, next)
	return nil
}

// NextFeeGrowth returns the accumulator value after adding delta without
// changing the ledger.
func (l *Ledger) NextFeeGrowth(tokenA bool, delta *uint256.Int) (*uint256.Int, error) {
	current := l.FeeBPerLiquidity
	if tokenA {
		current = l.FeeAPerLiquidity
	}
	next, err := fm.Add(current, delta)
	if err != nil {
		return nil, fmt.Errorf("fee accumulator: %w", err)
	}
	return next, nil
}

// SetFeeGrowth stores a value obtained from NextFeeGrowth.
func (l *Ledger) SetFeeGrowth(tokenA bool, value *uint256.Int) {
	if tokenA {
		l.FeeAPerLiquidity = value
		return
	}
	l.FeeBPerLiquidity = value
}

// Tx stages changes against a ledger. Reward channels are brought to the
// transaction point on Begin and touched positions are settled on first use.
// Nothing is visible until Commit; an abandoned Tx has no effect.
type Tx struct {
	l         *Ledger
	now       uint64
	rewards   [NumRewards]RewardChannel
	positions map[common.Address]*Position
	created   map[common.Address]bool
	liquidity *uint256.Int
}

// Begin starts a transaction at now.
func (l *Ledger) Begin(now uint64) (*Tx, error) {
	tx := &Tx{
		l:         l,
		now:       now,
		positions: make(map[common.Address]*Position),
		created:   make(map[common.Address]bool),
		liquidity: l.Liquidity.Clone(),
	}
	for i := range l.Rewards {
		ch := l.Rewards[i].Clone()
		if err := ch.update(now, l.Liquidity); err != nil {
			return nil, fmt.Errorf("update reward %d: %w", i, err)
		}
		tx.rewards[i] = ch
	}
	return tx, nil
}

// Commit publishes the staged state.
func (tx *Tx) Commit() {
	l := tx.l
	l.Rewards = tx.rewards
	l.Liquidity = tx.liquidity
	for owner, pos := range tx.positions {
		l.Positions[owner] = pos
	}
}

// Created reports whether the transaction opened owner's position.
func (tx *Tx) Created(owner common.Address) bool {
	return tx.created[owner]
}

// Liquidity is the staged pool liquidity.
func (tx *Tx) Liquidity() *uint256.Int {
	return tx.liquidity.Clone()
}

func (l *Ledger) run(now uint64, fn func(tx *Tx) error) error {
	tx, err := l.Begin(now)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.Commit()
	return nil
}

// position returns a settled staged copy of owner's position. create controls
// whether a missing position is opened.
func (tx *Tx) position(owner common.Address, create bool) (*Position, error) {
	if pos, ok := tx.positions[owner]; ok {
		return pos, nil
	}
	l := tx.l
	existing, ok := l.Positions[owner]
	var pos *Position
	switch {
	case ok:
		pos = existing.Clone()
	case create:
		pos = newPosition(l.FeeAPerLiquidity, l.FeeBPerLiquidity, tx.rewards)
		tx.created[owner] = true
	default:
		return nil, poolerr.ErrPositionNotFound
	}
	if err := l.settle(pos, tx.rewards); err != nil {
		return nil, fmt.Errorf("settle %s: %w", owner.Hex(), err)
	}
	tx.positions[owner] = pos
	return pos, nil
}

func (l *Ledger) settle(pos *Position, rewards [NumRewards]RewardChannel) error {
	liquidity := pos.Liquidity()

	var err error
	if pos.FeeAPending, err = accrue(pos.FeeAPending, liquidity, l.FeeAPerLiquidity, pos.FeeACheckpoint); err != nil {
		return err
	}
	pos.FeeACheckpoint = l.FeeAPerLiquidity.Clone()
	if pos.FeeBPending, err = accrue(pos.FeeBPending, liquidity, l.FeeBPerLiquidity, pos.FeeBCheckpoint); err != nil {
		return err
	}
	pos.FeeBCheckpoint = l.FeeBPerLiquidity.Clone()

	for i := range pos.Rewards {
		info := &pos.Rewards[i]
		if info.Pending, err = accrue(info.Pending, liquidity, rewards[i].PerTokenStored, info.Checkpoint); err != nil {
			return err
		}
		info.Checkpoint = rewards[i].PerTokenStored.Clone()
	}
	return nil
}

// accrue returns pending + liquidity*(global-checkpoint)/2^128.
func accrue(pending, liquidity, global, checkpoint *uint256.Int) (*uint256.Int, error) {
	delta, err := fm.Sub(global, checkpoint)
	if err != nil {
		return nil, err
	}
	owed, err := fm.MulShr(liquidity, delta, 128)
	if err != nil {
		return nil, err
	}
	return fm.Add(pending, owed)
}

// Settle brings owner's pending fees and rewards up to the transaction point.
func (tx *Tx) Settle(owner common.Address) error {
	_, err := tx.position(owner, false)
	return err
}

// AddUnlocked credits free liquidity, opening the position if needed.
func (tx *Tx) AddUnlocked(owner common.Address, amount *uint256.Int) error {
	pos, err := tx.position(owner, true)
	if err != nil {
		return err
	}
	unlocked, err := fm.AddU128(pos.Unlocked, amount)
	if err != nil {
		return fmt.Errorf("credit unlocked: %w", err)
	}
	liquidity, err := fm.AddU128(tx.liquidity, amount)
	if err != nil {
		return fmt.Errorf("credit pool liquidity: %w", err)
	}
	pos.Unlocked, tx.liquidity = unlocked, liquidity
	return nil
}

// RemoveUnlocked debits free liquidity.
func (tx *Tx) RemoveUnlocked(owner common.Address, amount *uint256.Int) error {
	pos, err := tx.position(owner, false)
	if err != nil {
		return err
	}
	if amount.Gt(pos.Unlocked) {
		return poolerr.ErrInsufficientUnlocked
	}
	liquidity, err := fm.Sub(tx.liquidity, amount)
	if err != nil {
		return fmt.Errorf("debit pool liquidity: %w", err)
	}
	pos.Unlocked = new(uint256.Int).Sub(pos.Unlocked, amount)
	tx.liquidity = liquidity
	return nil
}

// Lock moves the schedule's total from unlocked to vested. An owner has at
// most one running schedule.
func (tx *Tx) Lock(owner common.Address, params vesting.Params) (*uint256.Int, error) {
	total, err := params.TotalLockAmount()
	if err != nil {
		return nil, fmt.Errorf("lock amount: %w", err)
	}
	pos, err := tx.position(owner, false)
	if err != nil {
		return nil, err
	}
	if pos.HasActiveVesting() {
		return nil, poolerr.ErrVestingActive
	}
	if total.Gt(pos.Unlocked) {
		return nil, poolerr.ErrInsufficientUnlocked
	}
	vested, err := fm.AddU128(pos.Vested, total)
	if err != nil {
		return nil, err
	}
	pos.Unlocked = new(uint256.Int).Sub(pos.Unlocked, total)
	pos.Vested = vested
	pos.Vesting = vesting.New(params)
	return total, nil
}

// Release moves newly vested liquidity back to unlocked and drops the
// schedule once it is fully released.
func (tx *Tx) Release(owner common.Address) (*uint256.Int, error) {
	pos, err := tx.position(owner, false)
	if err != nil {
		return nil, err
	}
	if pos.Vesting == nil {
		return nil, poolerr.ErrNoVesting
	}
	amount, err := pos.Vesting.NewRelease(tx.now)
	if err != nil {
		return nil, fmt.Errorf("new release: %w", err)
	}
	if amount.IsZero() {
		return nil, poolerr.ErrVestingNotDue
	}
	if amount.Gt(pos.Vested) {
		return nil, poolerr.ErrInsufficientVested
	}
	unlocked, err := fm.AddU128(pos.Unlocked, amount)
	if err != nil {
		return nil, err
	}
	if err := pos.Vesting.Release(amount); err != nil {
		return nil, err
	}
	pos.Vested = new(uint256.Int).Sub(pos.Vested, amount)
	pos.Unlocked = unlocked
	if pos.Vesting.Done() {
		pos.Vesting = nil
	}
	return amount, nil
}

// PermanentLock moves unlocked liquidity into the permanent bucket for good.
func (tx *Tx) PermanentLock(owner common.Address, amount *uint256.Int) error {
	pos, err := tx.position(owner, false)
	if err != nil {
		return err
	}
	if amount.Gt(pos.Unlocked) {
		return poolerr.ErrInsufficientUnlocked
	}
	permanent, err := fm.AddU128(pos.Permanent, amount)
	if err != nil {
		return err
	}
	pos.Unlocked = new(uint256.Int).Sub(pos.Unlocked, amount)
	pos.Permanent = permanent
	return nil
}

// ClaimFees zeroes owner's pending fees and returns them.
func (tx *Tx) ClaimFees(owner common.Address) (amountA, amountB *uint256.Int, err error) {
	pos, err := tx.position(owner, false)
	if err != nil {
		return nil, nil, err
	}
	claimedA, err := fm.Add(pos.FeeAClaimed, pos.FeeAPending)
	if err != nil {
		return nil, nil, err
	}
	claimedB, err := fm.Add(pos.FeeBClaimed, pos.FeeBPending)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = pos.FeeAPending, pos.FeeBPending
	pos.FeeAClaimed, pos.FeeBClaimed = claimedA, claimedB
	pos.FeeAPending, pos.FeeBPending = new(uint256.Int), new(uint256.Int)
	return amountA, amountB, nil
}

// ClaimReward zeroes owner's pending reward on channel index and returns it.
func (tx *Tx) ClaimReward(owner common.Address, index int) (*uint256.Int, error) {
	if index < 0 || index >= NumRewards {
		return nil, poolerr.ErrInvalidRewardIndex
	}
	if !tx.rewards[index].Initialized {
		return nil, poolerr.ErrRewardUninitialized
	}
	pos, err := tx.position(owner, false)
	if err != nil {
		return nil, err
	}
	info := &pos.Rewards[index]
	claimed, err := fm.Add(info.TotalClaimed, info.Pending)
	if err != nil {
		return nil, err
	}
	amount := info.Pending
	info.TotalClaimed = claimed
	info.Pending = new(uint256.Int)
	return amount, nil
}

// Settle brings owner's pending fees and rewards up to now.
func (l *Ledger) Settle(owner common.Address, now uint64) error {
	return l.run(now, func(tx *Tx) error { return tx.Settle(owner) })
}

// AddUnlocked credits free liquidity, opening the position if needed.
func (l *Ledger) AddUnlocked(owner common.Address, amount *uint256.Int, now uint64) (created bool, err error) {
	err = l.run(now, func(tx *Tx) error {
		if err := tx.AddUnlocked(owner, amount); err != nil {
			return err
		}
		created = tx.Created(owner)
		return nil
	})
	return created, err
}

// RemoveUnlocked debits free liquidity.
func (l *Ledger) RemoveUnlocked(owner common.Address, amount *uint256.Int, now uint64) error {
	return l.run(now, func(tx *Tx) error { return tx.RemoveUnlocked(owner, amount) })
}

// Lock moves a vesting schedule's total from unlocked to vested.
func (l *Ledger) Lock(owner common.Address, params vesting.Params, now uint64) (total *uint256.Int, err error) {
	err = l.run(now, func(tx *Tx) error {
		total, err = tx.Lock(owner, params)
		return err
	})
	return total, err
}

// Release moves newly vested liquidity back to unlocked.
func (l *Ledger) Release(owner common.Address, now uint64) (amount *uint256.Int, err error) {
	err = l.run(now, func(tx *Tx) error {
		amount, err = tx.Release(owner)
		return err
	})
	return amount, err
}

// PermanentLock moves unlocked liquidity into the permanent bucket.
func (l *Ledger) PermanentLock(owner common.Address, amount *uint256.Int, now uint64) error {
	return l.run(now, func(tx *Tx) error { return tx.PermanentLock(owner, amount) })
}

// ClaimFees zeroes owner's pending fees and returns them.
func (l *Ledger) ClaimFees(owner common.Address, now uint64) (amountA, amountB *uint256.Int, err error) {
	err = l.run(now, func(tx *Tx) error {
		amountA, amountB, err = tx.ClaimFees(owner)
		return err
	})
	return amountA, amountB, err
}

// ClaimReward zeroes owner's pending reward on channel index and returns it.
func (l *Ledger) ClaimReward(owner common.Address, index int, now uint64) (amount *uint256.Int, err error) {
	err = l.run(now, func(tx *Tx) error {
		amount, err = tx.ClaimReward(owner, index)
		return err
	})
	return amount, err
}

// CheckConservation verifies the pool liquidity equals the sum over positions.
func (l *Ledger) CheckConservation() error {
	sum := new(uint256.Int)
	for _, pos := range l.Positions {
		sum.Add(sum, pos.Liquidity())
	}
	if !sum.Eq(l.Liquidity) {
		return fmt.Errorf("positions hold %s, pool holds %s", sum.Dec(), l.Liquidity.Dec())
	}
	return nil
}
