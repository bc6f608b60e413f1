package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/curve"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
)

// AddLiquidityParams describe a deposit. Nil thresholds are unbounded.
type AddLiquidityParams struct {
	Owner          common.Address
	LiquidityDelta *uint256.Int
	MaxAmountA     *uint256.Int
	MaxAmountB     *uint256.Int
}

// LiquidityQuote is the token cost of a deposit at a specific pool version.
type LiquidityQuote struct {
	Params  AddLiquidityParams
	AmountA *uint256.Int
	AmountB *uint256.Int

	pool    common.Address
	version uint64
	settled bool
}

// LiquidityForAmounts returns the largest liquidity the two budgets back at
// the current price.
func (p *Pool) LiquidityForAmounts(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	p.mu.Lock()
	price := p.st.sqrtPrice.Clone()
	p.mu.Unlock()
	return curve.LiquidityFromAmounts(price, p.cfg.SqrtMinPrice, p.cfg.SqrtMaxPrice, amountA, amountB)
}

// QuoteAddLiquidity computes the deposit, rounding in the pool's favour.
func (p *Pool) QuoteAddLiquidity(params AddLiquidityParams) (*LiquidityQuote, error) {
	if params.Owner == (common.Address{}) {
		return nil, poolerr.ErrZeroAddress
	}
	if isZero(params.LiquidityDelta) || !fm.FitsU128(params.LiquidityDelta) {
		return nil, poolerr.ErrInvalidAmount
	}

	p.mu.Lock()
	price := p.st.sqrtPrice.Clone()
	version := p.version
	p.mu.Unlock()

	amountA, amountB, err := curve.AmountsForLiquidity(price, p.cfg.SqrtMinPrice, p.cfg.SqrtMaxPrice, params.LiquidityDelta, true)
	if err != nil {
		return nil, fmt.Errorf("quote add liquidity: %w", err)
	}
	if params.MaxAmountA != nil && amountA.Gt(params.MaxAmountA) {
		return nil, poolerr.ErrSlippage
	}
	if params.MaxAmountB != nil && amountB.Gt(params.MaxAmountB) {
		return nil, poolerr.ErrSlippage
	}
	return &LiquidityQuote{
		Params:  params,
		AmountA: amountA,
		AmountB: amountB,
		pool:    p.address,
		version: version,
	}, nil
}

// SettleAddLiquidity pulls both tokens, verifies the received balances and
// credits the owner's unlocked liquidity.
func (p *Pool) SettleAddLiquidity(ctx context.Context, q *LiquidityQuote) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if q == nil || q.pool != p.address {
		return fmt.Errorf("settle add liquidity: %w", poolerr.ErrStaleQuote)
	}
	if q.settled {
		return poolerr.ErrQuoteSettled
	}
	if q.version != p.version {
		return fmt.Errorf("settle add liquidity at version %d, pool at %d: %w", q.version, p.version, poolerr.ErrStaleQuote)
	}

	now := p.clock.CurrentPoint()
	owner := q.Params.Owner
	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return fmt.Errorf("settle add liquidity: %w", err)
	}
	if err := tx.AddUnlocked(owner, q.Params.LiquidityDelta); err != nil {
		return fmt.Errorf("settle add liquidity: %w", err)
	}
	reserveA, err := fm.Add(p.st.reserveA, q.AmountA)
	if err != nil {
		return err
	}
	reserveB, err := fm.Add(p.st.reserveB, q.AmountB)
	if err != nil {
		return err
	}

	if err := p.pull(ctx, p.cfg.TokenA, owner, q.AmountA); err != nil {
		return fmt.Errorf("settle add liquidity: %w", err)
	}
	if err := p.pull(ctx, p.cfg.TokenB, owner, q.AmountB); err != nil {
		p.refund(ctx, p.cfg.TokenA, owner, q.AmountA)
		return fmt.Errorf("settle add liquidity: %w", err)
	}

	tx.Commit()
	p.st.reserveA, p.st.reserveB = reserveA, reserveB
	p.version++
	q.settled = true

	if tx.Created(owner) {
		p.emit(now, model.EventPositionCreated, model.PositionCreatedData{Owner: owner.Hex()})
	}
	p.emit(now, model.EventLiquidityModified, model.LiquidityModifiedData{
		Owner:          owner.Hex(),
		LiquidityDelta: q.Params.LiquidityDelta.Dec(),
		AmountA:        q.AmountA.Dec(),
		AmountB:        q.AmountB.Dec(),
		TotalLiquidity: p.st.ledger.Liquidity.Dec(),
	})
	p.emitReserveSync(now)
	p.logger.Debug("add liquidity",
		zap.String("owner", owner.Hex()),
		zap.String("liquidity", q.Params.LiquidityDelta.Dec()),
		zap.String("amount_a", q.AmountA.Dec()),
		zap.String("amount_b", q.AmountB.Dec()),
	)
	return nil
}

// AddLiquidity quotes and settles a deposit.
func (p *Pool) AddLiquidity(ctx context.Context, params AddLiquidityParams) (*LiquidityQuote, error) {
	q, err := p.QuoteAddLiquidity(params)
	if err != nil {
		return nil, err
	}
	if err := p.SettleAddLiquidity(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// RemoveLiquidity burns unlocked liquidity and pays out the backing tokens,
// rounded down. Nil minimums are not enforced.
func (p *Pool) RemoveLiquidity(ctx context.Context, owner common.Address, delta, minAmountA, minAmountB *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLiquidity(ctx, owner, delta, minAmountA, minAmountB)
}

// RemoveAllLiquidity burns the owner's entire unlocked liquidity.
func (p *Pool) RemoveAllLiquidity(ctx context.Context, owner common.Address, minAmountA, minAmountB *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.st.ledger.Position(owner)
	if !ok {
		return nil, nil, poolerr.ErrPositionNotFound
	}
	return p.removeLiquidity(ctx, owner, pos.Unlocked, minAmountA, minAmountB)
}

func (p *Pool) removeLiquidity(ctx context.Context, owner common.Address, delta, minAmountA, minAmountB *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if isZero(delta) {
		return nil, nil, poolerr.ErrInvalidAmount
	}
	now := p.clock.CurrentPoint()

	amountA, amountB, err := curve.AmountsForLiquidity(p.st.sqrtPrice, p.cfg.SqrtMinPrice, p.cfg.SqrtMaxPrice, delta, false)
	if err != nil {
		return nil, nil, fmt.Errorf("remove liquidity: %w", err)
	}
	if (minAmountA != nil && amountA.Lt(minAmountA)) || (minAmountB != nil && amountB.Lt(minAmountB)) {
		return nil, nil, poolerr.ErrSlippage
	}

	tx, err := p.st.ledger.Begin(now)
	if err != nil {
		return nil, nil, fmt.Errorf("remove liquidity: %w", err)
	}
	if err := tx.RemoveUnlocked(owner, delta); err != nil {
		return nil, nil, fmt.Errorf("remove liquidity: %w", err)
	}
	reserveA, err := debit(p.st.reserveA, amountA, poolerr.ErrInsufficientReserve)
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := debit(p.st.reserveB, amountB, poolerr.ErrInsufficientReserve)
	if err != nil {
		return nil, nil, err
	}

	err = p.payout(ctx,
		transfer{token: p.cfg.TokenA, to: owner, amount: amountA},
		transfer{token: p.cfg.TokenB, to: owner, amount: amountB},
	)
	if err != nil {
		p.logger.Warn("remove liquidity payout failed", zap.Error(err))
		return nil, nil, fmt.Errorf("remove liquidity: %w", err)
	}

	tx.Commit()
	p.st.reserveA, p.st.reserveB = reserveA, reserveB
	p.version++

	p.emit(now, model.EventLiquidityModified, model.LiquidityModifiedData{
		Owner:          owner.Hex(),
		LiquidityDelta: "-" + delta.Dec(),
		AmountA:        amountA.Dec(),
		AmountB:        amountB.Dec(),
		TotalLiquidity: p.st.ledger.Liquidity.Dec(),
	})
	p.emitReserveSync(now)
	p.logger.Debug("remove liquidity",
		zap.String("owner", owner.Hex()),
		zap.String("liquidity", delta.Dec()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
	)
	return amountA, amountB, nil
}
