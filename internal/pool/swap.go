package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolcore/internal/curve"
	"poolcore/internal/fees"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
	"poolcore/internal/volatility"
)

// SwapParams describe a trade. Exactly one of AmountAIn and AmountBIn is non-zero.
type SwapParams struct {
	Trader           common.Address
	AmountAIn        *uint256.Int
	AmountBIn        *uint256.Int
	MinimumAmountOut *uint256.Int
	// Referral receives part of the protocol fee when set.
	Referral common.Address
}

// SwapQuote is the committed outcome of a trade against a specific pool version.
type SwapQuote struct {
	Params        SwapParams
	Direction     fees.Direction
	AmountIn      *uint256.Int
	AmountOut     *uint256.Int
	FeeRate       *uint256.Int
	FeeMode       fees.Mode
	Fees          fees.Breakdown
	NextSqrtPrice *uint256.Int
	Point         uint64

	pool       common.Address
	version    uint64
	feeGrowth  *uint256.Int
	volatility volatility.State
	settled    bool
}

// swapView is the read-only state a quote needs.
type swapView struct {
	sqrtPrice  *uint256.Int
	liquidity  *uint256.Int
	reserveA   *uint256.Int
	reserveB   *uint256.Int
	volatility volatility.State
	version    uint64
	now        uint64
	activation uint64
}

func isZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}

// QuoteSwap prices a trade without changing the pool.
func (p *Pool) QuoteSwap(params SwapParams) (*SwapQuote, error) {
	p.mu.Lock()
	view := swapView{
		sqrtPrice:  p.st.sqrtPrice.Clone(),
		liquidity:  p.st.ledger.Liquidity.Clone(),
		reserveA:   p.st.reserveA.Clone(),
		reserveB:   p.st.reserveB.Clone(),
		volatility: p.st.volatility.Clone(),
		version:    p.version,
		now:        p.clock.CurrentPoint(),
		activation: p.activation(),
	}
	p.mu.Unlock()

	q, err := p.quoteSwap(view, params)
	if err != nil {
		return nil, fmt.Errorf("quote swap: %w", err)
	}
	return q, nil
}

func (p *Pool) quoteSwap(v swapView, params SwapParams) (*SwapQuote, error) {
	if isZero(params.AmountAIn) == isZero(params.AmountBIn) {
		return nil, poolerr.ErrInvalidSwapInput
	}
	if params.Trader == (common.Address{}) {
		return nil, poolerr.ErrZeroAddress
	}
	if v.liquidity.IsZero() {
		return nil, poolerr.ErrZeroLiquidity
	}

	dir, amountIn := fees.AtoB, params.AmountAIn
	if isZero(params.AmountAIn) {
		dir, amountIn = fees.BtoA, params.AmountBIn
	}
	aToB := dir == fees.AtoB

	vol := v.volatility
	vol.UpdateReferences(p.cfg.Fees.Dynamic, v.now, v.sqrtPrice)

	rate, err := fees.TotalFeeRate(p.cfg.Fees, vol, v.now, v.activation)
	if err != nil {
		return nil, err
	}
	hasReferral := params.Referral != (common.Address{})
	mode := fees.ModeFor(p.cfg.CollectFeeMode, dir, hasReferral)

	residual := amountIn.Clone()
	fee := new(uint256.Int)
	if mode.OnInput {
		if fee, err = fees.FeeOnAmount(amountIn, rate); err != nil {
			return nil, err
		}
		if residual, err = fm.Sub(amountIn, fee); err != nil {
			return nil, err
		}
	}

	next, err := curve.NextSqrtPriceFromInput(v.sqrtPrice, v.liquidity, residual, aToB)
	if err != nil {
		return nil, fmt.Errorf("next sqrt price: %w", err)
	}
	if next.Lt(p.cfg.SqrtMinPrice) || next.Gt(p.cfg.SqrtMaxPrice) {
		return nil, poolerr.ErrPriceRangeViolation
	}

	var out *uint256.Int
	if aToB {
		out, err = curve.Amount1Delta(next, v.sqrtPrice, v.liquidity, false)
	} else {
		out, err = curve.Amount0Delta(v.sqrtPrice, next, v.liquidity, false)
	}
	if err != nil {
		return nil, fmt.Errorf("output amount: %w", err)
	}

	if !mode.OnInput {
		if fee, err = fees.FeeOnAmount(out, rate); err != nil {
			return nil, err
		}
		if out, err = fm.Sub(out, fee); err != nil {
			return nil, err
		}
	}
	if out.IsZero() {
		return nil, poolerr.ErrZeroOutput
	}
	if params.MinimumAmountOut != nil && out.Lt(params.MinimumAmountOut) {
		return nil, poolerr.ErrSlippage
	}

	split, err := fees.Split(fee, p.cfg.Fees, hasReferral, p.cfg.Partner != (common.Address{}))
	if err != nil {
		return nil, err
	}
	growth, err := ledger.FeeGrowth(split.LP, v.liquidity)
	if err != nil {
		return nil, err
	}

	reserveOut := v.reserveB
	if !aToB {
		reserveOut = v.reserveA
	}
	leaving := out.Clone()
	if !mode.OnInput {
		// the referral share of an output-side fee leaves with the output
		leaving.Add(leaving, split.Referral)
	}
	if leaving.Gt(reserveOut) {
		return nil, poolerr.ErrInsufficientReserve
	}

	delta := vol.UpdateVolatilityAccumulator(p.cfg.Fees.Dynamic, next)
	if !delta.IsZero() {
		vol.MarkUpdated(v.now)
	}

	return &SwapQuote{
		Params:        params,
		Direction:     dir,
		AmountIn:      amountIn.Clone(),
		AmountOut:     out,
		FeeRate:       rate,
		FeeMode:       mode,
		Fees:          split,
		NextSqrtPrice: next,
		Point:         v.now,
		pool:          p.address,
		version:       v.version,
		feeGrowth:     growth,
		volatility:    vol,
	}, nil
}

// Settle executes a quote: it pulls the input from the trader, verifies the
// received balance, pays out and commits. A quote from an older pool version
// is rejected.
func (p *Pool) Settle(ctx context.Context, q *SwapQuote) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if q == nil || q.pool != p.address {
		return fmt.Errorf("settle swap: %w", poolerr.ErrStaleQuote)
	}
	if q.settled {
		return poolerr.ErrQuoteSettled
	}
	if q.version != p.version {
		return fmt.Errorf("settle swap at version %d, pool at %d: %w", q.version, p.version, poolerr.ErrStaleQuote)
	}

	aToB := q.Direction == fees.AtoB
	tokenIn, tokenOut := p.cfg.TokenA, p.cfg.TokenB
	if !aToB {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	feeOnA := q.FeeMode.OnTokenA

	// stage every balance first so nothing can fail after the transfers
	st := &p.st
	reserveIn, err := fm.Add(*st.reserve(aToB), q.AmountIn)
	if err != nil {
		return fmt.Errorf("settle swap: %w", err)
	}
	reserveOut, err := debit(*st.reserve(!aToB), q.AmountOut, poolerr.ErrInsufficientReserve)
	if err != nil {
		return fmt.Errorf("settle swap: %w", err)
	}
	reserves := map[bool]*uint256.Int{aToB: reserveIn, !aToB: reserveOut}
	if reserves[feeOnA], err = debit(reserves[feeOnA], q.Fees.Referral, poolerr.ErrInsufficientReserve); err != nil {
		return fmt.Errorf("settle swap: %w", err)
	}
	protocol, partner, lp := &st.protocolBFee, &st.partnerBFee, &st.lpBFee
	if feeOnA {
		protocol, partner, lp = &st.protocolAFee, &st.partnerAFee, &st.lpAFee
	}
	newProtocol, err := fm.Add(*protocol, q.Fees.Protocol)
	if err != nil {
		return err
	}
	newPartner, err := fm.Add(*partner, q.Fees.Partner)
	if err != nil {
		return err
	}
	newLP, err := fm.Add(*lp, q.Fees.LP)
	if err != nil {
		return err
	}
	newGrowth, err := st.ledger.NextFeeGrowth(feeOnA, q.feeGrowth)
	if err != nil {
		return fmt.Errorf("settle swap: %w", err)
	}

	trader := q.Params.Trader
	if err := p.pull(ctx, tokenIn, trader, q.AmountIn); err != nil {
		return fmt.Errorf("settle swap: %w", err)
	}
	feeToken := p.cfg.TokenB
	if feeOnA {
		feeToken = p.cfg.TokenA
	}
	err = p.payout(ctx,
		transfer{token: tokenOut, to: trader, amount: q.AmountOut},
		transfer{token: feeToken, to: q.Params.Referral, amount: q.Fees.Referral},
	)
	if err != nil {
		p.refund(ctx, tokenIn, trader, q.AmountIn)
		p.logger.Warn("swap payout failed", zap.Error(err))
		return fmt.Errorf("settle swap: %w", err)
	}

	p.st.reserveA, p.st.reserveB = reserves[true], reserves[false]
	*protocol, *partner, *lp = newProtocol, newPartner, newLP
	p.st.ledger.SetFeeGrowth(feeOnA, newGrowth)
	p.st.sqrtPrice = q.NextSqrtPrice.Clone()
	p.st.volatility = q.volatility.Clone()
	p.version++
	q.settled = true

	p.emit(q.Point, model.EventSwap, model.SwapData{
		Trader:       trader.Hex(),
		AToB:         aToB,
		AmountIn:     q.AmountIn.Dec(),
		AmountOut:    q.AmountOut.Dec(),
		FeeOnTokenA:  feeOnA,
		LPFee:        q.Fees.LP.Dec(),
		ProtocolFee:  q.Fees.Protocol.Dec(),
		PartnerFee:   q.Fees.Partner.Dec(),
		ReferralFee:  q.Fees.Referral.Dec(),
		SqrtPriceX96: p.st.sqrtPrice.Dec(),
		Liquidity:    p.st.ledger.Liquidity.Dec(),
	})
	p.emitReserveSync(q.Point)

	p.logger.Debug("swap",
		zap.Stringer("direction", q.Direction),
		zap.String("amount_in", q.AmountIn.Dec()),
		zap.String("amount_out", q.AmountOut.Dec()),
		zap.String("fee_rate", q.FeeRate.Dec()),
		zap.String("sqrt_price", p.st.sqrtPrice.Dec()),
	)
	return nil
}

// Swap quotes and settles in one call.
func (p *Pool) Swap(ctx context.Context, params SwapParams) (*SwapQuote, error) {
	q, err := p.QuoteSwap(params)
	if err != nil {
		return nil, err
	}
	if err := p.Settle(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}
