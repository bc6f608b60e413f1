package sim

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"poolcore/internal/pool"
)

func (op Op) advance() uint64 {
	if op.Type == OpAdvance {
		return op.Duration
	}
	return 0
}

// apply executes op against the pool.
func (r *Runner) apply(ctx context.Context, op Op) error {
	p := r.deps.Pool
	cfg := p.Config()
	var args argParser

	switch op.Type {
	case OpAdvance:
		return nil

	case OpMint:
		owner := args.requiredAddress("owner", op.Owner)
		tkn := args.token(op.Token, cfg.TokenA, cfg.TokenB)
		amount := args.required("amount", op.Amount)
		if args.err != nil {
			return args.err
		}
		if r.deps.Faucet == nil {
			return fmt.Errorf("mint needs an in-memory token ledger")
		}
		r.deps.Faucet.Mint(tkn, owner, amount)
		r.deps.Faucet.Approve(tkn, owner, p.Address(), new(uint256.Int).SetAllOne())
		return nil

	case OpSetTax:
		tkn := args.token(op.Token, cfg.TokenA, cfg.TokenB)
		if args.err != nil {
			return args.err
		}
		if r.deps.Faucet == nil {
			return fmt.Errorf("set_tax needs an in-memory token ledger")
		}
		return r.deps.Faucet.SetTax(tkn, op.TaxBps)

	case OpAddLiquidity:
		params := pool.AddLiquidityParams{
			Owner:      args.requiredAddress("owner", op.Owner),
			MaxAmountA: args.amount("amount_a", op.AmountA),
			MaxAmountB: args.amount("amount_b", op.AmountB),
		}
		if op.Liquidity != "" {
			params.LiquidityDelta = args.amount("liquidity", op.Liquidity)
		} else if params.MaxAmountA == nil || params.MaxAmountB == nil {
			args.fail("add_liquidity needs liquidity or both amounts")
		}
		if args.err != nil {
			return args.err
		}
		if params.LiquidityDelta == nil {
			delta, err := p.LiquidityForAmounts(params.MaxAmountA, params.MaxAmountB)
			if err != nil {
				return fmt.Errorf("liquidity for amounts: %w", err)
			}
			params.LiquidityDelta = delta
		}
		_, err := p.AddLiquidity(ctx, params)
		return err

	case OpRemoveLiquidity:
		owner := args.requiredAddress("owner", op.Owner)
		delta := args.required("liquidity", op.Liquidity)
		minA, minB := args.amount("min_a", op.MinA), args.amount("min_b", op.MinB)
		if args.err != nil {
			return args.err
		}
		_, _, err := p.RemoveLiquidity(ctx, owner, delta, minA, minB)
		return err

	case OpRemoveAllLiquidity:
		owner := args.requiredAddress("owner", op.Owner)
		minA, minB := args.amount("min_a", op.MinA), args.amount("min_b", op.MinB)
		if args.err != nil {
			return args.err
		}
		_, _, err := p.RemoveAllLiquidity(ctx, owner, minA, minB)
		return err

	case OpSwap:
		params := pool.SwapParams{
			Trader:           args.requiredAddress("owner", op.Owner),
			AmountAIn:        args.amount("amount_a", op.AmountA),
			AmountBIn:        args.amount("amount_b", op.AmountB),
			MinimumAmountOut: args.amount("min_out", op.MinOut),
			Referral:         args.address("referral", op.Referral),
		}
		if args.err != nil {
			return args.err
		}
		_, err := p.Swap(ctx, params)
		return err

	case OpClaimPositionFee:
		owner := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		_, _, err := p.ClaimPositionFee(ctx, owner)
		return err

	case OpClaimReward:
		owner := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		_, err := p.ClaimReward(ctx, owner, op.RewardIndex)
		return err

	case OpClaimProtocolFee:
		_, _, err := p.ClaimProtocolFee(ctx)
		return err

	case OpClaimPartnerFee:
		caller := args.requiredAddress("owner", op.Owner)
		maxA, maxB := args.amount("amount_a", op.AmountA), args.amount("amount_b", op.AmountB)
		if args.err != nil {
			return args.err
		}
		_, _, err := p.ClaimPartnerFee(ctx, caller, maxA, maxB)
		return err

	case OpLockPosition:
		owner := args.requiredAddress("owner", op.Owner)
		params := args.lock(op.Lock)
		if args.err != nil {
			return args.err
		}
		_, err := p.LockPosition(owner, params)
		return err

	case OpPermanentLock:
		owner := args.requiredAddress("owner", op.Owner)
		amount := args.required("liquidity", op.Liquidity)
		if args.err != nil {
			return args.err
		}
		return p.PermanentLockPosition(owner, amount)

	case OpRefreshVesting:
		owner := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		_, err := p.RefreshVesting(owner)
		return err

	case OpSplitPosition:
		owner := args.requiredAddress("owner", op.Owner)
		dst := args.requiredAddress("to", op.To)
		if op.Split == nil {
			args.fail("split is required")
		}
		if args.err != nil {
			return args.err
		}
		_, err := p.SplitPosition(owner, dst, *op.Split)
		return err

	case OpInitializeReward:
		tkn := args.token(op.Token, cfg.TokenA, cfg.TokenB)
		funder := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		return p.InitializeReward(op.RewardIndex, tkn, funder, op.Duration)

	case OpFundReward:
		funder := args.requiredAddress("owner", op.Owner)
		amount := args.required("amount", op.Amount)
		if args.err != nil {
			return args.err
		}
		return p.FundReward(ctx, funder, op.RewardIndex, amount)

	case OpWithdrawIneligible:
		funder := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		_, err := p.WithdrawIneligibleReward(ctx, funder, op.RewardIndex)
		return err

	case OpUpdateRewardDuration:
		return p.UpdateRewardDuration(op.RewardIndex, op.Duration)

	case OpUpdateRewardFunder:
		funder := args.requiredAddress("owner", op.Owner)
		if args.err != nil {
			return args.err
		}
		return p.UpdateRewardFunder(op.RewardIndex, funder)

	default:
		return fmt.Errorf("unknown op type %q", op.Type)
	}
}
