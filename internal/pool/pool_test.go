package pool

import (
	"context"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"poolcore/internal/clock"
	"poolcore/internal/curve"
	"poolcore/internal/fees"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/ledger"
	"poolcore/internal/model"
	"poolcore/internal/poolerr"
	"poolcore/internal/token"
	"poolcore/internal/vesting"
)

var (
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	rewardT  = common.HexToAddress("0x000000000000000000000000000000000000cccc")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007777")
	partner  = common.HexToAddress("0x0000000000000000000000000000000000008888")
	referrer = common.HexToAddress("0x0000000000000000000000000000000000009999")
	funder   = common.HexToAddress("0x000000000000000000000000000000000000f00d")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func q96(n uint64) *uint256.Int { return new(uint256.Int).Mul(fm.Q96, u(n)) }

type fixture struct {
	t       *testing.T
	ctx     context.Context
	pool    *Pool
	custody *token.Ledger
	clock   *clock.Manual
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	cfg := Config{
		TokenA:       tokenA,
		TokenB:       tokenB,
		SqrtMinPrice: q96(1),
		SqrtMaxPrice: q96(4),
		SqrtPrice:    q96(2),
		Treasury:     treasury,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	clk := clock.NewManual(1_000, 10_000)
	custody := token.NewLedger()
	p, err := New(cfg, clk, custody, nil)
	require.NoError(t, err)
	return &fixture{t: t, ctx: context.Background(), pool: p, custody: custody, clock: clk}
}

func (f *fixture) fund(owner common.Address, tkn common.Address, amount uint64) {
	f.custody.Mint(tkn, owner, u(amount))
	f.custody.Approve(tkn, owner, f.pool.Address(), new(uint256.Int).SetAllOne())
}

func (f *fixture) balance(tkn, account common.Address) uint64 {
	bal, err := f.custody.BalanceOf(f.ctx, tkn, account)
	require.NoError(f.t, err)
	return bal.Uint64()
}

func (f *fixture) addLiquidity(owner common.Address, liquidity uint64) *LiquidityQuote {
	f.t.Helper()
	f.fund(owner, tokenA, 10*liquidity)
	f.fund(owner, tokenB, 10*liquidity)
	q, err := f.pool.AddLiquidity(f.ctx, AddLiquidityParams{Owner: owner, LiquidityDelta: u(liquidity)})
	require.NoError(f.t, err)
	return q
}

func (f *fixture) requireReservesMatchCustody() {
	f.t.Helper()
	s := f.pool.Snapshot()
	require.Equal(f.t, s.ReserveA.Uint64(), f.balance(tokenA, f.pool.Address()))
	require.Equal(f.t, s.ReserveB.Uint64(), f.balance(tokenB, f.pool.Address()))
	require.NoError(f.t, s.Ledger.CheckConservation())
	require.True(f.t, s.SqrtPrice.Cmp(s.Config.SqrtMinPrice) >= 0)
	require.True(f.t, s.SqrtPrice.Cmp(s.Config.SqrtMaxPrice) <= 0)
}

func TestAddLiquidityPullsRoundedUpAmounts(t *testing.T) {
	f := newFixture(t, nil)
	q := f.addLiquidity(alice, 1_000_000)
	require.Equal(t, uint64(250_000), q.AmountA.Uint64())
	require.Equal(t, uint64(1_000_000), q.AmountB.Uint64())
	f.requireReservesMatchCustody()

	events := f.pool.DrainEvents()
	require.Len(t, events, 3)
	require.Equal(t, model.EventPositionCreated, events[0].Name)
	require.Equal(t, model.EventLiquidityModified, events[1].Name)
	require.Equal(t, model.EventReserveSync, events[2].Name)
	require.Empty(t, f.pool.DrainEvents())
}

func TestSwapFollowsCurve(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenA, 1000)

	q, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(1000)})
	require.NoError(t, err)

	wantNext, err := curve.NextSqrtPriceFromInput(q96(2), u(1_000_000), u(1000), true)
	require.NoError(t, err)
	require.Equal(t, wantNext, q.NextSqrtPrice)
	require.Equal(t, uint64(3992), q.AmountOut.Uint64())
	require.True(t, q.Fees.Total().IsZero())

	require.Equal(t, uint64(3992), f.balance(tokenB, bob))
	require.Zero(t, f.balance(tokenA, bob))
	require.Equal(t, wantNext, f.pool.Snapshot().SqrtPrice)
	f.requireReservesMatchCustody()
}

func TestSwapValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.pool.QuoteSwap(SwapParams{Trader: bob, AmountAIn: u(1)})
	require.ErrorIs(t, err, poolerr.ErrZeroLiquidity)

	f.addLiquidity(alice, 1_000_000)
	_, err = f.pool.QuoteSwap(SwapParams{Trader: bob, AmountAIn: u(1), AmountBIn: u(1)})
	require.ErrorIs(t, err, poolerr.ErrInvalidSwapInput)
	require.Equal(t, poolerr.KindValidation, poolerr.KindOf(err))
	_, err = f.pool.QuoteSwap(SwapParams{Trader: bob})
	require.ErrorIs(t, err, poolerr.ErrInvalidSwapInput)

	_, err = f.pool.QuoteSwap(SwapParams{Trader: bob, AmountAIn: u(1000), MinimumAmountOut: u(3993)})
	require.ErrorIs(t, err, poolerr.ErrSlippage)
}

func TestSwapPastRangeReverts(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenA, 600_000)
	before := f.pool.Snapshot()

	_, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(600_000)})
	require.ErrorIs(t, err, poolerr.ErrPriceRangeViolation)
	require.Equal(t, poolerr.KindState, poolerr.KindOf(err))

	after := f.pool.Snapshot()
	require.Equal(t, before.SqrtPrice, after.SqrtPrice)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, uint64(600_000), f.balance(tokenA, bob))
}

func TestTaxedTokenShortfallReverts(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)
	require.NoError(t, f.custody.SetTax(tokenA, 100))
	f.fund(bob, tokenA, 1000)
	poolA := f.balance(tokenA, f.pool.Address())
	before := f.pool.Snapshot()

	_, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(1000)})
	require.ErrorIs(t, err, poolerr.ErrSettlementShortfall)
	require.Equal(t, poolerr.KindExternal, poolerr.KindOf(err))

	after := f.pool.Snapshot()
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, before.ReserveA, after.ReserveA)
	require.Equal(t, before.SqrtPrice, after.SqrtPrice)
	require.Equal(t, poolA, f.balance(tokenA, f.pool.Address()))
	require.Zero(t, f.balance(tokenB, bob))
}

func TestStaleQuoteRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenA, 10_000)

	first, err := f.pool.QuoteSwap(SwapParams{Trader: bob, AmountAIn: u(1000)})
	require.NoError(t, err)
	second, err := f.pool.QuoteSwap(SwapParams{Trader: bob, AmountAIn: u(1000)})
	require.NoError(t, err)

	require.NoError(t, f.pool.Settle(f.ctx, first))
	require.ErrorIs(t, f.pool.Settle(f.ctx, first), poolerr.ErrQuoteSettled)
	require.ErrorIs(t, f.pool.Settle(f.ctx, second), poolerr.ErrStaleQuote)
	require.Equal(t, uint64(9000), f.balance(tokenA, bob))

	lq, err := f.pool.QuoteAddLiquidity(AddLiquidityParams{Owner: carol, LiquidityDelta: u(10)})
	require.NoError(t, err)
	_, err = f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(10)})
	require.NoError(t, err)
	require.ErrorIs(t, f.pool.SettleAddLiquidity(f.ctx, lq), poolerr.ErrStaleQuote)
}

func onePercent(c *Config) {
	c.Fees.Base.CliffFeeRate = 10_000
	c.Fees.ProtocolFeePercent = 20
}

func TestFeesAccrueToLiquidityProviders(t *testing.T) {
	f := newFixture(t, onePercent)
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenA, 1000)

	q, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(1000)})
	require.NoError(t, err)
	require.False(t, q.FeeMode.OnInput)
	require.False(t, q.FeeMode.OnTokenA)
	require.Equal(t, uint64(3952), q.AmountOut.Uint64())
	require.Equal(t, uint64(32), q.Fees.LP.Uint64())
	require.Equal(t, uint64(8), q.Fees.Protocol.Uint64())

	a, b, err := f.pool.ClaimPositionFee(f.ctx, alice)
	require.NoError(t, err)
	require.True(t, a.IsZero())
	// the accumulator rounds down
	require.Equal(t, uint64(31), b.Uint64())

	pa, pb, err := f.pool.ClaimProtocolFee(f.ctx)
	require.NoError(t, err)
	require.True(t, pa.IsZero())
	require.Equal(t, uint64(8), pb.Uint64())
	require.Equal(t, uint64(8), f.balance(tokenB, treasury))
	f.requireReservesMatchCustody()

	_, err = f.pool.ClaimReward(f.ctx, alice, 0)
	require.ErrorIs(t, err, poolerr.ErrRewardUninitialized)
}

func TestReferralAndPartnerShares(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		onePercent(c)
		c.Fees.ReferralFeePercent = 20
		c.Fees.PartnerFeePercent = 50
		c.Partner = partner
	})
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenA, 1000)

	q, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountAIn: u(1000), Referral: referrer})
	require.NoError(t, err)
	require.Equal(t, uint64(1), q.Fees.Referral.Uint64())
	require.Equal(t, uint64(3), q.Fees.Partner.Uint64())
	require.Equal(t, uint64(4), q.Fees.Protocol.Uint64())
	require.Equal(t, uint64(1), f.balance(tokenB, referrer))

	_, _, err = f.pool.ClaimPartnerFee(f.ctx, bob, nil, nil)
	require.ErrorIs(t, err, poolerr.ErrUnauthorized)

	_, b, err := f.pool.ClaimPartnerFee(f.ctx, partner, nil, u(2))
	require.NoError(t, err)
	require.Equal(t, uint64(2), b.Uint64())
	_, b, err = f.pool.ClaimPartnerFee(f.ctx, partner, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b.Uint64())
	require.Equal(t, uint64(3), f.balance(tokenB, partner))
	f.requireReservesMatchCustody()
}

func TestOnlyBChargesInputWhenSellingB(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		onePercent(c)
		c.CollectFeeMode = fees.CollectOnlyB
	})
	f.addLiquidity(alice, 1_000_000)
	f.fund(bob, tokenB, 4000)

	q, err := f.pool.Swap(f.ctx, SwapParams{Trader: bob, AmountBIn: u(4000)})
	require.NoError(t, err)
	require.True(t, q.FeeMode.OnInput)
	require.False(t, q.FeeMode.OnTokenA)
	require.Equal(t, uint64(40), q.Fees.Total().Uint64())

	wantNext, err := curve.NextSqrtPriceFromInput(q96(2), u(1_000_000), u(3960), false)
	require.NoError(t, err)
	require.Equal(t, wantNext, q.NextSqrtPrice)
	f.requireReservesMatchCustody()
}

func TestRemoveLiquidityRoundsDown(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_001)

	_, _, err := f.pool.RemoveLiquidity(f.ctx, alice, u(1_000_002), nil, nil)
	require.ErrorIs(t, err, poolerr.ErrInsufficientUnlocked)

	_, _, err = f.pool.RemoveLiquidity(f.ctx, alice, u(1), u(1), nil)
	require.ErrorIs(t, err, poolerr.ErrSlippage)

	a, b, err := f.pool.RemoveAllLiquidity(f.ctx, alice, nil, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(250_000), a.Uint64())
	require.Equal(t, uint64(1_000_001), b.Uint64())
	require.True(t, f.pool.Snapshot().Liquidity.IsZero())
	f.requireReservesMatchCustody()
	// rounding dust stays in the pool
	require.Equal(t, uint64(1), f.balance(tokenA, f.pool.Address()))
}

func TestLockReleaseAndSplit(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)

	params := vesting.Params{
		CliffPoint:         1_100,
		PeriodFrequency:    100,
		LiquidityPerPeriod: u(100_000),
		NumberOfPeriod:     5,
	}
	_, err := f.pool.LockPosition(alice, vesting.Params{CliffPoint: 900, CliffUnlockLiquidity: u(1)})
	require.ErrorIs(t, err, poolerr.ErrInvalidVesting)

	locked, err := f.pool.LockPosition(alice, params)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), locked.Uint64())

	_, err = f.pool.SplitPosition(alice, carol, ledger.SplitPercentages{Unlocked: 50})
	require.ErrorIs(t, err, poolerr.ErrVestingActive)
	_, _, err = f.pool.RemoveLiquidity(f.ctx, alice, u(500_001), nil, nil)
	require.ErrorIs(t, err, poolerr.ErrInsufficientUnlocked)

	_, err = f.pool.RefreshVesting(alice)
	require.ErrorIs(t, err, poolerr.ErrVestingNotDue)

	f.clock.Set(1_250)
	released, err := f.pool.RefreshVesting(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), released.Uint64())

	f.clock.Set(1_700)
	released, err = f.pool.RefreshVesting(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(400_000), released.Uint64())

	require.NoError(t, f.pool.PermanentLockPosition(alice, u(200_000)))
	f.pool.DrainEvents()

	moved, err := f.pool.SplitPosition(alice, carol, ledger.SplitPercentages{Unlocked: 50, Permanent: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(400_000), moved.Unlocked.Uint64())
	require.Equal(t, uint64(200_000), moved.Permanent.Uint64())

	events := f.pool.DrainEvents()
	require.Len(t, events, 2)
	require.Equal(t, model.EventPositionCreated, events[0].Name)
	require.Equal(t, model.EventPositionSplit, events[1].Name)

	s := f.pool.Snapshot()
	require.NoError(t, s.Ledger.CheckConservation())
	require.Equal(t, uint64(1_000_000), s.Liquidity.Uint64())
}

func TestRewardChannelLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.addLiquidity(alice, 1_000_000)
	f.fund(funder, rewardT, 10_000)

	require.NoError(t, f.pool.InitializeReward(0, rewardT, funder, 100))
	require.ErrorIs(t, f.pool.FundReward(f.ctx, bob, 0, u(1000)), poolerr.ErrUnauthorized)
	require.ErrorIs(t, f.pool.FundReward(f.ctx, funder, 1, u(1000)), poolerr.ErrRewardUninitialized)
	require.NoError(t, f.pool.FundReward(f.ctx, funder, 0, u(1000)))
	require.Equal(t, uint64(9_000), f.balance(rewardT, funder))

	f.clock.Advance(50)
	got, err := f.pool.ClaimReward(f.ctx, alice, 0)
	require.NoError(t, err)
	require.InDelta(t, 500, got.Uint64(), 1)
	require.Equal(t, got.Uint64(), f.balance(rewardT, alice))

	require.ErrorIs(t, f.pool.UpdateRewardDuration(0, 200), poolerr.ErrRewardPeriodActive)
	f.clock.Advance(100)
	require.NoError(t, f.pool.UpdateRewardDuration(0, 200))
	require.NoError(t, f.pool.UpdateRewardFunder(0, carol))

	ch, err := f.pool.Reward(0)
	require.NoError(t, err)
	require.Equal(t, carol, ch.Funder)
	require.Equal(t, uint64(200), ch.Duration)

	_, err = f.pool.WithdrawIneligibleReward(f.ctx, carol, 0)
	require.ErrorIs(t, err, poolerr.ErrNothingToWithdraw)
}

func TestIneligibleRewardAfterTopUp(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(funder, rewardT, 10_100)

	require.NoError(t, f.pool.InitializeReward(0, rewardT, funder, 100))
	require.NoError(t, f.pool.FundReward(f.ctx, funder, 0, u(100)))

	f.clock.Advance(50)
	f.addLiquidity(alice, 1_000_000)
	require.NoError(t, f.pool.FundReward(f.ctx, funder, 0, u(10_000)))

	f.clock.Advance(100)
	withdrawn, err := f.pool.WithdrawIneligibleReward(f.ctx, funder, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(50), withdrawn.Uint64())

	got, err := f.pool.ClaimReward(f.ctx, alice, 0)
	require.NoError(t, err)
	require.InDelta(t, 10_050, got.Uint64(), 1)
	require.Equal(t, uint64(50), f.balance(rewardT, funder))
}

func TestRandomOperationsKeepBooksBalanced(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		onePercent(c)
		c.Fees.PartnerFeePercent = 30
		c.Partner = partner
	})
	traders := []common.Address{alice, bob, carol}
	for _, tr := range traders {
		f.fund(tr, tokenA, 100_000_000)
		f.fund(tr, tokenB, 100_000_000)
	}
	_, err := f.pool.AddLiquidity(f.ctx, AddLiquidityParams{Owner: alice, LiquidityDelta: u(5_000_000)})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	for step := 0; step < 400; step++ {
		f.clock.Advance(uint64(rng.Intn(30)))
		tr := traders[rng.Intn(len(traders))]
		amount := u(uint64(1 + rng.Intn(200_000)))

		switch rng.Intn(6) {
		case 0:
			_, _ = f.pool.Swap(f.ctx, SwapParams{Trader: tr, AmountAIn: amount})
		case 1:
			_, _ = f.pool.Swap(f.ctx, SwapParams{Trader: tr, AmountBIn: amount, Referral: referrer})
		case 2:
			_, _ = f.pool.AddLiquidity(f.ctx, AddLiquidityParams{Owner: tr, LiquidityDelta: amount})
		case 3:
			_, _, _ = f.pool.RemoveLiquidity(f.ctx, tr, amount, nil, nil)
		case 4:
			_, _, _ = f.pool.ClaimPositionFee(f.ctx, tr)
		case 5:
			_, _, _ = f.pool.ClaimPartnerFee(f.ctx, partner, nil, nil)
		}
		f.requireReservesMatchCustody()
	}

	// every owner can exit and the pool still covers what it tracks
	for _, tr := range traders {
		if _, ok := f.pool.Snapshot().Ledger.Positions[tr]; !ok {
			continue
		}
		_, _, _ = f.pool.RemoveAllLiquidity(f.ctx, tr, nil, nil)
		_, _, err := f.pool.ClaimPositionFee(f.ctx, tr)
		require.NoError(t, err)
	}
	_, _, err = f.pool.ClaimProtocolFee(f.ctx)
	require.NoError(t, err)
	f.requireReservesMatchCustody()
}

func TestConfigValidation(t *testing.T) {
	clk := clock.NewManual(0, 0)
	custody := token.NewLedger()

	cfg := Config{TokenA: tokenA, TokenB: tokenB, SqrtMinPrice: q96(2), SqrtMaxPrice: q96(1), SqrtPrice: q96(1)}
	_, err := New(cfg, clk, custody, nil)
	require.ErrorIs(t, err, poolerr.ErrInvalidPriceRange)

	cfg = Config{TokenA: tokenA, TokenB: tokenB, SqrtMinPrice: q96(1), SqrtMaxPrice: q96(2), SqrtPrice: q96(3)}
	_, err = New(cfg, clk, custody, nil)
	require.ErrorIs(t, err, poolerr.ErrInvalidPriceRange)

	cfg.SqrtPrice = q96(1)
	cfg.TokenB = common.Address{}
	_, err = New(cfg, clk, custody, nil)
	require.ErrorIs(t, err, poolerr.ErrZeroAddress)

	a := DeriveAddress(tokenA, tokenB, q96(1), q96(2))
	require.Equal(t, a, DeriveAddress(tokenA, tokenB, q96(1), q96(2)))
	require.NotEqual(t, a, DeriveAddress(tokenB, tokenA, q96(1), q96(2)))
}
