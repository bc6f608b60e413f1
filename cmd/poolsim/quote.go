package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"poolcore/internal/aggregate"
	"poolcore/internal/clock"
	"poolcore/internal/config"
	"poolcore/internal/fees"
	"poolcore/internal/pool"
	"poolcore/internal/sim"
)

type quoteOutput struct {
	Pool        string  `json:"pool"`
	Point       uint64  `json:"point"`
	Direction   string  `json:"direction"`
	AmountIn    string  `json:"amount_in"`
	AmountOut   string  `json:"amount_out"`
	FeePercent  string  `json:"fee_percent"`
	FeeToken    string  `json:"fee_token"`
	FeeOnInput  bool    `json:"fee_on_input"`
	LPFee       string  `json:"lp_fee"`
	ProtocolFee string  `json:"protocol_fee"`
	PartnerFee  string  `json:"partner_fee"`
	ReferralFee string  `json:"referral_fee"`
	PriceBefore *string `json:"price_before"`
	PriceAfter  *string `json:"price_after"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PoolFile == "" {
		return fmt.Errorf("pool file is required")
	}
	if cfg.Amount == "" {
		return fmt.Errorf("amount is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolFile, err := config.LoadPoolFile(cfg.PoolFile)
	if err != nil {
		return err
	}
	manual := clock.NewManual(startPoint(cfg.StartPoint, poolFile), cfg.MaxVestingDuration)
	env, err := newPoolEnv(poolFile, manual, logger)
	if err != nil {
		return err
	}

	if cfg.Script != "" {
		ops, err := sim.ReadScriptFile(cfg.Script)
		if err != nil {
			return err
		}
		runner, err := sim.NewRunner(sim.RunConfig{BatchSize: 1000}, sim.Deps{
			Pool:    env.pool,
			Time:    sim.ManualTime{Clock: manual},
			Faucet:  env.custody,
			Storage: nopStorage{},
		}, logger)
		if err != nil {
			return err
		}
		if _, err := runner.Run(ctx, ops); err != nil {
			return fmt.Errorf("replay script: %w", err)
		}
	}
	if cfg.At > 0 {
		manual.Set(cfg.At)
	}

	params := pool.SwapParams{}
	var p argAddresses
	params.Trader = p.parse("trader", cfg.Trader)
	params.Referral = p.parse("referral", cfg.Referral)
	if p.err != nil {
		return p.err
	}

	decA, decB := poolFile.TokenA.Decimals, poolFile.TokenB.Decimals
	switch strings.ToLower(cfg.Side) {
	case "a":
		params.AmountAIn, err = toRawAmount(cfg.Amount, decA)
	case "b":
		params.AmountBIn, err = toRawAmount(cfg.Amount, decB)
	default:
		return fmt.Errorf("side must be a or b, got %q", cfg.Side)
	}
	if err != nil {
		return err
	}

	before := env.pool.Snapshot()
	q, err := env.pool.QuoteSwap(params)
	if err != nil {
		return fmt.Errorf("quote swap: %w", err)
	}

	inDec, outDec := decA, decB
	if q.Direction == fees.BtoA {
		inDec, outDec = decB, decA
	}
	feeDec, feeToken := decB, poolFile.TokenB.Symbol
	if q.FeeMode.OnTokenA {
		feeDec, feeToken = decA, poolFile.TokenA.Symbol
	}

	out := quoteOutput{
		Pool:        env.pool.Address().Hex(),
		Point:       q.Point,
		Direction:   q.Direction.String(),
		AmountIn:    fromRawAmount(q.AmountIn, inDec),
		AmountOut:   fromRawAmount(q.AmountOut, outDec),
		FeePercent:  decimal.NewFromBigInt(q.FeeRate.ToBig(), -16).StringFixed(4),
		FeeToken:    feeToken,
		FeeOnInput:  q.FeeMode.OnInput,
		LPFee:       fromRawAmount(q.Fees.LP, feeDec),
		ProtocolFee: fromRawAmount(q.Fees.Protocol, feeDec),
		PartnerFee:  fromRawAmount(q.Fees.Partner, feeDec),
		ReferralFee: fromRawAmount(q.Fees.Referral, feeDec),
		PriceBefore: aggregate.PriceFromSqrtX96(before.SqrtPrice.Dec(), decA, decB),
		PriceAfter:  aggregate.PriceFromSqrtX96(q.NextSqrtPrice.Dec(), decA, decB),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type argAddresses struct {
	err error
}

func (a *argAddresses) parse(field, value string) common.Address {
	if value == "" || a.err != nil {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		a.err = fmt.Errorf("%s: invalid address %q", field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

// toRawAmount converts a token amount such as "1.5" into base units.
func toRawAmount(value string, decimals uint8) (*uint256.Int, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", value, err)
	}
	raw := amount.Shift(int32(decimals))
	if raw.IsNegative() || !raw.Equal(raw.Truncate(0)) {
		return nil, fmt.Errorf("amount %q is not a whole number of base units", value)
	}
	out, overflow := uint256.FromBig(raw.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q overflows", value)
	}
	return out, nil
}

func fromRawAmount(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).StringFixed(int32(decimals))
}
