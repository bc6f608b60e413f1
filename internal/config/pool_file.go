package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"poolcore/internal/fees"
	fm "poolcore/internal/fullmath"
	"poolcore/internal/model"
	"poolcore/internal/pool"
	"poolcore/internal/volatility"
)

// PoolFile is a pool definition read from YAML or JSON.
//
// Prices are given either as Q64.96 square roots or as human prices of token
// A in token B; the raw field wins when both are set.
type PoolFile struct {
	TokenA          model.TokenMeta `mapstructure:"token_a"`
	TokenB          model.TokenMeta `mapstructure:"token_b"`
	SqrtMinPriceX96 string          `mapstructure:"sqrt_min_price_x96"`
	SqrtMaxPriceX96 string          `mapstructure:"sqrt_max_price_x96"`
	SqrtPriceX96    string          `mapstructure:"sqrt_price_x96"`
	MinPrice        string          `mapstructure:"min_price"`
	MaxPrice        string          `mapstructure:"max_price"`
	Price           string          `mapstructure:"price"`
	CollectFeeMode  string          `mapstructure:"collect_fee_mode"`
	Fees            FeeFile         `mapstructure:"fees"`
	Partner         string          `mapstructure:"partner"`
	Treasury        string          `mapstructure:"treasury"`
	ActivationPoint uint64          `mapstructure:"activation_point"`
	Rewards         []RewardFile    `mapstructure:"rewards"`
}

// FeeFile is the fee section of a pool definition. Rates are in 1e-6 units.
type FeeFile struct {
	CliffFeeRate       uint64       `mapstructure:"cliff_fee_rate"`
	Scheduler          string       `mapstructure:"scheduler"`
	PeriodFrequency    uint64       `mapstructure:"period_frequency"`
	NumberOfPeriod     uint64       `mapstructure:"number_of_period"`
	ReductionFactor    uint64       `mapstructure:"reduction_factor"`
	Dynamic            *DynamicFile `mapstructure:"dynamic"`
	ProtocolFeePercent uint8        `mapstructure:"protocol_fee_percent"`
	PartnerFeePercent  uint8        `mapstructure:"partner_fee_percent"`
	ReferralFeePercent uint8        `mapstructure:"referral_fee_percent"`
}

// DynamicFile enables the volatility fee when present.
type DynamicFile struct {
	BinStep                  uint64 `mapstructure:"bin_step"`
	FilterPeriod             uint64 `mapstructure:"filter_period"`
	DecayPeriod              uint64 `mapstructure:"decay_period"`
	ReductionFactor          uint64 `mapstructure:"reduction_factor"`
	MaxVolatilityAccumulator uint64 `mapstructure:"max_volatility_accumulator"`
	VariableFeeControl       uint64 `mapstructure:"variable_fee_control"`
}

// RewardFile declares a reward channel to initialize.
type RewardFile struct {
	Index    int    `mapstructure:"index"`
	Token    string `mapstructure:"token"`
	Funder   string `mapstructure:"funder"`
	Duration uint64 `mapstructure:"duration"`
}

// LoadPoolFile reads a pool definition. The format follows the file extension.
func LoadPoolFile(path string) (PoolFile, error) {
	if path == "" {
		return PoolFile{}, fmt.Errorf("pool file is required")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return PoolFile{}, fmt.Errorf("read pool file: %w", err)
	}
	var f PoolFile
	if err := v.Unmarshal(&f); err != nil {
		return PoolFile{}, fmt.Errorf("parse pool file: %w", err)
	}
	return f, nil
}

// PoolConfig validates the definition into a pool.Config.
func (f PoolFile) PoolConfig() (pool.Config, error) {
	var cfg pool.Config
	var err error

	if cfg.TokenA, err = parseAddress("token_a.address", f.TokenA.Address, true); err != nil {
		return pool.Config{}, err
	}
	if cfg.TokenB, err = parseAddress("token_b.address", f.TokenB.Address, true); err != nil {
		return pool.Config{}, err
	}
	if cfg.Partner, err = parseAddress("partner", f.Partner, false); err != nil {
		return pool.Config{}, err
	}
	if cfg.Treasury, err = parseAddress("treasury", f.Treasury, false); err != nil {
		return pool.Config{}, err
	}

	if cfg.SqrtMinPrice, err = f.sqrtPrice("min", f.SqrtMinPriceX96, f.MinPrice); err != nil {
		return pool.Config{}, err
	}
	if cfg.SqrtMaxPrice, err = f.sqrtPrice("max", f.SqrtMaxPriceX96, f.MaxPrice); err != nil {
		return pool.Config{}, err
	}
	if cfg.SqrtPrice, err = f.sqrtPrice("initial", f.SqrtPriceX96, f.Price); err != nil {
		return pool.Config{}, err
	}

	switch strings.ToLower(f.CollectFeeMode) {
	case "", "both", "both_token":
		cfg.CollectFeeMode = fees.CollectBothToken
	case "only_b":
		cfg.CollectFeeMode = fees.CollectOnlyB
	default:
		return pool.Config{}, fmt.Errorf("unknown collect_fee_mode %q", f.CollectFeeMode)
	}

	if cfg.Fees, err = f.Fees.feesConfig(); err != nil {
		return pool.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return pool.Config{}, fmt.Errorf("validate pool file: %w", err)
	}
	return cfg, nil
}

// InitializeRewards opens the declared reward channels on p.
func (f PoolFile) InitializeRewards(p *pool.Pool) error {
	for _, r := range f.Rewards {
		tkn, err := parseAddress("rewards.token", r.Token, true)
		if err != nil {
			return err
		}
		funder, err := parseAddress("rewards.funder", r.Funder, true)
		if err != nil {
			return err
		}
		if err := p.InitializeReward(r.Index, tkn, funder, r.Duration); err != nil {
			return fmt.Errorf("initialize reward %d: %w", r.Index, err)
		}
	}
	return nil
}

func (ff FeeFile) feesConfig() (fees.Config, error) {
	cfg := fees.Config{
		Base: fees.BaseFee{
			CliffFeeRate:    ff.CliffFeeRate,
			PeriodFrequency: ff.PeriodFrequency,
			NumberOfPeriod:  ff.NumberOfPeriod,
			ReductionFactor: ff.ReductionFactor,
		},
		ProtocolFeePercent: ff.ProtocolFeePercent,
		PartnerFeePercent:  ff.PartnerFeePercent,
		ReferralFeePercent: ff.ReferralFeePercent,
	}
	switch strings.ToLower(ff.Scheduler) {
	case "", "linear":
		cfg.Base.Mode = fees.ModeLinear
	case "exponential":
		cfg.Base.Mode = fees.ModeExponential
	default:
		return fees.Config{}, fmt.Errorf("unknown fee scheduler %q", ff.Scheduler)
	}
	if d := ff.Dynamic; d != nil {
		cfg.Dynamic = volatility.Params{
			Enabled:                  true,
			BinStep:                  d.BinStep,
			FilterPeriod:             d.FilterPeriod,
			DecayPeriod:              d.DecayPeriod,
			ReductionFactor:          d.ReductionFactor,
			MaxVolatilityAccumulator: d.MaxVolatilityAccumulator,
			VariableFeeControl:       d.VariableFeeControl,
		}
	}
	return cfg, nil
}

func parseAddress(field, value string, required bool) (common.Address, error) {
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func (f PoolFile) sqrtPrice(which, raw, human string) (*uint256.Int, error) {
	if raw != "" {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("%s sqrt price %q: %w", which, raw, err)
		}
		return v, nil
	}
	if human == "" {
		return nil, fmt.Errorf("%s price is required", which)
	}
	price, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("%s price %q: %w", which, human, err)
	}
	return SqrtPriceX96(price, f.TokenA.Decimals, f.TokenB.Decimals)
}

// SqrtPriceX96 converts a human price of token A in token B into a Q64.96
// square root of the raw price.
func SqrtPriceX96(price decimal.Decimal, decimalsA, decimalsB uint8) (*uint256.Int, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("price must be positive")
	}
	raw := price.Shift(int32(decimalsB) - int32(decimalsA))

	f, ok := new(big.Float).SetPrec(256).SetString(raw.String())
	if !ok {
		return nil, fmt.Errorf("price %s out of range", price)
	}
	f.Sqrt(f)
	f.Mul(f, new(big.Float).SetInt(fm.Q96.ToBig()))

	out, _ := f.Int(nil)
	v, overflow := uint256.FromBig(out)
	if overflow || v.BitLen() > 160 {
		return nil, fmt.Errorf("price %s: sqrt does not fit 160 bits", price)
	}
	return v, nil
}
