// Package fees computes trading fee rates and splits collected fees between
// liquidity providers, protocol, partner and referrer.
//
// Rates are fixed point with FeeDenominator = 1e18. Configured cliff rates and
// linear reductions are expressed in 1e-6 units and scaled by 1e12.
package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
	"poolcore/internal/volatility"
)

const (
	// ConfigScale lifts 1e-6 configured rates into 1e18 units.
	ConfigScale = 1_000_000_000_000
	// ReductionScale is the denominator of the exponential reduction factor.
	ReductionScale = 1_000_000
	// MaxNumberOfPeriod bounds the decay schedule length.
	MaxNumberOfPeriod = 1<<16 - 1
)

var (
	FeeDenominator = uint256.NewInt(1_000_000_000_000_000_000)
	MaxFeeRate     = uint256.NewInt(100_000_000_000_000_000)
)

// SchedulerMode selects how the base fee decays.
type SchedulerMode uint8

const (
	ModeLinear SchedulerMode = iota
	ModeExponential
)

func (m SchedulerMode) String() string {
	if m == ModeExponential {
		return "exponential"
	}
	return "linear"
}

// BaseFee is the time-decayed part of the fee.
type BaseFee struct {
	CliffFeeRate    uint64        `json:"cliffFeeRate"`
	Mode            SchedulerMode `json:"mode"`
	PeriodFrequency uint64        `json:"periodFrequency"`
	NumberOfPeriod  uint64        `json:"numberOfPeriod"`
	ReductionFactor uint64        `json:"reductionFactor"`
}

// Config is the pool fee configuration.
type Config struct {
	Base               BaseFee           `json:"base"`
	Dynamic            volatility.Params `json:"dynamic"`
	ProtocolFeePercent uint8             `json:"protocolFeePercent"`
	PartnerFeePercent  uint8             `json:"partnerFeePercent"`
	ReferralFeePercent uint8             `json:"referralFeePercent"`
}

// Validate rejects configurations the scheduler cannot honor.
func (c Config) Validate() error {
	for _, pct := range []uint8{c.ProtocolFeePercent, c.PartnerFeePercent, c.ReferralFeePercent} {
		if pct > 100 {
			return poolerr.ErrInvalidPercentage
		}
	}
	cliff := new(uint256.Int).Mul(uint256.NewInt(c.Base.CliffFeeRate), uint256.NewInt(ConfigScale))
	if cliff.Gt(MaxFeeRate) {
		return fmt.Errorf("cliff fee rate %d: %w", c.Base.CliffFeeRate, poolerr.ErrInvalidFeeConfig)
	}
	if c.Base.PeriodFrequency > 0 {
		if c.Base.NumberOfPeriod == 0 || c.Base.NumberOfPeriod > MaxNumberOfPeriod {
			return fmt.Errorf("number of period %d: %w", c.Base.NumberOfPeriod, poolerr.ErrInvalidFeeConfig)
		}
		if c.Base.Mode == ModeExponential && c.Base.ReductionFactor >= ReductionScale {
			return fmt.Errorf("reduction factor %d: %w", c.Base.ReductionFactor, poolerr.ErrInvalidFeeConfig)
		}
	}
	if c.Dynamic.Enabled && c.Dynamic.BinStep == 0 {
		return fmt.Errorf("dynamic fee without bin step: %w", poolerr.ErrInvalidFeeConfig)
	}
	return nil
}

// BaseFeeRate returns the decayed base rate at now. Before activation the
// schedule is treated as fully decayed.
func BaseFeeRate(b BaseFee, now, activation uint64) *uint256.Int {
	cliff := new(uint256.Int).Mul(uint256.NewInt(b.CliffFeeRate), uint256.NewInt(ConfigScale))
	if b.PeriodFrequency == 0 {
		return cliff
	}

	var periods uint64
	if now < activation {
		periods = b.NumberOfPeriod
	} else {
		periods = (now - activation) / b.PeriodFrequency
		if periods > b.NumberOfPeriod {
			periods = b.NumberOfPeriod
		}
	}

	switch b.Mode {
	case ModeExponential:
		keep := uint256.NewInt(ReductionScale - b.ReductionFactor)
		scale := uint256.NewInt(ReductionScale)
		rate := cliff
		for i := uint64(0); i < periods && !rate.IsZero(); i++ {
			rate.Mul(rate, keep)
			rate.Div(rate, scale)
		}
		return rate
	default:
		reduction := new(uint256.Int).Mul(uint256.NewInt(b.ReductionFactor), uint256.NewInt(ConfigScale))
		reduction.Mul(reduction, uint256.NewInt(periods))
		if reduction.Cmp(cliff) >= 0 {
			return new(uint256.Int)
		}
		return cliff.Sub(cliff, reduction)
	}
}

// VariableFeeRate returns ceil((va*binStep)^2 * variableFeeControl / 100).
func VariableFeeRate(p volatility.Params, s volatility.State) (*uint256.Int, error) {
	if !p.Enabled || p.VariableFeeControl == 0 || s.VolatilityAccumulator == nil {
		return new(uint256.Int), nil
	}
	vaBin, err := fm.Mul(s.VolatilityAccumulator, uint256.NewInt(p.BinStep))
	if err != nil {
		return nil, err
	}
	squared, err := fm.Mul(vaBin, vaBin)
	if err != nil {
		return nil, err
	}
	return fm.MulDivRoundingUp(squared, uint256.NewInt(p.VariableFeeControl), uint256.NewInt(100))
}

// TotalFeeRate returns min(MaxFeeRate, base + variable).
func TotalFeeRate(cfg Config, s volatility.State, now, activation uint64) (*uint256.Int, error) {
	variable, err := VariableFeeRate(cfg.Dynamic, s)
	if err != nil {
		return nil, fmt.Errorf("variable fee: %w", err)
	}
	total, overflow := new(uint256.Int).AddOverflow(BaseFeeRate(cfg.Base, now, activation), variable)
	if overflow || total.Gt(MaxFeeRate) {
		return MaxFeeRate.Clone(), nil
	}
	return total, nil
}

// FeeOnAmount returns ceil(amount*rate/FeeDenominator).
func FeeOnAmount(amount, rate *uint256.Int) (*uint256.Int, error) {
	return fm.MulDivRoundingUp(amount, rate, FeeDenominator)
}
