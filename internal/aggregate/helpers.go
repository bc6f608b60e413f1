package aggregate

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const ratioScale = 18

var (
	q192        = toDecimal(new(uint256.Int).Lsh(uint256.NewInt(1), 192))
	yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
)

func toDecimal(value *uint256.Int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value.ToBig(), 0)
}

func formatTokenAmount(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.Dec()
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).StringFixed(int32(decimals))
}

func computeFeeRates(feeA, feeB, tvlA, tvlB *uint256.Int) (*string, *string) {
	var feeRateA *string
	var feeRateB *string

	if rate := computeRate(feeA, tvlA); rate != "" {
		feeRateA = &rate
	}
	if rate := computeRate(feeB, tvlB); rate != "" {
		feeRateB = &rate
	}
	return feeRateA, feeRateB
}

func computeRate(fee, tvl *uint256.Int) string {
	if fee == nil || fee.IsZero() || tvl == nil || tvl.IsZero() {
		return ""
	}
	return toDecimal(fee).DivRound(toDecimal(tvl), ratioScale).StringFixed(ratioScale)
}

// computeAPR annualises a window fee rate. It is only defined when exactly
// one side collected fees.
func computeAPR(feeRateA, feeRateB *string, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	var selected string
	if feeRateA != nil && feeRateB == nil {
		selected = *feeRateA
	} else if feeRateB != nil && feeRateA == nil {
		selected = *feeRateB
	} else {
		return nil
	}

	rate, err := decimal.NewFromString(selected)
	if err != nil {
		return nil
	}
	apr := rate.Mul(yearSeconds).DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale)
	val := apr.StringFixed(ratioScale)
	return &val
}

// PriceFromSqrtX96 returns the price of token A in token B, adjusted for
// token decimals.
func PriceFromSqrtX96(sqrtPriceX96 string, decimalsA, decimalsB uint8) *string {
	if sqrtPriceX96 == "" {
		return nil
	}
	sqrt, err := decimal.NewFromString(sqrtPriceX96)
	if err != nil || sqrt.IsZero() {
		return nil
	}
	price := sqrt.Mul(sqrt).DivRound(q192, ratioScale+int32(decimalsB))
	price = price.Shift(int32(decimalsA) - int32(decimalsB)).Round(ratioScale)
	val := price.StringFixed(ratioScale)
	return &val
}
