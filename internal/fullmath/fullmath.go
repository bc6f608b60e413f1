package fullmath

import (
	"github.com/holiman/uint256"

	"poolcore/internal/poolerr"
)

var (
	Zero    = uint256.NewInt(0)
	One     = uint256.NewInt(1)
	Q64     = new(uint256.Int).Lsh(uint256.NewInt(1), 64)
	Q96     = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128    = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	MaxU128 = new(uint256.Int).Sub(Q128, One)
	MaxU160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), One)
)

// MulDiv returns floor(a*b/denominator) with a 512-bit intermediate product.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, poolerr.ErrDivideByZero
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, poolerr.ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp returns ceil(a*b/denominator).
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	result, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denominator).IsZero() {
		return result, nil
	}
	if result.Eq(maxU256) {
		return nil, poolerr.ErrOverflow
	}
	return result.AddUint64(result, 1), nil
}

// MulDivRounding dispatches on roundUp.
func MulDivRounding(a, b, denominator *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if roundUp {
		return MulDivRoundingUp(a, b, denominator)
	}
	return MulDiv(a, b, denominator)
}

// MulShr returns (a*b) >> offset rounded down, using a 512-bit intermediate.
func MulShr(a, b *uint256.Int, offset uint) (*uint256.Int, error) {
	return MulDiv(a, b, new(uint256.Int).Lsh(One, offset))
}

// ShlDiv returns (x << offset) / denominator rounded down.
func ShlDiv(x *uint256.Int, offset uint, denominator *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, new(uint256.Int).Lsh(One, offset), denominator)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, poolerr.ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, poolerr.ErrUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, poolerr.ErrOverflow
	}
	return product, nil
}

// AddU128 adds and checks the result still fits in 128 bits.
func AddU128(a, b *uint256.Int) (*uint256.Int, error) {
	sum, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	if !FitsU128(sum) {
		return nil, poolerr.ErrOverflow
	}
	return sum, nil
}

// FitsU128 reports whether x < 2^128.
func FitsU128(x *uint256.Int) bool {
	return x.BitLen() <= 128
}

// Percent returns floor(x*pct/100).
func Percent(x *uint256.Int, pct uint8) (*uint256.Int, error) {
	return MulDiv(x, uint256.NewInt(uint64(pct)), uint256.NewInt(100))
}

// Min returns a copy of the smaller value.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

var maxU256 = new(uint256.Int).SetAllOne()
