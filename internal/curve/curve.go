// Package curve implements the closed-form token amount and price math for a
// single bounded liquidity range. Prices are Q64.96 square roots of token B per
// token A. Amounts entering the pool round up, amounts leaving round down.
package curve

import (
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
)

func order(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Gt(b) {
		return b, a
	}
	return a, b
}

// Amount0Delta returns the token A amount spanned by liquidity between two prices:
// L * 2^96 * (upper - lower) / upper / lower.
func Amount0Delta(sqrtLower, sqrtUpper, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	sqrtLower, sqrtUpper = order(sqrtLower, sqrtUpper)
	if sqrtLower.IsZero() {
		return nil, poolerr.ErrDivideByZero
	}
	if !fm.FitsU128(liquidity) {
		return nil, poolerr.ErrOverflow
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtUpper, sqrtLower)

	if roundUp {
		inner, err := fm.MulDivRoundingUp(numerator1, numerator2, sqrtUpper)
		if err != nil {
			return nil, err
		}
		return fm.MulDivRoundingUp(inner, fm.One, sqrtLower)
	}

	inner, err := fm.MulDiv(numerator1, numerator2, sqrtUpper)
	if err != nil {
		return nil, err
	}
	return inner.Div(inner, sqrtLower), nil
}

// Amount1Delta returns the token B amount spanned by liquidity between two prices:
// L * (upper - lower) / 2^96.
func Amount1Delta(sqrtLower, sqrtUpper, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	sqrtLower, sqrtUpper = order(sqrtLower, sqrtUpper)
	if !fm.FitsU128(liquidity) {
		return nil, poolerr.ErrOverflow
	}
	diff := new(uint256.Int).Sub(sqrtUpper, sqrtLower)
	return fm.MulDivRounding(liquidity, diff, fm.Q96, roundUp)
}

// NextSqrtPriceFromInput returns the price after adding amountIn of the input
// token. zeroForOne means token A in, price moves down.
func NextSqrtPriceFromInput(sqrtPrice, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPrice.IsZero() || liquidity.IsZero() {
		return nil, poolerr.ErrDivideByZero
	}
	if zeroForOne {
		return nextFromAmount0RoundingUp(sqrtPrice, liquidity, amountIn, true)
	}
	return nextFromAmount1RoundingDown(sqrtPrice, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after removing amountOut of the
// output token. zeroForOne means token B out, price moves down.
func NextSqrtPriceFromOutput(sqrtPrice, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if sqrtPrice.IsZero() || liquidity.IsZero() {
		return nil, poolerr.ErrDivideByZero
	}
	if zeroForOne {
		return nextFromAmount1RoundingDown(sqrtPrice, liquidity, amountOut, false)
	}
	return nextFromAmount0RoundingUp(sqrtPrice, liquidity, amountOut, false)
}

func nextFromAmount0RoundingUp(sqrtPrice, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return sqrtPrice.Clone(), nil
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	product, overflow := new(uint256.Int).MulOverflow(amount, sqrtPrice)

	if add {
		if !overflow {
			denominator, carry := new(uint256.Int).AddOverflow(numerator1, product)
			if !carry {
				return fm.MulDivRoundingUp(numerator1, sqrtPrice, denominator)
			}
		}
		// numerator1 / (numerator1 / sqrtPrice + amount), rounded up
		denominator, err := fm.Add(new(uint256.Int).Div(numerator1, sqrtPrice), amount)
		if err != nil {
			return nil, err
		}
		return fm.MulDivRoundingUp(numerator1, fm.One, denominator)
	}

	if overflow || !numerator1.Gt(product) {
		return nil, poolerr.ErrPriceRangeViolation
	}
	denominator := new(uint256.Int).Sub(numerator1, product)
	next, err := fm.MulDivRoundingUp(numerator1, sqrtPrice, denominator)
	if err != nil {
		return nil, err
	}
	if next.Gt(fm.MaxU160) {
		return nil, poolerr.ErrPriceOutOfBits
	}
	return next, nil
}

func nextFromAmount1RoundingDown(sqrtPrice, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if add {
		var quotient *uint256.Int
		if amount.Cmp(fm.MaxU160) <= 0 {
			quotient = new(uint256.Int).Div(new(uint256.Int).Lsh(amount, 96), liquidity)
		} else {
			q, err := fm.MulDiv(amount, fm.Q96, liquidity)
			if err != nil {
				return nil, err
			}
			quotient = q
		}
		next, err := fm.Add(sqrtPrice, quotient)
		if err != nil {
			return nil, err
		}
		if next.Gt(fm.MaxU160) {
			return nil, poolerr.ErrPriceOutOfBits
		}
		return next, nil
	}

	quotient, err := fm.MulDivRoundingUp(amount, fm.Q96, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtPrice.Gt(quotient) {
		return nil, poolerr.ErrPriceRangeViolation
	}
	return new(uint256.Int).Sub(sqrtPrice, quotient), nil
}
