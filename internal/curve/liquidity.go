package curve

import (
	"github.com/holiman/uint256"

	fm "poolcore/internal/fullmath"
	"poolcore/internal/poolerr"
)

// AmountsForLiquidity returns the token amounts backing liquidity at the current
// price within [sqrtMin, sqrtMax]: token A covers [price, max], token B covers
// [min, price].
func AmountsForLiquidity(sqrtPrice, sqrtMin, sqrtMax, liquidity *uint256.Int, roundUp bool) (amountA, amountB *uint256.Int, err error) {
	amountA, err = Amount0Delta(sqrtPrice, sqrtMax, liquidity, roundUp)
	if err != nil {
		return nil, nil, err
	}
	amountB, err = Amount1Delta(sqrtMin, sqrtPrice, liquidity, roundUp)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// LiquidityFromAmounts returns the largest liquidity that both budgets can back.
func LiquidityFromAmounts(sqrtPrice, sqrtMin, sqrtMax, amountA, amountB *uint256.Int) (*uint256.Int, error) {
	if sqrtMin.Gt(sqrtPrice) || sqrtPrice.Gt(sqrtMax) || !sqrtMax.Gt(sqrtMin) {
		return nil, poolerr.ErrInvalidPriceRange
	}

	var fromA, fromB *uint256.Int
	if sqrtMax.Gt(sqrtPrice) {
		// amountA * price * max / 2^96 / (max - price)
		intermediate, err := fm.MulDiv(sqrtPrice, sqrtMax, fm.Q96)
		if err != nil {
			return nil, err
		}
		fromA, err = fm.MulDiv(amountA, intermediate, new(uint256.Int).Sub(sqrtMax, sqrtPrice))
		if err != nil {
			return nil, err
		}
	}
	if sqrtPrice.Gt(sqrtMin) {
		var err error
		fromB, err = fm.MulDiv(amountB, fm.Q96, new(uint256.Int).Sub(sqrtPrice, sqrtMin))
		if err != nil {
			return nil, err
		}
	}

	var liquidity *uint256.Int
	switch {
	case fromA == nil:
		liquidity = fromB
	case fromB == nil:
		liquidity = fromA
	default:
		liquidity = fm.Min(fromA, fromB)
	}
	if !fm.FitsU128(liquidity) {
		return nil, poolerr.ErrOverflow
	}
	return liquidity, nil
}
