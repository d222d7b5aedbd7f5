// Package liquidity converts between liquidity values and token amounts for a
// sqrt price range. Rounding is asymmetric on purpose: amounts charged to a
// depositor round up, amounts paid to a withdrawer round down, so truncation
// can never under-collect or over-pay.
package liquidity

import (
	"errors"

	cosmath "cosmossdk.io/math"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
)

var (
	// ErrLiquidityUnderflow reports removing more liquidity than exists.
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
	// ErrZeroPriceRange reports a degenerate range with equal bounds.
	ErrZeroPriceRange = errors.New("zero width price range")
)

// Amount0ForLiquidity returns the token0 amount held by `liquidity` between
// the two sqrt prices (order-insensitive).
//
//	amount0 = L * 2^64 * (sqrtB - sqrtA) / (sqrtA * sqrtB)
func Amount0ForLiquidity(sqrtPriceAX64, sqrtPriceBX64, liquidity cosmath.Int, roundUp bool) cosmath.Int {
	if sqrtPriceAX64.GT(sqrtPriceBX64) {
		sqrtPriceAX64, sqrtPriceBX64 = sqrtPriceBX64, sqrtPriceAX64
	}
	numerator1 := liquidity.Mul(fixedpoint.Q64Int)
	numerator2 := sqrtPriceBX64.Sub(sqrtPriceAX64)

	if roundUp {
		tmp := fixedpoint.MulDivCeil(numerator1, numerator2, sqrtPriceBX64)
		return fixedpoint.MulDivCeil(tmp, cosmath.OneInt(), sqrtPriceAX64)
	}
	return fixedpoint.MulDivFloor(numerator1, numerator2, sqrtPriceBX64).Quo(sqrtPriceAX64)
}

// Amount1ForLiquidity returns the token1 amount held by `liquidity` between
// the two sqrt prices (order-insensitive).
//
//	amount1 = L * (sqrtB - sqrtA) / 2^64
func Amount1ForLiquidity(sqrtPriceAX64, sqrtPriceBX64, liquidity cosmath.Int, roundUp bool) cosmath.Int {
	if sqrtPriceAX64.GT(sqrtPriceBX64) {
		sqrtPriceAX64, sqrtPriceBX64 = sqrtPriceBX64, sqrtPriceAX64
	}
	diff := sqrtPriceBX64.Sub(sqrtPriceAX64)
	if roundUp {
		return fixedpoint.MulDivCeil(liquidity, diff, fixedpoint.Q64Int)
	}
	return fixedpoint.MulDivFloor(liquidity, diff, fixedpoint.Q64Int)
}

// AmountsForLiquidity splits `liquidity` over [lower, upper] relative to the
// current price: below the range everything is token0, above it token1, and
// inside it the current price is the split point.
func AmountsForLiquidity(sqrtPriceCurrentX64, sqrtPriceLowerX64, sqrtPriceUpperX64, liquidity cosmath.Int, roundUp bool) (amount0, amount1 cosmath.Int) {
	switch {
	case sqrtPriceCurrentX64.LT(sqrtPriceLowerX64):
		amount0 = Amount0ForLiquidity(sqrtPriceLowerX64, sqrtPriceUpperX64, liquidity, roundUp)
		amount1 = cosmath.ZeroInt()
	case sqrtPriceCurrentX64.LT(sqrtPriceUpperX64):
		amount0 = Amount0ForLiquidity(sqrtPriceCurrentX64, sqrtPriceUpperX64, liquidity, roundUp)
		amount1 = Amount1ForLiquidity(sqrtPriceLowerX64, sqrtPriceCurrentX64, liquidity, roundUp)
	default:
		amount0 = cosmath.ZeroInt()
		amount1 = Amount1ForLiquidity(sqrtPriceLowerX64, sqrtPriceUpperX64, liquidity, roundUp)
	}
	return amount0, amount1
}

// LiquidityFromAmount0 returns the largest liquidity fundable with amount0
// over the given range.
func LiquidityFromAmount0(sqrtPriceAX64, sqrtPriceBX64, amount0 cosmath.Int) (cosmath.Int, error) {
	if sqrtPriceAX64.GT(sqrtPriceBX64) {
		sqrtPriceAX64, sqrtPriceBX64 = sqrtPriceBX64, sqrtPriceAX64
	}
	diff := sqrtPriceBX64.Sub(sqrtPriceAX64)
	if diff.IsZero() {
		return cosmath.Int{}, ErrZeroPriceRange
	}
	intermediate := fixedpoint.MulDivFloor(sqrtPriceAX64, sqrtPriceBX64, fixedpoint.Q64Int)
	return fixedpoint.MulDivFloor(amount0, intermediate, diff), nil
}

// LiquidityFromAmount1 returns the largest liquidity fundable with amount1
// over the given range.
func LiquidityFromAmount1(sqrtPriceAX64, sqrtPriceBX64, amount1 cosmath.Int) (cosmath.Int, error) {
	if sqrtPriceAX64.GT(sqrtPriceBX64) {
		sqrtPriceAX64, sqrtPriceBX64 = sqrtPriceBX64, sqrtPriceAX64
	}
	diff := sqrtPriceBX64.Sub(sqrtPriceAX64)
	if diff.IsZero() {
		return cosmath.Int{}, ErrZeroPriceRange
	}
	return fixedpoint.MulDivFloor(amount1, fixedpoint.Q64Int, diff), nil
}

// LiquidityFromAmounts returns the largest liquidity fundable with both
// amounts at the current price; inside the range it is the minimum of the two
// single-sided values.
func LiquidityFromAmounts(sqrtPriceCurrentX64, sqrtPriceLowerX64, sqrtPriceUpperX64, amount0, amount1 cosmath.Int) (cosmath.Int, error) {
	switch {
	case sqrtPriceCurrentX64.LTE(sqrtPriceLowerX64):
		return LiquidityFromAmount0(sqrtPriceLowerX64, sqrtPriceUpperX64, amount0)
	case sqrtPriceCurrentX64.LT(sqrtPriceUpperX64):
		l0, err := LiquidityFromAmount0(sqrtPriceCurrentX64, sqrtPriceUpperX64, amount0)
		if err != nil {
			return cosmath.Int{}, err
		}
		l1, err := LiquidityFromAmount1(sqrtPriceLowerX64, sqrtPriceCurrentX64, amount1)
		if err != nil {
			return cosmath.Int{}, err
		}
		if l0.LT(l1) {
			return l0, nil
		}
		return l1, nil
	default:
		return LiquidityFromAmount1(sqrtPriceLowerX64, sqrtPriceUpperX64, amount1)
	}
}

// AddDelta applies a signed liquidity delta, failing on underflow or on
// overflowing the 128-bit liquidity width.
func AddDelta(liquidity, delta cosmath.Int) (cosmath.Int, error) {
	next := liquidity.Add(delta)
	if next.IsNegative() {
		return cosmath.Int{}, ErrLiquidityUnderflow
	}
	if next.GT(fixedpoint.MaxUint128Int) {
		return cosmath.Int{}, fixedpoint.ErrOverflow
	}
	return next, nil
}
