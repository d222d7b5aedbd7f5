// Package swapmath implements the closed-form single-segment swap step: how
// far the sqrt price moves inside one liquidity segment for a given remaining
// amount, and the amounts and fee exchanged along the way.
package swapmath

import (
	"errors"

	cosmath "cosmossdk.io/math"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/liquidity"
)

var (
	// ErrPriceUnderflow reports that an exact-output request drains the
	// segment past a representable price.
	ErrPriceUnderflow = errors.New("sqrt price underflow")
	// ErrNonPositiveLiquidity guards the next-price formulas.
	ErrNonPositiveLiquidity = errors.New("liquidity must be positive")
)

// Step is the outcome of one swap segment.
type Step struct {
	SqrtPriceNextX64 cosmath.Int
	AmountIn         cosmath.Int
	AmountOut        cosmath.Int
	FeeAmount        cosmath.Int
}

// NextSqrtPriceFromInput returns the price after spending `amount` of the
// input token, rounding so the trader never receives more than exact math
// would allow.
func NextSqrtPriceFromInput(sqrtPriceX64, liq, amount cosmath.Int, zeroForOne bool) (cosmath.Int, error) {
	if !sqrtPriceX64.IsPositive() {
		return cosmath.Int{}, fixedpoint.ErrOverflow
	}
	if !liq.IsPositive() {
		return cosmath.Int{}, ErrNonPositiveLiquidity
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liq, amount, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liq, amount, true)
}

// NextSqrtPriceFromOutput returns the price after withdrawing `amount` of the
// output token.
func NextSqrtPriceFromOutput(sqrtPriceX64, liq, amount cosmath.Int, zeroForOne bool) (cosmath.Int, error) {
	if !sqrtPriceX64.IsPositive() {
		return cosmath.Int{}, fixedpoint.ErrOverflow
	}
	if !liq.IsPositive() {
		return cosmath.Int{}, ErrNonPositiveLiquidity
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liq, amount, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liq, amount, false)
}

// Token0 moves the price by Δ(1/√P) = Δx/L.
func nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liq, amount cosmath.Int, add bool) (cosmath.Int, error) {
	if amount.IsZero() {
		return sqrtPriceX64, nil
	}
	numerator1 := liq.Mul(fixedpoint.Q64Int)

	if add {
		denominator := numerator1.Add(amount.Mul(sqrtPriceX64))
		if denominator.GTE(numerator1) {
			return fixedpoint.MulDivCeil(numerator1, sqrtPriceX64, denominator), nil
		}
		tmp := numerator1.Quo(sqrtPriceX64).Add(amount)
		return fixedpoint.MulDivCeil(numerator1, cosmath.OneInt(), tmp), nil
	}

	amountMulPrice := amount.Mul(sqrtPriceX64)
	if numerator1.LTE(amountMulPrice) {
		return cosmath.Int{}, ErrPriceUnderflow
	}
	denominator := numerator1.Sub(amountMulPrice)
	return fixedpoint.MulDivCeil(numerator1, sqrtPriceX64, denominator), nil
}

// Token1 moves the price by Δ√P = Δy/L.
func nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liq, amount cosmath.Int, add bool) (cosmath.Int, error) {
	if add {
		return sqrtPriceX64.Add(amount.Mul(fixedpoint.Q64Int).Quo(liq)), nil
	}
	delta := fixedpoint.MulDivCeil(amount, fixedpoint.Q64Int, liq)
	if sqrtPriceX64.LTE(delta) {
		return cosmath.Int{}, ErrPriceUnderflow
	}
	return sqrtPriceX64.Sub(delta), nil
}

// Compute runs one swap segment from sqrtPriceCurrent toward sqrtPriceTarget.
// amountRemaining is always positive; isBaseInput selects exact-in or
// exact-out semantics. For base input the fee is carved out of the remaining
// amount before the price math. A zero-liquidity segment exchanges nothing
// and lands directly on the target boundary.
func Compute(
	sqrtPriceCurrentX64, sqrtPriceTargetX64, liq, amountRemaining cosmath.Int,
	feeRate uint32,
	isBaseInput bool,
	zeroForOne bool,
) (Step, error) {
	var step Step

	if liq.IsZero() {
		step.SqrtPriceNextX64 = sqrtPriceTargetX64
		step.AmountIn = cosmath.ZeroInt()
		step.AmountOut = cosmath.ZeroInt()
		step.FeeAmount = cosmath.ZeroInt()
		return step, nil
	}

	feeRateInt := cosmath.NewInt(int64(feeRate))

	if isBaseInput {
		amountRemainingLessFee := fixedpoint.MulDivFloor(
			amountRemaining, fixedpoint.FeeRateDenominator.Sub(feeRateInt), fixedpoint.FeeRateDenominator)
		if zeroForOne {
			step.AmountIn = liquidity.Amount0ForLiquidity(sqrtPriceTargetX64, sqrtPriceCurrentX64, liq, true)
		} else {
			step.AmountIn = liquidity.Amount1ForLiquidity(sqrtPriceCurrentX64, sqrtPriceTargetX64, liq, true)
		}
		if amountRemainingLessFee.GTE(step.AmountIn) {
			step.SqrtPriceNextX64 = sqrtPriceTargetX64
		} else {
			next, err := NextSqrtPriceFromInput(sqrtPriceCurrentX64, liq, amountRemainingLessFee, zeroForOne)
			if err != nil {
				return Step{}, err
			}
			step.SqrtPriceNextX64 = next
		}
	} else {
		if zeroForOne {
			step.AmountOut = liquidity.Amount1ForLiquidity(sqrtPriceTargetX64, sqrtPriceCurrentX64, liq, false)
		} else {
			step.AmountOut = liquidity.Amount0ForLiquidity(sqrtPriceCurrentX64, sqrtPriceTargetX64, liq, false)
		}
		if amountRemaining.GTE(step.AmountOut) {
			step.SqrtPriceNextX64 = sqrtPriceTargetX64
		} else {
			next, err := NextSqrtPriceFromOutput(sqrtPriceCurrentX64, liq, amountRemaining, zeroForOne)
			if err != nil {
				return Step{}, err
			}
			step.SqrtPriceNextX64 = next
		}
	}

	reachedTarget := step.SqrtPriceNextX64.Equal(sqrtPriceTargetX64)

	if zeroForOne {
		if !(reachedTarget && isBaseInput) {
			step.AmountIn = liquidity.Amount0ForLiquidity(step.SqrtPriceNextX64, sqrtPriceCurrentX64, liq, true)
		}
		if !(reachedTarget && !isBaseInput) {
			step.AmountOut = liquidity.Amount1ForLiquidity(step.SqrtPriceNextX64, sqrtPriceCurrentX64, liq, false)
		}
	} else {
		if !(reachedTarget && isBaseInput) {
			step.AmountIn = liquidity.Amount1ForLiquidity(sqrtPriceCurrentX64, step.SqrtPriceNextX64, liq, true)
		}
		if !(reachedTarget && !isBaseInput) {
			step.AmountOut = liquidity.Amount0ForLiquidity(sqrtPriceCurrentX64, step.SqrtPriceNextX64, liq, false)
		}
	}

	// exact-out never hands back more than requested
	if !isBaseInput && step.AmountOut.GT(amountRemaining) {
		step.AmountOut = amountRemaining
	}

	if isBaseInput && !reachedTarget {
		// segment consumed everything; the leftover after amountIn is the fee
		step.FeeAmount = amountRemaining.Sub(step.AmountIn)
	} else {
		step.FeeAmount = fixedpoint.MulDivCeil(step.AmountIn, feeRateInt, fixedpoint.FeeRateDenominator.Sub(feeRateInt))
	}

	return step, nil
}
