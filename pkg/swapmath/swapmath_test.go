package swapmath

import (
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

func mustInt(t *testing.T, s string) cosmath.Int {
	t.Helper()
	v, ok := cosmath.NewIntFromString(s)
	require.True(t, ok)
	return v
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	liq := cosmath.NewInt(1_000_000_000)
	amount := cosmath.NewInt(997)

	next, err := NextSqrtPriceFromInput(fixedpoint.Q64Int, liq, amount, true)
	require.NoError(t, err)
	assert.Equal(t, mustInt(t, "18446725682324046339"), next)

	next, err = NextSqrtPriceFromInput(fixedpoint.Q64Int, liq, amount, false)
	require.NoError(t, err)
	assert.Equal(t, mustInt(t, "18446762465113393104"), next)

	// zero amount leaves the price untouched
	next, err = NextSqrtPriceFromInput(fixedpoint.Q64Int, liq, cosmath.ZeroInt(), true)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Q64Int, next)

	_, err = NextSqrtPriceFromInput(fixedpoint.Q64Int, cosmath.ZeroInt(), amount, true)
	assert.ErrorIs(t, err, ErrNonPositiveLiquidity)
}

func TestNextSqrtPriceFromOutputUnderflow(t *testing.T) {
	liq := cosmath.NewInt(1000)
	// withdrawing more token1 than the segment holds drains the price past zero
	_, err := NextSqrtPriceFromOutput(fixedpoint.Q64Int, liq, cosmath.NewInt(1_000_000_000), true)
	assert.ErrorIs(t, err, ErrPriceUnderflow)
}

func TestComputeBaseInputPartialSegment(t *testing.T) {
	target, err := tickmath.SqrtPriceX64FromTick(-600)
	require.NoError(t, err)

	step, err := Compute(
		fixedpoint.Q64Int, target,
		cosmath.NewInt(1_000_000_000), cosmath.NewInt(1000),
		2500, true, true,
	)
	require.NoError(t, err)

	assert.Equal(t, mustInt(t, "18446725682324046339"), step.SqrtPriceNextX64)
	assert.Equal(t, cosmath.NewInt(997), step.AmountIn)
	assert.Equal(t, cosmath.NewInt(996), step.AmountOut)
	assert.Equal(t, cosmath.NewInt(3), step.FeeAmount)
	// all of the input is accounted for
	assert.Equal(t, cosmath.NewInt(1000), step.AmountIn.Add(step.FeeAmount))
}

func TestComputeBaseInputOneForZero(t *testing.T) {
	target, err := tickmath.SqrtPriceX64FromTick(600)
	require.NoError(t, err)

	step, err := Compute(
		fixedpoint.Q64Int, target,
		cosmath.NewInt(1_000_000_000), cosmath.NewInt(1000),
		2500, true, false,
	)
	require.NoError(t, err)

	assert.Equal(t, mustInt(t, "18446762465113393104"), step.SqrtPriceNextX64)
	assert.Equal(t, cosmath.NewInt(997), step.AmountIn)
	assert.Equal(t, cosmath.NewInt(996), step.AmountOut)
	assert.Equal(t, cosmath.NewInt(3), step.FeeAmount)
}

func TestComputeExactOutput(t *testing.T) {
	target, err := tickmath.SqrtPriceX64FromTick(-600)
	require.NoError(t, err)

	step, err := Compute(
		fixedpoint.Q64Int, target,
		cosmath.NewInt(1_000_000_000), cosmath.NewInt(500),
		2500, false, true,
	)
	require.NoError(t, err)

	assert.Equal(t, cosmath.NewInt(500), step.AmountOut)
	assert.Equal(t, cosmath.NewInt(501), step.AmountIn)
	assert.Equal(t, cosmath.NewInt(2), step.FeeAmount)
	assert.Equal(t, mustInt(t, "18446734850337514761"), step.SqrtPriceNextX64)
}

func TestComputeReachesTarget(t *testing.T) {
	target, err := tickmath.SqrtPriceX64FromTick(-600)
	require.NoError(t, err)

	step, err := Compute(
		fixedpoint.Q64Int, target,
		cosmath.NewInt(1_000_000_000), cosmath.NewInt(1_000_000_000_000),
		2500, true, true,
	)
	require.NoError(t, err)

	assert.Equal(t, target, step.SqrtPriceNextX64)
	assert.Equal(t, cosmath.NewInt(30452989), step.AmountIn)
	assert.Equal(t, cosmath.NewInt(29553010), step.AmountOut)
	assert.Equal(t, cosmath.NewInt(76324), step.FeeAmount)
}

func TestComputeZeroLiquiditySegment(t *testing.T) {
	target, err := tickmath.SqrtPriceX64FromTick(-600)
	require.NoError(t, err)

	step, err := Compute(
		fixedpoint.Q64Int, target,
		cosmath.ZeroInt(), cosmath.NewInt(1000),
		2500, true, true,
	)
	require.NoError(t, err)

	assert.Equal(t, target, step.SqrtPriceNextX64)
	assert.True(t, step.AmountIn.IsZero())
	assert.True(t, step.AmountOut.IsZero())
	assert.True(t, step.FeeAmount.IsZero())
}
