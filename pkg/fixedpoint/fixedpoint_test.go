package fixedpoint

import (
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestMulDivRounding(t *testing.T) {
	a := cosmath.NewInt(10)
	b := cosmath.NewInt(10)
	den := cosmath.NewInt(3)

	assert.Equal(t, int64(33), MulDivFloor(a, b, den).Int64())
	assert.Equal(t, int64(34), MulDivCeil(a, b, den).Int64())

	// exact division rounds identically in both directions
	assert.Equal(t, int64(25), MulDivFloor(a, b, cosmath.NewInt(4)).Int64())
	assert.Equal(t, int64(25), MulDivCeil(a, b, cosmath.NewInt(4)).Int64())
}

func TestMulDivWideIntermediate(t *testing.T) {
	// a*b exceeds 128 bits but the quotient fits
	a := MaxUint128Int
	b := cosmath.NewInt(1 << 32)
	got := MulDivFloor(a, b, b)
	assert.True(t, got.Equal(MaxUint128Int))
}

func TestToUint64Bounds(t *testing.T) {
	v, err := ToUint64(MaxUint64Int)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)

	_, err = ToUint64(MaxUint64Int.Add(cosmath.OneInt()))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = ToUint64(cosmath.NewInt(-1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestToUint128RoundTrip(t *testing.T) {
	v := cosmath.NewIntFromBigInt(Q64).MulRaw(12345)
	u, err := ToUint128(v)
	require.NoError(t, err)
	assert.True(t, IntFromU128(u).Equal(v))

	_, err = ToUint128(MaxUint128Int.Add(cosmath.OneInt()))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestWrapDelta(t *testing.T) {
	latest := uint128.From64(5)
	last := uint128.Max.Sub(uint128.From64(4))

	// counter wrapped past zero: delta is 10
	assert.Equal(t, uint128.From64(10), WrapDelta(latest, last))
	assert.Equal(t, uint128.From64(0), WrapDelta(latest, latest))
}
