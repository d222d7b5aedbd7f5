package tickmath

import (
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
)

func TestSqrtPriceX64FromTickKnownValues(t *testing.T) {
	p, err := SqrtPriceX64FromTick(0)
	require.NoError(t, err)
	assert.True(t, p.Equal(fixedpoint.Q64Int), "tick 0 is price 1.0")

	min, err := SqrtPriceX64FromTick(MinTick)
	require.NoError(t, err)
	assert.True(t, min.Equal(MinSqrtPriceX64))

	max, err := SqrtPriceX64FromTick(MaxTick)
	require.NoError(t, err)
	assert.True(t, max.Equal(MaxSqrtPriceX64))
}

func TestSqrtPriceMonotonic(t *testing.T) {
	prev, err := SqrtPriceX64FromTick(-1000)
	require.NoError(t, err)
	for tick := int32(-999); tick <= 1000; tick++ {
		cur, err := SqrtPriceX64FromTick(tick)
		require.NoError(t, err)
		assert.True(t, cur.GT(prev), "sqrt price must grow with tick (tick %d)", tick)
		prev = cur
	}
}

func TestTickSqrtPriceRoundTrip(t *testing.T) {
	ticks := []int32{MinTick, -443635, -221818, -60000, -600, -61, -1, 0, 1, 61, 600, 60000, 221818, 443635, MaxTick}
	for _, tick := range ticks {
		price, err := SqrtPriceX64FromTick(tick)
		require.NoError(t, err)
		back, err := TickFromSqrtPriceX64(price)
		require.NoError(t, err)
		assert.Equal(t, tick, back, "round trip for tick %d", tick)
	}
}

func TestTickFromSqrtPriceBetweenTicks(t *testing.T) {
	// a price strictly between tick 100 and tick 101 resolves to 100
	p100, err := SqrtPriceX64FromTick(100)
	require.NoError(t, err)
	p101, err := SqrtPriceX64FromTick(101)
	require.NoError(t, err)
	mid := p100.Add(p101).Quo(cosmath.NewInt(2))

	tick, err := TickFromSqrtPriceX64(mid)
	require.NoError(t, err)
	assert.Equal(t, int32(100), tick)
}

func TestBoundsErrors(t *testing.T) {
	_, err := SqrtPriceX64FromTick(MaxTick + 1)
	assert.ErrorIs(t, err, ErrTickOutOfBounds)
	_, err = SqrtPriceX64FromTick(MinTick - 1)
	assert.ErrorIs(t, err, ErrTickOutOfBounds)

	_, err = TickFromSqrtPriceX64(MaxSqrtPriceX64.Add(cosmath.OneInt()))
	assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	_, err = TickFromSqrtPriceX64(MinSqrtPriceX64.Sub(cosmath.OneInt()))
	assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
}
