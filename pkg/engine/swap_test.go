package engine

import (
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// Pool at price 1.0, tick spacing 60, one position over [-600, 600] with
// liquidity 1e9, trade fee 2500 ppm, protocol share 120000 ppm. A base-input
// swap of 1000 token0 carves 3 off as fee (floor(1000 * 0.9975) = 997 goes to
// the curve), yields 996 token1 and stays inside the range.
func TestSwapBaseInputScenario(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader:  f.trader,
		PoolKey: pool.Key(),
		Amount:  1000, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), res.AmountIn)
	assert.Equal(t, uint64(996), res.AmountOut)
	assert.Equal(t, uint64(3), res.FeeAmount)
	assert.Equal(t, uint64(0), res.ProtocolFee)
	assert.Equal(t, "18446725682324046339", res.SqrtPriceX64.String())
	assert.Equal(t, int32(-1), res.TickCurrent)

	got := f.loadPool(pool.Key())
	assert.Equal(t, int32(-1), got.TickCurrent)
	assert.Equal(t, uint128.From64(55340232221), got.FeeGrowthGlobal0X64)
	assert.Equal(t, uint64(3), got.TotalFeesToken0)
	assert.Equal(t, uint128.From64(1000), got.SwapInAmountToken0)
	assert.Equal(t, uint128.From64(996), got.SwapOutAmountToken1)

	assert.Equal(t, startBalance-1000, f.balance(f.mint0, f.trader))
	assert.Equal(t, startBalance+996, f.balance(f.mint1, f.trader))
}

// Settling twice in a row must not mint fees out of thin air.
func TestFeeSettlementIsIdempotent(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	_, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)

	settle := DecreaseLiquidityParams{
		Owner: f.lp, PoolKey: pool.Key(),
		TickLowerIndex: -600, TickUpperIndex: 600,
		Liquidity: cosmath.ZeroInt(),
	}
	_, _, err = f.engine.DecreaseLiquidity(f.ctx, settle)
	require.NoError(t, err)
	afterFirst := f.balance(f.mint0, f.lp)
	assert.Equal(t, startBalance-29553011+2, afterFirst)

	_, _, err = f.engine.DecreaseLiquidity(f.ctx, settle)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, f.balance(f.mint0, f.lp))
}

// A position opened after fees have accrued earns nothing from before it
// existed, even when closing it empties its boundary ticks.
func TestFreshPositionEarnsNoPriorFees(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	_, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)

	_, in0, in1, err := f.engine.OpenPosition(f.ctx, IncreaseLiquidityParams{
		Owner: f.trader, PoolKey: pool.Key(),
		TickLowerIndex: -60, TickUpperIndex: 60,
		Liquidity:  cosmath.NewInt(1_000_000_000),
		Amount0Max: startBalance, Amount1Max: startBalance,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2996352), in0)
	assert.Equal(t, uint64(2994358), in1)

	out0, out1, err := f.engine.DecreaseLiquidity(f.ctx, DecreaseLiquidityParams{
		Owner: f.trader, PoolKey: pool.Key(),
		TickLowerIndex: -60, TickUpperIndex: 60,
		Liquidity: cosmath.NewInt(1_000_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2996351), out0)
	assert.Equal(t, uint64(2994357), out1)

	// the payout is exactly the freed amounts: no fee credit rides along
	assert.Equal(t, startBalance-1000-in0+out0, f.balance(f.mint0, f.trader))
	assert.Equal(t, startBalance+996-in1+out1, f.balance(f.mint1, f.trader))
}

// The same trade pays out strictly less as the fee tier climbs.
func TestSwapOutputShrinksWithFeeRate(t *testing.T) {
	f := newFixture(t)

	outs := make([]uint64, 0, 3)
	for i, rate := range []uint32{500, 2500, 10000} {
		_, err := f.engine.CreateAmmConfig(f.ctx, CreateAmmConfigParams{
			Authority: f.admin, Index: uint16(i), TickSpacing: 60,
			TradeFeeRate: rate, ProtocolFeeRate: 120000,
		})
		require.NoError(t, err)
		pool := f.createPool(uint16(i))
		f.openStandardPosition(pool.Key())

		res, err := f.engine.Swap(f.ctx, SwapParams{
			Trader: f.trader, PoolKey: pool.Key(),
			Amount: 1_000_000, ZeroForOne: true, IsBaseInput: true,
		})
		require.NoError(t, err)
		outs = append(outs, res.AmountOut)
	}
	assert.Greater(t, outs[0], outs[1])
	assert.Greater(t, outs[1], outs[2])
}

func TestSwapZeroAmountIsNoOp(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()
	before, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 0, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.AmountIn)
	assert.Equal(t, uint64(0), res.AmountOut)
	assert.Equal(t, fixedpoint.Q64Int, res.SqrtPriceX64)

	after, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, startBalance, f.balance(f.mint0, f.trader))
}

func TestSwapExactOutput(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	// 500 token1 out costs 503 token0 gross; a 502 cap is one short
	_, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 500, OtherAmountThreshold: 502,
		ZeroForOne: true, IsBaseInput: false,
	})
	require.ErrorIs(t, err, ErrTooMuchInput)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 500, OtherAmountThreshold: 503,
		ZeroForOne: true, IsBaseInput: false,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(503), res.AmountIn)
	assert.Equal(t, uint64(500), res.AmountOut)
	assert.Equal(t, uint64(2), res.FeeAmount)
	assert.Equal(t, int32(-1), res.TickCurrent)
}

// A failed threshold check must leave the store and all balances untouched.
func TestSwapThresholdFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()
	before, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)

	_, err = f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, OtherAmountThreshold: 997,
		ZeroForOne: true, IsBaseInput: true,
	})
	require.ErrorIs(t, err, ErrTooLittleOutput)

	after, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, startBalance, f.balance(f.mint0, f.trader))
	assert.Equal(t, startBalance, f.balance(f.mint1, f.trader))
}

// Swapping down through a position boundary hands the active liquidity over
// to the next range.
func TestSwapCrossesInitializedTick(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	_, amount0, amount1, err := f.engine.OpenPosition(f.ctx, IncreaseLiquidityParams{
		Owner: f.lp, PoolKey: pool.Key(),
		TickLowerIndex: -1200, TickUpperIndex: -600,
		Liquidity:  cosmath.NewInt(500_000_000),
		Amount0Max: startBalance, Amount1Max: startBalance,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), amount0)
	assert.Equal(t, uint64(14339816), amount1)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 40_000_000, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000_000), res.AmountIn)
	assert.Equal(t, uint64(38289702), res.AmountOut)
	assert.Equal(t, uint64(100001), res.FeeAmount)
	assert.Equal(t, uint64(11999), res.ProtocolFee)
	assert.Equal(t, "17579260174629913608", res.SqrtPriceX64.String())
	assert.Equal(t, int32(-964), res.TickCurrent)

	got := f.loadPool(pool.Key())
	assert.Equal(t, uint128.From64(500_000_000), got.Liquidity)
	assert.Equal(t, uint64(11999), got.ProtocolFeesToken0)

	// the crossed boundary snapshots the growth accumulated up to the cross
	var ta state.TickArrayState
	require.NoError(t, state.Load(f.store, state.TickArrayKey(pool.Key(), -3600), &ta))
	boundary, err := ta.TickStateAt(-600, 60)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1238994012454775), boundary.FeeGrowthOutside0X64)
}

func TestSwapOneForZero(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: false, IsBaseInput: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.AmountIn)
	assert.Equal(t, uint64(996), res.AmountOut)
	assert.Equal(t, uint64(3), res.FeeAmount)
	assert.Equal(t, "18446762465113393104", res.SqrtPriceX64.String())
	assert.Equal(t, int32(0), res.TickCurrent)

	got := f.loadPool(pool.Key())
	assert.Equal(t, uint128.From64(55340232221), got.FeeGrowthGlobal1X64)
	assert.Equal(t, uint128.From64(1000), got.SwapInAmountToken1)
}

// A price limit inside the range caps the fill; the rest of the input stays
// with the trader.
func TestSwapStopsAtPriceLimit(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	limit, err := tickmath.SqrtPriceX64FromTick(-60)
	require.NoError(t, err)

	res, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 10_000_000, SqrtPriceLimitX64: limit,
		ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3011885), res.AmountIn)
	assert.Equal(t, uint64(2995354), res.AmountOut)
	assert.Equal(t, uint64(7530), res.FeeAmount)
	assert.Equal(t, uint64(903), res.ProtocolFee)
	assert.Equal(t, limit, res.SqrtPriceX64)
	assert.Equal(t, int32(-60), res.TickCurrent)
	assert.Equal(t, startBalance-3011885, f.balance(f.mint0, f.trader))
}

func TestSwapPriceLimitValidation(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()

	// limit on the wrong side of the current price
	_, err := f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, SqrtPriceLimitX64: fixedpoint.Q64Int.MulRaw(2),
		ZeroForOne: true, IsBaseInput: true,
	})
	require.ErrorIs(t, err, ErrInvalidPriceLimit)

	_, err = f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, SqrtPriceLimitX64: fixedpoint.Q64Int.QuoRaw(2),
		ZeroForOne: false, IsBaseInput: true,
	})
	require.ErrorIs(t, err, ErrInvalidPriceLimit)
}

func TestSwapBeforeOpenTime(t *testing.T) {
	f := newFixture(t)
	f.createConfig(0, 120000, 0)
	pool, err := f.engine.CreatePool(f.ctx, CreatePoolParams{
		Creator: f.admin, ConfigIndex: 0,
		TokenMint0: f.mint0, TokenMint1: f.mint1,
		SqrtPriceX64: fixedpoint.Q64Int,
		OpenTime:     f.clock.now + 3600,
	})
	require.NoError(t, err)
	f.openStandardPosition(pool.Key())

	_, err = f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: true, IsBaseInput: true,
	})
	require.ErrorIs(t, err, ErrPoolNotOpen)

	f.clock.now += 3600
	_, err = f.engine.Swap(f.ctx, SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: true, IsBaseInput: true,
	})
	require.NoError(t, err)
}

func TestQuoteMatchesSwapWithoutMutating(t *testing.T) {
	f := newFixture(t)
	pool := f.standardPool()
	before, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)

	params := SwapParams{
		Trader: f.trader, PoolKey: pool.Key(),
		Amount: 1000, ZeroForOne: true, IsBaseInput: true,
	}
	quoted, err := f.engine.Quote(f.ctx, params)
	require.NoError(t, err)

	after, err := f.loadPool(pool.Key()).Marshal()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, startBalance, f.balance(f.mint0, f.trader))

	executed, err := f.engine.Swap(f.ctx, params)
	require.NoError(t, err)
	assert.Equal(t, executed, quoted)
}
