package router

import (
	"context"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solana-ZH/solclmm/pkg"
	"github.com/Solana-ZH/solclmm/pkg/engine"
	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/vault"
)

func testKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

const startBalance = uint64(1_000_000_000_000)

type routeFixture struct {
	t      *testing.T
	ctx    context.Context
	router *Router
	engine *engine.Engine
	ledger *vault.Ledger

	admin, lp, trader     solana.PublicKey
	mint1, mint2, mint3   solana.PublicKey
	poolA, poolB, poolAlt solana.PublicKey
}

// newRouteFixture wires two hops (mint1/mint2 and mint2/mint3, 0.25% fee) and
// an alternative mint1/mint2 pool with a 1% fee, each with one position over
// [-600, 600] holding liquidity 1e9 at price 1.0.
func newRouteFixture(t *testing.T) *routeFixture {
	f := &routeFixture{
		t:      t,
		ctx:    context.Background(),
		ledger: vault.NewLedger(),
		admin:  testKey(0xAD),
		lp:     testKey(0x1D),
		trader: testKey(0x7A),
		mint1:  testKey(0x01),
		mint2:  testKey(0x02),
		mint3:  testKey(0x03),
	}
	store := state.NewMemoryStore()
	f.engine = engine.New(store, f.ledger, pkg.SingleAdmin{Admin: f.admin}, pkg.FixedClock(1_700_000_000), nil)
	f.router = New(f.engine, store, nil)

	for _, mint := range []solana.PublicKey{f.mint1, f.mint2, f.mint3} {
		require.NoError(t, f.ledger.MintTo(mint, f.lp, startBalance))
		require.NoError(t, f.ledger.MintTo(mint, f.trader, startBalance))
	}

	for index, tradeFee := range map[uint16]uint32{0: 2500, 1: 10000} {
		_, err := f.engine.CreateAmmConfig(f.ctx, engine.CreateAmmConfigParams{
			Authority: f.admin, Index: index, TickSpacing: 60,
			TradeFeeRate: tradeFee, ProtocolFeeRate: 120000,
		})
		require.NoError(t, err)
	}

	f.poolA = f.createPoolWithPosition(0, f.mint1, f.mint2)
	f.poolB = f.createPoolWithPosition(0, f.mint2, f.mint3)
	f.poolAlt = f.createPoolWithPosition(1, f.mint1, f.mint2)
	return f
}

func (f *routeFixture) createPoolWithPosition(configIndex uint16, mint0, mint1 solana.PublicKey) solana.PublicKey {
	pool, err := f.engine.CreatePool(f.ctx, engine.CreatePoolParams{
		Creator: f.admin, ConfigIndex: configIndex,
		TokenMint0: mint0, TokenMint1: mint1,
		MintDecimals0: 6, MintDecimals1: 6,
		SqrtPriceX64: fixedpoint.Q64Int,
	})
	require.NoError(f.t, err)
	_, _, _, err = f.engine.OpenPosition(f.ctx, engine.IncreaseLiquidityParams{
		Owner: f.lp, PoolKey: pool.Key(),
		TickLowerIndex: -600, TickUpperIndex: 600,
		Liquidity:  cosmath.NewInt(1_000_000_000),
		Amount0Max: startBalance, Amount1Max: startBalance,
	})
	require.NoError(f.t, err)
	return pool.Key()
}

func TestSwapBaseInTwoHops(t *testing.T) {
	f := newRouteFixture(t)

	out, err := f.router.SwapBaseIn(f.ctx, RouteSwapParams{
		Trader:    f.trader,
		InputMint: f.mint1,
		Pools:     []solana.PublicKey{f.poolA, f.poolB},
		AmountIn:  1000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(992), out)

	bal := func(mint solana.PublicKey) uint64 {
		b, err := f.ledger.Balance(f.ctx, mint, f.trader)
		require.NoError(t, err)
		return b
	}
	assert.Equal(t, startBalance-1000, bal(f.mint1))
	assert.Equal(t, startBalance, bal(f.mint2)) // intermediate leg nets out
	assert.Equal(t, startBalance+992, bal(f.mint3))
}

func TestSwapBaseInMinimumOut(t *testing.T) {
	f := newRouteFixture(t)

	_, err := f.router.SwapBaseIn(f.ctx, RouteSwapParams{
		Trader:    f.trader,
		InputMint: f.mint1,
		Pools:     []solana.PublicKey{f.poolA, f.poolB},
		AmountIn:  1000, AmountOutMinimum: 993,
	})
	require.ErrorIs(t, err, engine.ErrTooLittleOutput)
}

func TestSwapBaseInRouteValidation(t *testing.T) {
	f := newRouteFixture(t)

	_, err := f.router.SwapBaseIn(f.ctx, RouteSwapParams{
		Trader: f.trader, InputMint: f.mint1, AmountIn: 1000,
	})
	require.ErrorIs(t, err, ErrNoRoute)

	_, err = f.router.SwapBaseIn(f.ctx, RouteSwapParams{
		Trader:    f.trader,
		InputMint: f.mint3,
		Pools:     []solana.PublicKey{f.poolA},
		AmountIn:  1000,
	})
	require.ErrorIs(t, err, ErrBrokenRoute)
}

func TestBestPoolBaseIn(t *testing.T) {
	f := newRouteFixture(t)

	best, out, err := f.router.BestPoolBaseIn(f.ctx, f.mint1,
		[]solana.PublicKey{f.poolAlt, f.poolA, f.poolB}, 1000)
	require.NoError(t, err)
	assert.Equal(t, f.poolA, best)
	assert.Equal(t, uint64(996), out)

	_, _, err = f.router.BestPoolBaseIn(f.ctx, f.mint1, nil, 1000)
	require.ErrorIs(t, err, ErrNoRoute)
}
