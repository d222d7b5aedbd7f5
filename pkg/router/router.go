// Package router executes multi-hop exact-input swaps across pools and picks
// the best single pool for a pair by quoting.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/solclmm/pkg/engine"
	"github.com/Solana-ZH/solclmm/pkg/state"
)

var (
	ErrNoRoute     = errors.New("no route found")
	ErrBrokenRoute = errors.New("pool does not trade the routed mint")
)

type Router struct {
	engine *engine.Engine
	store  state.Store
	log    *zap.Logger
}

func New(eng *engine.Engine, store state.Store, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{engine: eng, store: store, log: log}
}

// RouteSwapParams describes an exact-input swap through an ordered list of
// pools. Each hop's output mint feeds the next hop; AmountOutMinimum applies
// to the final output only.
type RouteSwapParams struct {
	Trader           solana.PublicKey
	InputMint        solana.PublicKey
	Pools            []solana.PublicKey
	AmountIn         uint64
	AmountOutMinimum uint64
}

// hopDirection resolves which side of the pool the incoming mint sits on.
func hopDirection(pool *state.PoolState, inputMint solana.PublicKey) (zeroForOne bool, outputMint solana.PublicKey, err error) {
	switch {
	case inputMint.Equals(pool.TokenMint0):
		return true, pool.TokenMint1, nil
	case inputMint.Equals(pool.TokenMint1):
		return false, pool.TokenMint0, nil
	default:
		return false, solana.PublicKey{}, fmt.Errorf("%w: pool %s, mint %s", ErrBrokenRoute, pool.Key(), inputMint)
	}
}

// SwapBaseIn walks the route hop by hop. Hops settle as they execute, so a
// failed hop leaves the trader holding that hop's input token.
func (r *Router) SwapBaseIn(ctx context.Context, params RouteSwapParams) (uint64, error) {
	if len(params.Pools) == 0 {
		return 0, ErrNoRoute
	}

	mint := params.InputMint
	amount := params.AmountIn
	for i, poolKey := range params.Pools {
		var pool state.PoolState
		if err := state.Load(r.store, poolKey, &pool); err != nil {
			return 0, fmt.Errorf("load pool %s: %w", poolKey, err)
		}
		zeroForOne, outputMint, err := hopDirection(&pool, mint)
		if err != nil {
			return 0, err
		}

		var threshold uint64
		if i == len(params.Pools)-1 {
			threshold = params.AmountOutMinimum
		}
		res, err := r.engine.Swap(ctx, engine.SwapParams{
			Trader:               params.Trader,
			PoolKey:              poolKey,
			Amount:               amount,
			OtherAmountThreshold: threshold,
			ZeroForOne:           zeroForOne,
			IsBaseInput:          true,
		})
		if err != nil {
			return 0, fmt.Errorf("hop %d through %s: %w", i, poolKey, err)
		}
		r.log.Debug("route hop executed",
			zap.Int("hop", i),
			zap.Stringer("pool", poolKey),
			zap.Uint64("amount_in", res.AmountIn),
			zap.Uint64("amount_out", res.AmountOut),
		)
		amount = res.AmountOut
		mint = outputMint
	}

	// a zero-amount final hop is a no-op and skips the engine's own check
	if amount < params.AmountOutMinimum {
		return 0, fmt.Errorf("%w: got %d, want at least %d",
			engine.ErrTooLittleOutput, amount, params.AmountOutMinimum)
	}
	return amount, nil
}

// BestPoolBaseIn quotes an exact-input swap against every candidate pool that
// trades inputMint and returns the one with the highest output. Pools that
// fail to quote are skipped.
func (r *Router) BestPoolBaseIn(ctx context.Context, inputMint solana.PublicKey, candidates []solana.PublicKey, amountIn uint64) (solana.PublicKey, uint64, error) {
	var best solana.PublicKey
	var maxOut uint64
	found := false
	for _, poolKey := range candidates {
		var pool state.PoolState
		if err := state.Load(r.store, poolKey, &pool); err != nil {
			r.log.Warn("skipping pool", zap.Stringer("pool", poolKey), zap.Error(err))
			continue
		}
		zeroForOne, _, err := hopDirection(&pool, inputMint)
		if err != nil {
			continue
		}
		res, err := r.engine.Quote(ctx, engine.SwapParams{
			PoolKey:     poolKey,
			Amount:      amountIn,
			ZeroForOne:  zeroForOne,
			IsBaseInput: true,
		})
		if err != nil {
			r.log.Warn("error quoting", zap.Stringer("pool", poolKey), zap.Error(err))
			continue
		}
		if !found || res.AmountOut > maxOut {
			best = poolKey
			maxOut = res.AmountOut
			found = true
		}
	}
	if !found {
		return solana.PublicKey{}, 0, ErrNoRoute
	}
	return best, maxOut, nil
}
