// Package engine implements the concentrated liquidity pool operations over a
// key-value account store: config and pool management, positions, swaps,
// rewards and fee collection. Each operation works on a staged copy of the
// store and commits only on success.
package engine

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/solclmm/pkg"
	"github.com/Solana-ZH/solclmm/pkg/state"
)

// Engine executes pool operations against a Store, with token movement
// delegated to a Custodian and privileged calls gated by an Authorizer.
type Engine struct {
	store   state.Store
	custody pkg.Custodian
	auth    pkg.Authorizer
	clock   pkg.Clock
	log     *zap.Logger
}

func New(store state.Store, custody pkg.Custodian, auth pkg.Authorizer, clock pkg.Clock, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = pkg.SystemClock{}
	}
	return &Engine{store: store, custody: custody, auth: auth, clock: clock, log: log}
}

// Pool returns a snapshot of the pool's current state.
func (e *Engine) Pool(key solana.PublicKey) (*state.PoolState, error) {
	return e.loadPool(e.store, key)
}

func (e *Engine) loadConfig(s state.Store, key solana.PublicKey) (*state.AmmConfig, error) {
	var cfg state.AmmConfig
	if err := state.Load(s, key, &cfg); err != nil {
		return nil, fmt.Errorf("load amm config %s: %w", key, err)
	}
	return &cfg, nil
}

func (e *Engine) loadPool(s state.Store, key solana.PublicKey) (*state.PoolState, error) {
	var pool state.PoolState
	if err := state.Load(s, key, &pool); err != nil {
		return nil, fmt.Errorf("load pool %s: %w", key, err)
	}
	return &pool, nil
}

// loadBitmapExtension returns the pool's extension bitmap, creating an empty
// one lazily; it only becomes a store write once something flips a bit in it.
func (e *Engine) loadBitmapExtension(s state.Store, poolKey solana.PublicKey) (*state.TickArrayBitmapExtension, error) {
	ext := state.NewTickArrayBitmapExtension(poolKey)
	err := state.Load(s, ext.Key(), ext)
	if err != nil && !errors.Is(err, state.ErrAccountNotFound) {
		return nil, err
	}
	return ext, nil
}

// tickArrayAt loads the tick array holding startIndex. When create is set a
// missing array is initialized and its bitmap bit flipped.
func (e *Engine) tickArrayAt(
	s state.Store,
	pool *state.PoolState,
	ext *state.TickArrayBitmapExtension,
	startIndex int32,
	create bool,
) (*state.TickArrayState, error) {
	key := state.TickArrayKey(pool.Key(), startIndex)
	ta := &state.TickArrayState{}
	err := state.Load(s, key, ta)
	if err == nil {
		return ta, nil
	}
	if !errors.Is(err, state.ErrAccountNotFound) {
		return nil, err
	}
	if !create {
		return nil, fmt.Errorf("%w: start index %d", ErrInsufficientTickArrays, startIndex)
	}
	ta = state.NewTickArrayState(pool.Key(), startIndex, pool.TickSpacing)
	if err := pool.FlipTickArrayBit(ext, startIndex); err != nil {
		return nil, err
	}
	return ta, nil
}
