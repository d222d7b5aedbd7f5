package engine

import (
	"bytes"
	"context"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// CreatePoolParams describes a new pool for an ordered mint pair.
type CreatePoolParams struct {
	Creator       solana.PublicKey
	ConfigIndex   uint16
	TokenMint0    solana.PublicKey
	TokenMint1    solana.PublicKey
	MintDecimals0 uint8
	MintDecimals1 uint8
	SqrtPriceX64  cosmath.Int
	OpenTime      uint64
}

// CreatePool initializes a pool at the given starting price. The mint pair
// must be strictly ascending so every pair maps to one pool per config.
func (e *Engine) CreatePool(ctx context.Context, params CreatePoolParams) (*state.PoolState, error) {
	if bytes.Compare(params.TokenMint0[:], params.TokenMint1[:]) >= 0 {
		return nil, ErrInvalidMintOrder
	}

	stage := state.NewStage(e.store)
	cfg, err := e.loadConfig(stage, state.AmmConfigKey(params.ConfigIndex))
	if err != nil {
		return nil, err
	}

	tick, err := tickmath.TickFromSqrtPriceX64(params.SqrtPriceX64)
	if err != nil {
		return nil, err
	}
	sqrtPrice, err := fixedpoint.ToUint128(params.SqrtPriceX64)
	if err != nil {
		return nil, err
	}

	openTime := params.OpenTime
	if openTime == 0 {
		openTime = e.clock.Unix()
	}

	pool := &state.PoolState{
		AmmConfig:     cfg.Key(),
		Owner:         params.Creator,
		TokenMint0:    params.TokenMint0,
		TokenMint1:    params.TokenMint1,
		MintDecimals0: params.MintDecimals0,
		MintDecimals1: params.MintDecimals1,
		TickSpacing:   cfg.TickSpacing,
		SqrtPriceX64:  sqrtPrice,
		TickCurrent:   tick,
		OpenTime:      openTime,
	}
	pool.TokenVault0 = state.PoolVaultKey(pool.Key(), params.TokenMint0)
	pool.TokenVault1 = state.PoolVaultKey(pool.Key(), params.TokenMint1)

	if stage.Has(pool.Key()) {
		return nil, fmt.Errorf("pool %s: %w", pool.Key(), state.ErrAccountExists)
	}
	if err := state.Save(stage, pool); err != nil {
		return nil, err
	}
	stage.Commit()

	e.log.Info("pool created",
		zap.Stringer("pool", pool.Key()),
		zap.Int32("tick", tick),
		zap.Uint16("tick_spacing", cfg.TickSpacing),
	)
	return pool, nil
}

// ResetSqrtPrice moves an empty pool to a new starting price. Allowed only
// while no liquidity was ever deposited and the vaults hold nothing.
func (e *Engine) ResetSqrtPrice(ctx context.Context, authority, poolKey solana.PublicKey, sqrtPriceX64 cosmath.Int) error {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, poolKey)
	if err != nil {
		return err
	}
	if !e.auth.IsAdmin(authority) && !authority.Equals(pool.Owner) {
		return ErrUnauthorized
	}
	if !pool.Liquidity.IsZero() {
		return ErrPoolHasLiquidity
	}
	for _, vault := range []struct {
		mint, key solana.PublicKey
	}{
		{pool.TokenMint0, pool.TokenVault0},
		{pool.TokenMint1, pool.TokenVault1},
	} {
		balance, err := e.custody.Balance(ctx, vault.mint, vault.key)
		if err != nil {
			return err
		}
		if balance != 0 {
			return ErrPoolHasLiquidity
		}
	}

	tick, err := tickmath.TickFromSqrtPriceX64(sqrtPriceX64)
	if err != nil {
		return err
	}
	pool.SqrtPriceX64, err = fixedpoint.ToUint128(sqrtPriceX64)
	if err != nil {
		return err
	}
	pool.TickCurrent = tick

	if err := state.Save(stage, pool); err != nil {
		return err
	}
	stage.Commit()

	e.log.Info("pool price reset", zap.Stringer("pool", poolKey), zap.Int32("tick", tick))
	return nil
}

// SetPoolStatus overwrites the pool's operation gating bits. Admin only.
func (e *Engine) SetPoolStatus(ctx context.Context, authority, poolKey solana.PublicKey, status uint8) error {
	if !e.auth.IsAdmin(authority) {
		return ErrUnauthorized
	}
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, poolKey)
	if err != nil {
		return err
	}
	pool.Status = status
	if err := state.Save(stage, pool); err != nil {
		return err
	}
	stage.Commit()

	e.log.Info("pool status set", zap.Stringer("pool", poolKey), zap.Uint8("status", status))
	return nil
}

// UpdateRewardInfos rolls the pool's reward accumulators forward to now.
// Permissionless.
func (e *Engine) UpdateRewardInfos(ctx context.Context, poolKey solana.PublicKey) ([state.RewardNum]state.RewardInfo, error) {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, poolKey)
	if err != nil {
		return [state.RewardNum]state.RewardInfo{}, err
	}
	pool.UpdateRewardInfos(e.clock.Unix())
	if err := state.Save(stage, pool); err != nil {
		return [state.RewardNum]state.RewardInfo{}, err
	}
	stage.Commit()
	return pool.RewardInfos, nil
}

// CollectProtocolFee pays accumulated protocol fees out of the pool vaults.
// Requested amounts are clamped to what has accrued.
func (e *Engine) CollectProtocolFee(
	ctx context.Context,
	authority, poolKey, recipient solana.PublicKey,
	amount0Requested, amount1Requested uint64,
) (amount0, amount1 uint64, err error) {
	return e.collectAccruedFees(ctx, authority, poolKey, recipient, amount0Requested, amount1Requested, false)
}

// CollectFundFee pays accumulated fund fees out of the pool vaults.
func (e *Engine) CollectFundFee(
	ctx context.Context,
	authority, poolKey, recipient solana.PublicKey,
	amount0Requested, amount1Requested uint64,
) (amount0, amount1 uint64, err error) {
	return e.collectAccruedFees(ctx, authority, poolKey, recipient, amount0Requested, amount1Requested, true)
}

func (e *Engine) collectAccruedFees(
	ctx context.Context,
	authority, poolKey, recipient solana.PublicKey,
	amount0Requested, amount1Requested uint64,
	fund bool,
) (amount0, amount1 uint64, err error) {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, poolKey)
	if err != nil {
		return 0, 0, err
	}
	cfg, err := e.loadConfig(stage, pool.AmmConfig)
	if err != nil {
		return 0, 0, err
	}

	collector := cfg.Owner
	if fund {
		collector = cfg.FundOwner
	}
	if !e.auth.IsAdmin(authority) && !authority.Equals(collector) {
		return 0, 0, ErrUnauthorized
	}

	accrued0, accrued1 := pool.ProtocolFeesToken0, pool.ProtocolFeesToken1
	if fund {
		accrued0, accrued1 = pool.FundFeesToken0, pool.FundFeesToken1
	}
	amount0 = min64(amount0Requested, accrued0)
	amount1 = min64(amount1Requested, accrued1)

	if fund {
		pool.FundFeesToken0 -= amount0
		pool.FundFeesToken1 -= amount1
	} else {
		pool.ProtocolFeesToken0 -= amount0
		pool.ProtocolFeesToken1 -= amount1
	}

	if err := e.custody.Transfer(ctx, pool.TokenMint0, pool.TokenVault0, recipient, amount0); err != nil {
		return 0, 0, err
	}
	if err := e.custody.Transfer(ctx, pool.TokenMint1, pool.TokenVault1, recipient, amount1); err != nil {
		return 0, 0, err
	}
	if err := state.Save(stage, pool); err != nil {
		return 0, 0, err
	}
	stage.Commit()

	e.log.Info("fees collected",
		zap.Stringer("pool", poolKey),
		zap.Bool("fund", fund),
		zap.Uint64("amount0", amount0),
		zap.Uint64("amount1", amount1),
	)
	return amount0, amount1, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
