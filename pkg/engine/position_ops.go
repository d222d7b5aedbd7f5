package engine

import (
	"context"
	"errors"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/liquidity"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// IncreaseLiquidityParams adds liquidity to a position over [TickLowerIndex,
// TickUpperIndex). Amount0Max/Amount1Max bound the deposit.
type IncreaseLiquidityParams struct {
	Owner          solana.PublicKey
	PoolKey        solana.PublicKey
	TickLowerIndex int32
	TickUpperIndex int32
	Liquidity      cosmath.Int
	Amount0Max     uint64
	Amount1Max     uint64
}

// DecreaseLiquidityParams removes liquidity from a position. A zero delta
// settles and pays out pending fees and rewards without touching liquidity.
type DecreaseLiquidityParams struct {
	Owner          solana.PublicKey
	PoolKey        solana.PublicKey
	TickLowerIndex int32
	TickUpperIndex int32
	Liquidity      cosmath.Int
	Amount0Min     uint64
	Amount1Min     uint64
}

// OpenPosition creates a position and deposits its initial liquidity.
func (e *Engine) OpenPosition(ctx context.Context, params IncreaseLiquidityParams) (*state.PersonalPositionState, uint64, uint64, error) {
	return e.increaseLiquidity(ctx, params, false)
}

// IncreaseLiquidity adds liquidity to an existing position.
func (e *Engine) IncreaseLiquidity(ctx context.Context, params IncreaseLiquidityParams) (*state.PersonalPositionState, uint64, uint64, error) {
	return e.increaseLiquidity(ctx, params, true)
}

func (e *Engine) increaseLiquidity(
	ctx context.Context, params IncreaseLiquidityParams, mustExist bool,
) (*state.PersonalPositionState, uint64, uint64, error) {
	if params.Liquidity.IsNil() || !params.Liquidity.IsPositive() {
		return nil, 0, 0, ErrZeroLiquidityDelta
	}

	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, params.PoolKey)
	if err != nil {
		return nil, 0, 0, err
	}
	if !pool.OperationEnabled(state.StatusOpenPositionOrIncreaseLiquidity) {
		return nil, 0, 0, ErrOperationDisabled
	}
	if err := checkTickRange(params.TickLowerIndex, params.TickUpperIndex, pool.TickSpacing); err != nil {
		return nil, 0, 0, err
	}

	pool.UpdateRewardInfos(e.clock.Unix())

	posKey := state.PersonalPositionKey(params.PoolKey, params.Owner, params.TickLowerIndex, params.TickUpperIndex)
	pos := &state.PersonalPositionState{
		PoolID:         params.PoolKey,
		Owner:          params.Owner,
		TickLowerIndex: params.TickLowerIndex,
		TickUpperIndex: params.TickUpperIndex,
	}
	err = state.Load(stage, posKey, pos)
	switch {
	case err == nil:
		if !mustExist {
			return nil, 0, 0, fmt.Errorf("position %s: %w", posKey, state.ErrAccountExists)
		}
	case errors.Is(err, state.ErrAccountNotFound):
		if mustExist {
			return nil, 0, 0, fmt.Errorf("position %s: %w", posKey, err)
		}
	default:
		return nil, 0, 0, err
	}
	if !e.auth.IsAuthorizedForPosition(params.Owner, pos.Owner) {
		return nil, 0, 0, ErrUnauthorized
	}

	ext, err := e.loadBitmapExtension(stage, params.PoolKey)
	if err != nil {
		return nil, 0, 0, err
	}

	amount0, amount1, err := e.modifyPosition(stage, pool, ext, pos, params.Liquidity)
	if err != nil {
		return nil, 0, 0, err
	}
	if amount0 > params.Amount0Max || amount1 > params.Amount1Max {
		return nil, 0, 0, fmt.Errorf("%w: need %d/%d, max %d/%d",
			ErrExceededSlippage, amount0, amount1, params.Amount0Max, params.Amount1Max)
	}

	if err := e.custody.Transfer(ctx, pool.TokenMint0, params.Owner, pool.TokenVault0, amount0); err != nil {
		return nil, 0, 0, err
	}
	if err := e.custody.Transfer(ctx, pool.TokenMint1, params.Owner, pool.TokenVault1, amount1); err != nil {
		return nil, 0, 0, err
	}

	if err := state.Save(stage, pos); err != nil {
		return nil, 0, 0, err
	}
	if err := state.Save(stage, pool); err != nil {
		return nil, 0, 0, err
	}
	stage.Commit()

	e.log.Info("liquidity increased",
		zap.Stringer("pool", params.PoolKey),
		zap.Stringer("owner", params.Owner),
		zap.Int32("tick_lower", params.TickLowerIndex),
		zap.Int32("tick_upper", params.TickUpperIndex),
		zap.String("liquidity", params.Liquidity.String()),
		zap.Uint64("amount0", amount0),
		zap.Uint64("amount1", amount1),
	)
	return pos, amount0, amount1, nil
}

// DecreaseLiquidity removes liquidity and pays out the freed amounts along
// with every pending fee and reward balance on the position.
func (e *Engine) DecreaseLiquidity(ctx context.Context, params DecreaseLiquidityParams) (amount0, amount1 uint64, err error) {
	if params.Liquidity.IsNil() || params.Liquidity.IsNegative() {
		return 0, 0, ErrZeroLiquidityDelta
	}

	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, params.PoolKey)
	if err != nil {
		return 0, 0, err
	}
	if !pool.OperationEnabled(state.StatusDecreaseLiquidity) {
		return 0, 0, ErrOperationDisabled
	}

	pool.UpdateRewardInfos(e.clock.Unix())

	posKey := state.PersonalPositionKey(params.PoolKey, params.Owner, params.TickLowerIndex, params.TickUpperIndex)
	pos := &state.PersonalPositionState{}
	if err := state.Load(stage, posKey, pos); err != nil {
		return 0, 0, err
	}
	if !e.auth.IsAuthorizedForPosition(params.Owner, pos.Owner) {
		return 0, 0, ErrUnauthorized
	}
	if fixedpoint.IntFromU128(pos.Liquidity).LT(params.Liquidity) {
		return 0, 0, fmt.Errorf("%w: position holds %s", liquidity.ErrLiquidityUnderflow, pos.Liquidity)
	}

	ext, err := e.loadBitmapExtension(stage, params.PoolKey)
	if err != nil {
		return 0, 0, err
	}

	amount0, amount1, err = e.modifyPosition(stage, pool, ext, pos, params.Liquidity.Neg())
	if err != nil {
		return 0, 0, err
	}
	if amount0 < params.Amount0Min || amount1 < params.Amount1Min {
		return 0, 0, fmt.Errorf("%w: freed %d/%d, min %d/%d",
			ErrExceededSlippage, amount0, amount1, params.Amount0Min, params.Amount1Min)
	}

	payout0 := amount0 + pos.TokenFeesOwed0
	payout1 := amount1 + pos.TokenFeesOwed1
	pos.TokenFeesOwed0 = 0
	pos.TokenFeesOwed1 = 0

	if err := e.custody.Transfer(ctx, pool.TokenMint0, pool.TokenVault0, params.Owner, payout0); err != nil {
		return 0, 0, err
	}
	if err := e.custody.Transfer(ctx, pool.TokenMint1, pool.TokenVault1, params.Owner, payout1); err != nil {
		return 0, 0, err
	}
	if err := e.payOutRewards(ctx, pool, pos); err != nil {
		return 0, 0, err
	}

	if err := state.Save(stage, pos); err != nil {
		return 0, 0, err
	}
	if err := state.Save(stage, pool); err != nil {
		return 0, 0, err
	}
	stage.Commit()

	e.log.Info("liquidity decreased",
		zap.Stringer("pool", params.PoolKey),
		zap.Stringer("owner", params.Owner),
		zap.String("liquidity", params.Liquidity.String()),
		zap.Uint64("amount0", amount0),
		zap.Uint64("amount1", amount1),
	)
	return amount0, amount1, nil
}

func (e *Engine) payOutRewards(ctx context.Context, pool *state.PoolState, pos *state.PersonalPositionState) error {
	for i := range pos.RewardInfos {
		owed := pos.RewardInfos[i].RewardAmountOwed
		if owed == 0 {
			continue
		}
		info := &pool.RewardInfos[i]
		if !info.Initialized() {
			continue
		}
		if err := e.custody.Transfer(ctx, info.TokenMint, info.TokenVault, pos.Owner, owed); err != nil {
			return err
		}
		info.RewardClaimed += owed
		pos.RewardInfos[i].RewardAmountOwed = 0
	}
	return nil
}

// ClosePosition removes an emptied position from the store.
func (e *Engine) ClosePosition(ctx context.Context, owner, poolKey solana.PublicKey, tickLower, tickUpper int32) error {
	stage := state.NewStage(e.store)
	posKey := state.PersonalPositionKey(poolKey, owner, tickLower, tickUpper)
	pos := &state.PersonalPositionState{}
	if err := state.Load(stage, posKey, pos); err != nil {
		return err
	}
	if !pos.Owner.Equals(owner) {
		return ErrUnauthorized
	}
	if !pos.IsEmpty() {
		return ErrPositionNotEmpty
	}
	stage.Delete(posKey)
	stage.Commit()

	e.log.Info("position closed", zap.Stringer("pool", poolKey), zap.Stringer("owner", owner))
	return nil
}

// CloseProtocolPosition removes an emptied aggregate position. Admin only.
func (e *Engine) CloseProtocolPosition(ctx context.Context, authority, poolKey solana.PublicKey, tickLower, tickUpper int32) error {
	if !e.auth.IsAdmin(authority) {
		return ErrUnauthorized
	}
	stage := state.NewStage(e.store)
	posKey := state.ProtocolPositionKey(poolKey, tickLower, tickUpper)
	pos := &state.ProtocolPositionState{}
	if err := state.Load(stage, posKey, pos); err != nil {
		return err
	}
	if !pos.Liquidity.IsZero() {
		return ErrPositionNotEmpty
	}
	stage.Delete(posKey)
	stage.Commit()
	return nil
}

func checkTickRange(lower, upper int32, tickSpacing uint16) error {
	if lower >= upper {
		return fmt.Errorf("%w: lower %d, upper %d", tickmath.ErrTickOutOfBounds, lower, upper)
	}
	if err := state.CheckTickBoundary(lower, tickSpacing); err != nil {
		return err
	}
	return state.CheckTickBoundary(upper, tickSpacing)
}

// modifyPosition applies a signed liquidity delta to the position, its tick
// boundaries, the aggregate protocol position and the pool. It returns the
// token amounts the delta is worth at the current price, rounded against the
// position owner.
func (e *Engine) modifyPosition(
	stage *state.Stage,
	pool *state.PoolState,
	ext *state.TickArrayBitmapExtension,
	pos *state.PersonalPositionState,
	liquidityDelta cosmath.Int,
) (amount0, amount1 uint64, err error) {
	adding := liquidityDelta.IsPositive()
	spacing := pool.TickSpacing

	lowerStart := state.TickArrayStartIndex(pos.TickLowerIndex, spacing)
	upperStart := state.TickArrayStartIndex(pos.TickUpperIndex, spacing)

	taLower, err := e.tickArrayAt(stage, pool, ext, lowerStart, adding)
	if err != nil {
		return 0, 0, err
	}
	taUpper := taLower
	if upperStart != lowerStart {
		taUpper, err = e.tickArrayAt(stage, pool, ext, upperStart, adding)
		if err != nil {
			return 0, 0, err
		}
	}

	tickLower, err := taLower.TickStateAt(pos.TickLowerIndex, spacing)
	if err != nil {
		return 0, 0, err
	}
	tickUpper, err := taUpper.TickStateAt(pos.TickUpperIndex, spacing)
	if err != nil {
		return 0, 0, err
	}

	rewardsGlobal := pool.RewardGrowthsGlobal()
	flippedLower, err := tickLower.Update(
		pool.TickCurrent, liquidityDelta, pool.FeeGrowthGlobal0X64, pool.FeeGrowthGlobal1X64, rewardsGlobal, false)
	if err != nil {
		return 0, 0, err
	}
	flippedUpper, err := tickUpper.Update(
		pool.TickCurrent, liquidityDelta, pool.FeeGrowthGlobal0X64, pool.FeeGrowthGlobal1X64, rewardsGlobal, true)
	if err != nil {
		return 0, 0, err
	}
	if flippedLower {
		taLower.UpdateInitializedTickCount(adding)
	}
	if flippedUpper {
		taUpper.UpdateInitializedTickCount(adding)
	}

	inside0, inside1 := state.FeeGrowthInside(
		tickLower, tickUpper, pool.TickCurrent, pool.FeeGrowthGlobal0X64, pool.FeeGrowthGlobal1X64)
	rewardsInside := state.RewardGrowthsInside(tickLower, tickUpper, pool.TickCurrent, rewardsGlobal)

	protoKey := state.ProtocolPositionKey(pool.Key(), pos.TickLowerIndex, pos.TickUpperIndex)
	proto := &state.ProtocolPositionState{
		PoolID:         pool.Key(),
		TickLowerIndex: pos.TickLowerIndex,
		TickUpperIndex: pos.TickUpperIndex,
	}
	if err := state.Load(stage, protoKey, proto); err != nil && !errors.Is(err, state.ErrAccountNotFound) {
		return 0, 0, err
	}
	if err := proto.Update(liquidityDelta, inside0, inside1, rewardsInside); err != nil {
		return 0, 0, err
	}

	// settle against the new growth before the liquidity changes
	pos.SettleFees(inside0, inside1)
	pos.SettleRewards(rewardsInside)

	// flipped-off ticks keep their snapshots until everyone has settled
	if !adding {
		if flippedLower {
			tickLower.Clear()
		}
		if flippedUpper {
			tickUpper.Clear()
		}
	}
	posLiquidity, err := liquidity.AddDelta(fixedpoint.IntFromU128(pos.Liquidity), liquidityDelta)
	if err != nil {
		return 0, 0, err
	}
	pos.Liquidity, err = fixedpoint.ToUint128(posLiquidity)
	if err != nil {
		return 0, 0, err
	}

	sqrtLower, err := tickmath.SqrtPriceX64FromTick(pos.TickLowerIndex)
	if err != nil {
		return 0, 0, err
	}
	sqrtUpper, err := tickmath.SqrtPriceX64FromTick(pos.TickUpperIndex)
	if err != nil {
		return 0, 0, err
	}
	amt0, amt1 := liquidity.AmountsForLiquidity(
		fixedpoint.IntFromU128(pool.SqrtPriceX64), sqrtLower, sqrtUpper, liquidityDelta.Abs(), adding)
	amount0, err = fixedpoint.ToUint64(amt0)
	if err != nil {
		return 0, 0, err
	}
	amount1, err = fixedpoint.ToUint64(amt1)
	if err != nil {
		return 0, 0, err
	}

	if pos.TickLowerIndex <= pool.TickCurrent && pool.TickCurrent < pos.TickUpperIndex {
		poolLiquidity, err := liquidity.AddDelta(fixedpoint.IntFromU128(pool.Liquidity), liquidityDelta)
		if err != nil {
			return 0, 0, err
		}
		pool.Liquidity, err = fixedpoint.ToUint128(poolLiquidity)
		if err != nil {
			return 0, 0, err
		}
	}

	if err := e.persistTickArray(stage, pool, ext, taLower); err != nil {
		return 0, 0, err
	}
	if taUpper != taLower {
		if err := e.persistTickArray(stage, pool, ext, taUpper); err != nil {
			return 0, 0, err
		}
	}
	if err := e.persistBitmapExtension(stage, ext); err != nil {
		return 0, 0, err
	}

	// an emptied aggregate stays in the store; CloseProtocolPosition reclaims it
	if err := state.Save(stage, proto); err != nil {
		return 0, 0, err
	}
	return amount0, amount1, nil
}

// persistTickArray saves the array, or retires it and clears its bitmap bit
// once its last initialized tick is gone.
func (e *Engine) persistTickArray(
	stage *state.Stage, pool *state.PoolState, ext *state.TickArrayBitmapExtension, ta *state.TickArrayState,
) error {
	if ta.InitializedTickCount == 0 {
		initialized, err := pool.IsTickArrayInitialized(ext, ta.StartTickIndex)
		if err != nil {
			return err
		}
		if initialized {
			if err := pool.FlipTickArrayBit(ext, ta.StartTickIndex); err != nil {
				return err
			}
		}
		stage.Delete(ta.Key())
		return nil
	}
	return state.Save(stage, ta)
}

func (e *Engine) persistBitmapExtension(stage *state.Stage, ext *state.TickArrayBitmapExtension) error {
	return state.Save(stage, ext)
}
