package engine

import (
	"context"
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/liquidity"
	"github.com/Solana-ZH/solclmm/pkg/state"
	"github.com/Solana-ZH/solclmm/pkg/swapmath"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// SwapParams describes one swap against a single pool. Amount is the input
// amount when IsBaseInput, otherwise the desired output amount.
// OtherAmountThreshold bounds the opposite side: minimum output for exact
// input, maximum input for exact output. A nil or zero SqrtPriceLimitX64
// defaults to the extreme price bound for the direction.
type SwapParams struct {
	Trader               solana.PublicKey
	PoolKey              solana.PublicKey
	Amount               uint64
	OtherAmountThreshold uint64
	SqrtPriceLimitX64    cosmath.Int
	ZeroForOne           bool
	IsBaseInput          bool
}

// SwapResult reports the executed amounts. AmountIn is gross of fees.
type SwapResult struct {
	AmountIn     uint64
	AmountOut    uint64
	FeeAmount    uint64
	ProtocolFee  uint64
	FundFee      uint64
	SqrtPriceX64 cosmath.Int
	TickCurrent  int32
}

// Swap executes a swap within one pool, crossing initialized ticks as the
// price moves, and settles token transfers through the custodian. A zero
// Amount is a no-op that reports the pool's current price.
func (e *Engine) Swap(ctx context.Context, params SwapParams) (SwapResult, error) {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, params.PoolKey)
	if err != nil {
		return SwapResult{}, err
	}

	if params.Amount == 0 {
		return SwapResult{
			SqrtPriceX64: fixedpoint.IntFromU128(pool.SqrtPriceX64),
			TickCurrent:  pool.TickCurrent,
		}, nil
	}

	if !pool.OperationEnabled(state.StatusSwap) {
		return SwapResult{}, ErrOperationDisabled
	}
	now := e.clock.Unix()
	if now < pool.OpenTime {
		return SwapResult{}, fmt.Errorf("%w: opens at %d", ErrPoolNotOpen, pool.OpenTime)
	}

	cfg, err := e.loadConfig(stage, pool.AmmConfig)
	if err != nil {
		return SwapResult{}, err
	}
	ext, err := e.loadBitmapExtension(stage, params.PoolKey)
	if err != nil {
		return SwapResult{}, err
	}

	limit, err := normalizePriceLimit(params.SqrtPriceLimitX64, fixedpoint.IntFromU128(pool.SqrtPriceX64), params.ZeroForOne)
	if err != nil {
		return SwapResult{}, err
	}

	pool.UpdateRewardInfos(now)

	result, touched, err := e.swapInternal(stage, pool, cfg, ext, params, limit)
	if err != nil {
		return SwapResult{}, err
	}

	if params.IsBaseInput {
		if result.AmountOut < params.OtherAmountThreshold {
			return SwapResult{}, fmt.Errorf("%w: got %d, want at least %d",
				ErrTooLittleOutput, result.AmountOut, params.OtherAmountThreshold)
		}
	} else if result.AmountIn > params.OtherAmountThreshold {
		return SwapResult{}, fmt.Errorf("%w: need %d, cap %d",
			ErrTooMuchInput, result.AmountIn, params.OtherAmountThreshold)
	}

	inMint, inVault := pool.TokenMint0, pool.TokenVault0
	outMint, outVault := pool.TokenMint1, pool.TokenVault1
	if !params.ZeroForOne {
		inMint, inVault, outMint, outVault = outMint, outVault, inMint, inVault
	}
	if err := e.custody.Transfer(ctx, inMint, params.Trader, inVault, result.AmountIn); err != nil {
		return SwapResult{}, err
	}
	if err := e.custody.Transfer(ctx, outMint, outVault, params.Trader, result.AmountOut); err != nil {
		return SwapResult{}, err
	}

	for _, ta := range touched {
		if err := state.Save(stage, ta); err != nil {
			return SwapResult{}, err
		}
	}
	if err := state.Save(stage, pool); err != nil {
		return SwapResult{}, err
	}
	stage.Commit()

	e.log.Info("swap executed",
		zap.Stringer("pool", params.PoolKey),
		zap.Bool("zero_for_one", params.ZeroForOne),
		zap.Bool("base_input", params.IsBaseInput),
		zap.Uint64("amount_in", result.AmountIn),
		zap.Uint64("amount_out", result.AmountOut),
		zap.Uint64("fee", result.FeeAmount),
		zap.Int32("tick", result.TickCurrent),
	)
	return result, nil
}

// Quote computes the outcome of a swap without moving tokens or touching the
// store. The same gates apply as for Swap, so a quote never reports a trade
// the pool would refuse.
func (e *Engine) Quote(ctx context.Context, params SwapParams) (SwapResult, error) {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, params.PoolKey)
	if err != nil {
		return SwapResult{}, err
	}
	if params.Amount == 0 {
		return SwapResult{
			SqrtPriceX64: fixedpoint.IntFromU128(pool.SqrtPriceX64),
			TickCurrent:  pool.TickCurrent,
		}, nil
	}
	if !pool.OperationEnabled(state.StatusSwap) {
		return SwapResult{}, ErrOperationDisabled
	}
	now := e.clock.Unix()
	if now < pool.OpenTime {
		return SwapResult{}, fmt.Errorf("%w: opens at %d", ErrPoolNotOpen, pool.OpenTime)
	}
	cfg, err := e.loadConfig(stage, pool.AmmConfig)
	if err != nil {
		return SwapResult{}, err
	}
	ext, err := e.loadBitmapExtension(stage, params.PoolKey)
	if err != nil {
		return SwapResult{}, err
	}
	limit, err := normalizePriceLimit(params.SqrtPriceLimitX64, fixedpoint.IntFromU128(pool.SqrtPriceX64), params.ZeroForOne)
	if err != nil {
		return SwapResult{}, err
	}
	pool.UpdateRewardInfos(now)

	// the stage is discarded, so the loop's mutations never land
	result, _, err := e.swapInternal(stage, pool, cfg, ext, params, limit)
	return result, err
}

func normalizePriceLimit(limit, current cosmath.Int, zeroForOne bool) (cosmath.Int, error) {
	if limit.IsNil() || limit.IsZero() {
		if zeroForOne {
			return tickmath.MinSqrtPriceX64.Add(cosmath.OneInt()), nil
		}
		return tickmath.MaxSqrtPriceX64.Sub(cosmath.OneInt()), nil
	}
	if zeroForOne {
		if limit.GTE(current) || limit.LTE(tickmath.MinSqrtPriceX64) {
			return cosmath.Int{}, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, limit)
		}
	} else {
		if limit.LTE(current) || limit.GTE(tickmath.MaxSqrtPriceX64) {
			return cosmath.Int{}, fmt.Errorf("%w: %s", ErrInvalidPriceLimit, limit)
		}
	}
	return limit, nil
}

// swapInternal runs the tick-crossing loop against staged state. It mutates
// pool and the returned tick arrays but performs no transfers.
func (e *Engine) swapInternal(
	stage *state.Stage,
	pool *state.PoolState,
	cfg *state.AmmConfig,
	ext *state.TickArrayBitmapExtension,
	params SwapParams,
	limit cosmath.Int,
) (SwapResult, map[int32]*state.TickArrayState, error) {
	touched := make(map[int32]*state.TickArrayState)

	loadArray := func(startIndex int32) (*state.TickArrayState, error) {
		if ta, ok := touched[startIndex]; ok {
			return ta, nil
		}
		ta, err := e.tickArrayAt(stage, pool, ext, startIndex, false)
		if err != nil {
			return nil, err
		}
		touched[startIndex] = ta
		return ta, nil
	}

	price := fixedpoint.IntFromU128(pool.SqrtPriceX64)
	tick := pool.TickCurrent
	liq := fixedpoint.IntFromU128(pool.Liquidity)

	remaining := cosmath.NewIntFromUint64(params.Amount)
	calculated := cosmath.ZeroInt()
	totalFee := cosmath.ZeroInt()
	totalProtocolFee := cosmath.ZeroInt()
	totalFundFee := cosmath.ZeroInt()

	feeGrowthInput := pool.FeeGrowthGlobal0X64
	if !params.ZeroForOne {
		feeGrowthInput = pool.FeeGrowthGlobal1X64
	}

	// locate the tick array the price currently sits in, or the nearest
	// initialized one in the swap direction
	var curArray *state.TickArrayState
	startIndex := state.TickArrayStartIndex(tick, pool.TickSpacing)
	initialized, err := pool.IsTickArrayInitialized(ext, startIndex)
	if err != nil {
		return SwapResult{}, nil, err
	}
	if !initialized {
		found, next, err := pool.NextInitializedTickArrayStartIndex(ext, startIndex, params.ZeroForOne)
		if err != nil {
			return SwapResult{}, nil, err
		}
		initialized, startIndex = found, next
	}
	if initialized {
		curArray, err = loadArray(startIndex)
		if err != nil {
			return SwapResult{}, nil, err
		}
	}

	for remaining.IsPositive() && !price.Equal(limit) {
		var nextTick *state.TickState
		if curArray != nil {
			nextTick = curArray.NextInitializedTick(tick, pool.TickSpacing, params.ZeroForOne)
			for nextTick == nil {
				found, nextStart, err := pool.NextInitializedTickArrayStartIndex(ext, curArray.StartTickIndex, params.ZeroForOne)
				if err != nil {
					return SwapResult{}, nil, err
				}
				if !found {
					curArray = nil
					break
				}
				curArray, err = loadArray(nextStart)
				if err != nil {
					return SwapResult{}, nil, err
				}
				nextTick, err = curArray.FirstInitializedTick(params.ZeroForOne)
				if err != nil {
					return SwapResult{}, nil, err
				}
			}
		}

		target := limit
		var nextTickPrice cosmath.Int
		if nextTick != nil {
			nextTickPrice, err = tickmath.SqrtPriceX64FromTick(nextTick.Tick)
			if err != nil {
				return SwapResult{}, nil, err
			}
			if params.ZeroForOne && nextTickPrice.GT(limit) {
				target = nextTickPrice
			} else if !params.ZeroForOne && nextTickPrice.LT(limit) {
				target = nextTickPrice
			}
		}

		step, err := swapmath.Compute(price, target, liq, remaining, cfg.TradeFeeRate, params.IsBaseInput, params.ZeroForOne)
		if err != nil {
			return SwapResult{}, nil, err
		}
		price = step.SqrtPriceNextX64

		if params.IsBaseInput {
			remaining = remaining.Sub(step.AmountIn).Sub(step.FeeAmount)
			calculated = calculated.Add(step.AmountOut)
		} else {
			remaining = remaining.Sub(step.AmountOut)
			calculated = calculated.Add(step.AmountIn).Add(step.FeeAmount)
		}

		protocolFee := fixedpoint.MulDivFloor(step.FeeAmount, cosmath.NewInt(int64(cfg.ProtocolFeeRate)), fixedpoint.FeeRateDenominator)
		fundFee := fixedpoint.MulDivFloor(step.FeeAmount, cosmath.NewInt(int64(cfg.FundFeeRate)), fixedpoint.FeeRateDenominator)
		growthFee := step.FeeAmount.Sub(protocolFee).Sub(fundFee)
		totalFee = totalFee.Add(step.FeeAmount)
		totalProtocolFee = totalProtocolFee.Add(protocolFee)
		totalFundFee = totalFundFee.Add(fundFee)
		if liq.IsPositive() && growthFee.IsPositive() {
			delta := new(big.Int).Mul(growthFee.BigInt(), fixedpoint.Q64)
			delta.Quo(delta, liq.BigInt())
			delta.And(delta, fixedpoint.MaxUint128)
			feeGrowthInput = feeGrowthInput.AddWrap(fixedpoint.U128FromBig(delta))
		}

		if nextTick != nil && price.Equal(nextTickPrice) {
			fg0, fg1 := pool.FeeGrowthGlobal0X64, pool.FeeGrowthGlobal1X64
			if params.ZeroForOne {
				fg0 = feeGrowthInput
			} else {
				fg1 = feeGrowthInput
			}
			net := nextTick.Cross(fg0, fg1, pool.RewardGrowthsGlobal())
			if params.ZeroForOne {
				net = net.Neg()
			}
			liq, err = liquidity.AddDelta(liq, net)
			if err != nil {
				return SwapResult{}, nil, err
			}
			if params.ZeroForOne {
				tick = nextTick.Tick - 1
			} else {
				tick = nextTick.Tick
			}
		} else {
			tick, err = tickmath.TickFromSqrtPriceX64(price)
			if err != nil {
				return SwapResult{}, nil, err
			}
		}
	}

	// fold the loop state back into the pool
	pool.TickCurrent = tick
	pool.SqrtPriceX64, err = fixedpoint.ToUint128(price)
	if err != nil {
		return SwapResult{}, nil, err
	}
	pool.Liquidity, err = fixedpoint.ToUint128(liq)
	if err != nil {
		return SwapResult{}, nil, err
	}

	var amountIn, amountOut cosmath.Int
	consumed := cosmath.NewIntFromUint64(params.Amount).Sub(remaining)
	if params.IsBaseInput {
		amountIn, amountOut = consumed, calculated
	} else {
		amountIn, amountOut = calculated, consumed
	}

	in64, err := fixedpoint.ToUint64(amountIn)
	if err != nil {
		return SwapResult{}, nil, err
	}
	out64, err := fixedpoint.ToUint64(amountOut)
	if err != nil {
		return SwapResult{}, nil, err
	}
	fee64, err := fixedpoint.ToUint64(totalFee)
	if err != nil {
		return SwapResult{}, nil, err
	}
	protocol64, err := fixedpoint.ToUint64(totalProtocolFee)
	if err != nil {
		return SwapResult{}, nil, err
	}
	fund64, err := fixedpoint.ToUint64(totalFundFee)
	if err != nil {
		return SwapResult{}, nil, err
	}

	if params.ZeroForOne {
		pool.FeeGrowthGlobal0X64 = feeGrowthInput
		pool.ProtocolFeesToken0 += protocol64
		pool.FundFeesToken0 += fund64
		pool.TotalFeesToken0 += fee64
		pool.SwapInAmountToken0 = pool.SwapInAmountToken0.AddWrap(uint128.From64(in64))
		pool.SwapOutAmountToken1 = pool.SwapOutAmountToken1.AddWrap(uint128.From64(out64))
	} else {
		pool.FeeGrowthGlobal1X64 = feeGrowthInput
		pool.ProtocolFeesToken1 += protocol64
		pool.FundFeesToken1 += fund64
		pool.TotalFeesToken1 += fee64
		pool.SwapInAmountToken1 = pool.SwapInAmountToken1.AddWrap(uint128.From64(in64))
		pool.SwapOutAmountToken0 = pool.SwapOutAmountToken0.AddWrap(uint128.From64(out64))
	}

	return SwapResult{
		AmountIn:     in64,
		AmountOut:    out64,
		FeeAmount:    fee64,
		ProtocolFee:  protocol64,
		FundFee:      fund64,
		SqrtPriceX64: price,
		TickCurrent:  tick,
	}, touched, nil
}
