package engine

import (
	"context"
	"fmt"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/state"
)

// InitializeRewardParams configures one of the pool's three reward slots.
// EmissionsPerSecondX64 is a Q64.64 token rate.
type InitializeRewardParams struct {
	Funder                solana.PublicKey
	PoolKey               solana.PublicKey
	RewardIndex           uint8
	RewardMint            solana.PublicKey
	OpenTime              uint64
	EndTime               uint64
	EmissionsPerSecondX64 uint128.Uint128
}

// SetRewardParamsArgs adjusts an existing reward schedule. Before the schedule
// opens every field may change; once it is live only the emission rate and end
// time can move, and the rate must not decrease.
type SetRewardParamsArgs struct {
	Authority             solana.PublicKey
	PoolKey               solana.PublicKey
	RewardIndex           uint8
	OpenTime              uint64
	EndTime               uint64
	EmissionsPerSecondX64 uint128.Uint128
}

// rewardBudget is the token amount needed to fund emissions over [from, to),
// rounded up so the vault never runs dry.
func rewardBudget(emissionsX64 uint128.Uint128, from, to uint64) (uint64, error) {
	if to <= from {
		return 0, nil
	}
	amount := fixedpoint.MulDivCeil(
		fixedpoint.IntFromU128(emissionsX64),
		cosmath.NewIntFromUint64(to-from),
		fixedpoint.Q64Int,
	)
	return fixedpoint.ToUint64(amount)
}

func (e *Engine) rewardAuthority(pool *state.PoolState, cfg *state.AmmConfig, who solana.PublicKey) bool {
	return e.auth.IsAdmin(who) || who.Equals(pool.Owner) || who.Equals(cfg.Owner)
}

// InitializeReward opens an empty reward slot and funds its vault with the
// full scheduled emission.
func (e *Engine) InitializeReward(ctx context.Context, params InitializeRewardParams) error {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, params.PoolKey)
	if err != nil {
		return err
	}
	cfg, err := e.loadConfig(stage, pool.AmmConfig)
	if err != nil {
		return err
	}
	if !e.rewardAuthority(pool, cfg, params.Funder) {
		return ErrUnauthorized
	}
	if int(params.RewardIndex) >= state.RewardNum {
		return state.ErrRewardSlotOutOfRange
	}
	slot := &pool.RewardInfos[params.RewardIndex]
	if slot.Initialized() {
		return fmt.Errorf("%w: index %d", ErrRewardSlotOccupied, params.RewardIndex)
	}

	now := e.clock.Unix()
	if params.RewardMint.IsZero() ||
		params.OpenTime < now ||
		params.OpenTime >= params.EndTime ||
		params.EmissionsPerSecondX64.IsZero() {
		return ErrInvalidRewardParams
	}

	vault := state.PoolRewardVaultKey(params.PoolKey, params.RewardMint)
	funding, err := rewardBudget(params.EmissionsPerSecondX64, params.OpenTime, params.EndTime)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(ctx, params.RewardMint, params.Funder, vault, funding); err != nil {
		return err
	}

	*slot = state.RewardInfo{
		RewardState:           state.RewardStateInitialized,
		OpenTime:              params.OpenTime,
		EndTime:               params.EndTime,
		LastUpdateTime:        params.OpenTime,
		EmissionsPerSecondX64: params.EmissionsPerSecondX64,
		TokenMint:             params.RewardMint,
		TokenVault:            vault,
		Authority:             params.Funder,
	}
	if err := state.Save(stage, pool); err != nil {
		return err
	}
	stage.Commit()

	e.log.Info("reward initialized",
		zap.Stringer("pool", params.PoolKey),
		zap.Uint8("index", params.RewardIndex),
		zap.Stringer("mint", params.RewardMint),
		zap.Uint64("open_time", params.OpenTime),
		zap.Uint64("end_time", params.EndTime),
		zap.Uint64("funding", funding),
	)
	return nil
}

// SetRewardParams reschedules a reward slot. Any additional emission budget is
// collected from the authority; surplus already in the vault is never
// refunded.
func (e *Engine) SetRewardParams(ctx context.Context, args SetRewardParamsArgs) error {
	stage := state.NewStage(e.store)
	pool, err := e.loadPool(stage, args.PoolKey)
	if err != nil {
		return err
	}
	cfg, err := e.loadConfig(stage, pool.AmmConfig)
	if err != nil {
		return err
	}
	if int(args.RewardIndex) >= state.RewardNum {
		return state.ErrRewardSlotOutOfRange
	}
	slot := &pool.RewardInfos[args.RewardIndex]
	if !slot.Initialized() {
		return fmt.Errorf("%w: index %d", ErrRewardNotInitialized, args.RewardIndex)
	}
	if !e.rewardAuthority(pool, cfg, args.Authority) && !args.Authority.Equals(slot.Authority) {
		return ErrUnauthorized
	}

	now := e.clock.Unix()
	pool.UpdateRewardInfos(now)

	var funding uint64
	switch {
	case now < slot.OpenTime || slot.RewardState == state.RewardStateEnded:
		// not yet live, or a finished schedule being restarted: full reset
		if args.OpenTime < now ||
			args.OpenTime >= args.EndTime ||
			args.EmissionsPerSecondX64.IsZero() {
			return ErrInvalidRewardParams
		}
		funding, err = rewardBudget(args.EmissionsPerSecondX64, args.OpenTime, args.EndTime)
		if err != nil {
			return err
		}
		slot.OpenTime = args.OpenTime
		slot.EndTime = args.EndTime
		slot.LastUpdateTime = args.OpenTime
		slot.EmissionsPerSecondX64 = args.EmissionsPerSecondX64
		slot.RewardState = state.RewardStateInitialized

	default:
		// live schedule: the rate may only grow and the end may only move out
		if args.EmissionsPerSecondX64.Cmp(slot.EmissionsPerSecondX64) < 0 {
			return fmt.Errorf("%w: index %d", ErrRewardDecrease, args.RewardIndex)
		}
		if args.EndTime <= now || args.EndTime < slot.EndTime {
			return ErrInvalidRewardParams
		}
		oldRemaining, err := rewardBudget(slot.EmissionsPerSecondX64, now, slot.EndTime)
		if err != nil {
			return err
		}
		newRemaining, err := rewardBudget(args.EmissionsPerSecondX64, now, args.EndTime)
		if err != nil {
			return err
		}
		if newRemaining > oldRemaining {
			funding = newRemaining - oldRemaining
		}
		slot.EndTime = args.EndTime
		slot.EmissionsPerSecondX64 = args.EmissionsPerSecondX64
	}

	if funding > 0 {
		if err := e.custody.Transfer(ctx, slot.TokenMint, args.Authority, slot.TokenVault, funding); err != nil {
			return err
		}
	}
	if err := state.Save(stage, pool); err != nil {
		return err
	}
	stage.Commit()

	e.log.Info("reward params updated",
		zap.Stringer("pool", args.PoolKey),
		zap.Uint8("index", args.RewardIndex),
		zap.Uint64("open_time", slot.OpenTime),
		zap.Uint64("end_time", slot.EndTime),
		zap.Uint64("funding", funding),
	)
	return nil
}
