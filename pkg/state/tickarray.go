package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
	"github.com/Solana-ZH/solclmm/pkg/liquidity"
	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// TickArraySize is the number of tick slots per tick array account.
const TickArraySize = 60

var (
	ErrInvalidTickIndex  = errors.New("tick does not belong to this tick array")
	ErrTickNotSpaced     = errors.New("tick is not a multiple of tick spacing")
	ErrNoInitializedTick = errors.New("no initialized tick in array")
)

// TickState is one price tick: the liquidity bookkeeping and the outside
// growth snapshots that flip as the price crosses it.
type TickState struct {
	Tick                 int32
	LiquidityNet         cosmath.Int
	LiquidityGross       uint128.Uint128
	FeeGrowthOutside0X64 uint128.Uint128
	FeeGrowthOutside1X64 uint128.Uint128
	RewardGrowthsOutside [RewardNum]uint128.Uint128
}

// IsInitialized reports whether any position references this tick.
func (t *TickState) IsInitialized() bool {
	return !t.LiquidityGross.IsZero()
}

// Clear wipes a tick that no position references anymore. Callers must settle
// growth-inside against the old snapshots before clearing.
func (t *TickState) Clear() {
	*t = TickState{Tick: t.Tick, LiquidityNet: cosmath.ZeroInt()}
}

// Update applies a liquidity delta to the tick. upper selects which side of a
// position the tick bounds. When the tick transitions between initialized and
// uninitialized, flipped is true and the caller must toggle the bitmap and, on
// a flip off, Clear the tick after settling growth-inside.
func (t *TickState) Update(
	tickCurrent int32,
	liquidityDelta cosmath.Int,
	feeGrowthGlobal0X64, feeGrowthGlobal1X64 uint128.Uint128,
	rewardGrowthsGlobal [RewardNum]uint128.Uint128,
	upper bool,
) (flipped bool, err error) {
	grossBefore := fixedpoint.IntFromU128(t.LiquidityGross)
	grossAfter, err := liquidity.AddDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	flipped = grossAfter.IsZero() != grossBefore.IsZero()

	if grossBefore.IsZero() {
		// By convention growth below an initialized tick is everything
		// accrued so far when the tick is at or below the current price.
		if t.Tick <= tickCurrent {
			t.FeeGrowthOutside0X64 = feeGrowthGlobal0X64
			t.FeeGrowthOutside1X64 = feeGrowthGlobal1X64
			t.RewardGrowthsOutside = rewardGrowthsGlobal
		}
	}

	t.LiquidityGross, err = fixedpoint.ToUint128(grossAfter)
	if err != nil {
		return false, err
	}

	if t.LiquidityNet.IsNil() {
		t.LiquidityNet = cosmath.ZeroInt()
	}
	if upper {
		t.LiquidityNet = t.LiquidityNet.Sub(liquidityDelta)
	} else {
		t.LiquidityNet = t.LiquidityNet.Add(liquidityDelta)
	}

	return flipped, nil
}

// Cross flips the outside snapshots as the price moves through the tick and
// returns the signed liquidity change to apply.
func (t *TickState) Cross(
	feeGrowthGlobal0X64, feeGrowthGlobal1X64 uint128.Uint128,
	rewardGrowthsGlobal [RewardNum]uint128.Uint128,
) cosmath.Int {
	t.FeeGrowthOutside0X64 = fixedpoint.WrapDelta(feeGrowthGlobal0X64, t.FeeGrowthOutside0X64)
	t.FeeGrowthOutside1X64 = fixedpoint.WrapDelta(feeGrowthGlobal1X64, t.FeeGrowthOutside1X64)
	for i := range t.RewardGrowthsOutside {
		t.RewardGrowthsOutside[i] = fixedpoint.WrapDelta(rewardGrowthsGlobal[i], t.RewardGrowthsOutside[i])
	}
	if t.LiquidityNet.IsNil() {
		return cosmath.ZeroInt()
	}
	return t.LiquidityNet
}

// FeeGrowthInside computes the fee growth accrued strictly between the two
// ticks, in both tokens. All arithmetic wraps modulo 2^128.
func FeeGrowthInside(
	lower, upper *TickState,
	tickCurrent int32,
	feeGrowthGlobal0X64, feeGrowthGlobal1X64 uint128.Uint128,
) (inside0, inside1 uint128.Uint128) {
	var below0, below1 uint128.Uint128
	if tickCurrent >= lower.Tick {
		below0, below1 = lower.FeeGrowthOutside0X64, lower.FeeGrowthOutside1X64
	} else {
		below0 = fixedpoint.WrapDelta(feeGrowthGlobal0X64, lower.FeeGrowthOutside0X64)
		below1 = fixedpoint.WrapDelta(feeGrowthGlobal1X64, lower.FeeGrowthOutside1X64)
	}

	var above0, above1 uint128.Uint128
	if tickCurrent < upper.Tick {
		above0, above1 = upper.FeeGrowthOutside0X64, upper.FeeGrowthOutside1X64
	} else {
		above0 = fixedpoint.WrapDelta(feeGrowthGlobal0X64, upper.FeeGrowthOutside0X64)
		above1 = fixedpoint.WrapDelta(feeGrowthGlobal1X64, upper.FeeGrowthOutside1X64)
	}

	inside0 = fixedpoint.WrapDelta(fixedpoint.WrapDelta(feeGrowthGlobal0X64, below0), above0)
	inside1 = fixedpoint.WrapDelta(fixedpoint.WrapDelta(feeGrowthGlobal1X64, below1), above1)
	return inside0, inside1
}

// RewardGrowthsInside is FeeGrowthInside for the reward accumulators.
func RewardGrowthsInside(
	lower, upper *TickState,
	tickCurrent int32,
	rewardGrowthsGlobal [RewardNum]uint128.Uint128,
) [RewardNum]uint128.Uint128 {
	var inside [RewardNum]uint128.Uint128
	for i := range rewardGrowthsGlobal {
		var below uint128.Uint128
		if tickCurrent >= lower.Tick {
			below = lower.RewardGrowthsOutside[i]
		} else {
			below = fixedpoint.WrapDelta(rewardGrowthsGlobal[i], lower.RewardGrowthsOutside[i])
		}
		var above uint128.Uint128
		if tickCurrent < upper.Tick {
			above = upper.RewardGrowthsOutside[i]
		} else {
			above = fixedpoint.WrapDelta(rewardGrowthsGlobal[i], upper.RewardGrowthsOutside[i])
		}
		inside[i] = fixedpoint.WrapDelta(fixedpoint.WrapDelta(rewardGrowthsGlobal[i], below), above)
	}
	return inside
}

// TickArrayStartIndex returns the start index of the tick array containing
// tick, rounding toward negative infinity.
func TickArrayStartIndex(tick int32, tickSpacing uint16) int32 {
	span := TickCount(tickSpacing)
	start := tick / span
	if tick < 0 && tick%span != 0 {
		start--
	}
	return start * span
}

// CheckTickBoundary validates that tick is in range and on the spacing grid.
func CheckTickBoundary(tick int32, tickSpacing uint16) error {
	if err := tickmath.CheckTickBounds(tick); err != nil {
		return err
	}
	if tick%int32(tickSpacing) != 0 {
		return ErrTickNotSpaced
	}
	return nil
}

// TickArrayState is one fixed-width window of ticks.
type TickArrayState struct {
	PoolID               solana.PublicKey
	StartTickIndex       int32
	Ticks                [TickArraySize]TickState
	InitializedTickCount uint8
}

// NewTickArrayState returns an empty array whose slots carry their tick index.
func NewTickArrayState(pool solana.PublicKey, startIndex int32, tickSpacing uint16) *TickArrayState {
	ta := &TickArrayState{PoolID: pool, StartTickIndex: startIndex}
	for i := range ta.Ticks {
		ta.Ticks[i].Tick = startIndex + int32(i)*int32(tickSpacing)
		ta.Ticks[i].LiquidityNet = cosmath.ZeroInt()
	}
	return ta
}

func (ta *TickArrayState) Key() solana.PublicKey {
	return TickArrayKey(ta.PoolID, ta.StartTickIndex)
}

// InRange reports whether tick falls inside the array's window.
func (ta *TickArrayState) InRange(tick int32, tickSpacing uint16) bool {
	return tick >= ta.StartTickIndex && tick < ta.StartTickIndex+TickCount(tickSpacing)
}

// TickStateAt returns the slot for tick, which must be on the spacing grid
// and inside the window.
func (ta *TickArrayState) TickStateAt(tick int32, tickSpacing uint16) (*TickState, error) {
	if !ta.InRange(tick, tickSpacing) {
		return nil, ErrInvalidTickIndex
	}
	offset := (tick - ta.StartTickIndex) / int32(tickSpacing)
	if ta.StartTickIndex+offset*int32(tickSpacing) != tick {
		return nil, ErrTickNotSpaced
	}
	return &ta.Ticks[offset], nil
}

// UpdateInitializedTickCount adjusts the count after a tick flip.
func (ta *TickArrayState) UpdateInitializedTickCount(add bool) {
	if add {
		ta.InitializedTickCount++
	} else if ta.InitializedTickCount > 0 {
		ta.InitializedTickCount--
	}
}

// FirstInitializedTick returns the entry tick for a swap crossing into this
// array: the highest initialized tick when moving down, the lowest when
// moving up.
func (ta *TickArrayState) FirstInitializedTick(zeroForOne bool) (*TickState, error) {
	if zeroForOne {
		for i := TickArraySize - 1; i >= 0; i-- {
			if ta.Ticks[i].IsInitialized() {
				return &ta.Ticks[i], nil
			}
		}
	} else {
		for i := 0; i < TickArraySize; i++ {
			if ta.Ticks[i].IsInitialized() {
				return &ta.Ticks[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: start %d", ErrNoInitializedTick, ta.StartTickIndex)
}

// NextInitializedTick returns the next initialized tick strictly beyond
// currentTick in the swap direction, or nil when the array holds none.
func (ta *TickArrayState) NextInitializedTick(currentTick int32, tickSpacing uint16, zeroForOne bool) *TickState {
	span := TickCount(tickSpacing)
	if zeroForOne {
		if currentTick < ta.StartTickIndex {
			return nil
		}
		offset := (currentTick - ta.StartTickIndex) / int32(tickSpacing)
		if offset > TickArraySize-1 {
			offset = TickArraySize - 1
		}
		for i := offset; i >= 0; i-- {
			if ta.Ticks[i].IsInitialized() && ta.Ticks[i].Tick <= currentTick {
				return &ta.Ticks[i]
			}
		}
	} else {
		if currentTick >= ta.StartTickIndex+span {
			return nil
		}
		offset := int32(0)
		if currentTick >= ta.StartTickIndex {
			offset = (currentTick-ta.StartTickIndex)/int32(tickSpacing) + 1
		}
		for i := offset; i < TickArraySize; i++ {
			if ta.Ticks[i].IsInitialized() && ta.Ticks[i].Tick > currentTick {
				return &ta.Ticks[i]
			}
		}
	}
	return nil
}

const tickStateLen = 4 + 16 + 16 + 16 + 16 + 16*RewardNum
const tickArrayLen = 32 + 4 + tickStateLen*TickArraySize + 1

func (ta *TickArrayState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := writePublicKey(enc, ta.PoolID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(ta.StartTickIndex), binary.LittleEndian); err != nil {
		return nil, err
	}
	for i := range ta.Ticks {
		t := &ta.Ticks[i]
		if err := enc.WriteUint32(uint32(t.Tick), binary.LittleEndian); err != nil {
			return nil, err
		}
		net := t.LiquidityNet
		if net.IsNil() {
			net = cosmath.ZeroInt()
		}
		if err := writeI128(enc, net); err != nil {
			return nil, err
		}
		if err := writeU128(enc, t.LiquidityGross); err != nil {
			return nil, err
		}
		if err := writeU128(enc, t.FeeGrowthOutside0X64); err != nil {
			return nil, err
		}
		if err := writeU128(enc, t.FeeGrowthOutside1X64); err != nil {
			return nil, err
		}
		for _, v := range t.RewardGrowthsOutside {
			if err := writeU128(enc, v); err != nil {
				return nil, err
			}
		}
	}
	if err := enc.WriteByte(ta.InitializedTickCount); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ta *TickArrayState) Unmarshal(data []byte) error {
	if err := checkLen(data, tickArrayLen, "tick array"); err != nil {
		return err
	}
	r := &reader{data: data}
	ta.PoolID = r.publicKey()
	ta.StartTickIndex = r.i32()
	for i := range ta.Ticks {
		t := &ta.Ticks[i]
		t.Tick = r.i32()
		t.LiquidityNet = r.i128()
		t.LiquidityGross = r.u128()
		t.FeeGrowthOutside0X64 = r.u128()
		t.FeeGrowthOutside1X64 = r.u128()
		for j := range t.RewardGrowthsOutside {
			t.RewardGrowthsOutside[j] = r.u128()
		}
	}
	ta.InitializedTickCount = r.u8()
	return nil
}
