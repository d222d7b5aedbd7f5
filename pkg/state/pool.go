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
)

const (
	// RewardNum is the number of reward slots carried by every pool.
	RewardNum = 3
	// TickArrayBitmapSize is the bit width of one side of the pool's
	// built-in tick array bitmap.
	TickArrayBitmapSize = 512
)

// Reward slot lifecycle.
const (
	RewardStateUninitialized = iota
	RewardStateInitialized
	RewardStateOpening
	RewardStateEnded
)

// Pool status bits. A set bit disables the operation.
const (
	StatusOpenPositionOrIncreaseLiquidity = iota
	StatusDecreaseLiquidity
	StatusCollectFee
	StatusCollectReward
	StatusSwap
)

var ErrRewardSlotOutOfRange = errors.New("reward index out of range")

// RewardInfo is one emission schedule and its accumulator.
type RewardInfo struct {
	RewardState           uint8
	OpenTime              uint64
	EndTime               uint64
	LastUpdateTime        uint64
	EmissionsPerSecondX64 uint128.Uint128
	RewardTotalEmissioned uint64
	RewardClaimed         uint64
	TokenMint             solana.PublicKey
	TokenVault            solana.PublicKey
	Authority             solana.PublicKey
	RewardGrowthGlobalX64 uint128.Uint128
}

// Initialized reports whether the slot carries a mint.
func (r *RewardInfo) Initialized() bool {
	return r.RewardState != RewardStateUninitialized && !r.TokenMint.IsZero()
}

// PoolState is the heart of the engine: current price, active liquidity, the
// global fee and reward accumulators and the bitmap of initialized tick
// arrays.
type PoolState struct {
	Bump          uint8
	AmmConfig     solana.PublicKey
	Owner         solana.PublicKey
	TokenMint0    solana.PublicKey
	TokenMint1    solana.PublicKey
	TokenVault0   solana.PublicKey
	TokenVault1   solana.PublicKey
	MintDecimals0 uint8
	MintDecimals1 uint8
	TickSpacing   uint16

	Liquidity    uint128.Uint128
	SqrtPriceX64 uint128.Uint128
	TickCurrent  int32

	FeeGrowthGlobal0X64 uint128.Uint128
	FeeGrowthGlobal1X64 uint128.Uint128

	ProtocolFeesToken0 uint64
	ProtocolFeesToken1 uint64

	SwapInAmountToken0  uint128.Uint128
	SwapOutAmountToken1 uint128.Uint128
	SwapInAmountToken1  uint128.Uint128
	SwapOutAmountToken0 uint128.Uint128

	Status uint8

	RewardInfos [RewardNum]RewardInfo

	TickArrayBitmap [16]uint64

	TotalFeesToken0        uint64
	TotalFeesClaimedToken0 uint64
	TotalFeesToken1        uint64
	TotalFeesClaimedToken1 uint64

	FundFeesToken0 uint64
	FundFeesToken1 uint64

	OpenTime uint64
}

func (p *PoolState) Key() solana.PublicKey {
	return PoolKey(p.AmmConfig, p.TokenMint0, p.TokenMint1)
}

// SetStatusBit disables or enables one operation class.
func (p *PoolState) SetStatusBit(bit uint8, disable bool) {
	if disable {
		p.Status |= 1 << bit
	} else {
		p.Status &^= 1 << bit
	}
}

// OperationEnabled reports whether the operation class behind bit is allowed.
func (p *PoolState) OperationEnabled(bit uint8) bool {
	return p.Status&(1<<bit) == 0
}

// UpdateRewardInfos rolls every active reward accumulator forward to
// curTimestamp. Growth only accrues while the pool has active liquidity, but
// the update clock always advances, so emission scheduled over an empty pool
// is forfeited rather than deferred.
func (p *PoolState) UpdateRewardInfos(curTimestamp uint64) {
	for i := range p.RewardInfos {
		r := &p.RewardInfos[i]
		if !r.Initialized() || curTimestamp <= r.OpenTime {
			continue
		}
		latest := curTimestamp
		if latest > r.EndTime {
			latest = r.EndTime
		}
		if latest <= r.LastUpdateTime {
			continue
		}
		if !p.Liquidity.IsZero() {
			timeDelta := latest - r.LastUpdateTime
			emitted := fixedpoint.IntFromU128(r.EmissionsPerSecondX64).Mul(cosmath.NewIntFromUint64(timeDelta))
			growthDelta := emitted.Quo(fixedpoint.IntFromU128(p.Liquidity))
			gd, err := fixedpoint.ToUint128(growthDelta)
			if err == nil {
				r.RewardGrowthGlobalX64 = r.RewardGrowthGlobalX64.AddWrap(gd)
			}
			emittedTokens := emitted.Quo(fixedpoint.Q64Int)
			if tokens, err := fixedpoint.ToUint64(emittedTokens); err == nil {
				r.RewardTotalEmissioned += tokens
			}
		}
		r.LastUpdateTime = latest
		if curTimestamp >= r.OpenTime && r.RewardState == RewardStateInitialized {
			r.RewardState = RewardStateOpening
		}
		if curTimestamp >= r.EndTime {
			r.RewardState = RewardStateEnded
		}
	}
}

// RewardGrowthsGlobal collects the three global reward accumulators.
func (p *PoolState) RewardGrowthsGlobal() [RewardNum]uint128.Uint128 {
	var out [RewardNum]uint128.Uint128
	for i := range p.RewardInfos {
		out[i] = p.RewardInfos[i].RewardGrowthGlobalX64
	}
	return out
}

// TickCount is the tick span of one tick array.
func TickCount(tickSpacing uint16) int32 {
	return int32(tickSpacing) * TickArraySize
}

// MaxTickInBitmap is the tick span one side of the built-in bitmap covers.
func MaxTickInBitmap(tickSpacing uint16) int32 {
	return TickArrayBitmapSize * TickCount(tickSpacing)
}

// IsOverflowDefaultBitmap reports whether startIndex falls outside the
// built-in bitmap and must live in the extension account.
func IsOverflowDefaultBitmap(tickSpacing uint16, startIndex int32) bool {
	boundary := MaxTickInBitmap(tickSpacing)
	return startIndex < -boundary || startIndex >= boundary
}

// FlipTickArrayBit toggles the initialized bit of the tick array at
// startIndex, spilling into ext when the built-in bitmap cannot hold it.
func (p *PoolState) FlipTickArrayBit(ext *TickArrayBitmapExtension, startIndex int32) error {
	if startIndex%TickCount(p.TickSpacing) != 0 {
		return fmt.Errorf("flip bit: %d is not a tick array start index", startIndex)
	}
	if IsOverflowDefaultBitmap(p.TickSpacing, startIndex) {
		if ext == nil {
			return errors.New("flip bit: bitmap extension required")
		}
		return ext.FlipTickArrayBit(p.TickSpacing, startIndex)
	}
	bitPos := startIndex/TickCount(p.TickSpacing) + TickArrayBitmapSize
	p.TickArrayBitmap[bitPos/64] ^= 1 << uint(bitPos%64)
	return nil
}

// IsTickArrayInitialized reports whether the tick array at startIndex has its
// bit set, consulting ext for out-of-range indices.
func (p *PoolState) IsTickArrayInitialized(ext *TickArrayBitmapExtension, startIndex int32) (bool, error) {
	if IsOverflowDefaultBitmap(p.TickSpacing, startIndex) {
		if ext == nil {
			return false, nil
		}
		return ext.IsTickArrayInitialized(p.TickSpacing, startIndex)
	}
	bitPos := startIndex/TickCount(p.TickSpacing) + TickArrayBitmapSize
	return p.TickArrayBitmap[bitPos/64]&(1<<uint(bitPos%64)) != 0, nil
}

const poolStateLen = 1 + 32*6 + 1 + 1 + 2 +
	16 + 16 + 4 +
	16 + 16 +
	8 + 8 +
	16*4 +
	1 +
	rewardInfoLen*RewardNum +
	8*16 +
	8*4 +
	8*2 +
	8

const rewardInfoLen = 1 + 8 + 8 + 8 + 16 + 8 + 8 + 32*3 + 16

func (p *PoolState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteByte(p.Bump); err != nil {
		return nil, err
	}
	for _, key := range []solana.PublicKey{
		p.AmmConfig, p.Owner, p.TokenMint0, p.TokenMint1, p.TokenVault0, p.TokenVault1,
	} {
		if err := writePublicKey(enc, key); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteByte(p.MintDecimals0); err != nil {
		return nil, err
	}
	if err := enc.WriteByte(p.MintDecimals1); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(p.TickSpacing, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writeU128(enc, p.Liquidity); err != nil {
		return nil, err
	}
	if err := writeU128(enc, p.SqrtPriceX64); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(p.TickCurrent), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, v := range []uint128.Uint128{p.FeeGrowthGlobal0X64, p.FeeGrowthGlobal1X64} {
		if err := writeU128(enc, v); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint64{p.ProtocolFeesToken0, p.ProtocolFeesToken1} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint128.Uint128{
		p.SwapInAmountToken0, p.SwapOutAmountToken1, p.SwapInAmountToken1, p.SwapOutAmountToken0,
	} {
		if err := writeU128(enc, v); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteByte(p.Status); err != nil {
		return nil, err
	}
	for i := range p.RewardInfos {
		if err := marshalRewardInfo(enc, &p.RewardInfos[i]); err != nil {
			return nil, err
		}
	}
	for _, w := range p.TickArrayBitmap {
		if err := enc.WriteUint64(w, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint64{
		p.TotalFeesToken0, p.TotalFeesClaimedToken0, p.TotalFeesToken1, p.TotalFeesClaimedToken1,
		p.FundFeesToken0, p.FundFeesToken1, p.OpenTime,
	} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func marshalRewardInfo(enc *bin.Encoder, r *RewardInfo) error {
	if err := enc.WriteByte(r.RewardState); err != nil {
		return err
	}
	for _, v := range []uint64{r.OpenTime, r.EndTime, r.LastUpdateTime} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	if err := writeU128(enc, r.EmissionsPerSecondX64); err != nil {
		return err
	}
	for _, v := range []uint64{r.RewardTotalEmissioned, r.RewardClaimed} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return err
		}
	}
	for _, key := range []solana.PublicKey{r.TokenMint, r.TokenVault, r.Authority} {
		if err := writePublicKey(enc, key); err != nil {
			return err
		}
	}
	return writeU128(enc, r.RewardGrowthGlobalX64)
}

func (p *PoolState) Unmarshal(data []byte) error {
	if err := checkLen(data, poolStateLen, "pool state"); err != nil {
		return err
	}
	r := &reader{data: data}
	p.Bump = r.u8()
	p.AmmConfig = r.publicKey()
	p.Owner = r.publicKey()
	p.TokenMint0 = r.publicKey()
	p.TokenMint1 = r.publicKey()
	p.TokenVault0 = r.publicKey()
	p.TokenVault1 = r.publicKey()
	p.MintDecimals0 = r.u8()
	p.MintDecimals1 = r.u8()
	p.TickSpacing = r.u16()
	p.Liquidity = r.u128()
	p.SqrtPriceX64 = r.u128()
	p.TickCurrent = r.i32()
	p.FeeGrowthGlobal0X64 = r.u128()
	p.FeeGrowthGlobal1X64 = r.u128()
	p.ProtocolFeesToken0 = r.u64()
	p.ProtocolFeesToken1 = r.u64()
	p.SwapInAmountToken0 = r.u128()
	p.SwapOutAmountToken1 = r.u128()
	p.SwapInAmountToken1 = r.u128()
	p.SwapOutAmountToken0 = r.u128()
	p.Status = r.u8()
	for i := range p.RewardInfos {
		unmarshalRewardInfo(r, &p.RewardInfos[i])
	}
	for i := range p.TickArrayBitmap {
		p.TickArrayBitmap[i] = r.u64()
	}
	p.TotalFeesToken0 = r.u64()
	p.TotalFeesClaimedToken0 = r.u64()
	p.TotalFeesToken1 = r.u64()
	p.TotalFeesClaimedToken1 = r.u64()
	p.FundFeesToken0 = r.u64()
	p.FundFeesToken1 = r.u64()
	p.OpenTime = r.u64()
	return nil
}

func unmarshalRewardInfo(r *reader, info *RewardInfo) {
	info.RewardState = r.u8()
	info.OpenTime = r.u64()
	info.EndTime = r.u64()
	info.LastUpdateTime = r.u64()
	info.EmissionsPerSecondX64 = r.u128()
	info.RewardTotalEmissioned = r.u64()
	info.RewardClaimed = r.u64()
	info.TokenMint = r.publicKey()
	info.TokenVault = r.publicKey()
	info.Authority = r.publicKey()
	info.RewardGrowthGlobalX64 = r.u128()
}
