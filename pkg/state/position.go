package state

import (
	"bytes"
	"encoding/binary"
	"math/big"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
)

// PositionRewardInfo snapshots one reward accumulator for a position.
type PositionRewardInfo struct {
	GrowthInsideLastX64 uint128.Uint128
	RewardAmountOwed    uint64
}

// PersonalPositionState is one owner's liquidity over a tick range, with the
// fee and reward entitlements settled so far.
type PersonalPositionState struct {
	Bump                    uint8
	PoolID                  solana.PublicKey
	Owner                   solana.PublicKey
	TickLowerIndex          int32
	TickUpperIndex          int32
	Liquidity               uint128.Uint128
	FeeGrowthInside0LastX64 uint128.Uint128
	FeeGrowthInside1LastX64 uint128.Uint128
	TokenFeesOwed0          uint64
	TokenFeesOwed1          uint64
	RewardInfos             [RewardNum]PositionRewardInfo
}

func (p *PersonalPositionState) Key() solana.PublicKey {
	return PersonalPositionKey(p.PoolID, p.Owner, p.TickLowerIndex, p.TickUpperIndex)
}

// growthToTokens is floor(delta * liquidity / 2^64) truncated to 64 bits, the
// settlement rule shared by fees and rewards.
func growthToTokens(deltaX64, liq uint128.Uint128) uint64 {
	product := new(big.Int).Mul(deltaX64.Big(), liq.Big())
	product.Rsh(product, fixedpoint.U64Resolution)
	return product.And(product, maxU64Mask).Uint64()
}

var maxU64Mask = new(big.Int).SetUint64(^uint64(0))

// SettleFees folds the latest inside growth into the owed balances and moves
// the snapshots forward. Settling twice at the same growth accrues nothing.
func (p *PersonalPositionState) SettleFees(inside0, inside1 uint128.Uint128) {
	delta0 := fixedpoint.WrapDelta(inside0, p.FeeGrowthInside0LastX64)
	delta1 := fixedpoint.WrapDelta(inside1, p.FeeGrowthInside1LastX64)
	p.TokenFeesOwed0 += growthToTokens(delta0, p.Liquidity)
	p.TokenFeesOwed1 += growthToTokens(delta1, p.Liquidity)
	p.FeeGrowthInside0LastX64 = inside0
	p.FeeGrowthInside1LastX64 = inside1
}

// SettleRewards folds the latest inside reward growth into the owed balances.
func (p *PersonalPositionState) SettleRewards(inside [RewardNum]uint128.Uint128) {
	for i := range p.RewardInfos {
		delta := fixedpoint.WrapDelta(inside[i], p.RewardInfos[i].GrowthInsideLastX64)
		p.RewardInfos[i].RewardAmountOwed += growthToTokens(delta, p.Liquidity)
		p.RewardInfos[i].GrowthInsideLastX64 = inside[i]
	}
}

// IsEmpty reports whether the position holds no liquidity and owes nothing.
func (p *PersonalPositionState) IsEmpty() bool {
	if !p.Liquidity.IsZero() || p.TokenFeesOwed0 != 0 || p.TokenFeesOwed1 != 0 {
		return false
	}
	for i := range p.RewardInfos {
		if p.RewardInfos[i].RewardAmountOwed != 0 {
			return false
		}
	}
	return true
}

// ProtocolPositionState aggregates all personal positions over one tick range
// so tick-level accounting is done once per range.
type ProtocolPositionState struct {
	Bump                    uint8
	PoolID                  solana.PublicKey
	TickLowerIndex          int32
	TickUpperIndex          int32
	Liquidity               uint128.Uint128
	FeeGrowthInside0LastX64 uint128.Uint128
	FeeGrowthInside1LastX64 uint128.Uint128
	TokenFeesOwed0          uint64
	TokenFeesOwed1          uint64
	RewardGrowthInside      [RewardNum]uint128.Uint128
}

func (p *ProtocolPositionState) Key() solana.PublicKey {
	return ProtocolPositionKey(p.PoolID, p.TickLowerIndex, p.TickUpperIndex)
}

// Update applies a liquidity delta and refreshes the growth snapshots.
func (p *ProtocolPositionState) Update(
	liquidityDelta cosmath.Int,
	inside0, inside1 uint128.Uint128,
	rewardsInside [RewardNum]uint128.Uint128,
) error {
	liq := fixedpoint.IntFromU128(p.Liquidity).Add(liquidityDelta)
	next, err := fixedpoint.ToUint128(liq)
	if err != nil {
		return err
	}
	p.Liquidity = next
	p.FeeGrowthInside0LastX64 = inside0
	p.FeeGrowthInside1LastX64 = inside1
	p.RewardGrowthInside = rewardsInside
	return nil
}

const positionRewardInfoLen = 16 + 8
const personalPositionLen = 1 + 32 + 32 + 4 + 4 + 16 + 16 + 16 + 8 + 8 + positionRewardInfoLen*RewardNum
const protocolPositionLen = 1 + 32 + 4 + 4 + 16 + 16 + 16 + 8 + 8 + 16*RewardNum

func (p *PersonalPositionState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteByte(p.Bump); err != nil {
		return nil, err
	}
	if err := writePublicKey(enc, p.PoolID); err != nil {
		return nil, err
	}
	if err := writePublicKey(enc, p.Owner); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(p.TickLowerIndex), binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(p.TickUpperIndex), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, v := range []uint128.Uint128{p.Liquidity, p.FeeGrowthInside0LastX64, p.FeeGrowthInside1LastX64} {
		if err := writeU128(enc, v); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint64{p.TokenFeesOwed0, p.TokenFeesOwed1} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	for i := range p.RewardInfos {
		if err := writeU128(enc, p.RewardInfos[i].GrowthInsideLastX64); err != nil {
			return nil, err
		}
		if err := enc.WriteUint64(p.RewardInfos[i].RewardAmountOwed, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (p *PersonalPositionState) Unmarshal(data []byte) error {
	if err := checkLen(data, personalPositionLen, "personal position"); err != nil {
		return err
	}
	r := &reader{data: data}
	p.Bump = r.u8()
	p.PoolID = r.publicKey()
	p.Owner = r.publicKey()
	p.TickLowerIndex = r.i32()
	p.TickUpperIndex = r.i32()
	p.Liquidity = r.u128()
	p.FeeGrowthInside0LastX64 = r.u128()
	p.FeeGrowthInside1LastX64 = r.u128()
	p.TokenFeesOwed0 = r.u64()
	p.TokenFeesOwed1 = r.u64()
	for i := range p.RewardInfos {
		p.RewardInfos[i].GrowthInsideLastX64 = r.u128()
		p.RewardInfos[i].RewardAmountOwed = r.u64()
	}
	return nil
}

func (p *ProtocolPositionState) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteByte(p.Bump); err != nil {
		return nil, err
	}
	if err := writePublicKey(enc, p.PoolID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(p.TickLowerIndex), binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(p.TickUpperIndex), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, v := range []uint128.Uint128{p.Liquidity, p.FeeGrowthInside0LastX64, p.FeeGrowthInside1LastX64} {
		if err := writeU128(enc, v); err != nil {
			return nil, err
		}
	}
	for _, v := range []uint64{p.TokenFeesOwed0, p.TokenFeesOwed1} {
		if err := enc.WriteUint64(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	for _, v := range p.RewardGrowthInside {
		if err := writeU128(enc, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (p *ProtocolPositionState) Unmarshal(data []byte) error {
	if err := checkLen(data, protocolPositionLen, "protocol position"); err != nil {
		return err
	}
	r := &reader{data: data}
	p.Bump = r.u8()
	p.PoolID = r.publicKey()
	p.TickLowerIndex = r.i32()
	p.TickUpperIndex = r.i32()
	p.Liquidity = r.u128()
	p.FeeGrowthInside0LastX64 = r.u128()
	p.FeeGrowthInside1LastX64 = r.u128()
	p.TokenFeesOwed0 = r.u64()
	p.TokenFeesOwed1 = r.u64()
	for i := range p.RewardGrowthInside {
		p.RewardGrowthInside[i] = r.u128()
	}
	return nil
}
