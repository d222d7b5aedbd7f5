package state

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MaxFeeRatePPM bounds the trade fee rate; protocol and fund rates are capped
// at the full fee-rate basis.
const (
	MaxTradeFeeRate    = 1_000_000
	MaxProtocolFeeRate = 1_000_000
	MaxFundFeeRate     = 1_000_000
)

const ammConfigLen = 1 + 2 + 32 + 4 + 4 + 2 + 4 + 32

// AmmConfig is a fee tier shared by every pool created against it.
type AmmConfig struct {
	Bump            uint8
	Index           uint16
	Owner           solana.PublicKey
	ProtocolFeeRate uint32
	TradeFeeRate    uint32
	TickSpacing     uint16
	FundFeeRate     uint32
	FundOwner       solana.PublicKey
}

func (c *AmmConfig) Key() solana.PublicKey { return AmmConfigKey(c.Index) }

func (c *AmmConfig) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteByte(c.Bump); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(c.Index, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writePublicKey(enc, c.Owner); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(c.ProtocolFeeRate, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(c.TradeFeeRate, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(c.TickSpacing, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(c.FundFeeRate, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writePublicKey(enc, c.FundOwner); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *AmmConfig) Unmarshal(data []byte) error {
	if err := checkLen(data, ammConfigLen, "amm config"); err != nil {
		return err
	}
	r := &reader{data: data}
	c.Bump = r.u8()
	c.Index = r.u16()
	c.Owner = r.publicKey()
	c.ProtocolFeeRate = r.u32()
	c.TradeFeeRate = r.u32()
	c.TickSpacing = r.u16()
	c.FundFeeRate = r.u32()
	c.FundOwner = r.publicKey()
	return nil
}
