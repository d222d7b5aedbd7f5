package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// Serialized accounts use little endian throughout, u128 as two little endian
// words low first, and i128 as 16-byte two's complement.

func writeU128(enc *bin.Encoder, v uint128.Uint128) error {
	if err := enc.WriteUint64(v.Lo, binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(v.Hi, binary.LittleEndian)
}

func writePublicKey(enc *bin.Encoder, key solana.PublicKey) error {
	return enc.WriteBytes(key.Bytes(), false)
}

func writeI128(enc *bin.Encoder, v cosmath.Int) error {
	b := v.BigInt()
	if b.Sign() < 0 {
		b = new(big.Int).Add(b, i128Modulus)
	}
	var buf [16]byte
	b.FillBytes(buf[:])
	// two's complement big endian to little endian
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return enc.WriteBytes(buf[:], false)
}

var (
	i128Modulus = new(big.Int).Lsh(big.NewInt(1), 128)
	i128Half    = new(big.Int).Lsh(big.NewInt(1), 127)
)

type reader struct {
	data   []byte
	offset int
}

func (r *reader) u8() uint8 {
	v := r.data[r.offset]
	r.offset++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v
}

func (r *reader) u128() uint128.Uint128 {
	v := uint128.FromBytes(r.data[r.offset : r.offset+16])
	r.offset += 16
	return v
}

func (r *reader) i128() cosmath.Int {
	var buf [16]byte
	copy(buf[:], r.data[r.offset:r.offset+16])
	r.offset += 16
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	b := new(big.Int).SetBytes(buf[:])
	if b.Cmp(i128Half) >= 0 {
		b.Sub(b, i128Modulus)
	}
	return cosmath.NewIntFromBigInt(b)
}

func (r *reader) publicKey() solana.PublicKey {
	key := solana.PublicKeyFromBytes(r.data[r.offset : r.offset+32])
	r.offset += 32
	return key
}

func checkLen(data []byte, want int, what string) error {
	if len(data) < want {
		return fmt.Errorf("decode %s: have %d bytes, want %d", what, len(data), want)
	}
	return nil
}
