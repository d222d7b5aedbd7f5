package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

// ExtensionBitmapSize is the number of 512-bit bitmaps per price direction in
// the extension account.
const ExtensionBitmapSize = 14

var (
	ErrInvalidStartIndex     = errors.New("invalid tick array start index")
	ErrBitmapExtensionBounds = errors.New("tick array start index outside extension range")
)

// TickArrayBitmapExtension tracks initialized tick arrays beyond the reach of
// the pool's built-in bitmap.
type TickArrayBitmapExtension struct {
	PoolID                  solana.PublicKey
	PositiveTickArrayBitmap [ExtensionBitmapSize][8]uint64
	NegativeTickArrayBitmap [ExtensionBitmapSize][8]uint64
}

func NewTickArrayBitmapExtension(pool solana.PublicKey) *TickArrayBitmapExtension {
	return &TickArrayBitmapExtension{PoolID: pool}
}

func (e *TickArrayBitmapExtension) Key() solana.PublicKey {
	return BitmapExtensionKey(e.PoolID)
}

// bitmapCoords locates startIndex inside the extension: which 512-bit bitmap
// and which bit within it.
func bitmapCoords(tickSpacing uint16, startIndex int32) (offset int32, bit int32, positive bool, err error) {
	span := TickCount(tickSpacing)
	if startIndex%span != 0 {
		return 0, 0, false, ErrInvalidStartIndex
	}
	ticksInOneBitmap := MaxTickInBitmap(tickSpacing)
	if !IsOverflowDefaultBitmap(tickSpacing, startIndex) {
		return 0, 0, false, fmt.Errorf("%w: %d is covered by the pool bitmap", ErrBitmapExtensionBounds, startIndex)
	}

	abs := startIndex
	if abs < 0 {
		abs = -abs
	}
	offset = abs/ticksInOneBitmap - 1
	if startIndex < 0 && abs%ticksInOneBitmap == 0 {
		offset--
	}
	if offset < 0 || offset >= ExtensionBitmapSize {
		return 0, 0, false, fmt.Errorf("%w: %d", ErrBitmapExtensionBounds, startIndex)
	}

	m := abs % ticksInOneBitmap
	bit = m / span
	if startIndex < 0 && m != 0 {
		bit = TickArrayBitmapSize - bit
	}
	return offset, bit, startIndex >= 0, nil
}

func (e *TickArrayBitmapExtension) bitmapAt(offset int32, positive bool) *[8]uint64 {
	if positive {
		return &e.PositiveTickArrayBitmap[offset]
	}
	return &e.NegativeTickArrayBitmap[offset]
}

// FlipTickArrayBit toggles the bit for the tick array at startIndex.
func (e *TickArrayBitmapExtension) FlipTickArrayBit(tickSpacing uint16, startIndex int32) error {
	offset, bit, positive, err := bitmapCoords(tickSpacing, startIndex)
	if err != nil {
		return err
	}
	words := e.bitmapAt(offset, positive)
	words[bit/64] ^= 1 << uint(bit%64)
	return nil
}

// IsTickArrayInitialized reports whether the bit for startIndex is set.
func (e *TickArrayBitmapExtension) IsTickArrayInitialized(tickSpacing uint16, startIndex int32) (bool, error) {
	offset, bit, positive, err := bitmapCoords(tickSpacing, startIndex)
	if err != nil {
		return false, err
	}
	words := e.bitmapAt(offset, positive)
	return words[bit/64]&(1<<uint(bit%64)) != 0, nil
}

func mergeBitmapWords(words []uint64) *big.Int {
	merged := new(big.Int)
	for i, w := range words {
		part := new(big.Int).Lsh(new(big.Int).SetUint64(w), uint(64*i))
		merged.Or(merged, part)
	}
	return merged
}

func trailingZeroBits(v *big.Int) int {
	for i := 0; ; i++ {
		if v.Bit(i) == 1 {
			return i
		}
	}
}

// bitmapTickBoundary is the [min, max) tick window of the extension bitmap
// containing startIndex.
func bitmapTickBoundary(startIndex int32, tickSpacing uint16) (int32, int32) {
	ticksInOneBitmap := MaxTickInBitmap(tickSpacing)
	abs := startIndex
	if abs < 0 {
		abs = -abs
	}
	m := abs / ticksInOneBitmap
	if startIndex < 0 && abs%ticksInOneBitmap != 0 {
		m++
	}
	min := ticksInOneBitmap * m
	if startIndex < 0 {
		return -min, -min + ticksInOneBitmap
	}
	return min, min + ticksInOneBitmap
}

// nextInitializedInExtension scans the single extension bitmap one step past
// lastStart in the swap direction. On a miss it returns the boundary start
// index from which the caller should continue.
func (e *TickArrayBitmapExtension) nextInitializedInExtension(
	tickSpacing uint16, lastStart int32, zeroForOne bool,
) (bool, int32, error) {
	span := TickCount(tickSpacing)
	next := lastStart + span
	if zeroForOne {
		next = lastStart - span
	}

	offset, bit, positive, err := bitmapCoords(tickSpacing, next)
	if err != nil {
		return false, 0, err
	}
	merged := mergeBitmapWords(e.bitmapAt(offset, positive)[:])
	minBoundary, maxBoundary := bitmapTickBoundary(next, tickSpacing)

	if zeroForOne {
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bit+1)), big.NewInt(1))
		masked := new(big.Int).And(merged, mask)
		if masked.Sign() == 0 {
			return false, minBoundary, nil
		}
		msb := int32(masked.BitLen() - 1)
		return true, next - (bit-msb)*span, nil
	}

	shifted := new(big.Int).Rsh(merged, uint(bit))
	if shifted.Sign() == 0 {
		return false, maxBoundary - span, nil
	}
	lsb := int32(trailingZeroBits(shifted))
	return true, next + lsb*span, nil
}

// nextInitializedInDefault scans the pool's built-in bitmap one step past
// lastStart in the swap direction. When the step leaves the built-in range it
// reports a miss at lastStart so the caller moves to the extension.
func (p *PoolState) nextInitializedInDefault(lastStart int32, zeroForOne bool) (bool, int32) {
	span := TickCount(p.TickSpacing)
	boundary := MaxTickInBitmap(p.TickSpacing)

	next := lastStart + span
	if zeroForOne {
		next = lastStart - span
	}
	if next < -boundary || next >= boundary {
		return false, lastStart
	}

	bitPos := next/span + TickArrayBitmapSize
	if next < 0 && next%span != 0 {
		bitPos--
	}

	merged := mergeBitmapWords(p.TickArrayBitmap[:])
	if zeroForOne {
		mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bitPos+1)), big.NewInt(1))
		masked := new(big.Int).And(merged, mask)
		if masked.Sign() == 0 {
			return false, -boundary
		}
		msb := int32(masked.BitLen() - 1)
		return true, (msb - TickArrayBitmapSize) * span
	}

	shifted := new(big.Int).Rsh(merged, uint(bitPos))
	if shifted.Sign() == 0 {
		return false, boundary - span
	}
	lsb := int32(trailingZeroBits(shifted))
	return true, (bitPos + lsb - TickArrayBitmapSize) * span
}

// NextInitializedTickArrayStartIndex finds the closest initialized tick array
// strictly beyond lastStart in the swap direction, walking from the built-in
// bitmap into the extension bitmaps. found is false when the price can run to
// the edge of the tick range without meeting another initialized array.
func (p *PoolState) NextInitializedTickArrayStartIndex(
	ext *TickArrayBitmapExtension, lastStart int32, zeroForOne bool,
) (found bool, startIndex int32, err error) {
	for {
		ok, next := p.nextInitializedInDefault(lastStart, zeroForOne)
		if ok {
			return true, next, nil
		}
		lastStart = next

		if ext == nil {
			return false, lastStart, nil
		}
		ok, next, err = ext.nextInitializedInExtension(p.TickSpacing, lastStart, zeroForOne)
		if err != nil {
			if errors.Is(err, ErrBitmapExtensionBounds) {
				return false, lastStart, nil
			}
			return false, 0, err
		}
		if ok {
			return true, next, nil
		}
		lastStart = next

		if lastStart < tickmath.MinTick || lastStart > tickmath.MaxTick {
			return false, lastStart, nil
		}
	}
}

const bitmapExtensionLen = 32 + 8*8*ExtensionBitmapSize*2

func (e *TickArrayBitmapExtension) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := writePublicKey(enc, e.PoolID); err != nil {
		return nil, err
	}
	for i := range e.PositiveTickArrayBitmap {
		for _, w := range e.PositiveTickArrayBitmap[i] {
			if err := enc.WriteUint64(w, binary.LittleEndian); err != nil {
				return nil, err
			}
		}
	}
	for i := range e.NegativeTickArrayBitmap {
		for _, w := range e.NegativeTickArrayBitmap[i] {
			if err := enc.WriteUint64(w, binary.LittleEndian); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func (e *TickArrayBitmapExtension) Unmarshal(data []byte) error {
	if err := checkLen(data, bitmapExtensionLen, "bitmap extension"); err != nil {
		return err
	}
	r := &reader{data: data}
	e.PoolID = r.publicKey()
	for i := range e.PositiveTickArrayBitmap {
		for j := range e.PositiveTickArrayBitmap[i] {
			e.PositiveTickArrayBitmap[i][j] = r.u64()
		}
	}
	for i := range e.NegativeTickArrayBitmap {
		for j := range e.NegativeTickArrayBitmap[i] {
			e.NegativeTickArrayBitmap[i][j] = r.u64()
		}
	}
	return nil
}
