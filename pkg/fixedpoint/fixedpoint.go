// Package fixedpoint implements the Q64.64 arithmetic primitives shared by the
// tick math, liquidity math and swap step calculations.
package fixedpoint

import (
	"errors"
	"math/big"

	cosmath "cosmossdk.io/math"
	"lukechampine.com/uint128"
)

// U64Resolution is the number of fractional bits in a Q64.64 value.
const U64Resolution = 64

var (
	// Q64 = 2^64, the Q64.64 scaling factor.
	Q64    = new(big.Int).Lsh(big.NewInt(1), U64Resolution)
	Q64Int = cosmath.NewIntFromBigInt(Q64)

	MaxUint64Int = cosmath.NewIntFromBigInt(new(big.Int).SetUint64(^uint64(0)))

	MaxUint128    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	MaxUint128Int = cosmath.NewIntFromBigInt(MaxUint128)

	// FeeRateDenominator is the fixed-point basis for trade and protocol fee rates.
	FeeRateDenominator = cosmath.NewInt(1_000_000)
)

// ErrOverflow reports that a result does not fit the reserved integer width.
var ErrOverflow = errors.New("fixed point overflow")

// MulDivFloor returns floor(a*b/denominator). The intermediate product is
// arbitrary precision, so only the denominator needs checking.
func MulDivFloor(a, b, denominator cosmath.Int) cosmath.Int {
	if denominator.IsZero() {
		panic("fixedpoint: division by zero")
	}
	return a.Mul(b).Quo(denominator)
}

// MulDivCeil returns ceil(a*b/denominator).
func MulDivCeil(a, b, denominator cosmath.Int) cosmath.Int {
	if denominator.IsZero() {
		panic("fixedpoint: division by zero")
	}
	numerator := a.Mul(b).Add(denominator.Sub(cosmath.OneInt()))
	return numerator.Quo(denominator)
}

// MulRightShift64 returns (val * mulBy) >> 64, the Q64.64 multiply.
func MulRightShift64(val, mulBy cosmath.Int) cosmath.Int {
	return val.Mul(mulBy).Quo(Q64Int)
}

// ToUint64 narrows v to a uint64, failing with ErrOverflow when v is negative
// or too wide.
func ToUint64(v cosmath.Int) (uint64, error) {
	if v.IsNegative() || v.GT(MaxUint64Int) {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// ToUint128 narrows v to a uint128, failing with ErrOverflow when v is
// negative or too wide.
func ToUint128(v cosmath.Int) (uint128.Uint128, error) {
	if v.IsNegative() || v.GT(MaxUint128Int) {
		return uint128.Zero, ErrOverflow
	}
	return U128FromBig(v.BigInt()), nil
}

// U128FromBig converts a big.Int known to be in [0, 2^128) into a uint128.
func U128FromBig(b *big.Int) uint128.Uint128 {
	lo := new(big.Int).And(b, maxU64Big).Uint64()
	hi := new(big.Int).Rsh(b, 64).Uint64()
	return uint128.New(lo, hi)
}

// IntFromU128 widens a uint128 into a cosmath.Int.
func IntFromU128(u uint128.Uint128) cosmath.Int {
	return cosmath.NewIntFromBigInt(u.Big())
}

// WrapDelta returns latest - last modulo 2^128. Growth accumulators are
// allowed to wrap; only differences are meaningful.
func WrapDelta(latest, last uint128.Uint128) uint128.Uint128 {
	return latest.SubWrap(last)
}

var maxU64Big = new(big.Int).SetUint64(^uint64(0))
