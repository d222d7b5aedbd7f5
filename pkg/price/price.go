// Package price converts between human-readable prices and the engine's
// Q64.64 sqrt price representation, adjusting for mint decimals. Prices are
// quoted as token1 per token0.
package price

import (
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/Solana-ZH/solclmm/pkg/tickmath"
)

const sqrtPrec = 256

var q128 = new(big.Float).SetPrec(sqrtPrec).SetInt(new(big.Int).Lsh(big.NewInt(1), 128))

// FromSqrtPriceX64 returns the human price encoded by a Q64.64 sqrt price.
func FromSqrtPriceX64(sqrtPriceX64 cosmath.Int, decimals0, decimals1 uint8) decimal.Decimal {
	sqrt := decimal.NewFromBigInt(sqrtPriceX64.BigInt(), 0).
		DivRound(decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64), 0), 40)
	raw := sqrt.Mul(sqrt)
	return raw.Mul(decimal.New(1, int32(decimals0)-int32(decimals1)))
}

// SqrtPriceX64FromPrice returns the Q64.64 sqrt price for a human price.
func SqrtPriceX64FromPrice(price decimal.Decimal, decimals0, decimals1 uint8) (cosmath.Int, error) {
	if !price.IsPositive() {
		return cosmath.Int{}, fmt.Errorf("price must be positive, got %s", price)
	}
	raw := price.Mul(decimal.New(1, int32(decimals1)-int32(decimals0)))

	// sqrtPriceX64 = sqrt(raw) * 2^64 = sqrt(raw * 2^128)
	scaled := new(big.Float).SetPrec(sqrtPrec).Mul(raw.BigFloat(), q128)
	root := new(big.Float).SetPrec(sqrtPrec).Sqrt(scaled)
	out, _ := root.Int(nil)

	result := cosmath.NewIntFromBigInt(out)
	if result.LT(tickmath.MinSqrtPriceX64) || result.GT(tickmath.MaxSqrtPriceX64) {
		return cosmath.Int{}, fmt.Errorf("price %s is outside the supported range", price)
	}
	return result, nil
}

// FromTick returns the human price at a tick boundary.
func FromTick(tick int32, decimals0, decimals1 uint8) (decimal.Decimal, error) {
	sqrtPriceX64, err := tickmath.SqrtPriceX64FromTick(tick)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return FromSqrtPriceX64(sqrtPriceX64, decimals0, decimals1), nil
}

// TickFromPrice returns the tick whose boundary price is at or just below the
// given human price.
func TickFromPrice(price decimal.Decimal, decimals0, decimals1 uint8) (int32, error) {
	sqrtPriceX64, err := SqrtPriceX64FromPrice(price, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	return tickmath.TickFromSqrtPriceX64(sqrtPriceX64)
}
