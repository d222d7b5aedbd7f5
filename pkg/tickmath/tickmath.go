// Package tickmath converts between signed tick indices and Q64.64 square-root
// prices. The two directions are exact inverses for every valid tick: the
// forward ladder multiplies precomputed sqrt(1.0001^(2^n)) factors, the
// reverse direction computes a bounded log2 approximation and disambiguates
// with one forward evaluation.
package tickmath

import (
	"errors"
	"math/big"

	cosmath "cosmossdk.io/math"

	"github.com/Solana-ZH/solclmm/pkg/fixedpoint"
)

const (
	MinTick int32 = -443636
	MaxTick int32 = 443636

	bitPrecision = 14
)

var (
	// Sqrt prices at MinTick and MaxTick.
	MinSqrtPriceX64 = mustInt("4295048016")
	MaxSqrtPriceX64 = mustInt("79226673521066979257578248091")

	// log2(sqrt(1.0001))^-1 in X32, and the error margins of the
	// fixed-point log approximation in X64.
	logB2X32               = mustInt("59543866431248")
	logBPErrMarginLowerX64 = mustInt("184467440737095516")
	logBPErrMarginUpperX64 = mustInt("15793534762490258745")
)

var (
	// ErrTickOutOfBounds reports a tick outside [MinTick, MaxTick].
	ErrTickOutOfBounds = errors.New("tick out of bounds")
	// ErrSqrtPriceOutOfBounds reports a sqrt price outside the supported range.
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")
)

// sqrt(1.0001^(2^n)) for n = 0..18, as Q64.64 values. The n = 0 entry is the
// ratio for an odd tick; all others are ladder multipliers.
var sqrtRatioLadder = [19]cosmath.Int{
	mustInt("18445821805675395072"),
	mustInt("18444899583751176192"),
	mustInt("18443055278223355904"),
	mustInt("18439367220385607680"),
	mustInt("18431993317065453568"),
	mustInt("18417254355718170624"),
	mustInt("18387811781193609216"),
	mustInt("18329067761203558400"),
	mustInt("18212142134806163456"),
	mustInt("17980523815641700352"),
	mustInt("17526086738831433728"),
	mustInt("16651378430235570176"),
	mustInt("15030750278694412288"),
	mustInt("12247334978884435968"),
	mustInt("8131365268886854656"),
	mustInt("3584323654725218816"),
	mustInt("696457651848324352"),
	mustInt("26294789957507116"),
	mustInt("37481735321082"),
}

func mustInt(s string) cosmath.Int {
	v, ok := cosmath.NewIntFromString(s)
	if !ok {
		panic("tickmath: bad integer constant " + s)
	}
	return v
}

// CheckTickBounds validates a single tick index.
func CheckTickBounds(tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfBounds
	}
	return nil
}

// SqrtPriceX64FromTick returns the Q64.64 sqrt price of 1.0001^(tick/2).
func SqrtPriceX64FromTick(tick int32) (cosmath.Int, error) {
	if err := CheckTickBounds(tick); err != nil {
		return cosmath.Int{}, err
	}

	tickAbs := tick
	if tickAbs < 0 {
		tickAbs = -tickAbs
	}

	ratio := fixedpoint.Q64Int
	if tickAbs&1 != 0 {
		ratio = sqrtRatioLadder[0]
	}
	for n := 1; n < len(sqrtRatioLadder); n++ {
		if tickAbs&(1<<uint(n)) != 0 {
			ratio = fixedpoint.MulRightShift64(ratio, sqrtRatioLadder[n])
		}
	}

	if tick > 0 {
		ratio = fixedpoint.MaxUint128Int.Quo(ratio)
	}
	return ratio, nil
}

// TickFromSqrtPriceX64 returns the largest tick whose sqrt price is <= the
// given sqrt price. Together with SqrtPriceX64FromTick this forms a
// round-trip identity for all valid ticks.
func TickFromSqrtPriceX64(sqrtPriceX64 cosmath.Int) (int32, error) {
	if sqrtPriceX64.GT(MaxSqrtPriceX64) || sqrtPriceX64.LT(MinSqrtPriceX64) {
		return 0, ErrSqrtPriceOutOfBounds
	}

	// integer part of log2(price) relative to the Q64.64 radix point
	msb := sqrtPriceX64.BigInt().BitLen() - 1
	log2pIntegerX32 := new(big.Int).Lsh(big.NewInt(int64(msb-64)), 32)

	// fractional part by repeated squaring
	var r *big.Int
	if msb >= 64 {
		r = new(big.Int).Rsh(sqrtPriceX64.BigInt(), uint(msb-63))
	} else {
		r = new(big.Int).Lsh(sqrtPriceX64.BigInt(), uint(63-msb))
	}
	bit := new(big.Int).Lsh(big.NewInt(1), 63)
	log2pFractionX64 := big.NewInt(0)
	for precision := 0; bit.Sign() > 0 && precision < bitPrecision; precision++ {
		r.Mul(r, r)
		rMoreThanTwo := new(big.Int).Rsh(r, 127)
		r.Rsh(r, uint(63+rMoreThanTwo.Int64()))
		log2pFractionX64.Add(log2pFractionX64, new(big.Int).Mul(bit, rMoreThanTwo))
		bit.Rsh(bit, 1)
	}

	log2pX32 := new(big.Int).Add(log2pIntegerX32, new(big.Int).Rsh(log2pFractionX64, 32))
	logbpX64 := new(big.Int).Mul(log2pX32, logB2X32.BigInt())

	tickLow := rsh64Signed(new(big.Int).Sub(logbpX64, logBPErrMarginLowerX64.BigInt()))
	tickHigh := rsh64Signed(new(big.Int).Add(logbpX64, logBPErrMarginUpperX64.BigInt()))

	if tickLow == tickHigh {
		return tickLow, nil
	}

	derived, err := SqrtPriceX64FromTick(tickHigh)
	if err != nil {
		return 0, err
	}
	if derived.LTE(sqrtPriceX64) {
		return tickHigh, nil
	}
	return tickLow, nil
}

// rsh64Signed performs an arithmetic right shift by 64 on a signed big value.
func rsh64Signed(v *big.Int) int32 {
	if v.Sign() >= 0 {
		return int32(new(big.Int).Rsh(v, 64).Int64())
	}
	// floor division for negatives
	q, m := new(big.Int).QuoRem(v, fixedpoint.Q64, new(big.Int))
	if m.Sign() != 0 {
		q.Sub(q, big.NewInt(1))
	}
	return int32(q.Int64())
}
