package math

import (
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 quote
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 token
	FactorConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // risk factors
	RateConfig   = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 0.00000001 per-second rate
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// big.Int.DivMod is Euclidean: the remainder is non-negative and the
	// quotient already floors toward negative infinity, so RoundDown (the
	// pool-math mode) needs no adjustment.
	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown                         // Floor: rounding residue stays in the pool
	RoundUp
)

// MulDivFloor computes a * b / c with a 128-bit intermediate and floor
// division. This is the only rounding mode allowed for share<->asset
// conversion: the fraction lost always stays with the pool, so no sequence of
// insert/extract pairs can mint value out of rounding.
func MulDivFloor(a, b, c int64) int64 {
	product := MultiplyInt128(a, b)
	result := DivideInt128(product, c, RoundDown)
	putInt128(product)
	return result
}

// MulDivCeil computes a * b / c rounding any remainder up. Used when a deficit
// must be fully covered (SwapUpTo source sizing).
func MulDivCeil(a, b, c int64) int64 {
	product := MultiplyInt128(a, b)
	result := DivideInt128(product, c, RoundUp)
	putInt128(product)
	return result
}

// DecimalFromUnits converts a fixed-point integer amount to a decimal at the
// given config's scale.
func DecimalFromUnits(units int64, cfg DecimalConfig) decimal.Decimal {
	return decimal.New(units, -int32(cfg.DecimalPrecision))
}

// UnitsFromDecimal converts a decimal back to fixed-point units, truncating
// toward zero.
func UnitsFromDecimal(d decimal.Decimal, cfg DecimalConfig) int64 {
	return d.Shift(int32(cfg.DecimalPrecision)).IntPart()
}
