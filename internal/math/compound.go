package math

import (
	"github.com/shopspring/decimal"
)

// expPrecision bounds the Taylor expansion of the fixed-point exponential.
// Per-second rates times realistic Δt stay well inside the convergent range,
// and 16 digits is more than the 6-digit amount scale can observe.
const expPrecision = 16

var one = decimal.NewFromInt(1)

// CompoundFactor returns exp(rate * dtSeconds) as a decimal, the continuous
// compounding growth factor for a per-second rate.
func CompoundFactor(rate decimal.Decimal, dtSeconds int64) decimal.Decimal {
	if rate.IsZero() || dtSeconds == 0 {
		return one
	}
	exponent := rate.Mul(decimal.NewFromInt(dtSeconds))
	factor, err := exponent.ExpTaylor(expPrecision)
	if err != nil {
		// ExpTaylor only fails on pathological precision arguments; a fixed
		// positive precision cannot trigger it.
		return one
	}
	return factor
}

// CompoundInterest returns floor(principal * (exp(rate*dt) - 1)) in integer
// units. The floor keeps the accrued interest conservative: fractional units
// are deferred to a later accrual rather than minted early.
func CompoundInterest(principal int64, rate decimal.Decimal, dtSeconds int64) int64 {
	if principal == 0 || dtSeconds == 0 || rate.IsZero() {
		return 0
	}
	growth := CompoundFactor(rate, dtSeconds).Sub(one)
	interest := growth.Mul(decimal.NewFromInt(principal))
	return interest.IntPart()
}
