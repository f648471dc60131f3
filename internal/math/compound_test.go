package math_test

import (
	"testing"

	"MarginLedger/internal/math"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCompoundFactorIdentity(t *testing.T) {
	one := decimal.NewFromInt(1)

	require.True(t, math.CompoundFactor(decimal.Zero, 100).Equal(one))
	require.True(t, math.CompoundFactor(decimal.RequireFromString("0.05"), 0).Equal(one))
}

func TestCompoundFactorGrowth(t *testing.T) {
	// exp(0.0001 * 100) = exp(0.01) ~= 1.01005017
	f := math.CompoundFactor(decimal.RequireFromString("0.0001"), 100)
	expected := decimal.RequireFromString("1.010050167")
	diff := f.Sub(expected).Abs()
	require.True(t, diff.LessThan(decimal.RequireFromString("0.000000001")),
		"factor %s too far from %s", f, expected)
}

func TestCompoundInterestZeroCases(t *testing.T) {
	rate := decimal.RequireFromString("0.0001")
	require.Zero(t, math.CompoundInterest(0, rate, 100))
	require.Zero(t, math.CompoundInterest(1000, rate, 0))
	require.Zero(t, math.CompoundInterest(1000, decimal.Zero, 100))
}

func TestCompoundInterestFloors(t *testing.T) {
	rate := decimal.RequireFromString("0.0001")

	// 1_000_000 * (exp(0.01) - 1) ~= 10050.17 -> 10050
	got := math.CompoundInterest(1_000_000, rate, 100)
	require.Equal(t, int64(10050), got)

	// Small principal where the fractional unit is deferred entirely
	require.Zero(t, math.CompoundInterest(10, rate, 100))
}

// Accruing in two half-steps may defer fractional units relative to one
// full step but can never exceed it.
func TestCompoundInterestSplitNeverExceedsWhole(t *testing.T) {
	rate := decimal.RequireFromString("0.00005")
	principal := int64(123_456_789)

	whole := math.CompoundInterest(principal, rate, 200)
	first := math.CompoundInterest(principal, rate, 100)
	second := math.CompoundInterest(principal+first, rate, 100)

	require.LessOrEqual(t, first+second, whole)
	// The deferral is at most a few units of rounding
	require.LessOrEqual(t, whole-(first+second), int64(2))
}
