package pool

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// RateCurve is the kinked utilization curve driving per-asset borrow rates.
// Below OptimalUtilization the rate climbs linearly to PlateauRate; above it,
// linearly from PlateauRate to MaxRate at full utilization. Rates are
// per-second continuous-compounding rates in decimal form.
type RateCurve struct {
	OptimalUtilization decimal.Decimal
	PlateauRate        decimal.Decimal
	MaxRate            decimal.Decimal
}

// Validate rejects curves that cannot produce a monotone non-negative rate.
func (c RateCurve) Validate() error {
	if c.OptimalUtilization.Sign() <= 0 || c.OptimalUtilization.GreaterThanOrEqual(one) {
		return fmt.Errorf("pool: optimal utilization must be in (0,1), got %s", c.OptimalUtilization)
	}
	if c.PlateauRate.Sign() < 0 {
		return fmt.Errorf("pool: negative plateau rate %s", c.PlateauRate)
	}
	if c.MaxRate.LessThan(c.PlateauRate) {
		return fmt.Errorf("pool: max rate %s below plateau rate %s", c.MaxRate, c.PlateauRate)
	}
	return nil
}

// RateAt evaluates the curve at a utilization ratio clamped to [0,1].
func (c RateCurve) RateAt(utilization decimal.Decimal) decimal.Decimal {
	if utilization.Sign() <= 0 {
		return decimal.Zero
	}
	if utilization.GreaterThan(one) {
		utilization = one
	}

	if utilization.LessThanOrEqual(c.OptimalUtilization) {
		// u / optimal * plateau
		return utilization.Mul(c.PlateauRate).Div(c.OptimalUtilization)
	}

	// plateau + (u - optimal) / (1 - optimal) * (max - plateau)
	excess := utilization.Sub(c.OptimalUtilization)
	span := one.Sub(c.OptimalUtilization)
	return c.PlateauRate.Add(excess.Mul(c.MaxRate.Sub(c.PlateauRate)).Div(span))
}

// Utilization is the ratio of borrowed assets to the pool assets available to
// back them (the collateral pool total), clamped to [0,1]. Zero debt means
// zero utilization regardless of supply.
func Utilization(debtAsset, collateralAsset int64) decimal.Decimal {
	if debtAsset <= 0 {
		return decimal.Zero
	}
	if collateralAsset <= 0 || debtAsset >= collateralAsset {
		return one
	}
	return decimal.NewFromInt(debtAsset).Div(decimal.NewFromInt(collateralAsset))
}
