package pool

import (
	"fmt"

	fpmath "MarginLedger/internal/math"

	"github.com/shopspring/decimal"
)

// FundingState holds the paired pools for one fungible asset plus the lazy
// interest-accrual clock. Collateral shares are positive account positions,
// debt shares negative ones; the two pools never mix.
type FundingState struct {
	Collateral SharedPool
	Debt       SharedPool

	Curve RateCurve

	// LastUpdate is the timestamp of the most recent accrual, monotone
	// non-decreasing. Rate is the per-second rate in force since then,
	// re-derived from the curve on every accrual.
	LastUpdate int64
	Rate       decimal.Decimal
}

// NewFundingState creates an empty funding state with the given curve.
func NewFundingState(curve RateCurve, now int64) *FundingState {
	return &FundingState{
		Curve:      curve,
		LastUpdate: now,
		Rate:       decimal.Zero,
	}
}

// Accrue applies continuous-compounding interest for the elapsed time and
// refreshes the utilization-driven rate. Calling twice at the same instant is
// a no-op after the first call. Interest grows the borrowers' obligation and
// the lenders' claim together: both pool asset totals increase while share
// totals stay fixed, so every account's amount moves without touching its
// shares.
func (fs *FundingState) Accrue(now int64) (int64, error) {
	if now < fs.LastUpdate {
		return 0, fmt.Errorf("pool: accrual time went backwards: %d < %d", now, fs.LastUpdate)
	}
	if now == fs.LastUpdate {
		return 0, nil
	}

	dt := now - fs.LastUpdate
	interest := fpmath.CompoundInterest(fs.Debt.TotalAsset, fs.Rate, dt)
	// With no outstanding lender shares there is nobody to credit, and an
	// asset total on a share-less pool would break the pool invariant.
	if interest > 0 {
		if fs.Collateral.Empty() {
			interest = 0
		} else {
			fs.Debt.TotalAsset += interest
			fs.Collateral.TotalAsset += interest
		}
	}

	fs.LastUpdate = now
	fs.Rate = fs.Curve.RateAt(Utilization(fs.Debt.TotalAsset, fs.Collateral.TotalAsset))
	return interest, nil
}

// CurrentUtilization reports the utilization the next accrual will price at.
func (fs *FundingState) CurrentUtilization() decimal.Decimal {
	return Utilization(fs.Debt.TotalAsset, fs.Collateral.TotalAsset)
}
