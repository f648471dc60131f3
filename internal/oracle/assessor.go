package oracle

import (
	"MarginLedger/internal/asset"

	"github.com/shopspring/decimal"
)

// FactorAssessor applies the registry's per-asset risk factors: collateral
// value is multiplied by the collateral factor, debt value divided by the
// borrow factor so effective debt grows as the factor tightens.
type FactorAssessor struct {
	registry *asset.Registry
}

func NewFactorAssessor(registry *asset.Registry) *FactorAssessor {
	return &FactorAssessor{registry: registry}
}

func (fa *FactorAssessor) AsCollateral(id asset.ID, value decimal.Decimal) decimal.Decimal {
	cfg := fa.registry.ConfigOf(id)
	if !cfg.CollateralOK {
		return decimal.Zero
	}
	return value.Mul(cfg.CollateralFactor)
}

func (fa *FactorAssessor) AsDebt(id asset.ID, value decimal.Decimal) decimal.Decimal {
	cfg := fa.registry.ConfigOf(id)
	if !cfg.BorrowOK || cfg.BorrowFactor.Sign() == 0 {
		return value
	}
	return value.Div(cfg.BorrowFactor)
}
