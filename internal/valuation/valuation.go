package valuation

import (
	"fmt"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is the valued summary of one account: the unscaled signed total
// and the risk-adjusted collateral and debt sides of the solvency check.
type Position struct {
	Total      decimal.Decimal
	Collateral decimal.Decimal
	Debt       decimal.Decimal
}

// Solvent reports collateral >= debt.
func (p Position) Solvent() bool {
	return p.Collateral.GreaterThanOrEqual(p.Debt)
}

// Valuer prices an account's membership set against the oracle and risk
// factors. It never mutates ledger state.
type Valuer struct {
	book     *ledger.Book
	prices   oracle.PriceOracle
	assessor oracle.RiskAssessor
}

func NewValuer(book *ledger.Book, prices oracle.PriceOracle, assessor oracle.RiskAssessor) *Valuer {
	return &Valuer{book: book, prices: prices, assessor: assessor}
}

// ComputePosition walks the account's membership bitset and non-fungible
// holdings. Fungible amounts at or above zero contribute risk-tightened
// collateral; negative amounts contribute risk-enlarged debt. Non-fungible
// positions only ever contribute collateral (they cannot be borrowed). An
// account with no positions values to all zeros.
func (v *Valuer) ComputePosition(acct uuid.UUID) (Position, error) {
	var pos Position
	var walkErr error

	v.book.ForEachAsset(acct, func(index uint16) bool {
		id := asset.ID{Class: asset.Fungible, Index: index}
		amount := v.book.Amount(index, acct)
		value, err := v.prices.CalcValue(id, amount)
		if err != nil {
			walkErr = fmt.Errorf("value asset %s: %w", id, err)
			return false
		}
		pos.Total = pos.Total.Add(value)
		if amount >= 0 {
			pos.Collateral = pos.Collateral.Add(v.assessor.AsCollateral(id, value))
		} else {
			pos.Debt = pos.Debt.Add(v.assessor.AsDebt(id, value.Neg()))
		}
		return true
	})
	if walkErr != nil {
		return Position{}, walkErr
	}

	v.book.ForEachNFTPosition(acct, func(index uint16, tokens []uint64) bool {
		id := asset.ID{Class: asset.NonFungible, Index: index}
		for _, tokenID := range tokens {
			value, err := v.prices.CalcTokenValue(id, tokenID)
			if err != nil {
				walkErr = fmt.Errorf("value token %d of %s: %w", tokenID, id, err)
				return false
			}
			pos.Total = pos.Total.Add(value)
			pos.Collateral = pos.Collateral.Add(v.assessor.AsCollateral(id, value))
		}
		return true
	})
	if walkErr != nil {
		return Position{}, walkErr
	}

	return pos, nil
}

// IsSolvent is the solvency predicate over ComputePosition.
func (v *Valuer) IsSolvent(acct uuid.UUID) (bool, error) {
	pos, err := v.ComputePosition(acct)
	if err != nil {
		return false, err
	}
	return pos.Solvent(), nil
}
