package state

import (
	"fmt"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/ledger"
	fpmath "MarginLedger/internal/math"
	"MarginLedger/internal/oracle"
	"MarginLedger/internal/pool"
	"MarginLedger/internal/strategy"
	"MarginLedger/internal/valuation"

	"github.com/shopspring/decimal"
)

// SystemState is the single container for every piece of mutable core state:
// the asset registry, the account book with its funding pools, the oracle
// price table, and the evaluators derived from them. All state the core
// hashes, snapshots, or rolls back is reachable from here; nothing hides in
// package-level variables.
type SystemState struct {
	Registry *asset.Registry
	Book     *ledger.Book
	Prices   *oracle.PriceTable

	Assessor  *oracle.FactorAssessor
	Valuer    *valuation.Valuer
	Interp    *strategy.Interpreter
	Validator *ledger.InvariantValidator
}

func NewSystemState() *SystemState {
	st := &SystemState{
		Registry: asset.NewRegistry(),
		Book:     ledger.NewBook(),
		Prices:   oracle.NewPriceTable(),
	}
	st.Assessor = oracle.NewFactorAssessor(st.Registry)
	st.Valuer = valuation.NewValuer(st.Book, st.Prices, st.Assessor)
	st.Interp = strategy.NewInterpreter(st.Book, st.Registry, st.Prices, st.Assessor)
	st.Validator = ledger.NewInvariantValidator(st.Book)
	return st
}

// AssetParams carries the registration payload in decoded form.
type AssetParams struct {
	Symbol           string
	Class            asset.Class
	CollateralOK     bool
	BorrowOK         bool
	CollateralFactor decimal.Decimal
	BorrowFactor     decimal.Decimal
	Curve            pool.RateCurve // fungible only
}

// RegisterAsset adds one asset to the registry and, for fungibles, creates
// its funding state. Registration is append-only and cannot be rolled back;
// it must therefore be the last mutation of its event.
func (st *SystemState) RegisterAsset(p AssetParams, now int64) (asset.ID, error) {
	if p.Class == asset.Fungible {
		if err := p.Curve.Validate(); err != nil {
			return asset.ID{}, err
		}
	}
	id, err := st.Registry.Register(p.Class, asset.Config{
		Symbol:           p.Symbol,
		CollateralFactor: p.CollateralFactor,
		BorrowFactor:     p.BorrowFactor,
		CollateralOK:     p.CollateralOK,
		BorrowOK:         p.BorrowOK,
	})
	if err != nil {
		return asset.ID{}, err
	}
	if p.Class == asset.Fungible {
		if err := st.Book.AddAsset(id.Index, p.Curve, now); err != nil {
			return asset.ID{}, err
		}
	}
	return id, nil
}

// ResolveSymbol maps an event's asset symbol to its registered id.
func (st *SystemState) ResolveSymbol(symbol string) (asset.ID, error) {
	id, ok := st.Registry.Lookup(symbol)
	if !ok {
		return asset.ID{}, fmt.Errorf("state: unknown asset symbol %q", symbol)
	}
	return id, nil
}

// SetRiskFactors replaces one asset's risk factors. Takes effect for every
// later solvency check; open positions are not retro-checked.
func (st *SystemState) SetRiskFactors(symbol string, collateralFactor, borrowFactor decimal.Decimal) error {
	id, err := st.ResolveSymbol(symbol)
	if err != nil {
		return err
	}
	return st.Registry.SetRiskFactors(id, collateralFactor, borrowFactor)
}

// SetRateCurve swaps one fungible asset's rate curve. Interest accrues under
// the outgoing curve up to now first, then the new curve reprices.
func (st *SystemState) SetRateCurve(symbol string, curve pool.RateCurve, now int64, u *ledger.Undo) error {
	if err := curve.Validate(); err != nil {
		return err
	}
	id, err := st.ResolveSymbol(symbol)
	if err != nil {
		return err
	}
	if id.Class != asset.Fungible {
		return fmt.Errorf("state: %s is non-fungible and has no rate curve", symbol)
	}
	if _, err := st.Book.Accrue(id.Index, now, u); err != nil {
		return err
	}
	fs, ok := st.Book.Funding(id.Index)
	if !ok {
		return fmt.Errorf("state: no funding state for %s", symbol)
	}
	fs.Curve = curve
	fs.Rate = curve.RateAt(fs.CurrentUtilization())
	return nil
}

// SetPrice applies one oracle tick. Prices arrive as fixed-point integers
// and are stored as decimals.
func (st *SystemState) SetPrice(symbol string, price int64, tokenID *uint64) error {
	id, err := st.ResolveSymbol(symbol)
	if err != nil {
		return err
	}
	d := fpmath.DecimalFromUnits(price, fpmath.PriceConfig)
	if tokenID != nil {
		if id.Class != asset.NonFungible {
			return fmt.Errorf("state: token price on fungible asset %s", symbol)
		}
		return st.Prices.SetTokenPrice(id, *tokenID, d)
	}
	return st.Prices.SetPrice(id, d)
}
