package oracle

import (
	"fmt"

	"MarginLedger/internal/asset"
	fpmath "MarginLedger/internal/math"

	"github.com/shopspring/decimal"
)

// PriceOracle values balances in the common quote unit. Implementations must
// be deterministic within one evaluation: two reads of the same asset inside
// one solvency check see the same price.
type PriceOracle interface {
	// CalcValue prices a signed fungible amount (asset units, fixed-point).
	CalcValue(id asset.ID, signedAmount int64) (decimal.Decimal, error)
	// CalcTokenValue prices one non-fungible token.
	CalcTokenValue(id asset.ID, tokenID uint64) (decimal.Decimal, error)
}

// SwapOracle quotes and executes asset-to-asset exchanges during
// liquidation. GetOraclePrice is the risk-assessment rate used by the
// read-only liquidity check; Swap is the market execution path and may fill
// at a different rate.
type SwapOracle interface {
	GetOraclePrice(from, to asset.ID) (decimal.Decimal, error)
	Swap(from, to asset.ID, amountIn int64) (amountOut int64, err error)
}

// RiskAssessor scales values into conservative solvency inputs: collateral
// is tightened, debt is enlarged.
type RiskAssessor interface {
	AsCollateral(id asset.ID, value decimal.Decimal) decimal.Decimal
	AsDebt(id asset.ID, value decimal.Decimal) decimal.Decimal
}

// PriceTable is the in-memory price oracle fed by price-update events. Prices
// are quote units per whole asset unit. Unpriced assets fail the read rather
// than defaulting to zero.
type PriceTable struct {
	prices     map[uint16]decimal.Decimal // asset code -> unit price
	nftPrices  map[uint16]decimal.Decimal // per-collection floor price
	tokenOverride map[uint16]map[uint64]decimal.Decimal
}

func NewPriceTable() *PriceTable {
	return &PriceTable{
		prices:        make(map[uint16]decimal.Decimal),
		nftPrices:     make(map[uint16]decimal.Decimal),
		tokenOverride: make(map[uint16]map[uint64]decimal.Decimal),
	}
}

// SetPrice stores the unit price for a fungible asset or the floor price for
// a non-fungible collection.
func (t *PriceTable) SetPrice(id asset.ID, price decimal.Decimal) error {
	if price.Sign() < 0 {
		return fmt.Errorf("oracle: negative price %s for %s", price, id)
	}
	if id.Class == asset.Fungible {
		t.prices[id.Code()] = price
	} else {
		t.nftPrices[id.Code()] = price
	}
	return nil
}

// SetTokenPrice overrides the price of a single non-fungible token.
func (t *PriceTable) SetTokenPrice(id asset.ID, tokenID uint64, price decimal.Decimal) error {
	if price.Sign() < 0 {
		return fmt.Errorf("oracle: negative price %s for token %d of %s", price, tokenID, id)
	}
	m, ok := t.tokenOverride[id.Code()]
	if !ok {
		m = make(map[uint64]decimal.Decimal)
		t.tokenOverride[id.Code()] = m
	}
	m[tokenID] = price
	return nil
}

func (t *PriceTable) CalcValue(id asset.ID, signedAmount int64) (decimal.Decimal, error) {
	price, ok := t.prices[id.Code()]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no price for %s", id)
	}
	amount := fpmath.DecimalFromUnits(signedAmount, fpmath.AmountConfig)
	return amount.Mul(price), nil
}

func (t *PriceTable) CalcTokenValue(id asset.ID, tokenID uint64) (decimal.Decimal, error) {
	if m, ok := t.tokenOverride[id.Code()]; ok {
		if p, ok := m[tokenID]; ok {
			return p, nil
		}
	}
	price, ok := t.nftPrices[id.Code()]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no floor price for %s", id)
	}
	return price, nil
}

// GetOraclePrice derives a cross rate from the two unit prices. A
// non-fungible source prices at its collection floor (one token = one unit).
func (t *PriceTable) GetOraclePrice(from, to asset.ID) (decimal.Decimal, error) {
	fromPrice, ok := t.prices[from.Code()]
	if !ok && from.Class == asset.NonFungible {
		fromPrice, ok = t.nftPrices[from.Code()]
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no price for %s", from)
	}
	toPrice, ok := t.prices[to.Code()]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no price for %s", to)
	}
	if toPrice.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("oracle: zero price for %s", to)
	}
	return fromPrice.Div(toPrice), nil
}

// Swap executes at the oracle cross rate. Production deployments plug in a
// market venue here; the table implementation fills exactly at oracle price.
func (t *PriceTable) Swap(from, to asset.ID, amountIn int64) (int64, error) {
	if amountIn < 0 {
		return 0, fmt.Errorf("oracle: negative swap amount %d", amountIn)
	}
	rate, err := t.GetOraclePrice(from, to)
	if err != nil {
		return 0, err
	}
	in := fpmath.DecimalFromUnits(amountIn, fpmath.AmountConfig)
	return fpmath.UnitsFromDecimal(in.Mul(rate), fpmath.AmountConfig), nil
}

// PriceDump is a copy of every stored price, keyed by asset code, used for
// snapshotting.
type PriceDump struct {
	Prices         map[uint16]decimal.Decimal
	Floors         map[uint16]decimal.Decimal
	TokenOverrides map[uint16]map[uint64]decimal.Decimal
}

// Export copies the full price state.
func (t *PriceTable) Export() PriceDump {
	d := PriceDump{
		Prices:         make(map[uint16]decimal.Decimal, len(t.prices)),
		Floors:         make(map[uint16]decimal.Decimal, len(t.nftPrices)),
		TokenOverrides: make(map[uint16]map[uint64]decimal.Decimal, len(t.tokenOverride)),
	}
	for k, v := range t.prices {
		d.Prices[k] = v
	}
	for k, v := range t.nftPrices {
		d.Floors[k] = v
	}
	for k, m := range t.tokenOverride {
		cp := make(map[uint64]decimal.Decimal, len(m))
		for tok, v := range m {
			cp[tok] = v
		}
		d.TokenOverrides[k] = cp
	}
	return d
}

// Restore replaces the full price state with the dump's contents.
func (t *PriceTable) Restore(d PriceDump) {
	t.prices = make(map[uint16]decimal.Decimal, len(d.Prices))
	t.nftPrices = make(map[uint16]decimal.Decimal, len(d.Floors))
	t.tokenOverride = make(map[uint16]map[uint64]decimal.Decimal, len(d.TokenOverrides))
	for k, v := range d.Prices {
		t.prices[k] = v
	}
	for k, v := range d.Floors {
		t.nftPrices[k] = v
	}
	for k, m := range d.TokenOverrides {
		cp := make(map[uint64]decimal.Decimal, len(m))
		for tok, v := range m {
			cp[tok] = v
		}
		t.tokenOverride[k] = cp
	}
}
