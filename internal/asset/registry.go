package asset

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config carries the per-asset risk and role parameters set at registration.
// Factors use decimal form (0.9 = 10% haircut). A zero borrow factor is only
// legal for assets that cannot be borrowed.
type Config struct {
	Symbol           string
	CollateralFactor decimal.Decimal
	BorrowFactor     decimal.Decimal
	CollateralOK     bool // may back debt
	BorrowOK         bool // may be borrowed
}

type entry struct {
	id  ID
	cfg Config
}

// Registry assigns stable small indexes to assets, append-only. Index 0 of
// each class is the first registered asset of that class; indexes are never
// reused or reassigned.
type Registry struct {
	fungible    []entry
	nonFungible []entry
	bySymbol    map[string]ID
}

func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[string]ID),
	}
}

// Register appends a new asset of the given class and returns its ID.
func (r *Registry) Register(class Class, cfg Config) (ID, error) {
	if cfg.Symbol == "" {
		return ID{}, fmt.Errorf("asset: empty symbol")
	}
	if _, dup := r.bySymbol[cfg.Symbol]; dup {
		return ID{}, fmt.Errorf("asset: symbol %q already registered", cfg.Symbol)
	}
	if cfg.CollateralOK && cfg.CollateralFactor.Sign() <= 0 {
		return ID{}, fmt.Errorf("asset: %q collateral-enabled with non-positive collateral factor", cfg.Symbol)
	}
	if cfg.BorrowOK && cfg.BorrowFactor.Sign() <= 0 {
		return ID{}, fmt.Errorf("asset: %q borrow-enabled with non-positive borrow factor", cfg.Symbol)
	}

	var id ID
	switch class {
	case Fungible:
		if len(r.fungible) > MaxFungibleIndex {
			return ID{}, fmt.Errorf("asset: fungible index space exhausted")
		}
		id = ID{Class: Fungible, Index: uint16(len(r.fungible))}
		r.fungible = append(r.fungible, entry{id: id, cfg: cfg})
	case NonFungible:
		if cfg.BorrowOK {
			return ID{}, fmt.Errorf("asset: %q non-fungible assets cannot be borrowed", cfg.Symbol)
		}
		if len(r.nonFungible) > MaxIndex {
			return ID{}, fmt.Errorf("asset: non-fungible index space exhausted")
		}
		id = ID{Class: NonFungible, Index: uint16(len(r.nonFungible))}
		r.nonFungible = append(r.nonFungible, entry{id: id, cfg: cfg})
	default:
		return ID{}, fmt.Errorf("asset: unknown class %d", class)
	}

	r.bySymbol[cfg.Symbol] = id
	return id, nil
}

// Resolve validates a 16-bit asset code against the registered counts and
// returns the decoded ID.
func (r *Registry) Resolve(code uint16) (ID, error) {
	id := FromCode(code)
	if !r.Known(id) {
		return ID{}, fmt.Errorf("%w: %s not registered", ErrInvalidEncoding, id)
	}
	return id, nil
}

// Known reports whether the ID references a registered asset.
func (r *Registry) Known(id ID) bool {
	switch id.Class {
	case Fungible:
		return int(id.Index) < len(r.fungible)
	case NonFungible:
		return int(id.Index) < len(r.nonFungible)
	}
	return false
}

// Lookup returns the ID for a symbol.
func (r *Registry) Lookup(symbol string) (ID, bool) {
	id, ok := r.bySymbol[symbol]
	return id, ok
}

// ConfigOf returns the registration config for a known asset. Panics on an
// unregistered ID: callers resolve through the registry first.
func (r *Registry) ConfigOf(id ID) Config {
	switch id.Class {
	case Fungible:
		return r.fungible[id.Index].cfg
	case NonFungible:
		return r.nonFungible[id.Index].cfg
	}
	panic(fmt.Sprintf("asset: config lookup for unknown class %d", id.Class))
}

// SetRiskFactors updates the collateral/borrow factors of a registered asset.
// Role flags are immutable after registration.
func (r *Registry) SetRiskFactors(id ID, collateralFactor, borrowFactor decimal.Decimal) error {
	if !r.Known(id) {
		return fmt.Errorf("%w: %s not registered", ErrInvalidEncoding, id)
	}
	var e *entry
	if id.Class == Fungible {
		e = &r.fungible[id.Index]
	} else {
		e = &r.nonFungible[id.Index]
	}
	if e.cfg.CollateralOK && collateralFactor.Sign() <= 0 {
		return fmt.Errorf("asset: non-positive collateral factor for %s", id)
	}
	if e.cfg.BorrowOK && borrowFactor.Sign() <= 0 {
		return fmt.Errorf("asset: non-positive borrow factor for %s", id)
	}
	e.cfg.CollateralFactor = collateralFactor
	e.cfg.BorrowFactor = borrowFactor
	return nil
}

// FungibleCount returns the number of registered fungible assets.
func (r *Registry) FungibleCount() int { return len(r.fungible) }

// NonFungibleCount returns the number of registered non-fungible assets.
func (r *Registry) NonFungibleCount() int { return len(r.nonFungible) }

// Fungibles calls fn for every registered fungible asset in index order.
func (r *Registry) Fungibles(fn func(ID, Config)) {
	for _, e := range r.fungible {
		fn(e.id, e.cfg)
	}
}

// NonFungibles calls fn for every registered non-fungible asset in index
// order.
func (r *Registry) NonFungibles(fn func(ID, Config)) {
	for _, e := range r.nonFungible {
		fn(e.id, e.cfg)
	}
}
