package query

import (
	"fmt"
	"strconv"
	"sync"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/state"

	"github.com/google/uuid"
)

// StateQuery serves reads straight from the engine's in-memory state so
// position and solvency answers are exactly as fresh as the last processed
// event. The mutex is shared with the orchestrator, which holds it around
// each ProcessEvent call; queries take it for the duration of one read.
type StateQuery struct {
	mu  *sync.Mutex
	st  *state.SystemState
	seq func() int64 // last processed sequence
}

func NewStateQuery(mu *sync.Mutex, st *state.SystemState, seq func() int64) *StateQuery {
	return &StateQuery{mu: mu, st: st, seq: seq}
}

// GetPosition values one account against current prices and risk factors.
func (sq *StateQuery) GetPosition(acct uuid.UUID) (*PositionResponse, error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	pos, err := sq.st.Valuer.ComputePosition(acct)
	if err != nil {
		return nil, err
	}

	return &PositionResponse{
		Account:      acct,
		Total:        pos.Total.String(),
		Collateral:   pos.Collateral.String(),
		Debt:         pos.Debt.String(),
		Solvent:      pos.Solvent(),
		HasDebt:      sq.st.Book.HasDebt(acct),
		Frozen:       sq.st.Book.HasFlag(acct, ledger.FlagFrozen),
		AsOfSequence: sq.seq(),
	}, nil
}

// GetSolvency answers whether the account's risk-adjusted value is
// non-negative at current prices. Any unpriced held asset fails the read.
func (sq *StateQuery) GetSolvency(acct uuid.UUID) (*SolvencyResponse, error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	pos, err := sq.st.Valuer.ComputePosition(acct)
	if err != nil {
		return nil, err
	}

	return &SolvencyResponse{
		Account:      acct,
		Solvent:      pos.Solvent(),
		Total:        pos.Total.String(),
		Liquidating:  sq.st.Book.HasFlag(acct, ledger.FlagLiquidating),
		AsOfSequence: sq.seq(),
	}, nil
}

// GetAssetFunding returns the pool and rate-curve state of one fungible
// asset, addressed by symbol or by numeric code.
func (sq *StateQuery) GetAssetFunding(assetRef string) (*FundingResponse, error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	id, err := sq.resolveRef(assetRef)
	if err != nil {
		return nil, err
	}
	if id.Class != asset.Fungible {
		return nil, fmt.Errorf("query: asset %q has no funding pool", assetRef)
	}

	fs, ok := sq.st.Book.Funding(id.Index)
	if !ok {
		return nil, fmt.Errorf("query: no funding state for asset %q", assetRef)
	}

	return &FundingResponse{
		Code:               id.Code(),
		Symbol:             sq.st.Registry.ConfigOf(id).Symbol,
		PoolCollateral:     fs.Collateral.TotalAsset,
		PoolDebt:           fs.Debt.TotalAsset,
		Utilization:        fs.CurrentUtilization().String(),
		Rate:               fs.Rate.String(),
		OptimalUtilization: fs.Curve.OptimalUtilization.String(),
		PlateauRate:        fs.Curve.PlateauRate.String(),
		MaxRate:            fs.Curve.MaxRate.String(),
		LastAccrual:        fs.LastUpdate,
		AsOfSequence:       sq.seq(),
	}, nil
}

// ResolveAsset maps a symbol or numeric code to the registered asset code.
func (sq *StateQuery) ResolveAsset(assetRef string) (uint16, error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	id, err := sq.resolveRef(assetRef)
	if err != nil {
		return 0, err
	}
	return id.Code(), nil
}

// resolveRef tries the symbol registry first, then a bare numeric code.
// Callers hold the mutex.
func (sq *StateQuery) resolveRef(assetRef string) (asset.ID, error) {
	if id, ok := sq.st.Registry.Lookup(assetRef); ok {
		return id, nil
	}
	code, err := strconv.ParseUint(assetRef, 10, 16)
	if err != nil {
		return asset.ID{}, fmt.Errorf("query: unknown asset %q", assetRef)
	}
	return sq.st.Registry.Resolve(uint16(code))
}

// GetBalances returns every fungible balance the account holds, in base
// units at the current pool ratio.
func (sq *StateQuery) GetBalances(acct uuid.UUID) []BalanceResponse {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	asOf := sq.seq()
	var out []BalanceResponse
	sq.st.Book.ForEachAsset(acct, func(index uint16) bool {
		out = append(out, BalanceResponse{
			Account:      acct,
			AssetCode:    asset.ID{Class: asset.Fungible, Index: index}.Code(),
			Balance:      sq.st.Book.Amount(index, acct),
			LastSequence: asOf,
			AsOfSequence: asOf,
		})
		return true
	})
	return out
}

// ListAssets returns the full registry with pool state for fungibles.
func (sq *StateQuery) ListAssets() []AssetResponse {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	var out []AssetResponse
	sq.st.Registry.Fungibles(func(id asset.ID, cfg asset.Config) {
		r := assetResponse(id, cfg)
		if fs, ok := sq.st.Book.Funding(id.Index); ok {
			r.PoolCollateral = fs.Collateral.TotalAsset
			r.PoolDebt = fs.Debt.TotalAsset
			r.Utilization = fs.CurrentUtilization().String()
			r.Rate = fs.Rate.String()
		}
		out = append(out, r)
	})
	sq.st.Registry.NonFungibles(func(id asset.ID, cfg asset.Config) {
		out = append(out, assetResponse(id, cfg))
	})
	return out
}

func assetResponse(id asset.ID, cfg asset.Config) AssetResponse {
	return AssetResponse{
		Code:             id.Code(),
		Symbol:           cfg.Symbol,
		Class:            id.Class.String(),
		CollateralFactor: cfg.CollateralFactor.String(),
		BorrowFactor:     cfg.BorrowFactor.String(),
		CollateralOK:     cfg.CollateralOK,
		BorrowOK:         cfg.BorrowOK,
	}
}
