package query

import "github.com/google/uuid"

// BalanceResponse is one account/asset balance row for API queries.
// Balance is in base units (1e-6); as_of_sequence gives freshness.
type BalanceResponse struct {
	Account      uuid.UUID `json:"account"`
	AssetCode    uint16    `json:"asset_code"`
	Balance      int64     `json:"balance"`
	LastSequence int64     `json:"last_sequence"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// PositionResponse is the valued summary of one account, computed from
// live engine state rather than projections.
type PositionResponse struct {
	Account      uuid.UUID `json:"account"`
	Total        string    `json:"total"`
	Collateral   string    `json:"collateral"`
	Debt         string    `json:"debt"`
	Solvent      bool      `json:"solvent"`
	HasDebt      bool      `json:"has_debt"`
	Frozen       bool      `json:"frozen"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// SolvencyResponse is the yes/no solvency verdict for one account, with
// the risk-adjusted totals behind it.
type SolvencyResponse struct {
	Account      uuid.UUID `json:"account"`
	Solvent      bool      `json:"solvent"`
	Total        string    `json:"total"`
	Liquidating  bool      `json:"liquidating"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// FundingResponse is the funding and rate state of one fungible asset.
type FundingResponse struct {
	Code               uint16 `json:"code"`
	Symbol             string `json:"symbol"`
	PoolCollateral     int64  `json:"pool_collateral"`
	PoolDebt           int64  `json:"pool_debt"`
	Utilization        string `json:"utilization"`
	Rate               string `json:"rate"`
	OptimalUtilization string `json:"optimal_utilization"`
	PlateauRate        string `json:"plateau_rate"`
	MaxRate            string `json:"max_rate"`
	LastAccrual        int64  `json:"last_accrual"`
	AsOfSequence       int64  `json:"as_of_sequence"`
}

// AssetResponse describes one registered asset and, for fungibles, its
// pool state.
type AssetResponse struct {
	Code             uint16 `json:"code"`
	Symbol           string `json:"symbol"`
	Class            string `json:"class"`
	CollateralFactor string `json:"collateral_factor"`
	BorrowFactor     string `json:"borrow_factor"`
	CollateralOK     bool   `json:"collateral_ok"`
	BorrowOK         bool   `json:"borrow_ok"`
	PoolCollateral   int64  `json:"pool_collateral,omitempty"`
	PoolDebt         int64  `json:"pool_debt,omitempty"`
	Utilization      string `json:"utilization,omitempty"`
	Rate             string `json:"rate,omitempty"`
}

// EntryHistoryEntry is one ledger entry row for API queries.
type EntryHistoryEntry struct {
	EntryID   string `json:"entry_id"`
	BatchID   string `json:"batch_id"`
	EventRef  string `json:"event_ref"`
	Sequence  int64  `json:"sequence"`
	Account   string `json:"account"`
	AssetCode uint16 `json:"asset_code"`
	Delta     int64  `json:"delta"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
}

// LiquidationHistoryEntry is one liquidation swap leg for API queries.
type LiquidationHistoryEntry struct {
	Sequence  int64  `json:"sequence"`
	Account   string `json:"account"`
	AssetCode uint16 `json:"asset_code"`
	Delta     int64  `json:"delta"`
	Timestamp int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool         `json:"is_healthy"`
	HashChainBreaks []int64      `json:"hash_chain_breaks,omitempty"`
	DriftedAssets   []AssetDrift `json:"drifted_assets,omitempty"`
}

// AssetDrift reports a divergence between the balance projection and the
// entries log for one asset.
type AssetDrift struct {
	AssetCode uint16 `json:"asset_code"`
	Projected int64  `json:"projected"`
	FromLog   int64  `json:"from_log"`
}
