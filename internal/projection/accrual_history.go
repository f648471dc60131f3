package projection

import (
	"sync"

	"github.com/shopspring/decimal"
)

// AccrualHistoryEntry records one interest accrual for one asset pool.
type AccrualHistoryEntry struct {
	AssetCode   uint16          `json:"asset_code"`
	Rate        decimal.Decimal `json:"rate"` // per-second rate after repricing at this accrual
	Utilization decimal.Decimal `json:"utilization"`
	Interest    int64           `json:"interest"` // base units added to both pool totals
	Sequence    int64           `json:"sequence"`
	Timestamp   int64           `json:"timestamp"`
}

// AccrualHistoryProjection maintains queryable accrual history in memory.
// Bounded by maxEntries; older entries roll off. Safe for concurrent use:
// the projection worker writes while API reads query.
type AccrualHistoryProjection struct {
	mu         sync.RWMutex
	entries    []AccrualHistoryEntry
	maxEntries int
}

func NewAccrualHistoryProjection(maxEntries int) *AccrualHistoryProjection {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &AccrualHistoryProjection{
		entries:    make([]AccrualHistoryEntry, 0),
		maxEntries: maxEntries,
	}
}

// AddEntry records an accrual.
func (p *AccrualHistoryProjection) AddEntry(entry AccrualHistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, entry)
	if len(p.entries) > p.maxEntries {
		p.entries = p.entries[len(p.entries)-p.maxEntries:]
	}
}

// QueryByAsset returns the most recent accruals for an asset, newest first.
func (p *AccrualHistoryProjection) QueryByAsset(assetCode uint16, limit int) []AccrualHistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]AccrualHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].AssetCode == assetCode {
			result = append(result, p.entries[i])
		}
	}

	return result
}
