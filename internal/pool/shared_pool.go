package pool

import (
	"fmt"

	fpmath "MarginLedger/internal/math"
)

// SharedPool is a single collateral-or-debt pool for one asset. Accounts own
// shares; the pool owns the asset total. Both sides of every conversion use
// floor division so rounding residue accumulates in the pool, never in a
// withdrawing account.
//
// Invariant: TotalShares == 0 <=> TotalAsset == 0.
type SharedPool struct {
	TotalAsset  int64
	TotalShares int64
}

// GetAsset converts a share count to an asset amount at the pool's current
// ratio. Pure; requires a non-empty pool whenever shares != 0.
func (p *SharedPool) GetAsset(shares int64) int64 {
	if shares == 0 {
		return 0
	}
	if p.TotalShares == 0 {
		panic(fmt.Sprintf("pool: GetAsset(%d) on empty pool", shares))
	}
	return fpmath.MulDivFloor(p.TotalAsset, shares, p.TotalShares)
}

// InsertPosition adds asset to the pool and mints the proportional share
// count. An empty pool bootstraps 1:1. asset == 0 mints zero shares and
// leaves the pool untouched.
func (p *SharedPool) InsertPosition(asset int64) int64 {
	if asset < 0 {
		panic(fmt.Sprintf("pool: InsertPosition(%d) negative", asset))
	}
	if asset == 0 {
		return 0
	}

	var shares int64
	if p.TotalShares == 0 {
		shares = asset
	} else {
		shares = fpmath.MulDivFloor(p.TotalShares, asset, p.TotalAsset)
	}

	p.TotalAsset += asset
	p.TotalShares += shares
	return shares
}

// ExtractPosition burns shares and returns the matching asset amount. The
// caller guarantees the shares belong to a single account and do not exceed
// its holding; that check lives in the ledger layer.
func (p *SharedPool) ExtractPosition(shares int64) int64 {
	if shares < 0 {
		panic(fmt.Sprintf("pool: ExtractPosition(%d) negative", shares))
	}
	if shares == 0 {
		return 0
	}

	// Burning all outstanding shares computes TotalAsset exactly, so the
	// TotalShares == 0 => TotalAsset == 0 invariant holds without a special
	// case.
	asset := p.GetAsset(shares)
	p.TotalAsset -= asset
	p.TotalShares -= shares
	return asset
}

// Empty reports whether the pool holds nothing.
func (p *SharedPool) Empty() bool {
	return p.TotalShares == 0
}
