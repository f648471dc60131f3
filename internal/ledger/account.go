package ledger

import (
	"sort"

	"github.com/holiman/uint256"
)

// account is the per-account ledger state. Positions are stored as signed
// share counts (positive shares in the asset's collateral pool, negative in
// its debt pool); non-fungible holdings are token-id lists. The two
// membership words index the nonzero fungible positions.
type account struct {
	assets  Membership // every fungible asset with a nonzero position, plus flags
	borrows Membership // borrowed-only subset of assets

	shares map[uint16]int64  // fungible index -> signed shares
	nfts   map[uint16][]uint64 // non-fungible index -> sorted token ids

	// strategy is the account's persisted liquidation strategy word. The
	// zero word is the empty strategy.
	strategy uint256.Int
}

func newAccount() *account {
	return &account{
		shares: make(map[uint16]int64),
		nfts:   make(map[uint16][]uint64),
	}
}

// refreshBorrowSummary re-derives the cached has-borrow flag from the borrow
// word.
func (a *account) refreshBorrowSummary() {
	if a.borrows.Empty() {
		a.assets.ClearFlag(FlagHasBorrow)
	} else {
		a.assets.SetFlag(FlagHasBorrow)
	}
}

// insertToken adds a token id keeping the list sorted; reports false on
// duplicates.
func (a *account) insertToken(idx uint16, tokenID uint64) bool {
	list := a.nfts[idx]
	pos := sort.Search(len(list), func(i int) bool { return list[i] >= tokenID })
	if pos < len(list) && list[pos] == tokenID {
		return false
	}
	list = append(list, 0)
	copy(list[pos+1:], list[pos:])
	list[pos] = tokenID
	a.nfts[idx] = list
	return true
}

// removeToken deletes a token id; reports false if absent.
func (a *account) removeToken(idx uint16, tokenID uint64) bool {
	list := a.nfts[idx]
	pos := sort.Search(len(list), func(i int) bool { return list[i] >= tokenID })
	if pos >= len(list) || list[pos] != tokenID {
		return false
	}
	list = append(list[:pos], list[pos+1:]...)
	if len(list) == 0 {
		delete(a.nfts, idx)
	} else {
		a.nfts[idx] = list
	}
	return true
}
