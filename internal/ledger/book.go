package ledger

import (
	"errors"
	"fmt"
	"sort"

	"MarginLedger/internal/pool"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrFrozen blocks balance mutation on frozen accounts.
var ErrFrozen = errors.New("ledger: account frozen")

// Book owns every account's positions and the shared funding state of every
// fungible asset. All mutation goes through Book methods, which accrue
// interest on first touch, keep the membership words in sync with balance
// sign transitions, and record inverse steps into the caller's undo log.
type Book struct {
	accounts map[uuid.UUID]*account
	funding  map[uint16]*pool.FundingState
}

func NewBook() *Book {
	return &Book{
		accounts: make(map[uuid.UUID]*account),
		funding:  make(map[uint16]*pool.FundingState),
	}
}

// AddAsset creates the funding state for a newly registered fungible asset.
func (b *Book) AddAsset(index uint16, curve pool.RateCurve, now int64) error {
	if int(index) > MaxAssetBit {
		return fmt.Errorf("ledger: asset index %d exceeds membership capacity %d", index, MaxAssetBit)
	}
	if _, dup := b.funding[index]; dup {
		return fmt.Errorf("ledger: asset index %d already tracked", index)
	}
	b.funding[index] = pool.NewFundingState(curve, now)
	return nil
}

// Funding exposes the funding state for one asset (valuation and metrics
// read pool totals through it).
func (b *Book) Funding(index uint16) (*pool.FundingState, bool) {
	fs, ok := b.funding[index]
	return fs, ok
}

func (b *Book) getOrCreate(id uuid.UUID) *account {
	a, ok := b.accounts[id]
	if !ok {
		a = newAccount()
		b.accounts[id] = a
	}
	return a
}

// snapshotFunding records the full funding state for rollback. FundingState
// is a value-copyable struct (pools and decimal rate carry no pointers that
// outlive the copy).
func (b *Book) snapshotFunding(fs *pool.FundingState, u *Undo) {
	prev := *fs
	u.Record(func() { *fs = prev })
}

// snapshotPosition records one account's share entry and both membership
// words (flags included).
func (b *Book) snapshotPosition(a *account, index uint16, u *Undo) {
	prevShares, had := a.shares[index]
	prevAssets := a.assets
	prevBorrows := a.borrows
	u.Record(func() {
		if had {
			a.shares[index] = prevShares
		} else {
			delete(a.shares, index)
		}
		a.assets = prevAssets
		a.borrows = prevBorrows
	})
}

// Accrue applies interest for one asset without touching any position.
func (b *Book) Accrue(index uint16, now int64, u *Undo) (int64, error) {
	fs, ok := b.funding[index]
	if !ok {
		return 0, fmt.Errorf("ledger: unknown fungible asset index %d", index)
	}
	b.snapshotFunding(fs, u)
	return fs.Accrue(now)
}

// UpdateBalance applies a signed delta to the account's position in one
// fungible asset: accrue interest, extract the current position from the
// pool matching its sign, insert the new amount into the pool matching the
// new sign, and maintain both membership words. Sign flips always go through
// extract-then-insert because the two signs draw from different pools.
// Returns the resulting signed amount.
func (b *Book) UpdateBalance(index uint16, acct uuid.UUID, delta int64, now int64, u *Undo) (int64, error) {
	fs, ok := b.funding[index]
	if !ok {
		return 0, fmt.Errorf("ledger: unknown fungible asset index %d", index)
	}
	a := b.getOrCreate(acct)
	if a.assets.HasFlag(FlagFrozen) {
		return 0, fmt.Errorf("%w: %s", ErrFrozen, acct)
	}

	b.snapshotFunding(fs, u)
	if _, err := fs.Accrue(now); err != nil {
		return 0, err
	}

	b.snapshotPosition(a, index, u)

	cur := a.shares[index]
	var amount int64
	switch {
	case cur > 0:
		amount = fs.Collateral.ExtractPosition(cur)
	case cur < 0:
		amount = -fs.Debt.ExtractPosition(-cur)
	}

	newAmount := amount + delta

	var newShares int64
	switch {
	case newAmount > 0:
		newShares = fs.Collateral.InsertPosition(newAmount)
	case newAmount < 0:
		newShares = -fs.Debt.InsertPosition(-newAmount)
	}

	if newShares == 0 {
		delete(a.shares, index)
		a.assets.Clear(index)
	} else {
		a.shares[index] = newShares
		a.assets.Set(index)
	}
	if newShares < 0 {
		a.borrows.Set(index)
	} else {
		a.borrows.Clear(index)
	}
	a.refreshBorrowSummary()

	return newAmount, nil
}

// ClearBalance zeroes the account's position in one asset and returns the
// signed amount that was removed.
func (b *Book) ClearBalance(index uint16, acct uuid.UUID, now int64, u *Undo) (int64, error) {
	amount := b.Amount(index, acct)
	if amount == 0 {
		// Still a touch: interest accrues once per time step even on no-ops,
		// and a stale bit (zero-amount position) is dropped.
		if _, err := b.Accrue(index, now, u); err != nil {
			return 0, err
		}
		if a, ok := b.accounts[acct]; ok && a.assets.Has(index) {
			b.snapshotPosition(a, index, u)
			delete(a.shares, index)
			a.assets.Clear(index)
			a.borrows.Clear(index)
			a.refreshBorrowSummary()
		}
		return 0, nil
	}
	if _, err := b.UpdateBalance(index, acct, -amount, now, u); err != nil {
		return 0, err
	}
	return amount, nil
}

// Amount returns the account's current signed amount in one fungible asset
// without mutating anything.
func (b *Book) Amount(index uint16, acct uuid.UUID) int64 {
	a, ok := b.accounts[acct]
	if !ok {
		return 0
	}
	shares := a.shares[index]
	fs, ok := b.funding[index]
	if !ok || shares == 0 {
		return 0
	}
	if shares > 0 {
		return fs.Collateral.GetAsset(shares)
	}
	return -fs.Debt.GetAsset(-shares)
}

// Shares returns the raw signed share count.
func (b *Book) Shares(index uint16, acct uuid.UUID) int64 {
	a, ok := b.accounts[acct]
	if !ok {
		return 0
	}
	return a.shares[index]
}

// ForEachAsset enumerates the account's membership bitset in ascending index
// order.
func (b *Book) ForEachAsset(acct uuid.UUID, fn func(index uint16) bool) {
	if a, ok := b.accounts[acct]; ok {
		a.assets.ForEach(fn)
	}
}

// ForEachBorrow enumerates the borrowed-only subset. The summary flag short-
// circuits the scan for debt-free accounts.
func (b *Book) ForEachBorrow(acct uuid.UUID, fn func(index uint16) bool) {
	a, ok := b.accounts[acct]
	if !ok || !a.assets.HasFlag(FlagHasBorrow) {
		return
	}
	a.borrows.ForEach(fn)
}

// HasDebt reports the cached has-borrow summary flag.
func (b *Book) HasDebt(acct uuid.UUID) bool {
	a, ok := b.accounts[acct]
	return ok && a.assets.HasFlag(FlagHasBorrow)
}

// HasFlag reads an account flag.
func (b *Book) HasFlag(acct uuid.UUID, f Flag) bool {
	a, ok := b.accounts[acct]
	return ok && a.assets.HasFlag(f)
}

// SetFlag sets an account flag, recording the inverse step.
func (b *Book) SetFlag(acct uuid.UUID, f Flag, u *Undo) {
	a := b.getOrCreate(acct)
	if a.assets.HasFlag(f) {
		return
	}
	u.Record(func() { a.assets.ClearFlag(f) })
	a.assets.SetFlag(f)
}

// ClearFlag clears an account flag, recording the inverse step.
func (b *Book) ClearFlag(acct uuid.UUID, f Flag, u *Undo) {
	a, ok := b.accounts[acct]
	if !ok || !a.assets.HasFlag(f) {
		return
	}
	u.Record(func() { a.assets.SetFlag(f) })
	a.assets.ClearFlag(f)
}

// AddNFT records ownership of one non-fungible token.
func (b *Book) AddNFT(index uint16, acct uuid.UUID, tokenID uint64, u *Undo) error {
	a := b.getOrCreate(acct)
	if a.assets.HasFlag(FlagFrozen) {
		return fmt.Errorf("%w: %s", ErrFrozen, acct)
	}
	if !a.insertToken(index, tokenID) {
		return fmt.Errorf("ledger: account %s already owns token %d of nf asset %d", acct, tokenID, index)
	}
	u.Record(func() { a.removeToken(index, tokenID) })
	return nil
}

// RemoveNFT removes ownership of one non-fungible token.
func (b *Book) RemoveNFT(index uint16, acct uuid.UUID, tokenID uint64, u *Undo) error {
	a, ok := b.accounts[acct]
	if !ok {
		return fmt.Errorf("ledger: account %s owns no tokens of nf asset %d", acct, index)
	}
	if a.assets.HasFlag(FlagFrozen) {
		return fmt.Errorf("%w: %s", ErrFrozen, acct)
	}
	if !a.removeToken(index, tokenID) {
		return fmt.Errorf("ledger: account %s does not own token %d of nf asset %d", acct, tokenID, index)
	}
	u.Record(func() { a.insertToken(index, tokenID) })
	return nil
}

// NFTs returns a copy of the account's token-id list for one non-fungible
// asset.
func (b *Book) NFTs(index uint16, acct uuid.UUID) []uint64 {
	a, ok := b.accounts[acct]
	if !ok {
		return nil
	}
	list := a.nfts[index]
	out := make([]uint64, len(list))
	copy(out, list)
	return out
}

// ForEachNFTPosition enumerates the account's non-fungible holdings in
// ascending index order.
func (b *Book) ForEachNFTPosition(acct uuid.UUID, fn func(index uint16, tokens []uint64) bool) {
	a, ok := b.accounts[acct]
	if !ok {
		return
	}
	indexes := make([]uint16, 0, len(a.nfts))
	for idx := range a.nfts {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	for _, idx := range indexes {
		if !fn(idx, a.nfts[idx]) {
			return
		}
	}
}

// SetStrategy stores the account's liquidation strategy word.
func (b *Book) SetStrategy(acct uuid.UUID, word *uint256.Int, u *Undo) {
	a := b.getOrCreate(acct)
	prev := a.strategy
	u.Record(func() { a.strategy = prev })
	a.strategy.Set(word)
}

// Strategy returns a copy of the account's strategy word.
func (b *Book) Strategy(acct uuid.UUID) *uint256.Int {
	a, ok := b.accounts[acct]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&a.strategy)
}

// Accounts returns all account ids in a stable order (snapshots, projections).
func (b *Book) Accounts() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.accounts))
	for id := range b.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytesCompare(ids[i], ids[j]) < 0
	})
	return ids
}

func bytesCompare(a, b uuid.UUID) int {
	for k := 0; k < len(a); k++ {
		if a[k] != b[k] {
			if a[k] < b[k] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// MembershipWords returns copies of both membership words, flags included.
// Used by the state digest and snapshots.
func (b *Book) MembershipWords(acct uuid.UUID) (assets, borrows *uint256.Int) {
	a, ok := b.accounts[acct]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	return a.assets.Word(), a.borrows.Word()
}

// AccountShares returns a copy of the account's signed share map.
func (b *Book) AccountShares(acct uuid.UUID) map[uint16]int64 {
	a, ok := b.accounts[acct]
	if !ok {
		return nil
	}
	out := make(map[uint16]int64, len(a.shares))
	for idx, s := range a.shares {
		out[idx] = s
	}
	return out
}

// AccountNFTs returns a copy of the account's full non-fungible holdings.
func (b *Book) AccountNFTs(acct uuid.UUID) map[uint16][]uint64 {
	a, ok := b.accounts[acct]
	if !ok {
		return nil
	}
	out := make(map[uint16][]uint64, len(a.nfts))
	for idx, list := range a.nfts {
		cp := make([]uint64, len(list))
		copy(cp, list)
		out[idx] = cp
	}
	return out
}

// RestoreAccount installs one account's state verbatim from a snapshot. The
// caller is responsible for the words matching the share map; the invariant
// validator checks that after a full restore.
func (b *Book) RestoreAccount(acct uuid.UUID, assets, borrows *uint256.Int, shares map[uint16]int64, nfts map[uint16][]uint64, strategy *uint256.Int) {
	a := b.getOrCreate(acct)
	a.assets.SetWord(assets)
	a.borrows.SetWord(borrows)
	a.shares = make(map[uint16]int64, len(shares))
	for idx, s := range shares {
		a.shares[idx] = s
	}
	a.nfts = make(map[uint16][]uint64, len(nfts))
	for idx, list := range nfts {
		cp := make([]uint64, len(list))
		copy(cp, list)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		a.nfts[idx] = cp
	}
	a.strategy.Set(strategy)
}

// RestoreFunding installs one asset's funding state verbatim from a
// snapshot, replacing any existing state for the index.
func (b *Book) RestoreFunding(index uint16, fs pool.FundingState) {
	cp := fs
	b.funding[index] = &cp
}

// FungibleIndexes returns every tracked asset index in ascending order.
func (b *Book) FungibleIndexes() []uint16 {
	out := make([]uint16, 0, len(b.funding))
	for idx := range b.funding {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
