package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks the structural invariants the core asserts after
// every committed batch. A failure here means state is corrupt, not that an
// operation was invalid.
type InvariantValidator struct {
	book *Book
}

func NewInvariantValidator(book *Book) *InvariantValidator {
	return &InvariantValidator{book: book}
}

// ValidateMembership verifies for one account that every membership bit has a
// matching nonzero share entry and vice versa, that the borrow word is a
// subset of the asset word, and that the summary flag matches the borrow
// word.
func (v *InvariantValidator) ValidateMembership(acct uuid.UUID) error {
	a, ok := v.book.accounts[acct]
	if !ok {
		return nil
	}

	for idx, shares := range a.shares {
		if shares == 0 {
			return fmt.Errorf("account %s has zero-share entry for asset %d", acct, idx)
		}
		if !a.assets.Has(idx) {
			return fmt.Errorf("account %s holds asset %d without membership bit", acct, idx)
		}
		if shares < 0 && !a.borrows.Has(idx) {
			return fmt.Errorf("account %s owes asset %d without borrow bit", acct, idx)
		}
		if shares > 0 && a.borrows.Has(idx) {
			return fmt.Errorf("account %s has borrow bit on collateral asset %d", acct, idx)
		}
	}

	var walkErr error
	a.assets.ForEach(func(idx uint16) bool {
		if a.shares[idx] == 0 {
			walkErr = fmt.Errorf("account %s membership bit %d without position", acct, idx)
			return false
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	if !a.borrows.SubsetOf(&a.assets) {
		return fmt.Errorf("account %s borrow set not a subset of asset set", acct)
	}
	if a.assets.HasFlag(FlagHasBorrow) != !a.borrows.Empty() {
		return fmt.Errorf("account %s has stale borrow summary flag", acct)
	}
	return nil
}

// ValidatePoolTotals verifies for one asset that the outstanding shares of
// all accounts sum to each pool's share total, and that distributing the pool
// never exceeds its asset total (floor residue stays in the pool).
func (v *InvariantValidator) ValidatePoolTotals(index uint16) error {
	fs, ok := v.book.funding[index]
	if !ok {
		return fmt.Errorf("unknown asset index %d", index)
	}

	var collateralShares, debtShares, distributed int64
	for _, a := range v.book.accounts {
		shares := a.shares[index]
		switch {
		case shares > 0:
			collateralShares += shares
			distributed += fs.Collateral.GetAsset(shares)
		case shares < 0:
			debtShares += -shares
		}
	}

	if collateralShares != fs.Collateral.TotalShares {
		return fmt.Errorf("asset %d collateral shares drift: accounts=%d pool=%d",
			index, collateralShares, fs.Collateral.TotalShares)
	}
	if debtShares != fs.Debt.TotalShares {
		return fmt.Errorf("asset %d debt shares drift: accounts=%d pool=%d",
			index, debtShares, fs.Debt.TotalShares)
	}
	if distributed > fs.Collateral.TotalAsset {
		return fmt.Errorf("asset %d pool over-distributes: claims=%d total=%d",
			index, distributed, fs.Collateral.TotalAsset)
	}
	if (fs.Collateral.TotalShares == 0) != (fs.Collateral.TotalAsset == 0) {
		return fmt.Errorf("asset %d collateral pool empty-state drift: shares=%d asset=%d",
			index, fs.Collateral.TotalShares, fs.Collateral.TotalAsset)
	}
	if (fs.Debt.TotalShares == 0) != (fs.Debt.TotalAsset == 0) {
		return fmt.Errorf("asset %d debt pool empty-state drift: shares=%d asset=%d",
			index, fs.Debt.TotalShares, fs.Debt.TotalAsset)
	}
	return nil
}

// ValidateAll runs every invariant across all accounts and assets.
func (v *InvariantValidator) ValidateAll() error {
	for acct := range v.book.accounts {
		if err := v.ValidateMembership(acct); err != nil {
			return err
		}
	}
	for idx := range v.book.funding {
		if err := v.ValidatePoolTotals(idx); err != nil {
			return err
		}
	}
	return nil
}
