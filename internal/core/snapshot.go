package core

import (
	"fmt"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/oracle"
	"MarginLedger/internal/pool"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Assets          []AssetSnapshot
	Accounts        []AccountSnapshot
	Prices          oracle.PriceDump
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// AssetSnapshot captures one registry row plus, for fungibles, the full
// funding state (pool totals, curve, rate, accrual timestamp).
type AssetSnapshot struct {
	Code    uint16
	Config  asset.Config
	Funding *pool.FundingState // nil for non-fungible assets
}

// AccountSnapshot captures one account verbatim: both membership words
// (flags included), the signed share map, non-fungible holdings, and the
// liquidation strategy word.
type AccountSnapshot struct {
	Account  uuid.UUID
	Assets   [32]byte
	Borrows  [32]byte
	Shares   map[uint16]int64
	NFTs     map[uint16][]uint64
	Strategy [32]byte
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	snap := &SnapshotState{
		Sequence:        e.sequence - 1, // last processed sequence
		StateHash:       e.hasher.GetPrevHash(),
		Prices:          e.st.Prices.Export(),
		SequenceState:   e.sequenceValidator.Partitions(),
		IdempotencyKeys: e.idempotency.lru.Keys(),
	}

	e.st.Registry.Fungibles(func(id asset.ID, cfg asset.Config) {
		as := AssetSnapshot{Code: id.Code(), Config: cfg}
		if fs, ok := e.st.Book.Funding(id.Index); ok {
			cp := *fs
			as.Funding = &cp
		}
		snap.Assets = append(snap.Assets, as)
	})
	e.st.Registry.NonFungibles(func(id asset.ID, cfg asset.Config) {
		snap.Assets = append(snap.Assets, AssetSnapshot{Code: id.Code(), Config: cfg})
	})

	for _, acct := range e.st.Book.Accounts() {
		assetsWord, borrowsWord := e.st.Book.MembershipWords(acct)
		snap.Accounts = append(snap.Accounts, AccountSnapshot{
			Account:  acct,
			Assets:   assetsWord.Bytes32(),
			Borrows:  borrowsWord.Bytes32(),
			Shares:   e.st.Book.AccountShares(acct),
			NFTs:     e.st.Book.AccountNFTs(acct),
			Strategy: e.st.Book.Strategy(acct).Bytes32(),
		})
	}

	return snap
}

// RestoreFromSnapshot rebuilds the core's in-memory state from a snapshot.
// On warm restart the caller loads the latest snapshot, restores, then
// replays the event log from Sequence+1.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) error {
	e.sequence = snap.Sequence + 1 // next sequence to assign
	e.hasher.SetPrevHash(snap.StateHash)

	// Registration is append-only, so replaying the rows in code order per
	// class reproduces the exact index assignment.
	for _, as := range snap.Assets {
		id := asset.FromCode(as.Code)
		got, err := e.st.Registry.Register(id.Class, as.Config)
		if err != nil {
			return fmt.Errorf("restore asset %s: %w", as.Config.Symbol, err)
		}
		if got != id {
			return fmt.Errorf("restore asset %s: index drift, snapshot %s vs registry %s", as.Config.Symbol, id, got)
		}
		if as.Funding != nil {
			e.st.Book.RestoreFunding(id.Index, *as.Funding)
		}
	}

	for _, acct := range snap.Accounts {
		assetsWord := new(uint256.Int).SetBytes(acct.Assets[:])
		borrowsWord := new(uint256.Int).SetBytes(acct.Borrows[:])
		strategyWord := new(uint256.Int).SetBytes(acct.Strategy[:])
		e.st.Book.RestoreAccount(acct.Account, assetsWord, borrowsWord, acct.Shares, acct.NFTs, strategyWord)
	}

	e.st.Prices.Restore(snap.Prices)

	for partition, nextSeq := range snap.SequenceState {
		e.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	// A restore that fails validation means the snapshot itself is corrupt.
	if err := e.st.Validator.ValidateAll(); err != nil {
		return fmt.Errorf("restored state failed validation: %w", err)
	}
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache so a warm restart
// avoids cold-path database lookups for recently processed events.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}
