package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// EntryKind classifies a balance mutation in the audit log.
type EntryKind int32

const (
	EntryKindDeposit EntryKind = iota
	EntryKindWithdrawal
	EntryKindTransferOut
	EntryKindTransferIn
	EntryKindInterestAccrual
	EntryKindLiquidationSwap
	EntryKindNFTDeposit
	EntryKindNFTWithdrawal
	EntryKindAdjustment
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindDeposit:
		return "deposit"
	case EntryKindWithdrawal:
		return "withdrawal"
	case EntryKindTransferOut:
		return "transfer_out"
	case EntryKindTransferIn:
		return "transfer_in"
	case EntryKindInterestAccrual:
		return "interest_accrual"
	case EntryKindLiquidationSwap:
		return "liquidation_swap"
	case EntryKindNFTDeposit:
		return "nft_deposit"
	case EntryKindNFTWithdrawal:
		return "nft_withdrawal"
	case EntryKindAdjustment:
		return "adjustment"
	default:
		return "unknown"
	}
}

// Entry records one applied balance delta. Unlike a double-entry journal,
// pool-based positions have a single signed leg: the counter-side is the
// shared pool itself.
type Entry struct {
	EntryID   uuid.UUID
	BatchID   uuid.UUID
	EventRef  string // Idempotency key of the source event
	Sequence  int64  // Global event sequence
	Account   uuid.UUID
	AssetCode uint16 // 16-bit asset encoding
	Delta     int64  // Signed amount change in asset units
	Kind      EntryKind
	Timestamp int64 // Versioned input timestamp (epoch seconds)
}

// Batch groups the entries applied by one atomic operation batch.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Entries   []Entry
}

// Validate ensures the batch is well-formed before it is persisted.
func (b *Batch) Validate() error {
	for _, e := range b.Entries {
		if e.BatchID != b.BatchID {
			return fmt.Errorf("entry %s has mismatched batch_id", e.EntryID)
		}
		if e.Delta == 0 && e.Kind != EntryKindInterestAccrual {
			return fmt.Errorf("entry %s has zero delta", e.EntryID)
		}
	}
	return nil
}
