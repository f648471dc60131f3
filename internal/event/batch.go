package event

import "github.com/google/uuid"

// Batch operation kinds. Only balance operations batch; governance events
// stay standalone so registration order is never entangled with transfers.
const (
	BatchOpDeposit    = "deposit"
	BatchOpWithdrawal = "withdrawal"
	BatchOpTransfer   = "transfer"
)

// BatchOp is one ordered operation inside a BatchRequested event.
type BatchOp struct {
	Kind      string
	Account   uuid.UUID
	ToAccount uuid.UUID // transfers only
	Asset     string
	Amount    int64 // Fixed-point asset units, must be positive
}

// BatchRequested applies an ordered list of balance operations as one atomic
// unit. Later operations see the cumulative effect of earlier ones, solvency
// checks on weakened accounts are deferred to the end of the batch, and
// failure anywhere rolls every operation back. A batch may pass through an
// insolvent intermediate state as long as it commits solvent.
type BatchRequested struct {
	BatchID   uuid.UUID
	Ops       []BatchOp
	Sequence  int64
	Timestamp int64
}

func (b *BatchRequested) IdempotencyKey() string {
	return b.BatchID.String()
}

func (b *BatchRequested) EventType() EventType {
	return EventTypeBatchRequested
}

// Account partitions sequencing by the first operation's account, matching
// how transfers partition by sender.
func (b *BatchRequested) Account() *uuid.UUID {
	if len(b.Ops) == 0 {
		return nil
	}
	return &b.Ops[0].Account
}

func (b *BatchRequested) SourceSequence() int64 {
	return b.Sequence
}

func (b *BatchRequested) UnixTime() int64 {
	return b.Timestamp
}
