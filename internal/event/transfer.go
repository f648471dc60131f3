package event

import "github.com/google/uuid"

// TransferRequested moves balance between two accounts inside one atomic
// batch. Solvency is checked on the sender after both legs apply.
type TransferRequested struct {
	TransferID  uuid.UUID
	FromAccount uuid.UUID
	ToAccount   uuid.UUID
	Asset       string
	Amount      int64 // Fixed-point asset units, must be positive
	Sequence    int64
	Timestamp   int64
}

func (t *TransferRequested) IdempotencyKey() string {
	return t.TransferID.String()
}

func (t *TransferRequested) EventType() EventType {
	return EventTypeTransferRequested
}

func (t *TransferRequested) Account() *uuid.UUID {
	return &t.FromAccount
}

func (t *TransferRequested) SourceSequence() int64 {
	return t.Sequence
}

func (t *TransferRequested) UnixTime() int64 {
	return t.Timestamp
}
