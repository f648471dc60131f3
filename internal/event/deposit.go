package event

import "github.com/google/uuid"

type DepositRequested struct {
	DepositID uuid.UUID
	AccountID uuid.UUID
	Asset     string
	Amount    int64 // Fixed-point asset units, must be positive
	Sequence  int64
	Timestamp int64 // Epoch seconds (versioned input)
}

func (d *DepositRequested) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *DepositRequested) EventType() EventType {
	return EventTypeDepositRequested
}

func (d *DepositRequested) Account() *uuid.UUID {
	return &d.AccountID
}

func (d *DepositRequested) SourceSequence() int64 {
	return d.Sequence
}

func (d *DepositRequested) UnixTime() int64 {
	return d.Timestamp
}

type NFTDepositRequested struct {
	DepositID uuid.UUID
	AccountID uuid.UUID
	Asset     string
	TokenID   uint64
	Sequence  int64
	Timestamp int64
}

func (d *NFTDepositRequested) IdempotencyKey() string {
	return d.DepositID.String()
}

func (d *NFTDepositRequested) EventType() EventType {
	return EventTypeNFTDepositRequested
}

func (d *NFTDepositRequested) Account() *uuid.UUID {
	return &d.AccountID
}

func (d *NFTDepositRequested) SourceSequence() int64 {
	return d.Sequence
}

func (d *NFTDepositRequested) UnixTime() int64 {
	return d.Timestamp
}
