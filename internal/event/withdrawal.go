package event

import "github.com/google/uuid"

// WithdrawalRequested removes balance from an account. A withdrawal may push
// the balance negative (a borrow) when the asset permits it; the solvency
// check decides whether the resulting position stands.
type WithdrawalRequested struct {
	WithdrawalID uuid.UUID
	AccountID    uuid.UUID
	Asset        string
	Amount       int64 // Fixed-point asset units, must be positive
	Sequence     int64
	Timestamp    int64
}

func (w *WithdrawalRequested) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *WithdrawalRequested) EventType() EventType {
	return EventTypeWithdrawalRequested
}

func (w *WithdrawalRequested) Account() *uuid.UUID {
	return &w.AccountID
}

func (w *WithdrawalRequested) SourceSequence() int64 {
	return w.Sequence
}

func (w *WithdrawalRequested) UnixTime() int64 {
	return w.Timestamp
}

type NFTWithdrawalRequested struct {
	WithdrawalID uuid.UUID
	AccountID    uuid.UUID
	Asset        string
	TokenID      uint64
	Sequence     int64
	Timestamp    int64
}

func (w *NFTWithdrawalRequested) IdempotencyKey() string {
	return w.WithdrawalID.String()
}

func (w *NFTWithdrawalRequested) EventType() EventType {
	return EventTypeNFTWithdrawalRequested
}

func (w *NFTWithdrawalRequested) Account() *uuid.UUID {
	return &w.AccountID
}

func (w *NFTWithdrawalRequested) SourceSequence() int64 {
	return w.Sequence
}

func (w *NFTWithdrawalRequested) UnixTime() int64 {
	return w.Timestamp
}
