package event

import "github.com/google/uuid"

// StrategyUpdate replaces an account's liquidation strategy word. The word
// travels as a 0x-prefixed hex string and is validated syntactically before
// the ledger stores it.
type StrategyUpdate struct {
	UpdateID  uuid.UUID
	AccountID uuid.UUID
	Word      string
	Sequence  int64
	Timestamp int64
}

func (s *StrategyUpdate) IdempotencyKey() string {
	return s.UpdateID.String()
}

func (s *StrategyUpdate) EventType() EventType {
	return EventTypeStrategyUpdate
}

func (s *StrategyUpdate) Account() *uuid.UUID {
	return &s.AccountID
}

func (s *StrategyUpdate) SourceSequence() int64 {
	return s.Sequence
}

func (s *StrategyUpdate) UnixTime() int64 {
	return s.Timestamp
}
