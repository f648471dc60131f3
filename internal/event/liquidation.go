package event

import "github.com/google/uuid"

// LiquidationRequested asks the core to check one account and, if it is
// neither solvent nor liquid, execute its stored strategy. The request is a
// trigger, not a command: a healthy account makes it a no-op.
type LiquidationRequested struct {
	RequestID uuid.UUID
	AccountID uuid.UUID
	Sequence  int64
	Timestamp int64
}

func (l *LiquidationRequested) IdempotencyKey() string {
	return l.RequestID.String()
}

func (l *LiquidationRequested) EventType() EventType {
	return EventTypeLiquidationRequested
}

func (l *LiquidationRequested) Account() *uuid.UUID {
	return &l.AccountID
}

func (l *LiquidationRequested) SourceSequence() int64 {
	return l.Sequence
}

func (l *LiquidationRequested) UnixTime() int64 {
	return l.Timestamp
}
