package event

import (
	"fmt"

	"github.com/google/uuid"
)

// AccrualSweep advances every funding state to its timestamp. Interest also
// accrues lazily on first touch per asset, so the sweep only puts a bound on
// staleness for assets nobody is touching.
type AccrualSweep struct {
	SweepSeq  int64
	Timestamp int64
}

func (a *AccrualSweep) IdempotencyKey() string {
	return fmt.Sprintf("sweep:%d", a.SweepSeq)
}

func (a *AccrualSweep) EventType() EventType {
	return EventTypeAccrualSweep
}

func (a *AccrualSweep) Account() *uuid.UUID {
	return nil
}

func (a *AccrualSweep) SourceSequence() int64 {
	return a.SweepSeq
}

func (a *AccrualSweep) UnixTime() int64 {
	return a.Timestamp
}
