package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeAssetRegistered
	EventTypeDepositRequested
	EventTypeWithdrawalRequested
	EventTypeTransferRequested
	EventTypeNFTDepositRequested
	EventTypeNFTWithdrawalRequested
	EventTypePriceUpdate
	EventTypeRateCurveUpdate
	EventTypeRiskParamUpdate
	EventTypeStrategyUpdate
	EventTypeFreezeUpdate
	EventTypeAccrualSweep
	EventTypeLiquidationRequested
	EventTypeBatchRequested
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Account context (nil for global events: prices, governance, sweeps)
	Account *uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Account returns the account context (nil for global events)
	Account() *uuid.UUID

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// UnixTime returns the versioned input timestamp in epoch seconds.
	// The core never reads the wall clock.
	UnixTime() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeAssetRegistered:
		return "AssetRegistered"
	case EventTypeDepositRequested:
		return "DepositRequested"
	case EventTypeWithdrawalRequested:
		return "WithdrawalRequested"
	case EventTypeTransferRequested:
		return "TransferRequested"
	case EventTypeNFTDepositRequested:
		return "NFTDepositRequested"
	case EventTypeNFTWithdrawalRequested:
		return "NFTWithdrawalRequested"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeRateCurveUpdate:
		return "RateCurveUpdate"
	case EventTypeRiskParamUpdate:
		return "RiskParamUpdate"
	case EventTypeStrategyUpdate:
		return "StrategyUpdate"
	case EventTypeFreezeUpdate:
		return "FreezeUpdate"
	case EventTypeAccrualSweep:
		return "AccrualSweep"
	case EventTypeLiquidationRequested:
		return "LiquidationRequested"
	case EventTypeBatchRequested:
		return "BatchRequested"
	default:
		return "Unknown"
	}
}
