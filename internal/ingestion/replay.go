package ingestion

import (
	"encoding/json"
	"fmt"

	"MarginLedger/internal/event"
)

// DecodeStoredEvent reconstructs a typed event from an event-log row. The
// payload column holds the engine's own encoding of the typed event, so
// this is the inverse of the persist path, not of the NATS wire format.
func DecodeStoredEvent(eventType string, payload []byte) (event.Event, error) {
	var evt event.Event
	switch eventType {
	case "AssetRegistered":
		evt = &event.AssetRegistered{}
	case "DepositRequested":
		evt = &event.DepositRequested{}
	case "WithdrawalRequested":
		evt = &event.WithdrawalRequested{}
	case "TransferRequested":
		evt = &event.TransferRequested{}
	case "NFTDepositRequested":
		evt = &event.NFTDepositRequested{}
	case "NFTWithdrawalRequested":
		evt = &event.NFTWithdrawalRequested{}
	case "PriceUpdate":
		evt = &event.PriceUpdate{}
	case "RateCurveUpdate":
		evt = &event.RateCurveUpdate{}
	case "RiskParamUpdate":
		evt = &event.RiskParamUpdate{}
	case "StrategyUpdate":
		evt = &event.StrategyUpdate{}
	case "FreezeUpdate":
		evt = &event.FreezeUpdate{}
	case "AccrualSweep":
		evt = &event.AccrualSweep{}
	case "LiquidationRequested":
		evt = &event.LiquidationRequested{}
	case "BatchRequested":
		evt = &event.BatchRequested{}
	default:
		return nil, fmt.Errorf("ingestion: unknown stored event type %q", eventType)
	}

	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("ingestion: decode stored %s: %w", eventType, err)
	}
	return evt, nil
}
