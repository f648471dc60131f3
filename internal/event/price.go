package event

import (
	"fmt"

	"github.com/google/uuid"
)

// PriceUpdate carries one oracle price tick. For a non-fungible asset the
// price is the collection floor; a non-nil TokenID overrides the floor for
// that single token.
type PriceUpdate struct {
	Asset          string
	Price          int64 // Fixed-point: price scale
	TokenID        *uint64
	PriceSequence  int64 // Monotonic per asset, gaps tolerated
	PriceTimestamp int64 // Epoch seconds (versioned input)
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.Asset, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType {
	return EventTypePriceUpdate
}

func (p *PriceUpdate) Account() *uuid.UUID {
	return nil // Global event
}

func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}

func (p *PriceUpdate) UnixTime() int64 {
	return p.PriceTimestamp
}
