package event

import (
	"fmt"

	"github.com/google/uuid"
)

// AssetRegistered adds one asset to the registry and, for fungibles, creates
// its funding state. Factors and rates use the fixed-point factor/rate
// scales.
type AssetRegistered struct {
	Symbol           string
	NonFungible      bool
	CollateralOK     bool
	BorrowOK         bool
	CollateralFactor int64 // Factor scale
	BorrowFactor     int64 // Factor scale
	OptimalUtil      int64 // Factor scale, fungible only
	PlateauRate      int64 // Rate scale (per second), fungible only
	MaxRate          int64 // Rate scale (per second), fungible only
	Sequence         int64
	Timestamp        int64
}

func (a *AssetRegistered) IdempotencyKey() string {
	return fmt.Sprintf("asset:%s", a.Symbol)
}

func (a *AssetRegistered) EventType() EventType {
	return EventTypeAssetRegistered
}

func (a *AssetRegistered) Account() *uuid.UUID {
	return nil
}

func (a *AssetRegistered) SourceSequence() int64 {
	return a.Sequence
}

func (a *AssetRegistered) UnixTime() int64 {
	return a.Timestamp
}

// RiskParamUpdate replaces one asset's collateral and borrow factors. It
// takes effect for every solvency check after this event; open positions are
// not rechecked retroactively.
type RiskParamUpdate struct {
	Asset            string
	CollateralFactor int64 // Factor scale
	BorrowFactor     int64 // Factor scale
	EffectiveSeq     int64 // Sequence at which params take effect
	Sequence         int64
	Timestamp        int64
}

func (r *RiskParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("risk_param:%s:%d", r.Asset, r.EffectiveSeq)
}

func (r *RiskParamUpdate) EventType() EventType {
	return EventTypeRiskParamUpdate
}

func (r *RiskParamUpdate) Account() *uuid.UUID {
	return nil
}

func (r *RiskParamUpdate) SourceSequence() int64 {
	return r.Sequence
}

func (r *RiskParamUpdate) UnixTime() int64 {
	return r.Timestamp
}

// RateCurveUpdate replaces one fungible asset's borrow rate curve. Interest
// accrues under the old curve up to this event's timestamp first.
type RateCurveUpdate struct {
	Asset       string
	OptimalUtil int64 // Factor scale
	PlateauRate int64 // Rate scale (per second)
	MaxRate     int64 // Rate scale (per second)
	Sequence    int64
	Timestamp   int64
}

func (r *RateCurveUpdate) IdempotencyKey() string {
	return fmt.Sprintf("rate_curve:%s:%d", r.Asset, r.Sequence)
}

func (r *RateCurveUpdate) EventType() EventType {
	return EventTypeRateCurveUpdate
}

func (r *RateCurveUpdate) Account() *uuid.UUID {
	return nil
}

func (r *RateCurveUpdate) SourceSequence() int64 {
	return r.Sequence
}

func (r *RateCurveUpdate) UnixTime() int64 {
	return r.Timestamp
}

// FreezeUpdate sets or clears the frozen flag on one account. Frozen
// accounts reject balance mutation but still accrue interest.
type FreezeUpdate struct {
	UpdateID  uuid.UUID
	AccountID uuid.UUID
	Frozen    bool
	Sequence  int64
	Timestamp int64
}

func (f *FreezeUpdate) IdempotencyKey() string {
	return f.UpdateID.String()
}

func (f *FreezeUpdate) EventType() EventType {
	return EventTypeFreezeUpdate
}

func (f *FreezeUpdate) Account() *uuid.UUID {
	return &f.AccountID
}

func (f *FreezeUpdate) SourceSequence() int64 {
	return f.Sequence
}

func (f *FreezeUpdate) UnixTime() int64 {
	return f.Timestamp
}
