package core

import (
	"fmt"
)

// SequenceValidator validates source sequences per partition. Account-scoped
// events partition by account id, global events share one partition, and
// price ticks get per-asset partitions with gap tolerance.
// Not thread-safe — only accessed from the single-threaded core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence

	gaps       map[string]int64
	outOfOrder map[string]int64
	priceGaps  map[string]int64
	priceStale map[string]int64
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		gaps:            make(map[string]int64),
		outOfOrder:      make(map[string]int64),
		priceGaps:       make(map[string]int64),
		priceStale:      make(map[string]int64),
	}
}

// ValidateSequence checks source sequence ordering. Duplicates below the
// watermark pass (the idempotency layer already swallowed them); new events
// below or above it are rejected as out-of-order or gapped.
func (sv *SequenceValidator) ValidateSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		sv.outOfOrder[partition]++
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	sv.gaps[partition]++
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// ValidatePriceSequence validates oracle ticks. Gaps are tolerated: a price
// feed may legitimately skip sequences, only monotonicity matters. Returns
// false for a stale or replayed tick; the caller must drop it without
// touching the price table, or an out-of-order tick would overwrite a newer
// price and poison every solvency check downstream.
func (sv *SequenceValidator) ValidatePriceSequence(assetSymbol string, priceSequence int64) bool {
	partition := fmt.Sprintf("price:%s", assetSymbol)
	expected := sv.expectedNextSeq[partition]

	if priceSequence < expected {
		sv.priceStale[assetSymbol]++
		return false
	}
	if priceSequence > expected {
		sv.priceGaps[assetSymbol]++
	}
	sv.expectedNextSeq[partition] = priceSequence + 1
	return true
}

// ExpectedSequence returns the next expected sequence for a partition
func (sv *SequenceValidator) ExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes an expected sequence (snapshot restore)
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// Partitions returns a copy of every partition watermark (snapshots).
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for p, s := range sv.expectedNextSeq {
		out[p] = s
	}
	return out
}

// Gaps returns the gap count for a partition.
func (sv *SequenceValidator) Gaps(partition string) int64 {
	return sv.gaps[partition]
}

// OutOfOrder returns the out-of-order count for a partition.
func (sv *SequenceValidator) OutOfOrder(partition string) int64 {
	return sv.outOfOrder[partition]
}

// PriceGaps returns the tolerated gap count for one asset's price feed.
func (sv *SequenceValidator) PriceGaps(assetSymbol string) int64 {
	return sv.priceGaps[assetSymbol]
}
