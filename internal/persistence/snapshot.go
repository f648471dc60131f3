package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// A snapshot contains the asset registry, pool totals and rate curves, every
// account's membership words and shares, prices, sequence counters, recent
// idempotency keys, and the last state hash.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the wire form of the engine's snapshot. Words are hex
// strings and decimals are their string form so the blob stays readable;
// the orchestrator (cmd/marginledger) bridges to and from the typed state.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Assets          []AssetSnap      `json:"assets"`
	Accounts        []AccountSnap    `json:"accounts"`
	Prices          PriceSnap        `json:"prices"`
	SequenceState   map[string]int64 `json:"sequence_state"` // partition -> next expected seq
	IdempotencyKeys []string         `json:"idempotency_keys"`
	CreatedAt       time.Time        `json:"created_at"`
}

// AssetSnap is one registry row. Funding is nil for non-fungible assets.
type AssetSnap struct {
	Code             uint16       `json:"code"`
	Symbol           string       `json:"symbol"`
	CollateralFactor string       `json:"collateral_factor"`
	BorrowFactor     string       `json:"borrow_factor"`
	CollateralOK     bool         `json:"collateral_ok"`
	BorrowOK         bool         `json:"borrow_ok"`
	Funding          *FundingSnap `json:"funding,omitempty"`
}

// FundingSnap is a serializable pool funding state.
type FundingSnap struct {
	CollateralAsset  int64  `json:"collateral_asset"`
	CollateralShares int64  `json:"collateral_shares"`
	DebtAsset        int64  `json:"debt_asset"`
	DebtShares       int64  `json:"debt_shares"`
	OptimalUtil      string `json:"optimal_utilization"`
	PlateauRate      string `json:"plateau_rate"`
	MaxRate          string `json:"max_rate"`
	LastUpdate       int64  `json:"last_update"`
	Rate             string `json:"rate"`
}

// AccountSnap is one account: membership and strategy words in hex, the
// signed share map, and non-fungible holdings.
type AccountSnap struct {
	Account  string              `json:"account"`
	Assets   string              `json:"assets_word"`
	Borrows  string              `json:"borrows_word"`
	Strategy string              `json:"strategy_word"`
	Shares   map[uint16]int64    `json:"shares,omitempty"`
	NFTs     map[uint16][]uint64 `json:"nfts,omitempty"`
}

// PriceSnap is the serializable price table: per-asset prices, NFT class
// floors, and per-token overrides.
type PriceSnap struct {
	Prices map[uint16]string            `json:"prices,omitempty"`
	Floors map[uint16]string            `json:"floors,omitempty"`
	Tokens map[uint16]map[uint64]string `json:"token_overrides,omitempty"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken
// periodically and verified by replaying events from the snapshot
// sequence forward before being trusted for restarts.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO margin_ledger.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. On warm
// restart the engine restores from it and replays events from
// snapshot.sequence+1.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM margin_ledger.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No snapshot — cold start
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE margin_ledger.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay. Used for
// warm restart (replay from snapshot) and cold restart (replay all).
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, account, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM margin_ledger.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Account,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM margin_ledger.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
