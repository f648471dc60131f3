package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to projection tables. Responses
// include as_of_sequence (the projection watermark) for freshness
// semantics; live state is served by StateQuery instead.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetProjectedBalances returns every projected balance row for an account.
func (qs *QueryService) GetProjectedBalances(ctx context.Context, account uuid.UUID) ([]BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT asset_code, balance, last_sequence
		FROM projections.balances
		WHERE account = $1
		ORDER BY asset_code
	`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []BalanceResponse
	for rows.Next() {
		var b BalanceResponse
		b.Account = account
		b.AsOfSequence = asOfSeq
		if err := rows.Scan(&b.AssetCode, &b.Balance, &b.LastSequence); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// GetEntryHistory returns ledger entries for an account with cursor-based
// pagination: pass the lowest sequence of the previous page to continue.
func (qs *QueryService) GetEntryHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]EntryHistoryEntry, error) {
	query := `
		SELECT entry_id, batch_id, event_ref, sequence,
		       account, asset_code, delta, kind, timestamp
		FROM margin_ledger.entries
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EntryHistoryEntry
	for rows.Next() {
		var e EntryHistoryEntry
		if err := rows.Scan(
			&e.EntryID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.Account, &e.AssetCode, &e.Delta, &e.Kind, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetLiquidationHistory returns liquidation swap legs for an account,
// newest first.
func (qs *QueryService) GetLiquidationHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
) ([]LiquidationHistoryEntry, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, account, asset_code, delta, timestamp
		FROM projections.liquidation_history
		WHERE account = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LiquidationHistoryEntry
	for rows.Next() {
		var r LiquidationHistoryEntry
		if err := rows.Scan(&r.Sequence, &r.Account, &r.AssetCode, &r.Delta, &r.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain in the event log and cross-checks
// the balance projection against the entries log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	// Hash chain continuity: each event's prev_hash must equal the state
	// hash of the previous sequence.
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM margin_ledger.events e1
		JOIN margin_ledger.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Projection drift: per asset, the projected balance sum must equal
	// the delta sum in the entries log.
	driftRows, err := qs.db.QueryContext(ctx, `
		SELECT COALESCE(p.asset_code, l.asset_code),
		       COALESCE(p.total, 0), COALESCE(l.total, 0)
		FROM (SELECT asset_code, SUM(balance) AS total
		      FROM projections.balances GROUP BY asset_code) p
		FULL OUTER JOIN
		     (SELECT asset_code, SUM(delta) AS total
		      FROM margin_ledger.entries GROUP BY asset_code) l
		ON p.asset_code = l.asset_code
		WHERE COALESCE(p.total, 0) != COALESCE(l.total, 0)
	`)
	if err != nil {
		return nil, err
	}
	defer driftRows.Close()

	for driftRows.Next() {
		var d AssetDrift
		if err := driftRows.Scan(&d.AssetCode, &d.Projected, &d.FromLog); err != nil {
			return nil, err
		}
		report.DriftedAssets = append(report.DriftedAssets, d)
	}
	if err := driftRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.DriftedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
