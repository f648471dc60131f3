package projection

import (
	"MarginLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// ProjectionOutput mirrors the data projection workers need. The
// orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Account   *string
	Entries   []LedgerEntry
	Accruals  []AccrualHistoryEntry
	Timestamp int64
}

// LedgerEntry is one signed balance delta. The pool is the counter-side,
// so no second leg exists per entry.
type LedgerEntry struct {
	Account   string
	AssetCode uint16
	Delta     int64
	Kind      string
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	logger    zerolog.Logger
	lastSeq   int64
	accruals  *AccrualHistoryProjection
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		logger:    observability.NewLogger("projection"),
		accruals:  NewAccrualHistoryProjection(10000),
	}
}

// RecentAccruals returns the newest in-memory accrual records for one asset.
// The ring only covers accruals seen since this process started; the full
// history lives in projections.accrual_history.
func (pw *ProjectionWorker) RecentAccruals(assetCode uint16, limit int) []AccrualHistoryEntry {
	return pw.accruals.QueryByAsset(assetCode, limit)
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				pw.logger.Warn().
					Int64("sequence", output.Sequence).
					Err(err).
					Msg("projection update failed")
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range output.Entries {
		if err := pw.updateBalanceProjection(ctx, tx, output.Sequence, e); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if e.Kind == "liquidation_swap" {
			if err := pw.recordLiquidationLeg(ctx, tx, output, e); err != nil {
				return fmt.Errorf("liquidation history: %w", err)
			}
		}
	}

	for _, a := range output.Accruals {
		if err := pw.recordAccrual(ctx, tx, a); err != nil {
			return fmt.Errorf("accrual history: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	for _, a := range output.Accruals {
		pw.accruals.AddEntry(a)
	}
	return nil
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, seq int64, e LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, asset_code, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, asset_code)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, e.Account, e.AssetCode, e.Delta, seq)
	return err
}

func (pw *ProjectionWorker) recordAccrual(ctx context.Context, tx *sql.Tx, a AccrualHistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.accrual_history (sequence, asset_code, rate, utilization, interest, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`, a.Sequence, a.AssetCode, a.Rate.String(), a.Utilization.String(), a.Interest, a.Timestamp)
	return err
}

func (pw *ProjectionWorker) recordLiquidationLeg(ctx context.Context, tx *sql.Tx, output ProjectionOutput, e LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history (sequence, account, asset_code, delta, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, output.Sequence, e.Account, e.AssetCode, e.Delta, output.Timestamp)
	return err
}

// RebuildProjections rebuilds the balance projection from the entries log.
// Single-leg entries make this one aggregation.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.accrual_history`,
		`TRUNCATE projections.liquidation_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account, asset_code, balance, last_sequence)
		SELECT
			account,
			asset_code,
			SUM(delta)    AS balance,
			MAX(sequence) AS last_sequence
		FROM margin_ledger.entries
		GROUP BY account, asset_code
	`)
	if err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	// Liquidation legs are recoverable from the entries log. Accrual history
	// is not: the rate and utilization behind each accrual are not in the
	// entries, so that table refills from live traffic only.
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.liquidation_history (sequence, account, asset_code, delta, timestamp)
		SELECT sequence, account, asset_code, delta, timestamp
		FROM margin_ledger.entries
		WHERE kind = 'liquidation_swap'
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("rebuild liquidation history: %w", err)
	}

	logger := observability.NewLogger("projection")
	logger.Info().Msg("projection rebuild complete")
	return nil
}
