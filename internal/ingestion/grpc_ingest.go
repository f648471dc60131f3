package ingestion

import (
	"context"
	"fmt"
	"time"

	"MarginLedger/internal/event"

	"github.com/google/uuid"
)

// GRPCIngestService provides admin/manual event injection via gRPC. It is
// for admin operations and manual event injection, not for high-throughput
// ingestion (use NATS for that).
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

func (s *GRPCIngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectDeposit manually injects a DepositRequested event.
func (s *GRPCIngestService) InjectDeposit(
	ctx context.Context,
	accountID uuid.UUID,
	asset string,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	return s.send(ctx, &event.DepositRequested{
		DepositID: uuid.New(),
		AccountID: accountID,
		Asset:     asset,
		Amount:    amount,
		Sequence:  time.Now().UnixMicro(), // Admin-injected: use timestamp as sequence
		Timestamp: time.Now().Unix(),
	})
}

// InjectWithdrawal manually injects a WithdrawalRequested event.
func (s *GRPCIngestService) InjectWithdrawal(
	ctx context.Context,
	accountID uuid.UUID,
	asset string,
	amount int64,
) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	return s.send(ctx, &event.WithdrawalRequested{
		WithdrawalID: uuid.New(),
		AccountID:    accountID,
		Asset:        asset,
		Amount:       amount,
		Sequence:     time.Now().UnixMicro(),
		Timestamp:    time.Now().Unix(),
	})
}

// InjectBatch manually injects a BatchRequested event applying the given
// balance operations atomically.
func (s *GRPCIngestService) InjectBatch(ctx context.Context, ops []event.BatchOp) error {
	if len(ops) == 0 {
		return fmt.Errorf("batch must contain at least one operation")
	}
	for i, op := range ops {
		if op.Amount <= 0 {
			return fmt.Errorf("ops[%d]: amount must be positive", i)
		}
		switch op.Kind {
		case event.BatchOpDeposit, event.BatchOpWithdrawal, event.BatchOpTransfer:
		default:
			return fmt.Errorf("ops[%d]: unknown kind %q", i, op.Kind)
		}
	}

	return s.send(ctx, &event.BatchRequested{
		BatchID:   uuid.New(),
		Ops:       ops,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().Unix(),
	})
}

// InjectPrice manually injects a PriceUpdate event.
func (s *GRPCIngestService) InjectPrice(
	ctx context.Context,
	asset string,
	price int64,
	priceSequence int64,
) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive")
	}

	return s.send(ctx, &event.PriceUpdate{
		Asset:          asset,
		Price:          price,
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().Unix(),
	})
}

// InjectAccrualSweep manually injects an AccrualSweep event.
func (s *GRPCIngestService) InjectAccrualSweep(ctx context.Context, sweepSeq int64) error {
	return s.send(ctx, &event.AccrualSweep{
		SweepSeq:  sweepSeq,
		Timestamp: time.Now().Unix(),
	})
}

// InjectLiquidation manually injects a LiquidationRequested event.
func (s *GRPCIngestService) InjectLiquidation(
	ctx context.Context,
	accountID uuid.UUID,
) error {
	return s.send(ctx, &event.LiquidationRequested{
		RequestID: uuid.New(),
		AccountID: accountID,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().Unix(),
	})
}

// InjectFreeze manually injects a FreezeUpdate event.
func (s *GRPCIngestService) InjectFreeze(
	ctx context.Context,
	accountID uuid.UUID,
	frozen bool,
) error {
	return s.send(ctx, &event.FreezeUpdate{
		UpdateID:  uuid.New(),
		AccountID: accountID,
		Frozen:    frozen,
		Sequence:  time.Now().UnixMicro(),
		Timestamp: time.Now().Unix(),
	})
}
