package ingestion

import (
	"encoding/json"
	"fmt"

	"MarginLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core; the core never sees JSON.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "AssetRegistered":
		return parseAssetRegistered(raw.Data)
	case "DepositRequested":
		return parseDeposit(raw.Data)
	case "WithdrawalRequested":
		return parseWithdrawal(raw.Data)
	case "TransferRequested":
		return parseTransfer(raw.Data)
	case "BatchRequested":
		return parseBatch(raw.Data)
	case "NFTDepositRequested":
		return parseNFTDeposit(raw.Data)
	case "NFTWithdrawalRequested":
		return parseNFTWithdrawal(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "RateCurveUpdate":
		return parseRateCurveUpdate(raw.Data)
	case "RiskParamUpdate":
		return parseRiskParamUpdate(raw.Data)
	case "StrategyUpdate":
		return parseStrategyUpdate(raw.Data)
	case "FreezeUpdate":
		return parseFreezeUpdate(raw.Data)
	case "AccrualSweep":
		return parseAccrualSweep(raw.Data)
	case "LiquidationRequested":
		return parseLiquidationRequested(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Timestamps are
// epoch seconds: time is a versioned input, never read from the wall clock.

type assetRegisteredJSON struct {
	Symbol           string `json:"symbol"`
	NonFungible      bool   `json:"non_fungible"`
	CollateralOK     bool   `json:"collateral_ok"`
	BorrowOK         bool   `json:"borrow_ok"`
	CollateralFactor int64  `json:"collateral_factor"`
	BorrowFactor     int64  `json:"borrow_factor"`
	OptimalUtil      int64  `json:"optimal_util"`
	PlateauRate      int64  `json:"plateau_rate"`
	MaxRate          int64  `json:"max_rate"`
	Sequence         int64  `json:"sequence"`
	Timestamp        int64  `json:"timestamp"`
}

func parseAssetRegistered(data []byte) (*event.AssetRegistered, error) {
	var j assetRegisteredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AssetRegistered: %w", err)
	}
	if j.Symbol == "" {
		return nil, fmt.Errorf("parse AssetRegistered: empty symbol")
	}
	return &event.AssetRegistered{
		Symbol:           j.Symbol,
		NonFungible:      j.NonFungible,
		CollateralOK:     j.CollateralOK,
		BorrowOK:         j.BorrowOK,
		CollateralFactor: j.CollateralFactor,
		BorrowFactor:     j.BorrowFactor,
		OptimalUtil:      j.OptimalUtil,
		PlateauRate:      j.PlateauRate,
		MaxRate:          j.MaxRate,
		Sequence:         j.Sequence,
		Timestamp:        j.Timestamp,
	}, nil
}

type depositJSON struct {
	DepositID string `json:"deposit_id"`
	AccountID string `json:"account_id"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseDeposit(data []byte) (*event.DepositRequested, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositRequested: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.DepositRequested{
		DepositID: depositID,
		AccountID: accountID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type withdrawalJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	AccountID    string `json:"account_id"`
	Asset        string `json:"asset"`
	Amount       int64  `json:"amount"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseWithdrawal(data []byte) (*event.WithdrawalRequested, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalRequested: %w", err)
	}
	withdrawalID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.WithdrawalRequested{
		WithdrawalID: withdrawalID,
		AccountID:    accountID,
		Asset:        j.Asset,
		Amount:       j.Amount,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
	}, nil
}

type transferJSON struct {
	TransferID  string `json:"transfer_id"`
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	Timestamp   int64  `json:"timestamp"`
}

func parseTransfer(data []byte) (*event.TransferRequested, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TransferRequested: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	fromAccount, err := uuid.Parse(j.FromAccount)
	if err != nil {
		return nil, fmt.Errorf("parse from_account: %w", err)
	}
	toAccount, err := uuid.Parse(j.ToAccount)
	if err != nil {
		return nil, fmt.Errorf("parse to_account: %w", err)
	}
	return &event.TransferRequested{
		TransferID:  transferID,
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Asset:       j.Asset,
		Amount:      j.Amount,
		Sequence:    j.Sequence,
		Timestamp:   j.Timestamp,
	}, nil
}

type batchOpJSON struct {
	Kind      string `json:"kind"`
	Account   string `json:"account"`
	ToAccount string `json:"to_account,omitempty"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"`
}

type batchJSON struct {
	BatchID   string        `json:"batch_id"`
	Ops       []batchOpJSON `json:"ops"`
	Sequence  int64         `json:"sequence"`
	Timestamp int64         `json:"timestamp"`
}

func parseBatch(data []byte) (*event.BatchRequested, error) {
	var j batchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BatchRequested: %w", err)
	}
	batchID, err := uuid.Parse(j.BatchID)
	if err != nil {
		return nil, fmt.Errorf("parse batch_id: %w", err)
	}
	if len(j.Ops) == 0 {
		return nil, fmt.Errorf("parse BatchRequested: empty ops")
	}
	ops := make([]event.BatchOp, 0, len(j.Ops))
	for i, op := range j.Ops {
		account, err := uuid.Parse(op.Account)
		if err != nil {
			return nil, fmt.Errorf("parse ops[%d].account: %w", i, err)
		}
		parsed := event.BatchOp{
			Kind:    op.Kind,
			Account: account,
			Asset:   op.Asset,
			Amount:  op.Amount,
		}
		switch op.Kind {
		case event.BatchOpDeposit, event.BatchOpWithdrawal:
		case event.BatchOpTransfer:
			toAccount, err := uuid.Parse(op.ToAccount)
			if err != nil {
				return nil, fmt.Errorf("parse ops[%d].to_account: %w", i, err)
			}
			parsed.ToAccount = toAccount
		default:
			return nil, fmt.Errorf("parse ops[%d]: unknown kind %q", i, op.Kind)
		}
		ops = append(ops, parsed)
	}
	return &event.BatchRequested{
		BatchID:   batchID,
		Ops:       ops,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type nftTransferJSON struct {
	DepositID    string `json:"deposit_id,omitempty"`
	WithdrawalID string `json:"withdrawal_id,omitempty"`
	AccountID    string `json:"account_id"`
	Asset        string `json:"asset"`
	TokenID      uint64 `json:"token_id"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseNFTDeposit(data []byte) (*event.NFTDepositRequested, error) {
	var j nftTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NFTDepositRequested: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.NFTDepositRequested{
		DepositID: depositID,
		AccountID: accountID,
		Asset:     j.Asset,
		TokenID:   j.TokenID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

func parseNFTWithdrawal(data []byte) (*event.NFTWithdrawalRequested, error) {
	var j nftTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NFTWithdrawalRequested: %w", err)
	}
	withdrawalID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.NFTWithdrawalRequested{
		WithdrawalID: withdrawalID,
		AccountID:    accountID,
		Asset:        j.Asset,
		TokenID:      j.TokenID,
		Sequence:     j.Sequence,
		Timestamp:    j.Timestamp,
	}, nil
}

type priceUpdateJSON struct {
	Asset          string  `json:"asset"`
	Price          int64   `json:"price"`
	TokenID        *uint64 `json:"token_id,omitempty"`
	PriceSequence  int64   `json:"price_sequence"`
	PriceTimestamp int64   `json:"price_timestamp"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if j.Price < 0 {
		return nil, fmt.Errorf("parse PriceUpdate: negative price %d", j.Price)
	}
	return &event.PriceUpdate{
		Asset:          j.Asset,
		Price:          j.Price,
		TokenID:        j.TokenID,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type rateCurveUpdateJSON struct {
	Asset       string `json:"asset"`
	OptimalUtil int64  `json:"optimal_util"`
	PlateauRate int64  `json:"plateau_rate"`
	MaxRate     int64  `json:"max_rate"`
	Sequence    int64  `json:"sequence"`
	Timestamp   int64  `json:"timestamp"`
}

func parseRateCurveUpdate(data []byte) (*event.RateCurveUpdate, error) {
	var j rateCurveUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RateCurveUpdate: %w", err)
	}
	return &event.RateCurveUpdate{
		Asset:       j.Asset,
		OptimalUtil: j.OptimalUtil,
		PlateauRate: j.PlateauRate,
		MaxRate:     j.MaxRate,
		Sequence:    j.Sequence,
		Timestamp:   j.Timestamp,
	}, nil
}

type riskParamUpdateJSON struct {
	Asset            string `json:"asset"`
	CollateralFactor int64  `json:"collateral_factor"`
	BorrowFactor     int64  `json:"borrow_factor"`
	EffectiveSeq     int64  `json:"effective_seq"`
	Sequence         int64  `json:"sequence"`
	Timestamp        int64  `json:"timestamp"`
}

func parseRiskParamUpdate(data []byte) (*event.RiskParamUpdate, error) {
	var j riskParamUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RiskParamUpdate: %w", err)
	}
	return &event.RiskParamUpdate{
		Asset:            j.Asset,
		CollateralFactor: j.CollateralFactor,
		BorrowFactor:     j.BorrowFactor,
		EffectiveSeq:     j.EffectiveSeq,
		Sequence:         j.Sequence,
		Timestamp:        j.Timestamp,
	}, nil
}

type strategyUpdateJSON struct {
	UpdateID  string `json:"update_id"`
	AccountID string `json:"account_id"`
	Word      string `json:"word"` // 0x-prefixed hex of the 256-bit word
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseStrategyUpdate(data []byte) (*event.StrategyUpdate, error) {
	var j strategyUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StrategyUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.StrategyUpdate{
		UpdateID:  updateID,
		AccountID: accountID,
		Word:      j.Word,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type freezeUpdateJSON struct {
	UpdateID  string `json:"update_id"`
	AccountID string `json:"account_id"`
	Frozen    bool   `json:"frozen"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseFreezeUpdate(data []byte) (*event.FreezeUpdate, error) {
	var j freezeUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FreezeUpdate: %w", err)
	}
	updateID, err := uuid.Parse(j.UpdateID)
	if err != nil {
		return nil, fmt.Errorf("parse update_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.FreezeUpdate{
		UpdateID:  updateID,
		AccountID: accountID,
		Frozen:    j.Frozen,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}

type accrualSweepJSON struct {
	SweepSeq  int64 `json:"sweep_seq"`
	Timestamp int64 `json:"timestamp"`
}

func parseAccrualSweep(data []byte) (*event.AccrualSweep, error) {
	var j accrualSweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AccrualSweep: %w", err)
	}
	return &event.AccrualSweep{
		SweepSeq:  j.SweepSeq,
		Timestamp: j.Timestamp,
	}, nil
}

type liquidationRequestedJSON struct {
	RequestID string `json:"request_id"`
	AccountID string `json:"account_id"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseLiquidationRequested(data []byte) (*event.LiquidationRequested, error) {
	var j liquidationRequestedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidationRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.LiquidationRequested{
		RequestID: requestID,
		AccountID: accountID,
		Sequence:  j.Sequence,
		Timestamp: j.Timestamp,
	}, nil
}
