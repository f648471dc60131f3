package main

import (
	"MarginLedger/internal/asset"
	"MarginLedger/internal/core"
	"MarginLedger/internal/oracle"
	"MarginLedger/internal/persistence"
	"MarginLedger/internal/pool"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// snapshotToData converts the engine's typed snapshot into the wire form
// persisted as JSONB: uint256 words become hex strings, decimals become
// decimal strings.
func snapshotToData(snap *core.SnapshotState) *persistence.SnapshotData {
	data := &persistence.SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}

	data.Assets = make([]persistence.AssetSnap, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		as := persistence.AssetSnap{
			Code:             a.Code,
			Symbol:           a.Config.Symbol,
			CollateralFactor: a.Config.CollateralFactor.String(),
			BorrowFactor:     a.Config.BorrowFactor.String(),
			CollateralOK:     a.Config.CollateralOK,
			BorrowOK:         a.Config.BorrowOK,
		}
		if a.Funding != nil {
			as.Funding = &persistence.FundingSnap{
				CollateralAsset:  a.Funding.Collateral.TotalAsset,
				CollateralShares: a.Funding.Collateral.TotalShares,
				DebtAsset:        a.Funding.Debt.TotalAsset,
				DebtShares:       a.Funding.Debt.TotalShares,
				OptimalUtil:      a.Funding.Curve.OptimalUtilization.String(),
				PlateauRate:      a.Funding.Curve.PlateauRate.String(),
				MaxRate:          a.Funding.Curve.MaxRate.String(),
				LastUpdate:       a.Funding.LastUpdate,
				Rate:             a.Funding.Rate.String(),
			}
		}
		data.Assets = append(data.Assets, as)
	}

	data.Accounts = make([]persistence.AccountSnap, 0, len(snap.Accounts))
	for _, acct := range snap.Accounts {
		data.Accounts = append(data.Accounts, persistence.AccountSnap{
			Account:  acct.Account.String(),
			Assets:   wordToHex(acct.Assets),
			Borrows:  wordToHex(acct.Borrows),
			Strategy: wordToHex(acct.Strategy),
			Shares:   acct.Shares,
			NFTs:     acct.NFTs,
		})
	}

	data.Prices = persistence.PriceSnap{
		Prices: decimalMapToStrings(snap.Prices.Prices),
		Floors: decimalMapToStrings(snap.Prices.Floors),
	}
	if len(snap.Prices.TokenOverrides) > 0 {
		data.Prices.Tokens = make(map[uint16]map[uint64]string, len(snap.Prices.TokenOverrides))
		for code, tokens := range snap.Prices.TokenOverrides {
			m := make(map[uint64]string, len(tokens))
			for id, price := range tokens {
				m[id] = price.String()
			}
			data.Prices.Tokens[code] = m
		}
	}

	return data
}

// dataToSnapshot is the inverse of snapshotToData, used on restart.
func dataToSnapshot(data *persistence.SnapshotData) (*core.SnapshotState, error) {
	snap := &core.SnapshotState{
		Sequence:        data.Sequence,
		SequenceState:   data.SequenceState,
		IdempotencyKeys: data.IdempotencyKeys,
	}
	if len(data.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot state hash has %d bytes, want 32", len(data.StateHash))
	}
	copy(snap.StateHash[:], data.StateHash)

	snap.Assets = make([]core.AssetSnapshot, 0, len(data.Assets))
	for _, a := range data.Assets {
		cf, err := decimal.NewFromString(a.CollateralFactor)
		if err != nil {
			return nil, fmt.Errorf("asset %d collateral factor: %w", a.Code, err)
		}
		bf, err := decimal.NewFromString(a.BorrowFactor)
		if err != nil {
			return nil, fmt.Errorf("asset %d borrow factor: %w", a.Code, err)
		}
		as := core.AssetSnapshot{
			Code: a.Code,
			Config: asset.Config{
				Symbol:           a.Symbol,
				CollateralFactor: cf,
				BorrowFactor:     bf,
				CollateralOK:     a.CollateralOK,
				BorrowOK:         a.BorrowOK,
			},
		}
		if a.Funding != nil {
			fs, err := fundingFromSnap(a.Code, a.Funding)
			if err != nil {
				return nil, err
			}
			as.Funding = fs
		}
		snap.Assets = append(snap.Assets, as)
	}

	snap.Accounts = make([]core.AccountSnapshot, 0, len(data.Accounts))
	for _, acct := range data.Accounts {
		id, err := uuid.Parse(acct.Account)
		if err != nil {
			return nil, fmt.Errorf("account id %q: %w", acct.Account, err)
		}
		assets, err := hexToWord(acct.Assets)
		if err != nil {
			return nil, fmt.Errorf("account %s assets word: %w", acct.Account, err)
		}
		borrows, err := hexToWord(acct.Borrows)
		if err != nil {
			return nil, fmt.Errorf("account %s borrows word: %w", acct.Account, err)
		}
		strategy, err := hexToWord(acct.Strategy)
		if err != nil {
			return nil, fmt.Errorf("account %s strategy word: %w", acct.Account, err)
		}
		snap.Accounts = append(snap.Accounts, core.AccountSnapshot{
			Account:  id,
			Assets:   assets,
			Borrows:  borrows,
			Strategy: strategy,
			Shares:   acct.Shares,
			NFTs:     acct.NFTs,
		})
	}

	prices, err := stringMapToDecimals(data.Prices.Prices)
	if err != nil {
		return nil, fmt.Errorf("snapshot prices: %w", err)
	}
	floors, err := stringMapToDecimals(data.Prices.Floors)
	if err != nil {
		return nil, fmt.Errorf("snapshot floors: %w", err)
	}
	snap.Prices = oracle.PriceDump{Prices: prices, Floors: floors}
	if len(data.Prices.Tokens) > 0 {
		snap.Prices.TokenOverrides = make(map[uint16]map[uint64]decimal.Decimal, len(data.Prices.Tokens))
		for code, tokens := range data.Prices.Tokens {
			m := make(map[uint64]decimal.Decimal, len(tokens))
			for id, s := range tokens {
				d, perr := decimal.NewFromString(s)
				if perr != nil {
					return nil, fmt.Errorf("token override %d/%d: %w", code, id, perr)
				}
				m[id] = d
			}
			snap.Prices.TokenOverrides[code] = m
		}
	}

	return snap, nil
}

func fundingFromSnap(code uint16, f *persistence.FundingSnap) (*pool.FundingState, error) {
	optimal, err := decimal.NewFromString(f.OptimalUtil)
	if err != nil {
		return nil, fmt.Errorf("asset %d optimal utilization: %w", code, err)
	}
	plateau, err := decimal.NewFromString(f.PlateauRate)
	if err != nil {
		return nil, fmt.Errorf("asset %d plateau rate: %w", code, err)
	}
	maxRate, err := decimal.NewFromString(f.MaxRate)
	if err != nil {
		return nil, fmt.Errorf("asset %d max rate: %w", code, err)
	}
	rate, err := decimal.NewFromString(f.Rate)
	if err != nil {
		return nil, fmt.Errorf("asset %d rate: %w", code, err)
	}
	return &pool.FundingState{
		Collateral: pool.SharedPool{TotalAsset: f.CollateralAsset, TotalShares: f.CollateralShares},
		Debt:       pool.SharedPool{TotalAsset: f.DebtAsset, TotalShares: f.DebtShares},
		Curve: pool.RateCurve{
			OptimalUtilization: optimal,
			PlateauRate:        plateau,
			MaxRate:            maxRate,
		},
		LastUpdate: f.LastUpdate,
		Rate:       rate,
	}, nil
}

func wordToHex(word [32]byte) string {
	return new(uint256.Int).SetBytes(word[:]).Hex()
}

func hexToWord(s string) ([32]byte, error) {
	var out [32]byte
	if s == "" {
		return out, nil
	}
	v, err := uint256.FromHex(s)
	if err != nil {
		return out, err
	}
	out = v.Bytes32()
	return out, nil
}

func decimalMapToStrings(in map[uint16]decimal.Decimal) map[uint16]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[uint16]string, len(in))
	for k, v := range in {
		out[k] = v.String()
	}
	return out
}

func stringMapToDecimals(in map[uint16]string) (map[uint16]decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[uint16]decimal.Decimal, len(in))
	for k, s := range in {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}
