package query_test

import (
	"sync"
	"testing"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/pool"
	"MarginLedger/internal/query"
	"MarginLedger/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func queryFixture(t *testing.T) (*state.SystemState, *query.StateQuery) {
	t.Helper()
	st := state.NewSystemState()
	_, err := st.RegisterAsset(state.AssetParams{
		Symbol:           "USD",
		Class:            asset.Fungible,
		CollateralOK:     true,
		BorrowOK:         true,
		CollateralFactor: decimal.NewFromInt(1),
		BorrowFactor:     decimal.NewFromInt(1),
		Curve: pool.RateCurve{
			OptimalUtilization: decimal.RequireFromString("0.8"),
			PlateauRate:        decimal.RequireFromString("0.0000001"),
			MaxRate:            decimal.RequireFromString("0.000001"),
		},
	}, 0)
	require.NoError(t, err)
	require.NoError(t, st.SetPrice("USD", 1_000_000, nil))

	var mu sync.Mutex
	return st, query.NewStateQuery(&mu, st, func() int64 { return 7 })
}

func TestGetSolvency(t *testing.T) {
	st, sq := queryFixture(t)

	acct := uuid.New()
	usd, err := st.ResolveSymbol("USD")
	require.NoError(t, err)
	_, err = st.Book.UpdateBalance(usd.Index, acct, 1_000_000, 1, nil)
	require.NoError(t, err)

	resp, err := sq.GetSolvency(acct)
	require.NoError(t, err)
	require.True(t, resp.Solvent)
	require.False(t, resp.Liquidating)
	require.Equal(t, int64(7), resp.AsOfSequence)
}

func TestGetSolvencyFailsOnUnpricedHolding(t *testing.T) {
	st, sq := queryFixture(t)
	_, err := st.RegisterAsset(state.AssetParams{
		Symbol:           "ETH",
		Class:            asset.Fungible,
		CollateralOK:     true,
		BorrowOK:         true,
		CollateralFactor: decimal.NewFromInt(1),
		BorrowFactor:     decimal.NewFromInt(1),
		Curve: pool.RateCurve{
			OptimalUtilization: decimal.RequireFromString("0.8"),
			PlateauRate:        decimal.RequireFromString("0.0000001"),
			MaxRate:            decimal.RequireFromString("0.000001"),
		},
	}, 0)
	require.NoError(t, err)

	acct := uuid.New()
	eth, err := st.ResolveSymbol("ETH")
	require.NoError(t, err)
	_, err = st.Book.UpdateBalance(eth.Index, acct, 500_000, 1, nil)
	require.NoError(t, err)

	_, err = sq.GetSolvency(acct)
	require.Error(t, err)
}

func TestGetAssetFunding(t *testing.T) {
	st, sq := queryFixture(t)

	usd, err := st.ResolveSymbol("USD")
	require.NoError(t, err)
	lender := uuid.New()
	borrower := uuid.New()
	_, err = st.Book.UpdateBalance(usd.Index, lender, 10_000_000, 1, nil)
	require.NoError(t, err)
	_, err = st.Book.UpdateBalance(usd.Index, borrower, -4_000_000, 1, nil)
	require.NoError(t, err)

	resp, err := sq.GetAssetFunding("USD")
	require.NoError(t, err)
	require.Equal(t, "USD", resp.Symbol)
	require.Equal(t, int64(10_000_000), resp.PoolCollateral)
	require.Equal(t, int64(4_000_000), resp.PoolDebt)
	require.Equal(t, "0.4", resp.Utilization)
	require.Equal(t, int64(7), resp.AsOfSequence)

	// Numeric codes resolve too.
	byCode, err := sq.GetAssetFunding("0")
	require.NoError(t, err)
	require.Equal(t, resp.Symbol, byCode.Symbol)
}

func TestGetAssetFundingRejectsUnknownAndNonFungible(t *testing.T) {
	st, sq := queryFixture(t)
	_, err := sq.GetAssetFunding("DOGE")
	require.Error(t, err)

	_, err = st.RegisterAsset(state.AssetParams{
		Symbol:           "PUNK",
		Class:            asset.NonFungible,
		CollateralOK:     true,
		CollateralFactor: decimal.RequireFromString("0.5"),
	}, 0)
	require.NoError(t, err)

	_, err = sq.GetAssetFunding("PUNK")
	require.Error(t, err)
}

func TestResolveAsset(t *testing.T) {
	_, sq := queryFixture(t)

	code, err := sq.ResolveAsset("USD")
	require.NoError(t, err)
	require.Equal(t, uint16(0), code)

	code, err = sq.ResolveAsset("0")
	require.NoError(t, err)
	require.Equal(t, uint16(0), code)

	_, err = sq.ResolveAsset("bogus")
	require.Error(t, err)
}
