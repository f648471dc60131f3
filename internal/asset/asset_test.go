package asset_test

import (
	"testing"

	"MarginLedger/internal/asset"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCodeRoundTrip(t *testing.T) {
	cases := []asset.ID{
		{Class: asset.Fungible, Index: 0},
		{Class: asset.NonFungible, Index: 0},
		{Class: asset.Fungible, Index: 251},
		{Class: asset.NonFungible, Index: asset.MaxIndex},
	}
	for _, id := range cases {
		got := asset.FromCode(id.Code())
		require.Equal(t, id, got, "code %#x", id.Code())
	}
}

func TestCodeLayout(t *testing.T) {
	// Class in bit 0, index in the upper 15 bits
	require.Equal(t, uint16(0), asset.ID{Class: asset.Fungible, Index: 0}.Code())
	require.Equal(t, uint16(1), asset.ID{Class: asset.NonFungible, Index: 0}.Code())
	require.Equal(t, uint16(6), asset.ID{Class: asset.Fungible, Index: 3}.Code())
	require.Equal(t, uint16(7), asset.ID{Class: asset.NonFungible, Index: 3}.Code())
}

func TestWordRoundTrip(t *testing.T) {
	id := asset.ID{Class: asset.NonFungible, Index: 77}
	got, err := asset.FromWord(id.Word())
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestFromWordRejectsWideWords(t *testing.T) {
	_, err := asset.FromWord(uint256.NewInt(0x10000))
	require.ErrorIs(t, err, asset.ErrInvalidEncoding)

	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	_, err = asset.FromWord(big)
	require.ErrorIs(t, err, asset.ErrInvalidEncoding)
}

func testConfig(symbol string) asset.Config {
	return asset.Config{
		Symbol:           symbol,
		CollateralFactor: decimal.RequireFromString("0.9"),
		BorrowFactor:     decimal.RequireFromString("1.1"),
		CollateralOK:     true,
		BorrowOK:         true,
	}
}

func TestRegistryAssignsSequentialIndexes(t *testing.T) {
	r := asset.NewRegistry()

	usd, err := r.Register(asset.Fungible, testConfig("USD"))
	require.NoError(t, err)
	require.Equal(t, asset.ID{Class: asset.Fungible, Index: 0}, usd)

	eth, err := r.Register(asset.Fungible, testConfig("ETH"))
	require.NoError(t, err)
	require.Equal(t, uint16(1), eth.Index)

	nft := testConfig("PUNK")
	nft.BorrowOK = false
	punk, err := r.Register(asset.NonFungible, nft)
	require.NoError(t, err)
	// Each class numbers from zero independently
	require.Equal(t, asset.ID{Class: asset.NonFungible, Index: 0}, punk)

	require.Equal(t, 2, r.FungibleCount())
	require.Equal(t, 1, r.NonFungibleCount())
}

func TestRegistryRejectsBadConfigs(t *testing.T) {
	r := asset.NewRegistry()

	_, err := r.Register(asset.Fungible, asset.Config{})
	require.Error(t, err, "empty symbol")

	_, err = r.Register(asset.Fungible, testConfig("USD"))
	require.NoError(t, err)
	_, err = r.Register(asset.Fungible, testConfig("USD"))
	require.Error(t, err, "duplicate symbol")

	cfg := testConfig("BAD1")
	cfg.CollateralFactor = decimal.Zero
	_, err = r.Register(asset.Fungible, cfg)
	require.Error(t, err, "collateral-enabled with zero factor")

	cfg = testConfig("BAD2")
	cfg.BorrowFactor = decimal.Zero
	_, err = r.Register(asset.Fungible, cfg)
	require.Error(t, err, "borrow-enabled with zero factor")

	cfg = testConfig("NFT")
	_, err = r.Register(asset.NonFungible, cfg)
	require.Error(t, err, "non-fungible marked borrowable")
}

func TestResolveAndLookup(t *testing.T) {
	r := asset.NewRegistry()
	usd, err := r.Register(asset.Fungible, testConfig("USD"))
	require.NoError(t, err)

	got, err := r.Resolve(usd.Code())
	require.NoError(t, err)
	require.Equal(t, usd, got)

	_, err = r.Resolve(asset.ID{Class: asset.Fungible, Index: 5}.Code())
	require.ErrorIs(t, err, asset.ErrInvalidEncoding)

	id, ok := r.Lookup("USD")
	require.True(t, ok)
	require.Equal(t, usd, id)
	_, ok = r.Lookup("ETH")
	require.False(t, ok)
}

func TestSetRiskFactors(t *testing.T) {
	r := asset.NewRegistry()
	usd, err := r.Register(asset.Fungible, testConfig("USD"))
	require.NoError(t, err)

	require.NoError(t, r.SetRiskFactors(usd, decimal.RequireFromString("0.8"), decimal.RequireFromString("1.2")))
	cfg := r.ConfigOf(usd)
	require.True(t, cfg.CollateralFactor.Equal(decimal.RequireFromString("0.8")))
	require.True(t, cfg.BorrowFactor.Equal(decimal.RequireFromString("1.2")))

	// Role flags stay as registered, and zero factors are rejected for
	// enabled roles
	require.Error(t, r.SetRiskFactors(usd, decimal.Zero, decimal.RequireFromString("1.2")))
	require.Error(t, r.SetRiskFactors(asset.ID{Class: asset.Fungible, Index: 9}, decimal.NewFromInt(1), decimal.NewFromInt(1)))
}
