package state_test

import (
	"testing"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/ledger"
	"MarginLedger/internal/pool"
	"MarginLedger/internal/state"
	"MarginLedger/internal/strategy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// liquidationFixture wires a two-asset system: USD at factor 1/1 and ETH at
// collateral factor 0.8, priced 1 and 2000.
type liquidationFixture struct {
	st    *state.SystemState
	coord *state.LiquidationCoordinator
	usd   asset.ID
	eth   asset.ID
}

func newLiquidationFixture(t *testing.T) *liquidationFixture {
	t.Helper()
	f := &liquidationFixture{st: state.NewSystemState()}
	f.coord = state.NewLiquidationCoordinator(f.st)

	curve := pool.RateCurve{
		OptimalUtilization: decimal.RequireFromString("0.8"),
		PlateauRate:        decimal.Zero,
		MaxRate:            decimal.Zero,
	}

	var err error
	f.usd, err = f.st.RegisterAsset(state.AssetParams{
		Symbol: "USD", Class: asset.Fungible,
		CollateralOK: true, BorrowOK: true,
		CollateralFactor: decimal.NewFromInt(1),
		BorrowFactor:     decimal.NewFromInt(1),
		Curve:            curve,
	}, 0)
	require.NoError(t, err)

	f.eth, err = f.st.RegisterAsset(state.AssetParams{
		Symbol: "ETH", Class: asset.Fungible,
		CollateralOK: true, BorrowOK: true,
		CollateralFactor: decimal.RequireFromString("0.8"),
		BorrowFactor:     decimal.RequireFromString("1.25"),
		Curve:            curve,
	}, 0)
	require.NoError(t, err)

	require.NoError(t, f.st.SetPrice("USD", 1_000_000, nil))
	require.NoError(t, f.st.SetPrice("ETH", 2_000_000_000, nil))

	// A lender backs the usd pool
	_, err = f.st.Book.UpdateBalance(f.usd.Index, uuid.New(), 100_000_000_000, 1, nil)
	require.NoError(t, err)
	return f
}

func (f *liquidationFixture) setStrategy(t *testing.T, acct uuid.UUID) {
	t.Helper()
	word, err := strategy.Encode(&strategy.Strategy{
		Slots: []asset.ID{f.eth, f.usd},
		Ops:   []strategy.Op{{Code: strategy.OpSwapUpTo, From: 0, To: 1}},
	})
	require.NoError(t, err)
	f.st.Book.SetStrategy(acct, word, nil)
}

func TestProcessSolventAccountDoesNothing(t *testing.T) {
	f := newLiquidationFixture(t)
	acct := uuid.New()
	_, err := f.st.Book.UpdateBalance(f.usd.Index, acct, 1_000_000, 1, nil)
	require.NoError(t, err)

	uow := state.NewUnitOfWork(f.st.Book, "liq-1", 10, 100)
	outcome, res, err := f.coord.Process(acct, 100, uow)
	require.NoError(t, err)
	require.Equal(t, state.OutcomeSolvent, outcome)
	require.False(t, res.Bankrupt())
	require.Equal(t, int64(1_000_000), f.st.Book.Amount(f.usd.Index, acct))
}

func TestProcessRejectsReentry(t *testing.T) {
	f := newLiquidationFixture(t)
	acct := uuid.New()
	f.st.Book.SetFlag(acct, ledger.FlagLiquidating, nil)

	uow := state.NewUnitOfWork(f.st.Book, "liq-2", 11, 100)
	_, _, err := f.coord.Process(acct, 100, uow)
	require.Error(t, err)
}

// A marginal deficit inside the rounding tolerance proves recoverable in the
// read-only replay, so nothing executes.
func TestProcessLiquidAccountSkipsExecution(t *testing.T) {
	f := newLiquidationFixture(t)
	acct := uuid.New()

	_, err := f.st.Book.UpdateBalance(f.eth.Index, acct, 1_000_000, 1, nil)
	require.NoError(t, err)
	// Collateral values to 1600 risk-adjusted; owe a hair more
	_, err = f.st.Book.UpdateBalance(f.usd.Index, acct, -1_600_000_005, 1, nil)
	require.NoError(t, err)
	f.setStrategy(t, acct)

	uow := state.NewUnitOfWork(f.st.Book, "liq-3", 12, 100)
	outcome, _, err := f.coord.Process(acct, 100, uow)
	require.NoError(t, err)
	require.Equal(t, state.OutcomeLiquid, outcome)

	// Positions untouched
	require.Equal(t, int64(1_000_000), f.st.Book.Amount(f.eth.Index, acct))
	require.True(t, f.st.Book.HasDebt(acct))
}

func TestProcessExecutesStrategy(t *testing.T) {
	f := newLiquidationFixture(t)
	acct := uuid.New()

	_, err := f.st.Book.UpdateBalance(f.eth.Index, acct, 1_000_000, 1, nil)
	require.NoError(t, err)
	_, err = f.st.Book.UpdateBalance(f.usd.Index, acct, -1_700_000_000, 1, nil)
	require.NoError(t, err)
	f.setStrategy(t, acct)

	uow := state.NewUnitOfWork(f.st.Book, "liq-4", 13, 100)
	outcome, res, err := f.coord.Process(acct, 100, uow)
	require.NoError(t, err)
	require.Equal(t, state.OutcomeExecuted, outcome)
	require.False(t, res.Bankrupt())
	uow.Commit()

	// Debt fully repaid, remaining collateral stays
	require.False(t, f.st.Book.HasDebt(acct))
	require.Positive(t, f.st.Book.Amount(f.eth.Index, acct))
	require.False(t, f.st.Book.HasFlag(acct, ledger.FlagLiquidating))

	solvent, err := f.st.Valuer.IsSolvent(acct)
	require.NoError(t, err)
	require.True(t, solvent)
	require.NoError(t, f.st.Validator.ValidateAll())
}

// An execution error mid-strategy must leave no trace after rollback.
func TestProcessRollbackOnFailure(t *testing.T) {
	f := newLiquidationFixture(t)
	acct := uuid.New()

	_, err := f.st.Book.UpdateBalance(f.eth.Index, acct, 1_000_000, 1, nil)
	require.NoError(t, err)
	_, err = f.st.Book.UpdateBalance(f.usd.Index, acct, -1_700_000_000, 1, nil)
	require.NoError(t, err)

	// Strategy tags only the debt asset: the replay cannot prove recovery
	// (uncovered deficit) and execution then fails on the deficit source.
	word, err := strategy.Encode(&strategy.Strategy{
		Slots: []asset.ID{f.usd, f.eth},
		Ops:   []strategy.Op{{Code: strategy.OpSwapAll, From: 0, To: 1}},
	})
	require.NoError(t, err)
	f.st.Book.SetStrategy(acct, word, nil)

	uow := state.NewUnitOfWork(f.st.Book, "liq-5", 14, 100)
	_, _, err = f.coord.Process(acct, 100, uow)
	require.ErrorIs(t, err, strategy.ErrSlotDeficit)
	uow.Rollback()

	require.Equal(t, int64(1_000_000), f.st.Book.Amount(f.eth.Index, acct))
	require.Equal(t, int64(-1_700_000_000), f.st.Book.Amount(f.usd.Index, acct))
	require.False(t, f.st.Book.HasFlag(acct, ledger.FlagLiquidating))
	require.NoError(t, f.st.Validator.ValidateAll())
}
