package strategy

import (
	"errors"
	"fmt"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/ledger"
	fpmath "MarginLedger/internal/math"
	"MarginLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DebtRoundingError is the per-slot tolerance (in base asset units) for
// residual deficit after replay. It absorbs floor-division drift from pool
// round-trips and swap sizing; it is not a risk allowance.
const DebtRoundingError = 10

// ErrUnsupportedRole marks an asset carried in a role (collateral or debt)
// its registration does not permit.
var ErrUnsupportedRole = errors.New("strategy: asset used in unsupported role")

// ErrSlotDeficit marks a swap sourced from a slot still in deficit during
// actual liquidation.
var ErrSlotDeficit = errors.New("strategy: swap source slot in deficit")

// Interpreter evaluates and executes liquidation strategies against the
// ledger. IsLiquid never mutates; Liquidate rewrites the account's real
// positions and must only run after IsLiquid just reported false for the
// same account and word.
type Interpreter struct {
	book     *ledger.Book
	registry *asset.Registry
	swaps    oracle.SwapOracle
	assessor oracle.RiskAssessor
}

func NewInterpreter(book *ledger.Book, registry *asset.Registry, swaps oracle.SwapOracle, assessor oracle.RiskAssessor) *Interpreter {
	return &Interpreter{book: book, registry: registry, swaps: swaps, assessor: assessor}
}

var debtEpsilon = decimal.New(DebtRoundingError, -int32(fpmath.AmountConfig.DecimalPrecision)).Neg()

// IsLiquid decodes the strategy, seeds one risk-adjusted slot value per tag
// from the account's current positions, and replays the operation list
// against the in-memory slot array only. The account is liquid iff every
// final slot value is at least -DebtRoundingError.
//
// Fail-closed conditions reported as "not liquid" rather than errors: a
// MultiSwapAll op, a SwapAll from a slot in deficit, and a borrowed asset no
// slot covers. Role misuse and oracle failures are errors.
func (in *Interpreter) IsLiquid(acct uuid.UUID, word *uint256.Int) (bool, error) {
	s, err := Decode(word)
	if err != nil {
		return false, err
	}
	if s.Empty {
		// The empty strategy is valid only for debt-free accounts; those are
		// trivially liquid.
		return !in.book.HasDebt(acct), nil
	}

	slots, err := in.seedRiskAdjusted(acct, s.Slots)
	if err != nil {
		return false, err
	}
	if !in.coversBorrows(acct, s.Slots) {
		return false, nil
	}

	for _, op := range s.Ops {
		switch op.Code {
		case OpSwapAll:
			v := slots[op.From]
			if v.Sign() < 0 {
				// A slot still in deficit cannot source a swap.
				return false, nil
			}
			if v.Sign() == 0 {
				continue
			}
			rate, err := in.swaps.GetOraclePrice(s.Slots[op.From], s.Slots[op.To])
			if err != nil {
				return false, err
			}
			slots[op.To] = slots[op.To].Add(v.Mul(rate))
			slots[op.From] = decimal.Zero
		case OpSwapUpTo:
			target := slots[op.To]
			if target.Sign() >= 0 {
				continue // nothing to cover
			}
			source := slots[op.From]
			if source.Sign() <= 0 {
				continue
			}
			rate, err := in.swaps.GetOraclePrice(s.Slots[op.From], s.Slots[op.To])
			if err != nil {
				return false, err
			}
			if rate.Sign() == 0 {
				return false, fmt.Errorf("strategy: zero oracle rate %s -> %s", s.Slots[op.From], s.Slots[op.To])
			}
			// Prefer fully covering the target's deficit over preserving the
			// source.
			need := target.Neg().Div(rate)
			if source.GreaterThanOrEqual(need) {
				slots[op.From] = source.Sub(need)
				slots[op.To] = decimal.Zero
			} else {
				slots[op.To] = target.Add(source.Mul(rate))
				slots[op.From] = decimal.Zero
			}
		case OpMultiSwapAll:
			// Reserved for basket-redeemable assets; fail closed.
			return false, nil
		}
	}

	for _, v := range slots {
		if v.LessThan(debtEpsilon) {
			return false, nil
		}
	}
	return true, nil
}

// seedRiskAdjusted builds the slot array for the read-only check: current
// amounts tightened (collateral) or enlarged (debt) by the risk assessor.
func (in *Interpreter) seedRiskAdjusted(acct uuid.UUID, tags []asset.ID) ([]decimal.Decimal, error) {
	slots := make([]decimal.Decimal, len(tags))
	for i, id := range tags {
		if !in.registry.Known(id) {
			return nil, fmt.Errorf("%w: slot tag %s", asset.ErrInvalidEncoding, id)
		}
		cfg := in.registry.ConfigOf(id)

		var amount decimal.Decimal
		switch id.Class {
		case asset.Fungible:
			units := in.book.Amount(id.Index, acct)
			amount = fpmath.DecimalFromUnits(units, fpmath.AmountConfig)
		case asset.NonFungible:
			amount = decimal.NewFromInt(int64(len(in.book.NFTs(id.Index, acct))))
		}

		switch {
		case amount.Sign() > 0:
			if !cfg.CollateralOK {
				return nil, fmt.Errorf("%w: %s cannot serve as collateral", ErrUnsupportedRole, id)
			}
			slots[i] = in.assessor.AsCollateral(id, amount)
		case amount.Sign() < 0:
			if !cfg.BorrowOK {
				return nil, fmt.Errorf("%w: %s cannot carry debt", ErrUnsupportedRole, id)
			}
			slots[i] = in.assessor.AsDebt(id, amount.Neg()).Neg()
		}
	}
	return slots, nil
}

// coversBorrows reports whether every borrowed asset of the account is
// tagged by some slot. Uncovered debt cannot be proven liquid.
func (in *Interpreter) coversBorrows(acct uuid.UUID, tags []asset.ID) bool {
	tagged := make(map[uint16]struct{}, len(tags))
	for _, id := range tags {
		if id.Class == asset.Fungible {
			tagged[id.Index] = struct{}{}
		}
	}
	covered := true
	in.book.ForEachBorrow(acct, func(index uint16) bool {
		if _, ok := tagged[index]; !ok {
			covered = false
			return false
		}
		return true
	})
	return covered
}

// ResidualDebt reports debt a completed liquidation could not remove.
type ResidualDebt struct {
	Asset  asset.ID
	Amount int64 // positive magnitude in asset units
}

// Result summarizes an executed liquidation.
type Result struct {
	Residual []ResidualDebt
}

// Bankrupt reports whether debt remained after the full strategy ran.
func (r Result) Bankrupt() bool {
	return len(r.Residual) > 0
}

// Liquidate executes the strategy against the account's real positions.
// Slots carry actual (unadjusted) amounts, every swap routes through the
// market execution path at whatever rate it fills, and final slot values are
// written back into the pools. The caller wraps this in a batch: any error
// rolls back all mutations recorded in u.
//
// There is no mid-flight solvency re-check; callers must treat
// check-then-liquidate as one atomic unit. Residual debt is reported, not
// recovered.
func (in *Interpreter) Liquidate(acct uuid.UUID, word *uint256.Int, now int64, u *ledger.Undo) (Result, error) {
	s, err := Decode(word)
	if err != nil {
		return Result{}, err
	}
	if s.Empty {
		if in.book.HasDebt(acct) {
			return Result{}, fmt.Errorf("%w: empty strategy on account with debt", ErrInvalidWord)
		}
		return Result{}, nil
	}

	// Pull every tagged position out of the pools into the slot array.
	slots := make([]int64, len(s.Slots))
	for i, id := range s.Slots {
		if !in.registry.Known(id) {
			return Result{}, fmt.Errorf("%w: slot tag %s", asset.ErrInvalidEncoding, id)
		}
		if id.Class == asset.NonFungible {
			// Non-fungible collateral has no market execution path yet; a
			// strategy that needs it cannot run.
			if len(in.book.NFTs(id.Index, acct)) > 0 {
				return Result{}, fmt.Errorf("%w: non-fungible slot %s", ErrUnimplementedOp, id)
			}
			continue
		}
		cfg := in.registry.ConfigOf(id)
		amount, err := in.book.ClearBalance(id.Index, acct, now, u)
		if err != nil {
			return Result{}, err
		}
		if amount > 0 && !cfg.CollateralOK {
			return Result{}, fmt.Errorf("%w: %s cannot serve as collateral", ErrUnsupportedRole, id)
		}
		if amount < 0 && !cfg.BorrowOK {
			return Result{}, fmt.Errorf("%w: %s cannot carry debt", ErrUnsupportedRole, id)
		}
		slots[i] = amount
	}

	for _, op := range s.Ops {
		switch op.Code {
		case OpSwapAll:
			v := slots[op.From]
			if v < 0 {
				return Result{}, fmt.Errorf("%w: slot %d", ErrSlotDeficit, op.From)
			}
			if v == 0 {
				continue
			}
			out, err := in.swaps.Swap(s.Slots[op.From], s.Slots[op.To], v)
			if err != nil {
				return Result{}, err
			}
			slots[op.To] += out
			slots[op.From] = 0
		case OpSwapUpTo:
			if slots[op.To] >= 0 || slots[op.From] <= 0 {
				continue
			}
			rate, err := in.swaps.GetOraclePrice(s.Slots[op.From], s.Slots[op.To])
			if err != nil {
				return Result{}, err
			}
			if rate.Sign() == 0 {
				return Result{}, fmt.Errorf("strategy: zero oracle rate %s -> %s", s.Slots[op.From], s.Slots[op.To])
			}
			// Size the source so the deficit is fully covered at oracle
			// price, rounding up; the market fill decides the actual output.
			deficit := fpmath.DecimalFromUnits(-slots[op.To], fpmath.AmountConfig)
			needUnits := fpmath.UnitsFromDecimal(deficit.Div(rate).Add(roundingUnit), fpmath.AmountConfig)
			amountIn := slots[op.From]
			if needUnits < amountIn {
				amountIn = needUnits
			}
			out, err := in.swaps.Swap(s.Slots[op.From], s.Slots[op.To], amountIn)
			if err != nil {
				return Result{}, err
			}
			slots[op.To] += out
			slots[op.From] -= amountIn
		case OpMultiSwapAll:
			return Result{}, fmt.Errorf("%w: op %d", ErrUnimplementedOp, op.Code)
		}
	}

	// Write surviving slot values back into the pools and collect residual
	// debt.
	var res Result
	for i, id := range s.Slots {
		if id.Class == asset.NonFungible {
			continue
		}
		if slots[i] != 0 {
			if _, err := in.book.UpdateBalance(id.Index, acct, slots[i], now, u); err != nil {
				return Result{}, err
			}
		}
		if slots[i] < -DebtRoundingError {
			res.Residual = append(res.Residual, ResidualDebt{Asset: id, Amount: -slots[i]})
		}
	}
	return res, nil
}

// roundingUnit is one base unit in decimal form, added before truncation to
// round the SwapUpTo source size up.
var roundingUnit = decimal.New(1, -int32(fpmath.AmountConfig.DecimalPrecision))
