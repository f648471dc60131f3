package state

import (
	"fmt"

	"MarginLedger/internal/ledger"
	"MarginLedger/internal/strategy"

	"github.com/google/uuid"
)

// LiquidationOutcome classifies what a liquidation request did.
type LiquidationOutcome int

const (
	// OutcomeSolvent: the account passed the solvency check; nothing ran.
	OutcomeSolvent LiquidationOutcome = iota
	// OutcomeLiquid: insolvent but the strategy replay proved recoverable;
	// nothing ran.
	OutcomeLiquid
	// OutcomeExecuted: the strategy ran against real positions.
	OutcomeExecuted
)

func (o LiquidationOutcome) String() string {
	switch o {
	case OutcomeSolvent:
		return "solvent"
	case OutcomeLiquid:
		return "liquid"
	case OutcomeExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// LiquidationCoordinator runs the check-then-execute pipeline for one
// account as a single unit: solvency first, then the read-only strategy
// replay, and only if both say "unrecoverable" the real execution. The
// liquidating flag guards against re-entry during the swap callbacks.
type LiquidationCoordinator struct {
	st *SystemState
}

func NewLiquidationCoordinator(st *SystemState) *LiquidationCoordinator {
	return &LiquidationCoordinator{st: st}
}

// Process evaluates and possibly liquidates one account inside the caller's
// unit of work. On error the caller rolls the unit back.
func (c *LiquidationCoordinator) Process(acct uuid.UUID, now int64, uow *UnitOfWork) (LiquidationOutcome, strategy.Result, error) {
	if c.st.Book.HasFlag(acct, ledger.FlagLiquidating) {
		return 0, strategy.Result{}, fmt.Errorf("state: account %s is already liquidating", acct)
	}

	solvent, err := c.st.Valuer.IsSolvent(acct)
	if err != nil {
		return 0, strategy.Result{}, err
	}
	if solvent {
		return OutcomeSolvent, strategy.Result{}, nil
	}

	word := c.st.Book.Strategy(acct)
	liquid, err := c.st.Interp.IsLiquid(acct, word)
	if err != nil {
		return 0, strategy.Result{}, err
	}
	if liquid {
		return OutcomeLiquid, strategy.Result{}, nil
	}

	c.st.Book.SetFlag(acct, ledger.FlagLiquidating, uow.Undo())
	res, err := c.st.Interp.Liquidate(acct, word, now, uow.Undo())
	if err != nil {
		return 0, strategy.Result{}, err
	}
	c.st.Book.ClearFlag(acct, ledger.FlagLiquidating, uow.Undo())
	return OutcomeExecuted, res, nil
}
