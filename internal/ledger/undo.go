package ledger

// Undo collects inverse mutations while a batch executes. On rollback the
// recorded steps run in reverse order, restoring pools, share balances, and
// membership words exactly. A committed batch discards the log.
type Undo struct {
	steps []func()
}

// Record pushes one inverse step. Callers capture the prior state by value
// before mutating.
func (u *Undo) Record(step func()) {
	if u == nil {
		return
	}
	u.steps = append(u.steps, step)
}

// Rollback runs all recorded steps newest-first and empties the log.
func (u *Undo) Rollback() {
	if u == nil {
		return
	}
	for i := len(u.steps) - 1; i >= 0; i-- {
		u.steps[i]()
	}
	u.steps = nil
}

// Discard empties the log without running it.
func (u *Undo) Discard() {
	if u == nil {
		return
	}
	u.steps = nil
}

// Len returns the number of recorded steps.
func (u *Undo) Len() int {
	if u == nil {
		return 0
	}
	return len(u.steps)
}
