package state

import (
	"sort"

	"MarginLedger/internal/ledger"

	"github.com/google/uuid"
)

// UnitOfWork scopes one event's mutations: an entry batch under assembly, an
// undo log covering every ledger mutation, and the set of accounts whose
// solvency check is deferred to commit. Either Commit applies-and-keeps
// everything or Rollback restores the pre-event state exactly; there is no
// partially applied event.
type UnitOfWork struct {
	book     *ledger.Book
	batch    ledger.Batch
	undo     ledger.Undo
	deferred map[uuid.UUID]struct{}
	done     bool
}

func NewUnitOfWork(book *ledger.Book, eventRef string, sequence, timestamp int64) *UnitOfWork {
	return &UnitOfWork{
		book: book,
		batch: ledger.Batch{
			BatchID:   uuid.New(),
			EventRef:  eventRef,
			Sequence:  sequence,
			Timestamp: timestamp,
		},
		deferred: make(map[uuid.UUID]struct{}),
	}
}

// Undo exposes the log for ledger calls that record inverse steps.
func (w *UnitOfWork) Undo() *ledger.Undo {
	return &w.undo
}

// AddEntry appends one applied delta to the batch under assembly.
func (w *UnitOfWork) AddEntry(acct uuid.UUID, assetCode uint16, delta int64, kind ledger.EntryKind) {
	w.batch.Entries = append(w.batch.Entries, ledger.Entry{
		EntryID:   uuid.New(),
		BatchID:   w.batch.BatchID,
		EventRef:  w.batch.EventRef,
		Sequence:  w.batch.Sequence,
		Account:   acct,
		AssetCode: assetCode,
		Delta:     delta,
		Kind:      kind,
		Timestamp: w.batch.Timestamp,
	})
}

// DeferCheck marks an account for a commit-time solvency check. The flag
// makes the deferral visible to anything inspecting the account mid-batch,
// and rides the undo log like every other mutation.
func (w *UnitOfWork) DeferCheck(acct uuid.UUID) {
	if _, dup := w.deferred[acct]; dup {
		return
	}
	w.deferred[acct] = struct{}{}
	w.book.SetFlag(acct, ledger.FlagCheckDeferred, &w.undo)
}

// Deferred returns the accounts awaiting their commit-time check, in stable
// order.
func (w *UnitOfWork) Deferred() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(w.deferred))
	for id := range w.deferred {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		for k := 0; k < len(out[i]); k++ {
			if out[i][k] != out[j][k] {
				return out[i][k] < out[j][k]
			}
		}
		return false
	})
	return out
}

// Batch returns the assembled batch for validation and emission.
func (w *UnitOfWork) Batch() *ledger.Batch {
	return &w.batch
}

// Commit clears the deferred flags and discards the undo log. The ledger
// mutations recorded during the batch stand.
func (w *UnitOfWork) Commit() {
	if w.done {
		return
	}
	w.done = true
	for acct := range w.deferred {
		w.book.ClearFlag(acct, ledger.FlagCheckDeferred, nil)
	}
	w.undo.Discard()
}

// Rollback restores the pre-event state, deferred flags included.
func (w *UnitOfWork) Rollback() {
	if w.done {
		return
	}
	w.done = true
	w.undo.Rollback()
}
