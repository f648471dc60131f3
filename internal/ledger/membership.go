package ledger

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// Flag is one of the reserved low bits of a membership word.
type Flag uint

const (
	// FlagHasBorrow caches "the borrow set is non-empty" in the asset word so
	// solvency checks skip reading the borrow word for debt-free accounts.
	FlagHasBorrow Flag = iota
	// FlagCheckDeferred marks an account whose solvency check is pending at
	// the end of the current batch.
	FlagCheckDeferred
	// FlagLiquidating guards against re-entering liquidation for an account
	// mid-flight.
	FlagLiquidating
	// FlagFrozen blocks all balance mutation for the account.
	FlagFrozen

	flagBits = 4
)

// MaxAssetBit is the highest fungible asset index a membership word can hold.
const MaxAssetBit = 255 - flagBits

// Membership is a fixed-width set of fungible asset indexes with the low
// flagBits bits reserved for account flags. Bit i+flagBits is set iff the
// account holds a nonzero position in fungible asset i.
type Membership struct {
	word uint256.Int
}

// HasFlag reports whether the flag bit is set.
func (m *Membership) HasFlag(f Flag) bool {
	return m.word[0]&(1<<uint(f)) != 0
}

// SetFlag sets the flag bit.
func (m *Membership) SetFlag(f Flag) {
	m.word[0] |= 1 << uint(f)
}

// ClearFlag clears the flag bit.
func (m *Membership) ClearFlag(f Flag) {
	m.word[0] &^= 1 << uint(f)
}

// Has reports whether asset index i is in the set.
func (m *Membership) Has(i uint16) bool {
	bit := uint(i) + flagBits
	return m.word[bit/64]&(1<<(bit%64)) != 0
}

// Set adds asset index i. Indexes above MaxAssetBit do not fit the word and
// are rejected at asset registration, so this panics rather than erroring.
func (m *Membership) Set(i uint16) {
	if int(i) > MaxAssetBit {
		panic("ledger: asset index exceeds membership word")
	}
	bit := uint(i) + flagBits
	m.word[bit/64] |= 1 << (bit % 64)
}

// Clear removes asset index i.
func (m *Membership) Clear(i uint16) {
	bit := uint(i) + flagBits
	m.word[bit/64] &^= 1 << (bit % 64)
}

// Empty reports whether no asset bits are set (flags are ignored).
func (m *Membership) Empty() bool {
	const flagMask = uint64(1)<<flagBits - 1
	if m.word[0]&^flagMask != 0 {
		return false
	}
	return m.word[1] == 0 && m.word[2] == 0 && m.word[3] == 0
}

// SubsetOf reports whether every asset bit of m is also set in other. Flags
// are ignored on both sides.
func (m *Membership) SubsetOf(other *Membership) bool {
	const flagMask = uint64(1)<<flagBits - 1
	if m.word[0]&^flagMask&^other.word[0] != 0 {
		return false
	}
	return m.word[1]&^other.word[1] == 0 &&
		m.word[2]&^other.word[2] == 0 &&
		m.word[3]&^other.word[3] == 0
}

// ForEach calls fn for every set asset index in ascending order, stopping
// early if fn returns false. Enumeration reads the current word on each
// step, so it is restartable and cheap for sparse sets.
func (m *Membership) ForEach(fn func(i uint16) bool) {
	const flagMask = uint64(1)<<flagBits - 1
	for limb := 0; limb < 4; limb++ {
		w := m.word[limb]
		if limb == 0 {
			w &^= flagMask
		}
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			idx := uint16(limb*64 + bit - flagBits)
			if !fn(idx) {
				return
			}
			w &= w - 1
		}
	}
}

// Indices returns every set asset index in ascending order.
func (m *Membership) Indices() []uint16 {
	var out []uint16
	m.ForEach(func(i uint16) bool {
		out = append(out, i)
		return true
	})
	return out
}

// Word returns a copy of the raw 256-bit word (flags included), the form
// persisted in snapshots.
func (m *Membership) Word() *uint256.Int {
	w := new(uint256.Int).Set(&m.word)
	return w
}

// SetWord overwrites the raw word, used when restoring from a snapshot.
func (m *Membership) SetWord(w *uint256.Int) {
	m.word.Set(w)
}
