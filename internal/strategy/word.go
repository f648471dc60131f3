package strategy

import (
	"errors"
	"fmt"

	"MarginLedger/internal/asset"

	"github.com/holiman/uint256"
)

// Strategy words are one 256-bit integer, consumed LSB-first:
//
//	bit  0        version (must be 0)
//	bits 1..3     slotCount - 2           (2..9 slots)
//	slotCount x 16-bit asset tags         (class bit + 15-bit index)
//	operations, each opening with a 2-bit opcode:
//	    00  end of program
//	    01  SwapAll   from:4 to:4
//	    10  SwapUpTo  from:4 to:4
//	    11  MultiSwapAll  from:4 n:4 n x target:4
//
// Every bit after the end opcode must be zero. The all-zero word is the
// distinguished empty strategy: no slots, no operations, valid only for
// debt-free accounts (a semantic condition checked at evaluation, not here).
var (
	ErrInvalidWord     = errors.New("strategy: invalid word")
	ErrUnimplementedOp = errors.New("strategy: multi-swap execution not implemented")
)

const (
	MinSlots = 2
	MaxSlots = 9
)

// OpCode discriminates the strategy operations.
type OpCode uint8

const (
	opEnd OpCode = iota
	OpSwapAll
	OpSwapUpTo
	OpMultiSwapAll
)

func (c OpCode) String() string {
	switch c {
	case OpSwapAll:
		return "swap_all"
	case OpSwapUpTo:
		return "swap_up_to"
	case OpMultiSwapAll:
		return "multi_swap_all"
	default:
		return "end"
	}
}

// Op is one decoded operation. From/To are slot indexes; Targets is only
// populated for MultiSwapAll.
type Op struct {
	Code    OpCode
	From    uint8
	To      uint8
	Targets []uint8
}

// Strategy is the fully decoded form of a word.
type Strategy struct {
	Empty bool
	Slots []asset.ID
	Ops   []Op
}

// bitReader consumes a word from the least significant bit upward. Reads
// beyond bit 255 return zeros, which the zero-tail check catches.
type bitReader struct {
	w uint256.Int
}

func newBitReader(word *uint256.Int) *bitReader {
	r := &bitReader{}
	r.w.Set(word)
	return r
}

func (r *bitReader) take(n uint) uint64 {
	v := r.w.Uint64() & (1<<n - 1)
	r.w.Rsh(&r.w, n)
	return v
}

func (r *bitReader) exhausted() bool {
	return r.w.IsZero()
}

// bitWriter builds a word LSB-first.
type bitWriter struct {
	w    uint256.Int
	used uint
}

func (w *bitWriter) put(v uint64, n uint) error {
	if v >= 1<<n {
		return fmt.Errorf("%w: field value %d exceeds %d bits", ErrInvalidWord, v, n)
	}
	if w.used+n > 256 {
		return fmt.Errorf("%w: encoding exceeds 256 bits", ErrInvalidWord)
	}
	var field uint256.Int
	field.SetUint64(v)
	field.Lsh(&field, w.used)
	w.w.Or(&w.w, &field)
	w.used += n
	return nil
}

// Decode parses and fully validates a strategy word. Validation is purely
// syntactic: field widths, slot-reference ranges, tag uniqueness, and the
// zero tail. No account or registry state is consulted.
func Decode(word *uint256.Int) (*Strategy, error) {
	if word.IsZero() {
		return &Strategy{Empty: true}, nil
	}

	r := newBitReader(word)

	if r.take(1) != 0 {
		return nil, fmt.Errorf("%w: unknown version", ErrInvalidWord)
	}
	slotCount := int(r.take(3)) + MinSlots

	slots := make([]asset.ID, slotCount)
	seen := make(map[uint16]struct{}, slotCount)
	for i := range slots {
		code := uint16(r.take(16))
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: duplicate slot tag %#04x", ErrInvalidWord, code)
		}
		seen[code] = struct{}{}
		slots[i] = asset.FromCode(code)
	}

	var ops []Op
	for {
		code := OpCode(r.take(2))
		if code == opEnd {
			break
		}
		op := Op{Code: code}
		switch code {
		case OpSwapAll, OpSwapUpTo:
			op.From = uint8(r.take(4))
			op.To = uint8(r.take(4))
			if int(op.From) >= slotCount || int(op.To) >= slotCount {
				return nil, fmt.Errorf("%w: %s references slot out of range", ErrInvalidWord, code)
			}
			if op.From == op.To {
				return nil, fmt.Errorf("%w: %s with identical source and target", ErrInvalidWord, code)
			}
		case OpMultiSwapAll:
			op.From = uint8(r.take(4))
			n := int(r.take(4))
			if int(op.From) >= slotCount {
				return nil, fmt.Errorf("%w: multi-swap source out of range", ErrInvalidWord)
			}
			if n == 0 || n >= slotCount {
				return nil, fmt.Errorf("%w: multi-swap target count %d out of range", ErrInvalidWord, n)
			}
			targets := make([]uint8, n)
			dup := make(map[uint8]struct{}, n)
			for i := range targets {
				t := uint8(r.take(4))
				if int(t) >= slotCount {
					return nil, fmt.Errorf("%w: multi-swap target out of range", ErrInvalidWord)
				}
				if t == op.From {
					return nil, fmt.Errorf("%w: multi-swap target equals source", ErrInvalidWord)
				}
				if _, d := dup[t]; d {
					return nil, fmt.Errorf("%w: duplicate multi-swap target %d", ErrInvalidWord, t)
				}
				dup[t] = struct{}{}
				targets[i] = t
			}
			op.Targets = targets
		}
		ops = append(ops, op)
	}

	if !r.exhausted() {
		return nil, fmt.Errorf("%w: nonzero bits after end of program", ErrInvalidWord)
	}

	return &Strategy{Slots: slots, Ops: ops}, nil
}

// Validate reports whether the word decodes cleanly.
func Validate(word *uint256.Int) error {
	_, err := Decode(word)
	return err
}

// Encode packs a strategy back into its word form. Encode(Decode(w)) == w
// for every valid w.
func Encode(s *Strategy) (*uint256.Int, error) {
	if s.Empty {
		if len(s.Slots) != 0 || len(s.Ops) != 0 {
			return nil, fmt.Errorf("%w: empty strategy with slots or ops", ErrInvalidWord)
		}
		return new(uint256.Int), nil
	}
	if len(s.Slots) < MinSlots || len(s.Slots) > MaxSlots {
		return nil, fmt.Errorf("%w: slot count %d out of range", ErrInvalidWord, len(s.Slots))
	}

	w := &bitWriter{}
	if err := w.put(0, 1); err != nil {
		return nil, err
	}
	if err := w.put(uint64(len(s.Slots)-MinSlots), 3); err != nil {
		return nil, err
	}
	for _, id := range s.Slots {
		if err := w.put(uint64(id.Code()), 16); err != nil {
			return nil, err
		}
	}
	for _, op := range s.Ops {
		if err := w.put(uint64(op.Code), 2); err != nil {
			return nil, err
		}
		switch op.Code {
		case OpSwapAll, OpSwapUpTo:
			if err := w.put(uint64(op.From), 4); err != nil {
				return nil, err
			}
			if err := w.put(uint64(op.To), 4); err != nil {
				return nil, err
			}
		case OpMultiSwapAll:
			if err := w.put(uint64(op.From), 4); err != nil {
				return nil, err
			}
			if err := w.put(uint64(len(op.Targets)), 4); err != nil {
				return nil, err
			}
			for _, t := range op.Targets {
				if err := w.put(uint64(t), 4); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("%w: cannot encode opcode %d", ErrInvalidWord, op.Code)
		}
	}

	// Re-decode to reject words Decode would refuse (range and uniqueness
	// rules live there).
	word := new(uint256.Int).Set(&w.w)
	if _, err := Decode(word); err != nil {
		return nil, err
	}
	return word, nil
}
