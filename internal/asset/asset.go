package asset

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Class distinguishes fungible token balances from non-fungible positions.
type Class uint8

const (
	Fungible Class = iota
	NonFungible
)

func (c Class) String() string {
	switch c {
	case Fungible:
		return "fungible"
	case NonFungible:
		return "non_fungible"
	default:
		return "unknown"
	}
}

// MaxIndex is the largest asset index the 15-bit field can carry.
const MaxIndex = 1<<15 - 1

// MaxFungibleIndex caps fungible registrations so every fungible asset has a
// bit in the per-account membership word (256 bits minus 4 reserved flags).
const MaxFungibleIndex = 251

// ID is a compact asset identifier: a class tag plus a small stable index
// assigned at registration time.
type ID struct {
	Class Class
	Index uint16
}

// ErrInvalidEncoding is returned for malformed asset codes and for indexes
// that exceed the registered count of their class.
var ErrInvalidEncoding = fmt.Errorf("asset: invalid encoding")

// Code packs the ID into its 16-bit wire form: class in bit 0, index in
// bits 1..15.
func (id ID) Code() uint16 {
	return uint16(id.Class)&1 | id.Index<<1
}

// Word serializes the ID into a 256-bit word (the persisted form shared with
// strategy slot tags).
func (id ID) Word() *uint256.Int {
	return uint256.NewInt(uint64(id.Code()))
}

func (id ID) String() string {
	return fmt.Sprintf("%s/%d", id.Class, id.Index)
}

// FromCode decodes a 16-bit asset code without registry validation. The
// result is syntactically well-formed but may reference an unregistered
// index; use Registry.Resolve for a validated decode.
func FromCode(code uint16) ID {
	return ID{Class: Class(code & 1), Index: code >> 1}
}

// FromWord decodes the 256-bit serialized form. Bits above the 16-bit code
// must be zero.
func FromWord(w *uint256.Int) (ID, error) {
	if !w.IsUint64() || w.Uint64() > 0xFFFF {
		return ID{}, fmt.Errorf("%w: asset word exceeds 16 bits", ErrInvalidEncoding)
	}
	return FromCode(uint16(w.Uint64())), nil
}
