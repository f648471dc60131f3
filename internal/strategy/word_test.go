package strategy_test

import (
	"testing"

	"MarginLedger/internal/asset"
	"MarginLedger/internal/strategy"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func fungible(index uint16) asset.ID {
	return asset.ID{Class: asset.Fungible, Index: index}
}

// packWord builds a word LSB-first from (value, width) pairs, for crafting
// inputs Encode refuses to produce.
func packWord(t *testing.T, fields ...[2]uint64) *uint256.Int {
	t.Helper()
	w := new(uint256.Int)
	var used uint
	for _, f := range fields {
		v, n := f[0], uint(f[1])
		require.Less(t, v, uint64(1)<<n, "field wider than declared")
		var field uint256.Int
		field.SetUint64(v)
		field.Lsh(&field, used)
		w.Or(w, &field)
		used += n
	}
	return w
}

func TestDecodeEmptyWord(t *testing.T) {
	s, err := strategy.Decode(new(uint256.Int))
	require.NoError(t, err)
	require.True(t, s.Empty)
	require.Empty(t, s.Slots)
	require.Empty(t, s.Ops)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := &strategy.Strategy{
		Slots: []asset.ID{fungible(1), fungible(2), fungible(7)},
		Ops: []strategy.Op{
			{Code: strategy.OpSwapUpTo, From: 0, To: 1},
			{Code: strategy.OpSwapAll, From: 2, To: 0},
			{Code: strategy.OpMultiSwapAll, From: 1, Targets: []uint8{0, 2}},
		},
	}
	word, err := strategy.Encode(in)
	require.NoError(t, err)

	out, err := strategy.Decode(word)
	require.NoError(t, err)
	require.Equal(t, in.Slots, out.Slots)
	require.Equal(t, in.Ops, out.Ops)

	// And back again.
	word2, err := strategy.Encode(out)
	require.NoError(t, err)
	require.Zero(t, word.Cmp(word2))
}

func TestEncodeEmpty(t *testing.T) {
	word, err := strategy.Encode(&strategy.Strategy{Empty: true})
	require.NoError(t, err)
	require.True(t, word.IsZero())

	_, err = strategy.Encode(&strategy.Strategy{Empty: true, Slots: []asset.ID{fungible(1)}})
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeRejectsVersionBit(t *testing.T) {
	word := packWord(t, [2]uint64{1, 1})
	_, err := strategy.Decode(word)
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeRejectsDuplicateTags(t *testing.T) {
	word := packWord(t,
		[2]uint64{0, 1}, // version
		[2]uint64{0, 3}, // 2 slots
		[2]uint64{uint64(fungible(3).Code()), 16},
		[2]uint64{uint64(fungible(3).Code()), 16},
	)
	_, err := strategy.Decode(word)
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeRejectsSlotRefOutOfRange(t *testing.T) {
	word := packWord(t,
		[2]uint64{0, 1},
		[2]uint64{0, 3}, // 2 slots
		[2]uint64{uint64(fungible(1).Code()), 16},
		[2]uint64{uint64(fungible(2).Code()), 16},
		[2]uint64{uint64(strategy.OpSwapAll), 2},
		[2]uint64{5, 4}, // from: only slots 0..1 exist
		[2]uint64{0, 4},
	)
	_, err := strategy.Decode(word)
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeRejectsSelfSwap(t *testing.T) {
	word := packWord(t,
		[2]uint64{0, 1},
		[2]uint64{0, 3},
		[2]uint64{uint64(fungible(1).Code()), 16},
		[2]uint64{uint64(fungible(2).Code()), 16},
		[2]uint64{uint64(strategy.OpSwapUpTo), 2},
		[2]uint64{1, 4},
		[2]uint64{1, 4},
	)
	_, err := strategy.Decode(word)
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeRejectsNonzeroTail(t *testing.T) {
	word := packWord(t,
		[2]uint64{0, 1},
		[2]uint64{0, 3},
		[2]uint64{uint64(fungible(1).Code()), 16},
		[2]uint64{uint64(fungible(2).Code()), 16},
		[2]uint64{0, 2}, // end
		[2]uint64{1, 1}, // stray bit past the program
	)
	_, err := strategy.Decode(word)
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestDecodeMultiSwapValidation(t *testing.T) {
	base := [][2]uint64{
		{0, 1},
		{1, 3}, // 3 slots
		{uint64(fungible(1).Code()), 16},
		{uint64(fungible(2).Code()), 16},
		{uint64(fungible(3).Code()), 16},
		{uint64(strategy.OpMultiSwapAll), 2},
		{0, 4}, // from
	}

	zeroTargets := append(append([][2]uint64{}, base...), [2]uint64{0, 4})
	_, err := strategy.Decode(packWord(t, zeroTargets...))
	require.ErrorIs(t, err, strategy.ErrInvalidWord, "target count zero")

	selfTarget := append(append([][2]uint64{}, base...),
		[2]uint64{1, 4}, // n=1
		[2]uint64{0, 4}, // target == source
	)
	_, err = strategy.Decode(packWord(t, selfTarget...))
	require.ErrorIs(t, err, strategy.ErrInvalidWord, "target equals source")

	dupTarget := append(append([][2]uint64{}, base...),
		[2]uint64{2, 4},
		[2]uint64{1, 4},
		[2]uint64{1, 4},
	)
	_, err = strategy.Decode(packWord(t, dupTarget...))
	require.ErrorIs(t, err, strategy.ErrInvalidWord, "duplicate target")
}

func TestEncodeRejectsBadSlotCount(t *testing.T) {
	_, err := strategy.Encode(&strategy.Strategy{Slots: []asset.ID{fungible(1)}})
	require.ErrorIs(t, err, strategy.ErrInvalidWord)

	slots := make([]asset.ID, strategy.MaxSlots+1)
	for i := range slots {
		slots[i] = fungible(uint16(i + 1))
	}
	_, err = strategy.Encode(&strategy.Strategy{Slots: slots})
	require.ErrorIs(t, err, strategy.ErrInvalidWord)
}

func TestValidate(t *testing.T) {
	require.NoError(t, strategy.Validate(new(uint256.Int)))

	word, err := strategy.Encode(&strategy.Strategy{
		Slots: []asset.ID{fungible(1), fungible(2)},
		Ops:   []strategy.Op{{Code: strategy.OpSwapAll, From: 0, To: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, strategy.Validate(word))

	require.ErrorIs(t, strategy.Validate(packWord(t, [2]uint64{1, 1})), strategy.ErrInvalidWord)
}
