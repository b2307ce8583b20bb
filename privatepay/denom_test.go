// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestDenominationsToMask(t *testing.T) {
	t.Parallel()

	outs := []*wire.TxOut{
		{Value: int64(StandardDenominations[1])},
		{Value: int64(StandardDenominations[1])},
		{Value: int64(StandardDenominations[3])},
	}
	mask := DenominationsToMask(outs)
	require.Equal(t, DenomMask(1<<1|1<<3), mask)

	nonDenom := []*wire.TxOut{{Value: 12345}}
	require.Equal(t, DenomMask(0), DenominationsToMask(nonDenom))
}

func TestMaskToBits(t *testing.T) {
	t.Parallel()

	bits, ok := MaskToBits(DenomMask(1<<0 | 1<<2))
	require.True(t, ok)
	require.Equal(t, []int{0, 2}, bits)

	_, ok = MaskToBits(0)
	require.False(t, ok)

	_, ok = MaskToBits(DenomMask(1 << maxDenoms()))
	require.False(t, ok)
}

func TestRandomSingleDenomMaskFromAmounts(t *testing.T) {
	t.Parallel()

	amounts := []btcutil.Amount{StandardDenominations[2], StandardDenominations[2]}
	for i := 0; i < 20; i++ {
		mask := RandomSingleDenomMaskFromAmounts(amounts)
		if mask == 0 {
			continue
		}
		bits, ok := MaskToBits(mask)
		require.True(t, ok)
		require.Len(t, bits, 1)
		require.Equal(t, 2, bits[0])
	}

	require.Equal(t, DenomMask(0), RandomSingleDenomMaskFromAmounts(nil))
}

func TestDenominationsToString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "non-denom", DenominationsToString(0))
	require.Equal(t, "out-of-bounds", DenominationsToString(DenomMask(1<<maxDenoms())))

	s := DenominationsToString(DenomMask(1 << 0))
	require.Contains(t, s, StandardDenominations[0].String())
}

func TestSmallestDenomination(t *testing.T) {
	t.Parallel()

	smallest := SmallestDenomination()
	for _, d := range StandardDenominations {
		require.LessOrEqual(t, smallest, d)
	}
}
