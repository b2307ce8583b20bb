// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestNewPoolEntry(t *testing.T) {
	t.Parallel()

	op := wire.OutPoint{Index: 1}
	vin := []*wire.TxIn{wire.NewTxIn(&op, nil, nil)}
	vout := []*wire.TxOut{wire.NewTxOut(1000, []byte{0x00})}

	e := NewPoolEntry(vin, vout, nil)
	require.Len(t, e.Inputs, 1)
	require.Len(t, e.Outputs, 1)
	require.False(t, e.Inputs[0].HasSig)
	require.False(t, e.allSigned())
}

func TestAddScriptSig(t *testing.T) {
	t.Parallel()

	op := wire.OutPoint{Index: 1}
	vin := []*wire.TxIn{wire.NewTxIn(&op, nil, nil)}
	e := NewPoolEntry(vin, nil, nil)

	sig := wire.TxIn{PreviousOutPoint: op, SignatureScript: []byte{0x01}}
	require.True(t, e.AddScriptSig(sig))
	require.True(t, e.Inputs[0].HasSig)
	require.True(t, e.allSigned())

	// Already signed: refuse a second signature for the same input.
	require.False(t, e.AddScriptSig(sig))

	// No matching input: refuse.
	other := wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 99}}
	require.False(t, e.AddScriptSig(other))
}

func TestPoolEntryAsWireRoundTrip(t *testing.T) {
	t.Parallel()

	op := wire.OutPoint{Index: 1}
	vin := []*wire.TxIn{wire.NewTxIn(&op, nil, nil)}
	vout := []*wire.TxOut{wire.NewTxOut(1000, []byte{0x00})}
	e := NewPoolEntry(vin, vout, nil)

	ins := e.inputsAsWire()
	outs := e.outputsAsWire()
	require.Equal(t, op, ins[0].PreviousOutPoint)
	require.Equal(t, int64(1000), outs[0].Value)
}
