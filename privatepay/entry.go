// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"github.com/btcsuite/btcd/wire"
)

// TxDSIn is a mixing-pool input: a plain transaction input plus the bits
// the coordinator needs to track signing progress and re-validate a
// scriptSig once it arrives.
type TxDSIn struct {
	wire.TxIn

	// PrevPubKey is the scriptPubKey of the output being spent, needed to
	// verify a later scriptSig without a second chain round-trip.
	PrevPubKey []byte

	// HasSig is set once a valid scriptSig has been attached.
	HasSig bool
}

// TxDSOut is a mixing-pool output. It carries no extra fields over
// wire.TxOut; the type exists to mirror the wire-level distinction the
// protocol spec draws between a plain output and one submitted as part of
// an ENTRY.
type TxDSOut struct {
	wire.TxOut
}

// sameOutpoint reports whether in and other reference the same previous
// output, the identity used to match a later scriptSig to its input.
func (in *TxDSIn) sameOutpoint(other wire.TxIn) bool {
	return in.PreviousOutPoint == other.PreviousOutPoint
}

// PoolEntry is one client's submission within a session: the inputs and
// outputs it wants included in the joint transaction, the collateral that
// backs the submission, and the participant's network address (used by the
// coordinator to route STATUS/FINAL/COMPLETE messages back to the sender).
type PoolEntry struct {
	Inputs       []*TxDSIn
	Outputs      []*TxDSOut
	Collateral   *wire.MsgTx
	Participant  string
}

// NewPoolEntry builds a PoolEntry from plain inputs/outputs, the shape an
// ENTRY message arrives in before the coordinator attaches bookkeeping.
func NewPoolEntry(vin []*wire.TxIn, vout []*wire.TxOut, collateral *wire.MsgTx) *PoolEntry {
	e := &PoolEntry{Collateral: collateral}
	for _, in := range vin {
		e.Inputs = append(e.Inputs, &TxDSIn{TxIn: *in})
	}
	for _, out := range vout {
		e.Outputs = append(e.Outputs, &TxDSOut{TxOut: *out})
	}
	return e
}

// AddScriptSig attaches a signature to the input within this entry that
// matches txin's previous outpoint. Returns false if no such
// input exists, or if it is already signed.
func (e *PoolEntry) AddScriptSig(txin wire.TxIn) bool {
	for _, in := range e.Inputs {
		if in.sameOutpoint(txin) {
			if in.HasSig {
				return false
			}
			in.SignatureScript = txin.SignatureScript
			in.HasSig = true
			return true
		}
	}
	return false
}

// outputsAsWire returns e.Outputs as plain wire.TxOut values, for mask
// computation and transaction assembly.
func (e *PoolEntry) outputsAsWire() []*wire.TxOut {
	outs := make([]*wire.TxOut, len(e.Outputs))
	for i, o := range e.Outputs {
		out := o.TxOut
		outs[i] = &out
	}
	return outs
}

// inputsAsWire returns e.Inputs as plain wire.TxIn values.
func (e *PoolEntry) inputsAsWire() []*wire.TxIn {
	ins := make([]*wire.TxIn, len(e.Inputs))
	for i, in := range e.Inputs {
		v := in.TxIn
		ins[i] = &v
	}
	return ins
}

// allSigned reports whether every input in the entry carries a signature.
func (e *PoolEntry) allSigned() bool {
	for _, in := range e.Inputs {
		if !in.HasSig {
			return false
		}
	}
	return true
}
