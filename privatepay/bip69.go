// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/wire"
)

// sortInputsBIP69 orders vin by (prevHash, prevIndex), the canonical rule
// that makes a joint transaction's input ordering independent of submission
// order and therefore useless for unmixing participants.
func sortInputsBIP69(vin []*wire.TxIn) {
	sort.SliceStable(vin, func(i, j int) bool {
		a, b := vin[i].PreviousOutPoint, vin[j].PreviousOutPoint
		if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
			return c < 0
		}
		return a.Index < b.Index
	})
}

// sortOutputsBIP69 orders vout by (value, scriptPubKey).
func sortOutputsBIP69(vout []*wire.TxOut) {
	sort.SliceStable(vout, func(i, j int) bool {
		if vout[i].Value != vout[j].Value {
			return vout[i].Value < vout[j].Value
		}
		return bytes.Compare(vout[i].PkScript, vout[j].PkScript) < 0
	})
}

// isSortedBIP69 reports whether tx's inputs and outputs already satisfy the
// canonical ordering, for use in tests and invariant checks.
func isSortedBIP69(tx *wire.MsgTx) bool {
	vin := append([]*wire.TxIn(nil), tx.TxIn...)
	vout := append([]*wire.TxOut(nil), tx.TxOut...)
	sortInputsBIP69(vin)
	sortOutputsBIP69(vout)

	for i := range vin {
		if vin[i].PreviousOutPoint != tx.TxIn[i].PreviousOutPoint {
			return false
		}
	}
	for i := range vout {
		if vout[i].Value != tx.TxOut[i].Value || !bytes.Equal(vout[i].PkScript, tx.TxOut[i].PkScript) {
			return false
		}
	}
	return true
}
