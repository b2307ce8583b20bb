// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// CollateralAmount is the minimum anti-DoS fee the collateral transaction
// a client attaches to its ACCEPT and ENTRY submissions must pay.
// MaxCollateralAmount is the value of the collateral-sized output
// MakeCollateralAmounts creates; IsCollateralValid places no upper bound
// on a collateral's fee.
const (
	CollateralAmount    = btcutil.Amount(10000)
	MaxCollateralAmount = CollateralAmount * 4
)

// IsNormalPaymentScript reports whether pkScript is a script the
// coordinator is willing to accept in a collateral transaction or a mixing
// output: a standard length-25 P2PKH script, recognized as such by
// txscript's script classifier.
func IsNormalPaymentScript(pkScript []byte) bool {
	if len(pkScript) != 25 {
		return false
	}
	return txscript.GetScriptClass(pkScript) == txscript.PubKeyHashTy
}

// PrevOutFetcher resolves an outpoint to the output it spends, the minimal
// collaborator surface IsCollateralValid needs to sum input values. A
// missing outpoint returns ok=false.
type PrevOutFetcher func(op wire.OutPoint) (out *wire.TxOut, ok bool)

// MempoolAccepter reports whether tx would currently be accepted into the
// mempool, standing in for the chain collaborator's AcceptToMemoryPool
// check. Callers running in UnitTest mode may pass nil to skip this check.
type MempoolAccepter func(tx *wire.MsgTx) bool

// IsCollateralValid checks that txCollateral is a well-formed, adequately
// fee-paying, mempool-acceptable anti-DoS transaction: non-empty outputs,
// zero locktime, only normal payment scripts, resolvable inputs, and a
// fee of at least CollateralAmount.
func IsCollateralValid(txCollateral *wire.MsgTx, fetch PrevOutFetcher, accept MempoolAccepter) bool {
	if len(txCollateral.TxOut) == 0 {
		return false
	}
	if txCollateral.LockTime != 0 {
		return false
	}

	var valueIn, valueOut btcutil.Amount
	for _, out := range txCollateral.TxOut {
		valueOut += btcutil.Amount(out.Value)
		if !IsNormalPaymentScript(out.PkScript) {
			return false
		}
	}

	for _, in := range txCollateral.TxIn {
		prev, ok := fetch(in.PreviousOutPoint)
		if !ok {
			return false
		}
		valueIn += btcutil.Amount(prev.Value)
	}

	if valueIn-valueOut < CollateralAmount {
		return false
	}

	if accept != nil && !accept(txCollateral) {
		return false
	}

	return true
}

// verifyCollateralPubKey is a narrow helper used by tests to confirm a
// payment script derived from a compressed pubkey round-trips through
// IsNormalPaymentScript, guarding against accidental witness/P2SH drift in
// the script templates used elsewhere in the package.
func verifyCollateralPubKey(pub *btcec.PublicKey) ([]byte, bool) {
	pkHash := btcutil.Hash160(pub.SerializeCompressed())
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pkHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	if err != nil {
		return nil, false
	}
	return script, IsNormalPaymentScript(script)
}
