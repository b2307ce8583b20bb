// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"errors"
	"math/rand"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// ErrWalletLocked is the error for a wallet that cannot currently produce
// signing keys. No function in this package returns it.
var ErrWalletLocked = errors.New("privatepay: wallet locked, unable to create transaction")

// ErrAlreadyPending is returned by PrepareDenominate when this client
// already has unresolved entries in a pool.
var ErrAlreadyPending = errors.New("privatepay: already have pending entries in the pool")

// PrepareDenominate selects coins matching sessionDenom from the wallet and
// repackages them into same-valued outputs at fresh change addresses,
// breaking the link between a participant's pre-mix and post-mix coins.
// It tries, over a randomized number of passes (5..EntryMaxSize), to use
// up as much of the selected value as possible; it succeeds as soon as
// the resulting outputs denominate to exactly sessionDenom, regardless of
// whether every selected coin was used.
func PrepareDenominate(w Wallet, sessionDenom DenomMask, haveEntries int) ([]*wire.TxIn, []*wire.TxOut, error) {
	if haveEntries > 0 {
		return nil, nil, ErrAlreadyPending
	}

	bits, ok := MaskToBits(sessionDenom)
	if !ok {
		return nil, nil, errors.New("privatepay: incorrect session denom")
	}

	target := StandardDenominations[bits[0]]
	// SelectCoins returns vin alongside the previous outputs it spends,
	// parallel by index, so their values are known without a further
	// chain lookup.
	vin, prevOuts, err := w.SelectCoins(target, true)
	if err != nil {
		return nil, nil, err
	}
	for _, in := range vin {
		w.LockCoin(in.PreviousOutPoint)
	}

	var (
		outVin  []*wire.TxIn
		outVout []*wire.TxOut
		used    = make([]bool, len(vin))
	)

	valueLeft := func() btcutil.Amount {
		var total btcutil.Amount
		for i := range vin {
			if !used[i] {
				total += btcutil.Amount(prevOuts[i].Value)
			}
		}
		return total
	}

	steps := 5 + rand.Intn(EntryMaxSize-5+1)
	for step := 0; step < steps; step++ {
		for _, bit := range bits {
			denomValue := StandardDenominations[bit]
			if valueLeft() < denomValue {
				continue
			}
			for i := range vin {
				if used[i] || btcutil.Amount(prevOuts[i].Value) != denomValue {
					continue
				}
				used[i] = true
				outVin = append(outVin, vin[i])

				script, err := w.NewChangeAddress()
				if err != nil {
					continue
				}
				outVout = append(outVout, &wire.TxOut{Value: int64(denomValue), PkScript: script})
				break
			}
		}
		if valueLeft() == 0 {
			break
		}
	}

	for i := range vin {
		if !used[i] {
			w.UnlockCoin(vin[i].PreviousOutPoint)
		}
	}

	if DenominationsToMask(outVout) != sessionDenom {
		for _, in := range outVin {
			w.UnlockCoin(in.PreviousOutPoint)
		}
		return nil, nil, errors.New("privatepay: can't make current denominated outputs")
	}

	return outVin, outVout, nil
}

// MakeCollateralAmounts carves out a small collateral-sized output from
// the wallet's funds, trying non-denominated coins first and falling back
// to splitting denominated coins when nothing else is available. Returns
// the collateral transaction the caller should attach to its next ACCEPT
// or ENTRY submission.
func MakeCollateralAmounts(w Wallet) (*wire.MsgTx, error) {
	tx, err := makeCollateralFrom(w, false)
	if err == nil {
		return tx, nil
	}
	return makeCollateralFrom(w, true)
}

// makeCollateralFrom builds a single-output collateral transaction,
// selecting denominated coins only when allowDenominated is set.
func makeCollateralFrom(w Wallet, allowDenominated bool) (*wire.MsgTx, error) {
	vin, _, err := w.SelectCoins(MaxCollateralAmount, allowDenominated)
	if err != nil {
		return nil, err
	}
	if len(vin) == 0 {
		return nil, errors.New("privatepay: no funds available for collateral")
	}

	script, err := w.NewChangeAddress()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.TxIn = vin
	tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: int64(MaxCollateralAmount), PkScript: script})
	return tx, nil
}

// CreateDenominatedInputs breaks a wallet's non-denominated balance into
// standard-denomination outputs so future mixing rounds have denominated
// coins to work with. It selects coins once, with onlyDenominated false,
// and fills outputs greedily from the largest denomination down, at most
// EntryMaxSize of them. Unlike MakeCollateralAmounts it makes no second
// selection pass, and a remainder below the smallest denomination gets no
// output.
func CreateDenominatedInputs(w Wallet, amount btcutil.Amount) (*wire.MsgTx, error) {
	vin, _, err := w.SelectCoins(amount, false)
	if err != nil {
		return nil, err
	}
	if len(vin) == 0 {
		return nil, errors.New("privatepay: no non-denominated funds available")
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.TxIn = vin

	valueLeft := amount
	for _, denom := range StandardDenominations {
		for valueLeft >= denom && len(tx.TxOut) < EntryMaxSize {
			script, err := w.NewChangeAddress()
			if err != nil {
				break
			}
			tx.TxOut = append(tx.TxOut, &wire.TxOut{Value: int64(denom), PkScript: script})
			valueLeft -= denom
		}
	}

	if len(tx.TxOut) == 0 {
		return nil, errors.New("privatepay: amount too small for any standard denomination")
	}
	return tx, nil
}
