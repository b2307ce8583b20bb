// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// WalletBalances bundles the balance figures the automatic denominating
// loop needs to decide whether to split coins, build collateral, or go
// ahead and start mixing: how much still needs anonymizing (capped so a
// huge balance doesn't block on a single pass), how much anonymizable
// value sits outside denominated outputs, and the confirmed/unconfirmed
// split of what is already denominated.
type WalletBalances struct {
	NeedsAnonymized        btcutil.Amount
	AnonymizableNonDenom   btcutil.Amount
	DenominatedConfirmed   btcutil.Amount
	DenominatedUnconfirmed btcutil.Amount
}

// Wallet is the coin-selection and signing surface a client session needs
// from the host wallet. It mirrors the shape of a Manager in the wallet
// package: narrow, synchronous, and free of any protocol knowledge.
type Wallet interface {
	// SelectCoins returns a set of unspent, unlocked outputs summing to
	// at least amount, restricted to denominated coins when
	// onlyDenominated is true.
	SelectCoins(amount btcutil.Amount, onlyDenominated bool) ([]*wire.TxIn, []*wire.TxOut, error)

	// LockCoin and UnlockCoin mark an outpoint as reserved for an
	// in-flight session, so the same coin is never offered to two
	// sessions at once.
	LockCoin(op wire.OutPoint)
	UnlockCoin(op wire.OutPoint)
	IsLockedCoin(op wire.OutPoint) bool

	// NewChangeAddress returns a fresh script to receive change or
	// denominated outputs.
	NewChangeAddress() ([]byte, error)

	// SignInput produces a scriptSig for tx's input at index, given the
	// previous output it spends.
	SignInput(tx *wire.MsgTx, index int, prevOut *wire.TxOut) ([]byte, error)

	// CollateralKey returns the keypair used to sign collateral
	// transactions and queue/broadcast messages.
	CollateralKey() (*btcec.PrivateKey, *btcec.PublicKey, error)

	// Locked reports whether the wallet is currently passphrase-locked,
	// gating the automatic denominating loop the same way it gates any
	// other spend.
	Locked() bool

	// NeedsBackup reports whether the wallet's keypool has run low
	// enough since the last automatic backup that mixing should pause
	// rather than burn through the remaining fresh keys.
	NeedsBackup() bool

	// HasCollateralInputs reports whether a confirmed, collateral-sized
	// UTXO is already available, so the loop can skip straight to
	// denominating instead of building one first.
	HasCollateralInputs() bool

	// MixingBalances reports the wallet's current mixing-relevant
	// balances, given minValue as the smallest amount worth anonymizing.
	MixingBalances(minValue btcutil.Amount) WalletBalances
}

// ChainClient is the minimal chain/mempool surface the package needs:
// resolving outpoints, testing mempool acceptance, broadcasting, learning
// the current tip, and reporting whether the backing chain is caught up.
type ChainClient interface {
	FetchPrevOutput(op wire.OutPoint) (*wire.TxOut, bool)
	AcceptToMemoryPool(tx *wire.MsgTx) bool
	PublishTransaction(tx *wire.MsgTx) error
	BestHeight() int32
	IsCurrent() bool
}

// PeerNotifier delivers outbound protocol messages to a specific
// participant (by address string, as tracked on PoolEntry) or broadcasts a
// queue advertisement / broadcast record to the wider peer set.
type PeerNotifier interface {
	SendToPeer(addr string, cmd string, payload interface{}) error
	RelayQueue(ad *QueueAdvertisement)
	RelayBroadcastTx(tx *BroadcastTx)
}

// Registry enumerates the coordinator fleet: masternode-equivalent peers
// eligible to run PrivatePay sessions.
type Registry interface {
	IsMasternode(addr string, pubKey *btcec.PublicKey) bool
	RandomMasternode(exclude map[string]struct{}) (addr string, pubKey *btcec.PublicKey, ok bool)
	AddressForVin(op wire.OutPoint) (addr string, pubKey *btcec.PublicKey, ok bool)
	Count() int

	// ProtocolVersion reports the wire protocol version last announced
	// by the coordinator at addr. ok is false if addr is not currently
	// known, in which case the caller must not treat version as valid.
	ProtocolVersion(addr string) (version int, ok bool)

	// RateLimited reports whether the coordinator at addr advertised a
	// queue too recently, relative to the fleet size, to be approached
	// again yet.
	RateLimited(addr string) bool

	// Self resolves this process's own entry in the masternode list. ok
	// is false if it isn't currently listed, in which case it must not
	// be allowed to run a session at all.
	Self() (addr string, pubKey *btcec.PublicKey, ok bool)
}

// Clock abstracts time.Now so timeout logic can be exercised
// deterministically in tests without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// TxHash is a small convenience wrapper so callers outside this package
// don't need to import chainhash directly just to compute a tx id when
// wiring the collaborator interfaces above.
func TxHash(tx *wire.MsgTx) chainhash.Hash {
	return tx.TxHash()
}
