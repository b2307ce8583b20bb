// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BroadcastTx is the coordinator-signed record pinning a final mixing
// transaction: proof that a particular coordinator committed to
// broadcasting tx at sigTime. Clients use it to recognize and relay a
// completed mix without needing to re-verify every signature in it.
type BroadcastTx struct {
	Tx     *wire.MsgTx
	SigTime int64
	Sig    []byte

	// ConfirmedHeight is -1 until the transaction is seen in a block,
	// after which it is the height of that block. Used only for
	// pruning; it plays no role in validity.
	ConfirmedHeight int32
}

// signingString reproduces the original's exact signing contract: the
// transaction hash's string form concatenated with the signing time.
func (b *BroadcastTx) signingString() string {
	return fmt.Sprintf("%s%d", b.Tx.TxHash().String(), b.SigTime)
}

// Sign signs the record with priv and self-verifies the result.
func (b *BroadcastTx) Sign(priv *btcec.PrivateKey) bool {
	b.Sig = signMessage(priv, []byte(b.signingString()))
	return b.CheckSignature(priv.PubKey())
}

// CheckSignature reports whether b's signature was produced by pubKey.
func (b *BroadcastTx) CheckSignature(pubKey *btcec.PublicKey) bool {
	return verifyMessage(pubKey, []byte(b.signingString()), b.Sig)
}

// IsExpired reports whether b was confirmed more than 24 blocks before
// height and should be pruned from the broadcast-tx map.
func (b *BroadcastTx) IsExpired(height int32) bool {
	return b.ConfirmedHeight != -1 && height-b.ConfirmedHeight > 24
}

// BroadcastTxStore is the package-wide map of in-flight and recently
// confirmed broadcast records, keyed by transaction hash, guarded by its
// own mutex distinct from any session mutex.
type BroadcastTxStore struct {
	mu  sync.Mutex
	byHash map[chainhash.Hash]*BroadcastTx
}

// NewBroadcastTxStore returns an empty BroadcastTxStore.
func NewBroadcastTxStore() *BroadcastTxStore {
	return &BroadcastTxStore{byHash: make(map[chainhash.Hash]*BroadcastTx)}
}

// Add records tx under its own hash, rejecting a second record for a hash
// already present: a coordinator only gets to commit a given transaction
// once.
func (s *BroadcastTxStore) Add(tx *BroadcastTx) bool {
	hash := tx.Tx.TxHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[hash]; exists {
		return false
	}
	s.byHash[hash] = tx
	return true
}

// Get returns the broadcast record for hash, if any.
func (s *BroadcastTxStore) Get(hash chainhash.Hash) (*BroadcastTx, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byHash[hash]
	return tx, ok
}

// MarkConfirmed sets the confirmed height for hash, called once the
// coordinator's chain client reports the transaction included in a block.
func (s *BroadcastTxStore) MarkConfirmed(hash chainhash.Hash, height int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.byHash[hash]; ok {
		tx.ConfirmedHeight = height
	}
}

// Prune drops every record confirmed more than 24 blocks before height and
// returns how many were removed.
func (s *BroadcastTxStore) Prune(height int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, tx := range s.byHash {
		if tx.IsExpired(height) {
			delete(s.byHash, hash)
			removed++
		}
	}
	return removed
}
