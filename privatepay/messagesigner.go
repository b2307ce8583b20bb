// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// signMessage produces a compact, recoverable signature over the
// double-SHA256 of msg. Queue advertisements and broadcast records are
// signed this way so a verifier can recover the signing key directly from
// the signature rather than needing it supplied out of band.
func signMessage(priv *btcec.PrivateKey, msg []byte) []byte {
	key := secp.PrivKeyFromBytes(priv.Serialize())
	hash := chainhash.DoubleHashB(msg)
	return ecdsa.SignCompact(key, hash, true)
}

// verifyMessage recovers the signing key from sig and msg and reports
// whether it matches expected.
func verifyMessage(expected *btcec.PublicKey, msg, sig []byte) bool {
	hash := chainhash.DoubleHashB(msg)
	recovered, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return false
	}
	return string(recovered.SerializeCompressed()) == string(expected.SerializeCompressed())
}
