// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// QueueAdvertisement is the signed gossip a coordinator sends out to tell
// the network it is open for entries at a given denomination. Its wire
// identity is the outpoint being used as the coordinator's collateral
// proof; the same coordinator may advertise more than one denomination at
// a time, each as its own advertisement.
type QueueAdvertisement struct {
	Vin    wire.OutPoint
	Denom  DenomMask
	Time   int64
	Ready  bool
	Sig    []byte

	// advertCount holds the store's globalCounter value at this outpoint's
	// last accepted advertisement, for the rate-limit check in Add and
	// WouldRateLimit.
	advertCount int
}

// signingString reproduces the exact byte layout the original signs over:
// the outpoint's string form concatenated with the denomination, time, and
// ready flag, each rendered the way Go's fmt renders them by default. The
// wire contract is byte-exact between signer and verifier and must not be
// altered independently on either side.
func (q *QueueAdvertisement) signingString() string {
	return fmt.Sprintf("%s%d%d%t", q.Vin.String(), q.Denom, q.Time, q.Ready)
}

// Sign signs the advertisement with priv, then immediately verifies the
// result against the corresponding public key as a self-check before the
// advertisement is ever relayed.
func (q *QueueAdvertisement) Sign(priv *btcec.PrivateKey) bool {
	q.Sig = signMessage(priv, []byte(q.signingString()))
	return q.CheckSignature(priv.PubKey())
}

// CheckSignature reports whether q's signature was produced by pubKey.
func (q *QueueAdvertisement) CheckSignature(pubKey *btcec.PublicKey) bool {
	return verifyMessage(pubKey, []byte(q.signingString()), q.Sig)
}

// IsExpired reports whether the advertisement is older than
// QueueAdTTLSeconds and should no longer be offered to a client looking to
// join a queue.
func (q *QueueAdvertisement) IsExpired(now time.Time) bool {
	return now.Unix()-q.Time > QueueAdTTLSeconds
}

// QueueStore tracks the set of currently-live queue advertisements,
// deduplicated by the coordinator's collateral outpoint, and enforces the
// re-advertisement rate limit.
type QueueStore struct {
	mu   sync.Mutex
	byIn map[wire.OutPoint]*QueueAdvertisement

	// globalCounter increments on every accepted advertisement, and
	// backs the rate-limit rule: a given coordinator may not advertise
	// again until enough other advertisements have gone by.
	globalCounter int
}

// NewQueueStore returns an empty QueueStore.
func NewQueueStore() *QueueStore {
	return &QueueStore{byIn: make(map[wire.OutPoint]*QueueAdvertisement)}
}

// Add records ad, replacing any existing advertisement from the same
// outpoint, and reports whether it was accepted under the rate limit. The
// caller is expected to have already checked ad's signature.
func (s *QueueStore) Add(ad *QueueAdvertisement, enabledMasternodes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.byIn[ad.Vin]
	if had {
		ad.advertCount = existing.advertCount
	}

	// last_advert_count + enabled/5 < global_advert_counter
	if had && ad.advertCount+enabledMasternodes/5 >= s.globalCounter {
		return false
	}

	ad.advertCount = s.globalCounter
	s.globalCounter++
	s.byIn[ad.Vin] = ad
	return true
}

// WouldRateLimit reports whether advertising again for op would currently
// be rejected by Add's rate limit, without recording anything. Used to
// gate session creation on the same limit before any session state is
// mutated.
func (s *QueueStore) WouldRateLimit(op wire.OutPoint, enabledMasternodes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.byIn[op]
	return had && existing.advertCount+enabledMasternodes/5 >= s.globalCounter
}

// Get returns the live advertisement for outpoint op, if any.
func (s *QueueStore) Get(op wire.OutPoint) (*QueueAdvertisement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.byIn[op]
	return ad, ok
}

// Remove deletes the advertisement for op, called once a client has
// committed to joining the session it announced.
func (s *QueueStore) Remove(op wire.OutPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byIn, op)
}

// Prune drops every advertisement older than QueueAdTTLSeconds and returns
// how many were removed.
func (s *QueueStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for op, ad := range s.byIn {
		if ad.IsExpired(now) {
			delete(s.byIn, op)
			removed++
		}
	}
	return removed
}

// ReadyForDenom returns every live, non-expired, ready advertisement for
// the given denomination mask, the candidate list a joining client picks
// from.
func (s *QueueStore) ReadyForDenom(denom DenomMask, now time.Time) []*QueueAdvertisement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*QueueAdvertisement
	for _, ad := range s.byIn {
		if ad.Ready && ad.Denom == denom && !ad.IsExpired(now) {
			out = append(out, ad)
		}
	}
	return out
}

// AllReady returns every live, non-expired, ready advertisement regardless
// of denomination, the full candidate list a joining client scans before
// filtering by which denominations it can itself match.
func (s *QueueStore) AllReady(now time.Time) []*QueueAdvertisement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*QueueAdvertisement
	for _, ad := range s.byIn {
		if ad.Ready && !ad.IsExpired(now) {
			out = append(out, ad)
		}
	}
	return out
}
