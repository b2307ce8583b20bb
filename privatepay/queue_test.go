// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestQueueAdvertisementSignAndVerify(t *testing.T) {
	t.Parallel()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	ad := &QueueAdvertisement{
		Vin:   wire.OutPoint{Index: 1},
		Denom: DenomMask(1),
		Time:  1000,
		Ready: true,
	}
	require.True(t, ad.Sign(priv))
	require.True(t, ad.CheckSignature(priv.PubKey()))

	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	require.False(t, ad.CheckSignature(other.PubKey()))

	ad.Ready = false
	require.False(t, ad.CheckSignature(priv.PubKey()))
}

func TestQueueAdvertisementExpiry(t *testing.T) {
	t.Parallel()

	ad := &QueueAdvertisement{Time: time.Unix(1000, 0).Unix()}
	require.False(t, ad.IsExpired(time.Unix(1000+QueueAdTTLSeconds, 0)))
	require.True(t, ad.IsExpired(time.Unix(1000+QueueAdTTLSeconds+1, 0)))
}

func TestQueueStoreRateLimit(t *testing.T) {
	t.Parallel()

	s := NewQueueStore()
	vin := wire.OutPoint{Index: 1}

	// enabled=5 gives a threshold of 1: the coordinator's own advertCount
	// (0, recorded at its first accepted advert) plus that threshold must
	// stay below the current globalCounter for a re-advertisement to pass.
	require.True(t, s.Add(&QueueAdvertisement{Vin: vin, Ready: true}, 5))
	require.False(t, s.Add(&QueueAdvertisement{Vin: vin, Ready: true}, 5))

	// Other coordinators advertising in the meantime push globalCounter up
	// enough that the first coordinator's next advert clears the threshold.
	other := wire.OutPoint{Index: 2}
	for i := 0; i < 5; i++ {
		s.Add(&QueueAdvertisement{Vin: other, Ready: true}, 5)
		other.Index++
	}
	require.True(t, s.Add(&QueueAdvertisement{Vin: vin, Ready: true}, 5))
}

func TestQueueStorePrune(t *testing.T) {
	t.Parallel()

	s := NewQueueStore()
	now := time.Now()

	s.Add(&QueueAdvertisement{Vin: wire.OutPoint{Index: 1}, Time: now.Unix(), Ready: true}, 0)
	s.Add(&QueueAdvertisement{Vin: wire.OutPoint{Index: 2}, Time: now.Add(-time.Hour).Unix(), Ready: true}, 0)

	removed := s.Prune(now)
	require.Equal(t, 1, removed)

	_, ok := s.Get(wire.OutPoint{Index: 1})
	require.True(t, ok)
	_, ok = s.Get(wire.OutPoint{Index: 2})
	require.False(t, ok)
}

func TestQueueStoreRemove(t *testing.T) {
	t.Parallel()

	s := NewQueueStore()
	vin := wire.OutPoint{Index: 1}
	s.Add(&QueueAdvertisement{Vin: vin, Ready: true}, 0)

	s.Remove(vin)
	_, ok := s.Get(vin)
	require.False(t, ok)
}
