// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import (
	"math/rand"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// StandardDenominations is the fixed, ordered list of standard output
// values used to equalize joint-transaction outputs. Within a mixing pool
// each denomination is convertible to the next: ten of one denomination
// sums to one of the denomination above it.
var StandardDenominations = []btcutil.Amount{
	10*btcutil.SatoshiPerBitcoin + 10000,
	1*btcutil.SatoshiPerBitcoin + 1000,
	(btcutil.SatoshiPerBitcoin / 10) + 100,
	(btcutil.SatoshiPerBitcoin / 100) + 10,
}

// maxDenoms is the number of bits a DenomMask may legally use.
func maxDenoms() int {
	return len(StandardDenominations)
}

// DenomMask is a bitset where bit i is set iff the transaction uses
// StandardDenominations[i]. A mask of 0 means "non-denom" (see
// DenominationsToMask).
type DenomMask int

// DenominationsToMask returns the bitmask of denominations present among
// outs. If any output does not match a standard denomination the whole set
// is considered non-denom and 0 is returned.
func DenominationsToMask(outs []*wire.TxOut) DenomMask {
	return denominationsToMask(outs, false)
}

// denominationsToMask tallies which standard denominations are present in
// outs. With singleRandom set it mirrors the original's fSingleRandomDenom
// path: a coin is flipped at each present denomination in index order and
// only the first one that lands "on" is kept, so lower indices are
// favoured and a mask of 0 is possible even when denominations are present.
func denominationsToMask(outs []*wire.TxOut, singleRandom bool) DenomMask {
	used := make([]bool, maxDenoms())

	for _, out := range outs {
		found := false
		for i, d := range StandardDenominations {
			if btcutil.Amount(out.Value) == d {
				used[i] = true
				found = true
			}
		}
		if !found {
			return 0
		}
	}

	var mask DenomMask
	for i, u := range used {
		bit := u
		if singleRandom {
			bit = u && rand.Intn(2) == 1
		}
		if bit {
			mask |= DenomMask(1 << i)
			if singleRandom {
				break
			}
		}
	}
	return mask
}

// MaskToBits returns the list of denomination indices present in mask, or
// ok=false if mask has no bits set or is out of the representable range.
func MaskToBits(mask DenomMask) (bits []int, ok bool) {
	if int(mask) >= (1 << maxDenoms()) {
		return nil, false
	}
	for i := 0; i < maxDenoms(); i++ {
		if mask&(1<<i) != 0 {
			bits = append(bits, i)
		}
	}
	return bits, len(bits) > 0
}

// RandomSingleDenomMaskFromAmounts returns a mask with exactly one bit set,
// chosen uniformly from the multiset of standard denominations present
// among amounts; amounts that match no standard denomination are ignored.
// Returns 0 if none of amounts match a standard denomination.
func RandomSingleDenomMaskFromAmounts(amounts []btcutil.Amount) DenomMask {
	var present []int
	for _, a := range amounts {
		for i, d := range StandardDenominations {
			if a == d {
				present = append(present, i)
			}
		}
	}
	if len(present) == 0 {
		return 0
	}
	return DenomMask(1 << present[rand.Intn(len(present))])
}

// DenominationsToString renders mask the way the daemon's logs and status
// strings do: "+" joined amounts, "non-denom" for a zero mask, or
// "out-of-bounds" for a mask wider than the known denomination table.
func DenominationsToString(mask DenomMask) string {
	if int(mask) >= (1 << maxDenoms()) {
		return "out-of-bounds"
	}

	var parts []string
	for i, d := range StandardDenominations {
		if mask&(1<<i) != 0 {
			parts = append(parts, d.String())
		}
	}
	if len(parts) == 0 {
		return "non-denom"
	}
	return strings.Join(parts, "+")
}

// SmallestDenomination returns the smallest standard denomination amount.
func SmallestDenomination() btcutil.Amount {
	smallest := StandardDenominations[0]
	for _, d := range StandardDenominations[1:] {
		if d < smallest {
			smallest = d
		}
	}
	return smallest
}
