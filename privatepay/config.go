// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package privatepay

import "github.com/btcsuite/btcd/btcutil"

// Config carries the persistent and transient settings that govern mixing
// behavior. Persistent fields are expected to be loaded from the host
// daemon's configuration file; transient fields reflect runtime mode.
type Config struct {
	// Rounds is the number of mixing rounds a client will try to push a
	// given set of denominated coins through before considering them
	// sufficiently anonymized. Persistent. Default 2.
	Rounds int

	// AnonymizeTarget is the amount, in the chain's base unit, that the
	// automatic denominating loop will try to keep anonymized. Persistent.
	AnonymizeTarget btcutil.Amount

	// MultiSession allows more than one concurrent mixing session across
	// the wallet's denominated balance. Persistent.
	MultiSession bool

	// LiquidityProvider marks this client as a liquidity provider: it
	// always joins existing queues rather than starting its own, to avoid
	// useless inter-mixing between liquidity providers. Persistent.
	// 0 means "ordinary user", >0 means "liquidity provider".
	LiquidityProvider int

	// Enabled is the transient master switch for the mixing subsystem.
	// Disabled automatically on disk-full or backup failure.
	Enabled bool

	// MasternodeMode is true when this process is acting as a coordinator.
	MasternodeMode bool

	// LiteMode disables all mixing functionality regardless of Enabled.
	LiteMode bool

	// UnitTest relaxes collateral validation so tests don't need a live
	// mempool/chain collaborator.
	UnitTest bool
}

// DefaultConfig returns the configuration defaults used by the original
// implementation: 2 rounds, mixing disabled as a coordinator, multi-session
// off.
func DefaultConfig() Config {
	return Config{
		Rounds:          2,
		AnonymizeTarget: 1000 * btcutil.SatoshiPerBitcoin,
		MultiSession:    false,
	}
}
