// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Params groups the chain parameters a PrivatePay daemon needs alongside
// the ports its peer and RPC listeners default to.
type Params struct {
	*chaincfg.Params
	RPCClientPort string
	RPCServerPort string
}

// MainNetParams contains parameters for running a PrivatePay daemon on the
// main network.
var MainNetParams = Params{
	Params:        &chaincfg.MainNetParams,
	RPCClientPort: "8334",
	RPCServerPort: "8332",
}

// TestNet3Params contains parameters for running a PrivatePay daemon on
// test network 3.
var TestNet3Params = Params{
	Params:        &chaincfg.TestNet3Params,
	RPCClientPort: "18334",
	RPCServerPort: "18332",
}

// SimNetParams contains parameters for running a PrivatePay daemon on the
// simulation test network.
var SimNetParams = Params{
	Params:        &chaincfg.SimNetParams,
	RPCClientPort: "18556",
	RPCServerPort: "18554",
}

// TestNet4Params contains parameters for running a PrivatePay daemon on
// test network 4, which btcd's own chaincfg package doesn't ship yet.
var TestNet4Params = Params{
	Params:        &TestNet4ChainParams,
	RPCClientPort: "48334",
	RPCServerPort: "48332",
}
