// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/puracore/pura/netparams"
	"github.com/puracore/pura/privatepay"
)

// activeNetParams picks the chain parameters a daemon run targets. The
// network flags are checked in the order testnet, testnet4, simnet and the
// first one set wins; an unflagged run defaults to the main network.
func activeNetParams(cfg *config) *netparams.Params {
	switch {
	case cfg.TestNet3:
		return &netparams.TestNet3Params
	case cfg.TestNet4:
		return &netparams.TestNet4Params
	case cfg.SimNet:
		return &netparams.SimNetParams
	default:
		return &netparams.MainNetParams
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	useLogLevel(cfg.DebugLevel)

	activeParams := activeNetParams(cfg)
	log.Infof("active network: %s", activeParams.Name)

	if cfg.LiteMode {
		log.Info("lite mode enabled, exiting")
		return nil
	}

	ppCfg := privatepay.DefaultConfig()
	ppCfg.Rounds = cfg.Rounds
	ppCfg.Enabled = cfg.Enable
	ppCfg.MasternodeMode = cfg.Masternode
	ppCfg.UnitTest = cfg.UnitTest

	var mgr *privatepay.Manager
	if cfg.Masternode {
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return err
		}
		coordinator := privatepay.NewCoordinator(wire.OutPoint{}, priv, nil, nil, nil, ppCfg)
		mgr = privatepay.NewManager(coordinator, nil, nil)
	} else {
		client := privatepay.NewClient(nil, nil, ppCfg)
		mgr = privatepay.NewManager(nil, client, nil)
	}

	mgr.Start()
	defer mgr.Stop()

	log.Info("privatepayd started")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Info("shutting down")
	return nil
}
