// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	defaultConfigFilename = "privatepayd.conf"
	defaultLogLevel       = "info"
	defaultLogFilename    = "privatepayd.log"
	defaultRounds         = 2
)

var (
	appHomeDir    = btcutil.AppDataDir("privatepayd", false)
	defaultConfig = filepath.Join(appHomeDir, defaultConfigFilename)
	defaultLogDir = filepath.Join(appHomeDir, "logs")
)

// config holds every command-line and config-file option the daemon
// understands. It is parsed once at startup and never mutated afterward.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level"`

	TestNet3 bool `long:"testnet" description:"Use the test network"`
	TestNet4 bool `long:"testnet4" description:"Use test network 4"`
	SimNet   bool `long:"simnet" description:"Use the simulation test network"`

	Masternode bool `long:"masternode" description:"Run as a PrivatePay coordinator"`
	Enable     bool `long:"enablemixing" description:"Enable automatic mixing on startup"`
	Rounds     int  `long:"mixrounds" default:"2" description:"Number of mixing rounds per denominated coin"`

	LiteMode bool `long:"litemode" description:"Disable all PrivatePay functionality"`
	UnitTest bool `long:"unittest" hidden:"true" description:"Relax collateral checks for testing"`
}

// loadConfig parses command-line flags, filling in defaults for anything
// not given.
func loadConfig() (*config, error) {
	cfg := config{
		DataDir:    appHomeDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Rounds:     defaultRounds,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	return &cfg, nil
}
