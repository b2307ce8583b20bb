// Copyright (c) 2025 The Pura Core developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/puracore/pura/privatepay"
)

var log = btclog.NewBackend(os.Stdout).Logger("PPAY")

func useLogLevel(level string) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	log.SetLevel(lvl)
	privatepay.UseLogger(log)
}
