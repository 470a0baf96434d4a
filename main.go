// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec
//
// Outrider - Rovertec VT-series tracker console
//
// A CLI tool for monitoring VT-series asset trackers over their serial
// console, live or through the Slate WebSocket bridge.

package main

import (
	"os"

	"github.com/Rovertec/outrider/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
