// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Line break flags
	rxBreakFlag string
	txBreakFlag string

	// Preferences file override
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "outrider",
	Short: "Rovertec VT-series tracker console",
	Long: `Outrider - Console monitor and provisioning tool for Rovertec VT-series
asset trackers.

Provides commands for live status monitoring, raw console streaming,
device identity, settings provisioning, capture replay and a simulated
tracker for offline work.

Connection modes:
  Serial:    --port /dev/ttyUSB0 (the console always runs 115200 8N1)
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the OUTRIDER_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

The last used connection is remembered in the preferences file (default
~/.config/outrider/config.yaml), so later invocations can omit the flags.`,
	Version: "0.3.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Line framing flags
	rootCmd.PersistentFlags().StringVar(&rxBreakFlag, "rx-break", "", "Receive line break: lf, cr or crlf")
	rootCmd.PersistentFlags().StringVar(&txBreakFlag, "tx-break", "", "Transmit line break: lf, cr or crlf")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Preferences file (default ~/.config/outrider/config.yaml)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
