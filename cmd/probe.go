// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test connection by waiting for a console line",
	Long: `Wait for one complete console line on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
line terminated under the configured rx line break. Partial bytes do not
count; only a completed line does.

Exit codes:
  0 - Line received before timeout
  1 - Timeout reached without a complete line
  2 - Connection error

Useful for checking wiring and the line break policy before starting the
monitor.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a line")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, _, err := LoadConfig()
	if err != nil {
		return err
	}
	rx, _, err := resolveBreaks(cfg)
	if err != nil {
		return err
	}
	dial, target, err := openConnection(cfg)
	if err != nil {
		return err
	}

	conn, err := dial(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Outrider - Line Probe\n")
	fmt.Printf("Connection: %s\n", target)
	fmt.Printf("Line break: %s\n", rx)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a complete console line...\n\n")

	decoder := kestrel.NewLineDecoder(rx)
	buf := make([]byte, 128)

	lineChan := make(chan string, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				line, ok := decoder.Feed(buf[i])
				if !ok {
					continue
				}
				lineChan <- line
				return
			}
		}
	}()

	// Wait for a line or timeout
	select {
	case line := <-lineChan:
		fmt.Printf("SUCCESS: Received complete line\n")
		fmt.Printf("  Length: %d bytes\n", len(line))
		fmt.Printf("  Text: %s\n", line)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No complete line received within %d seconds\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
