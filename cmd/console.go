// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
)

var captureFile string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Stream the tracker console to stdout",
	Long: `Stream every line the tracker prints, timestamped, to stdout.

The engine keeps parsing in the background, so the device identity is
fetched and reboots are ridden out exactly as in the TUI. Stop with
Ctrl-C to get a session summary.

With --capture the session is also recorded to a CBOR capture file that
"outrider replay" can feed back through the parser later.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&captureFile, "capture", "", "record the session to a CBOR capture file")
}

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := LoadConfig()
	if err != nil {
		return err
	}
	rx, tx, err := resolveBreaks(cfg)
	if err != nil {
		return err
	}
	dial, target, err := openConnection(cfg)
	if err != nil {
		return err
	}

	eng := kestrel.NewEngine(kestrel.Config{
		Dial:    dial,
		RxBreak: rx,
		TxBreak: tx,
		Logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "[kestrel] "+format+"\n", args...)
		},
	})
	if err := eng.Open(target); err != nil {
		return err
	}
	rememberConnection(cfg, cfgPath, target)

	var capFile *os.File
	var capture *kestrel.CaptureWriter
	if captureFile != "" {
		capFile, err = os.Create(captureFile)
		if err != nil {
			eng.Close()
			return fmt.Errorf("capture file: %w", err)
		}
		capture, err = kestrel.NewCaptureWriter(capFile, target)
		if err != nil {
			capFile.Close()
			eng.Close()
			return err
		}
	}

	var sl *sessionLogger
	if cfg.SessionLog {
		sl, err = newSessionLogger(cfg.LogDir)
		if err != nil {
			eng.Close()
			return err
		}
	}

	// The engine gives up after its reconnect budget; that ends the
	// stream. Buffered so repeated outages cannot block the callback.
	offline := make(chan struct{}, 1)
	eng.SetOfflineHandler(func() {
		select {
		case offline <- struct{}{}:
		default:
		}
	})
	eng.SetConnectionLostHandler(func(err error) {
		fmt.Fprintf(os.Stderr, "link lost: %v (reconnecting)\n", err)
	})

	eng.SetOnLine(func(line string) {
		now := time.Now()
		fmt.Println(kestrel.FormatLine(now, line))
		if sl != nil {
			sl.log(line)
		}
		if capture != nil {
			if werr := capture.Write(now, line); werr != nil {
				fmt.Fprintf(os.Stderr, "capture write: %v\n", werr)
			}
		}
	})

	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}

	fmt.Fprintf(os.Stderr, "Streaming %s (Ctrl-C to stop)\n", target)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		fmt.Fprintln(os.Stderr)
	case <-offline:
		fmt.Fprintln(os.Stderr, "There was a connection error. Please reconnect the COM port.")
	}

	eng.Stop()

	fmt.Print(eng.Stats().String())

	if capFile != nil {
		if err := capFile.Close(); err != nil {
			return fmt.Errorf("closing capture: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Capture written to %s\n", captureFile)
	}
	if sl != nil {
		sl.Close()
		fmt.Fprintf(os.Stderr, "Session log: %s\n", sl.path())
	}
	return nil
}
