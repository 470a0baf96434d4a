// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
)

var replayLines bool

// Polling cadence the live engine uses, applied to capture timestamps.
const replayPollEvery = 3 * time.Second

var replayCmd = &cobra.Command{
	Use:   "replay <capture.cbor>",
	Short: "Re-run a captured session through the parser",
	Long: `Feed a CBOR capture from "outrider console --capture" back through
the parsing engine, polling at the same cadence the live engine would
have, and print the final status and session counters.

Useful for reproducing a parsing problem from a field capture without
the hardware on the desk.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayLines, "lines", false, "print each line with its original timestamp")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	cr, err := kestrel.NewCaptureReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	hdr := cr.Header()
	fmt.Printf("Capture of %s, started %s\n\n", hdr.Port, hdr.Started.Format("2006-01-02 15:04:05"))

	eng := kestrel.NewEngine(kestrel.Config{})

	var count int
	var lastPoll time.Time
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", args[0], count+1, err)
		}
		count++

		if replayLines {
			fmt.Println(kestrel.FormatLine(rec.T, rec.Line))
		}

		eng.Ingest(rec.Line)
		if lastPoll.IsZero() || rec.T.Sub(lastPoll) >= replayPollEvery {
			// Harvest before the poll: PollStatus clears matched
			// lines, and a version dump in the capture only comes
			// around once.
			eng.HarvestIdentity()
			eng.PollStatus()
			lastPoll = rec.T
		}
	}
	eng.HarvestIdentity()
	eng.PollStatus()

	if replayLines {
		fmt.Println()
	}
	fmt.Println(kestrel.FormatStatus(eng.Status()))
	fmt.Println()
	if id := eng.Info(); id != (kestrel.Identity{}) {
		fmt.Print(kestrel.FormatIdentity(id))
		fmt.Println()
	}
	fmt.Print(eng.Stats().String())
	fmt.Printf("%d lines replayed\n", count)
	return nil
}
