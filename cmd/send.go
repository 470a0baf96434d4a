// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendForceCR bool

var sendCmd = &cobra.Command{
	Use:   "send <command>...",
	Short: "Send one console command to the tracker",
	Long: `Send a console command and exit without waiting for a reply.

Multiple arguments are joined with spaces, so quoting the whole command
is optional. Use "outrider console" in a second terminal to watch the
device's response.

Some legacy firmware only accepts a bare carriage return as the command
terminator; --cr forces that regardless of the configured tx break.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendForceCR, "cr", false, "terminate with a bare CR regardless of the tx break")
}

func runSend(cmd *cobra.Command, args []string) error {
	eng, target, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	command := strings.Join(args, " ")
	if err := eng.Send(command, sendForceCR); err != nil {
		return err
	}
	fmt.Printf("Sent %q to %s\n", command, target)
	return nil
}
