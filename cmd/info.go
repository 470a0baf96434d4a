// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Read the device identity",
	Long: `Query the tracker's version dump and print the device identity:
firmware versions, IMEI, ICCID and the radio stack.

Exits non-zero when the dump came back incomplete, which usually means
the device is asleep or mid-boot.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	eng, target, err := openEngine()
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}
	defer eng.Stop()

	if err := eng.RequestVersion(); err != nil {
		return err
	}

	id := eng.Info()
	fmt.Printf("Device on %s\n\n", target)
	fmt.Print(kestrel.FormatIdentity(id))

	if !id.Complete() {
		return fmt.Errorf("identity incomplete (device asleep or mid-boot?)")
	}
	return nil
}
