// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsOut string

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or apply device settings",
	Long: `Work with the tracker's numbered settings slots.

"get" reads the full dump off the device as YAML; "apply" pushes a YAML
file back, writing only the slots whose values differ from what the
device currently holds.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Read all settings from the device",
	Long: `Request the settings dump and print it as YAML keyed by slot,
for example:

  settings[01]: "30"
  settings[62]: "1"
  settings[122]: apn.rovertec.net

The output round-trips through "outrider settings apply".`,
	RunE: runSettingsGet,
}

var settingsApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Apply settings from a YAML file",
	Long: `Read a YAML settings file (the "settings get" format), compare it
against the device and write the slots that differ. Slots the file does
not mention are left alone.

The device is re-read first, so a stale file only writes what actually
changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsApply,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsApplyCmd)
	settingsGetCmd.Flags().StringVarP(&settingsOut, "output", "o", "", "write the YAML here instead of stdout")
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}
	defer eng.Stop()

	fmt.Fprintln(os.Stderr, "Reading settings from device...")
	if err := eng.RequestSettings(); err != nil {
		return err
	}

	slots := eng.SettingsSnapshot()
	if len(slots) == 0 {
		return fmt.Errorf("no settings received (device asleep?)")
	}

	doc := make(map[string]string, len(slots))
	for i, v := range slots {
		doc[kestrel.SettingKey(i)] = v
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	if settingsOut == "" {
		fmt.Print(string(out))
		return nil
	}
	if err := os.WriteFile(settingsOut, out, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d settings to %s\n", len(slots), settingsOut)
	return nil
}

func runSettingsApply(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var doc map[string]string
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	wanted := make(map[int]string, len(doc))
	for key, value := range doc {
		idx, err := parseSettingKey(key)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		wanted[idx] = value
	}
	if len(wanted) == 0 {
		return fmt.Errorf("%s: no settings in file", args[0])
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}
	defer eng.Stop()

	fmt.Println("Reading current settings...")
	if err := eng.RequestSettings(); err != nil {
		return err
	}
	current := eng.SettingsSnapshot()
	if len(current) == 0 {
		return fmt.Errorf("no settings received from device")
	}

	changes := make(map[int]string)
	for idx, value := range wanted {
		if cur, ok := current[idx]; !ok || cur != value {
			changes[idx] = value
		}
	}
	if len(changes) == 0 {
		fmt.Println("Device already matches; nothing to write.")
		return nil
	}

	indices := make([]int, 0, len(changes))
	for idx := range changes {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		fmt.Printf("  %s: %q -> %q\n", kestrel.SettingKey(idx), current[idx], changes[idx])
	}

	if err := eng.ApplySettings(changes); err != nil {
		return err
	}
	fmt.Printf("Applied %d setting(s).\n", len(changes))
	return nil
}

// parseSettingKey is the inverse of kestrel.SettingKey: it extracts the
// slot index from a "settings[NN]" YAML key.
func parseSettingKey(key string) (int, error) {
	const prefix, suffix = "settings[", "]"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return 0, fmt.Errorf("bad settings key %q", key)
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
	if err != nil {
		return 0, fmt.Errorf("bad settings key %q", key)
	}
	return idx, nil
}
