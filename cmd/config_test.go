// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================
// Helpers
// ============================================================

// useConfigPath points LoadConfig at a test-owned file.
func useConfigPath(t *testing.T, path string) {
	t.Helper()
	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })
}

// clearEnvOverrides neutralizes OUTRIDER_* from the test environment.
// Empty values are ignored by applyEnvOverrides.
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OUTRIDER_PORT", "OUTRIDER_URL", "OUTRIDER_USERNAME", "OUTRIDER_LOG_DIR"} {
		t.Setenv(key, "")
	}
}

// ============================================================
// Preferences file
// ============================================================

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	useConfigPath(t, path)

	saved := Config{
		Port:       "/dev/ttyUSB0",
		Username:   "dana",
		RxBreak:    "crlf",
		TxBreak:    "cr",
		LogDir:     "/var/tmp/outrider",
		SessionLog: true,
	}
	require.NoError(t, saved.Save(path))

	loaded, gotPath, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, path, gotPath)
	require.Equal(t, saved, loaded)
}

func TestConfig_FirstRunDefaults(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	useConfigPath(t, path)

	cfg, gotPath, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, path, gotPath)
	require.Equal(t, DefaultConfig(), cfg)
	require.Equal(t, "lf", cfg.RxBreak)
	require.Equal(t, "lf", cfg.TxBreak)
	require.False(t, cfg.SessionLog)
}

func TestConfig_EnvOverridesFile(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	useConfigPath(t, path)

	require.NoError(t, Config{Port: "/dev/ttyUSB0", RxBreak: "lf"}.Save(path))
	t.Setenv("OUTRIDER_PORT", "/dev/ttyACM9")
	t.Setenv("OUTRIDER_USERNAME", "ops")

	cfg, _, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM9", cfg.Port)
	require.Equal(t, "ops", cfg.Username)
	require.Equal(t, "lf", cfg.RxBreak)
}

func TestConfig_BadYAMLRejected(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	useConfigPath(t, path)

	require.NoError(t, os.WriteFile(path, []byte("port: [unclosed"), 0o600))

	_, _, err := LoadConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestConfig_SaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "config.yaml")

	require.NoError(t, Config{Port: "/dev/ttyUSB1"}.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "port: /dev/ttyUSB1")
}
