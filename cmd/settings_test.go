// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"testing"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/stretchr/testify/require"
)

// ============================================================
// YAML settings keys
// ============================================================

func TestParseSettingKey(t *testing.T) {
	tests := []struct {
		key  string
		want int
	}{
		{"settings[01]", 1},
		{"settings[09]", 9},
		{"settings[62]", 62},
		{"settings[122]", 122},
	}
	for _, tt := range tests {
		got, err := parseSettingKey(tt.key)
		require.NoError(t, err, tt.key)
		require.Equal(t, tt.want, got, tt.key)
	}
}

func TestParseSettingKey_RoundTrip(t *testing.T) {
	for _, idx := range []int{1, 2, 9, 10, 62, 99, 100, kestrel.SettingsCount} {
		got, err := parseSettingKey(kestrel.SettingKey(idx))
		require.NoError(t, err)
		require.Equal(t, idx, got)
	}
}

func TestParseSettingKey_Rejects(t *testing.T) {
	bad := []string{
		"",
		"settings",
		"setting[01]",
		"settings[01",
		"settings01]",
		"settings[xx]",
		"settings[]",
		"01",
	}
	for _, key := range bad {
		_, err := parseSettingKey(key)
		require.Error(t, err, key)
	}
}
