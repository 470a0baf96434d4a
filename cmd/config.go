// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the persisted preferences: the last used connection, the
// line break policies and the session log settings.
type Config struct {
	Port       string `yaml:"port,omitempty"`
	URL        string `yaml:"url,omitempty"`
	Username   string `yaml:"username,omitempty"`
	RxBreak    string `yaml:"rx_break,omitempty"`
	TxBreak    string `yaml:"tx_break,omitempty"`
	LogDir     string `yaml:"log_dir,omitempty"`
	SessionLog bool   `yaml:"session_log,omitempty"`
}

// DefaultConfig returns the preferences used when no file exists yet.
func DefaultConfig() Config {
	return Config{
		RxBreak: "lf",
		TxBreak: "lf",
	}
}

// defaultConfigPath is ~/.config/outrider/config.yaml (or the platform
// equivalent of the user config dir).
func defaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "outrider", "config.yaml"), nil
}

// LoadConfig reads the preferences file named by --config (or the
// default path), fills in defaults for a missing file, and applies
// environment overrides. It returns the config and the path it will be
// saved back to.
func LoadConfig() (Config, string, error) {
	path := cfgFile
	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return Config{}, "", err
		}
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First run
	default:
		return Config{}, "", fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, path, nil
}

// applyEnvOverrides lets the environment trump the file. Flags still
// trump both.
func applyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"OUTRIDER_PORT", &cfg.Port},
		{"OUTRIDER_URL", &cfg.URL},
		{"OUTRIDER_USERNAME", &cfg.Username},
		{"OUTRIDER_LOG_DIR", &cfg.LogDir},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Save writes the preferences file, creating its directory on first use.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
