// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"fmt"
	"sync"
)

// SettingKey renders the console name of a settings slot: settings[01]
// through settings[122]. Two-digit zero padding matches the tracker's
// own dump format.
func SettingKey(index int) string {
	return fmt.Sprintf("settings[%02d]", index)
}

// settingsStore holds the last settings dump read from the tracker.
// Slots are addressed 1..SettingsCount; values are the raw strings the
// tracker reported. An empty string means the slot has not been read.
type settingsStore struct {
	mu     sync.RWMutex
	values [SettingsCount]string
}

func newSettingsStore() *settingsStore {
	return &settingsStore{}
}

func (s *settingsStore) get(index int) (string, error) {
	if index < 1 || index > SettingsCount {
		return "", fmt.Errorf("%w: %d", ErrSettingIndex, index)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[index-1], nil
}

func (s *settingsStore) set(index int, value string) error {
	if index < 1 || index > SettingsCount {
		return fmt.Errorf("%w: %d", ErrSettingIndex, index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[index-1] = value
	return nil
}

// snapshot returns the populated slots keyed by index.
func (s *settingsStore) snapshot() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]string)
	for i, v := range s.values {
		if v != "" {
			out[i+1] = v
		}
	}
	return out
}

func (s *settingsStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = [SettingsCount]string{}
}
