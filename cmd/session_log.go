// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
)

// sessionLogger mirrors console lines into a timestamped file. Safe for
// concurrent use; the engine's line callback runs on the reader
// goroutine.
type sessionLogger struct {
	mu   sync.Mutex
	f    *os.File
	name string
}

// newSessionLogger creates outrider-YYYYMMDD-HHMMSS.log under dir. An
// empty dir falls back to <user cache dir>/outrider.
func newSessionLogger(dir string) (*sessionLogger, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve log dir: %w", err)
		}
		dir = filepath.Join(base, "outrider")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("outrider-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &sessionLogger{f: f, name: name}, nil
}

// log appends one console line with its arrival timestamp.
func (l *sessionLogger) log(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.f, kestrel.FormatLine(time.Now(), line))
}

// path returns the log file name.
func (l *sessionLogger) path() string {
	return l.name
}

func (l *sessionLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
