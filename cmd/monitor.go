// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"fmt"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for live tracker status",
	Long: `Monitor a VT-series tracker via an interactive terminal UI.

The TUI shows the tracker's motion state, supply and battery voltages and
the last decoded event, the device identity, a scrolling console log and
the settings read from the device. A command box sends console commands
directly.

The engine keeps polling in the background: status every 3 seconds, the
identity dump until it is complete, and automatic reconnection when the
link drops.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// engineBridge forwards engine callbacks into the TUI event loop. Line
// traffic is batched on a ticker so a chatty tracker cannot flood the
// renderer; state transitions are sent immediately.
type engineBridge struct {
	p     *tea.Program
	lines chan string
	notes chan monitorNote
	done  chan struct{}
}

func newEngineBridge() *engineBridge {
	return &engineBridge{
		lines: make(chan string, 256),
		notes: make(chan monitorNote, 64),
		done:  make(chan struct{}),
	}
}

// install wires the engine callbacks. extra, when non-nil, also sees
// every line (the session logger).
func (b *engineBridge) install(eng *kestrel.Engine, extra func(line string)) {
	eng.SetOnLine(func(line string) {
		if extra != nil {
			extra(line)
		}
		select {
		case b.lines <- line:
		default:
			// Renderer is behind; the engine queue still has the line.
		}
	})
	eng.SetConnectionLostHandler(func(err error) {
		b.p.Send(connLostMsg{err: err})
	})
	eng.SetReconnectedHandler(func(port string) {
		b.p.Send(reconnectedMsg{port: port})
	})
	eng.SetOfflineHandler(func() {
		b.p.Send(offlineMsg{})
	})
}

// logf adapts the engine's operational log to TUI notes.
func (b *engineBridge) logf(format string, args ...any) {
	note := monitorNote{at: time.Now(), text: fmt.Sprintf(format, args...), isErr: true}
	select {
	case b.notes <- note:
	default:
	}
}

// pump drains the batch channels into the program at a fixed rate.
func (b *engineBridge) pump() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			var batch monitorBatchMsg
		drainLoop:
			for {
				select {
				case line := <-b.lines:
					batch.lines = append(batch.lines, line)
				case note := <-b.notes:
					batch.notes = append(batch.notes, note)
				default:
					break drainLoop
				}
			}
			if len(batch.lines) > 0 || len(batch.notes) > 0 {
				b.p.Send(batch)
			}
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	bridge := newEngineBridge()
	eng := kestrel.NewEngine(kestrel.Config{
		Dial:    dial,
		RxBreak: rx,
		TxBreak: tx,
		Logf:    bridge.logf,
	})

	if err := eng.Open(target); err != nil {
		return err
	}
	rememberConnection(cfg, cfgPath, target)

	var sl *sessionLogger
	if cfg.SessionLog {
		sl, err = newSessionLogger(cfg.LogDir)
		if err != nil {
			eng.Close()
			return err
		}
	}

	return launchMonitor(eng, bridge, sl, target)
}

// launchMonitor runs the TUI against an opened engine. Shared with the
// demo command, which brings its own transport.
func launchMonitor(eng *kestrel.Engine, bridge *engineBridge, sl *sessionLogger, target string) error {
	m := initialMonitorModel(eng, target)
	p := tea.NewProgram(m, tea.WithAltScreen())
	bridge.p = p

	var extra func(string)
	if sl != nil {
		extra = sl.log
	}
	bridge.install(eng, extra)

	if err := eng.Start(); err != nil {
		eng.Close()
		return err
	}
	go bridge.pump()

	_, runErr := p.Run()

	close(bridge.done)
	eng.Stop()
	if sl != nil {
		sl.Close()
		fmt.Printf("Session log: %s\n", sl.path())
	}

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}
