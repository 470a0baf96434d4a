// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/creack/pty"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Helpers
// ============================================================

// lineLog records lines delivered by the engine's OnLine callback.
type lineLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLog) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *lineLog) has(line string) bool {
	return l.any(func(got string) bool { return got == line })
}

func (l *lineLog) any(pred func(string) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if pred(got) {
			return true
		}
	}
	return false
}

// waitForCond polls until cond holds or the deadline passes.
func waitForCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// readConnLine assembles one complete line from a Conn.
func readConnLine(t *testing.T, conn kestrel.Conn, term kestrel.Terminator) string {
	t.Helper()
	dec := kestrel.NewLineDecoder(term)
	buf := make([]byte, 64)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			if line, ok := dec.Feed(buf[i]); ok {
				return line
			}
		}
	}
	t.Fatal("timeout waiting for a complete line")
	return ""
}

// ============================================================
// Serial over a pty pair
// ============================================================

func TestSerialConnection_ChatOverPty(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	conn, err := OpenSerialConnection(slave.Name())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Master plays the tracker: it emits one voltage line.
	_, err = master.Write([]byte("meter Vin 1250 Batt 905\n"))
	require.NoError(t, err)
	require.Equal(t, "meter Vin 1250 Batt 905", readConnLine(t, conn, kestrel.TermLF))

	// Console side sends a command, tracker side should see it.
	fromConn := make(chan string, 1)
	errors := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := master.Read(buf)
		if err != nil {
			errors <- err
			return
		}
		fromConn <- string(buf[:n])
	}()

	_, err = conn.Write([]byte("version\n"))
	require.NoError(t, err)

	select {
	case msg := <-fromConn:
		require.Equal(t, "version\n", msg)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for the command on the master side")
	}
}

func TestEngine_SerialOverPty(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	eng := kestrel.NewEngine(kestrel.Config{
		Dial: func(target string) (kestrel.Conn, error) {
			return OpenSerialConnection(target)
		},
		RxBreak: kestrel.TermLF,
		TxBreak: kestrel.TermLF,
	})
	require.NoError(t, eng.Open(slave.Name()))

	var rec lineLog
	eng.SetOnLine(rec.add)
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)

	const report = "GPS fix ok sats: 08 Moving Vin 12400 Batt 3900"
	_, err = master.Write([]byte(report + "\n"))
	require.NoError(t, err)

	waitForCond(t, "GPS report", func() bool { return rec.has(report) })

	eng.PollStatus()
	st := eng.Status()
	require.Equal(t, kestrel.StateMoving, st.State)
	require.Equal(t, "12400 mV", st.Vin)
	require.Equal(t, "3900 mV", st.Batt)
}

// ============================================================
// WebSocket bridge
// ============================================================

// wsEchoServer upgrades and echoes every message back as binary.
func wsEchoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_Echo(t *testing.T) {
	conn, err := OpenWebSocketConnection(wsEchoServer(t), "", "", false)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Write([]byte("at\n"))
	require.NoError(t, err)

	// Read through a deliberately small buffer so one frame spans
	// several Read calls.
	var got []byte
	buf := make([]byte, 2)
	for len(got) < 3 {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, "at\n", string(got))
}

func TestWebSocketConnection_TextFramesAccepted(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		// Some gateway builds relay the console as text frames.
		c.WriteMessage(websocket.TextMessage, []byte("boot banner\n"))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, "boot banner", readConnLine(t, conn, kestrel.TermLF))
}

func TestWebSocketConnection_BasicAuth(t *testing.T) {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("dana:secret"))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c.Close()
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := OpenWebSocketConnection(url, "dana", "wrong", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 401")

	conn, err := OpenWebSocketConnection(url, "dana", "secret", false)
	require.NoError(t, err)
	conn.Close()
}

func TestWebSocketConnection_Reopen(t *testing.T) {
	conn, err := OpenWebSocketConnection(wsEchoServer(t), "", "", false)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Write([]byte("first\n"))
	require.NoError(t, err)
	require.Equal(t, "first", readConnLine(t, conn, kestrel.TermLF))

	require.NoError(t, conn.Reopen())

	_, err = conn.Write([]byte("second\n"))
	require.NoError(t, err)
	require.Equal(t, "second", readConnLine(t, conn, kestrel.TermLF))
}

func TestWebSocketConnection_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://bridge.example", "", "", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported URL scheme")
}

// ============================================================
// Target resolution
// ============================================================

func TestOpenConnection_RequiresTarget(t *testing.T) {
	oldPort, oldURL := portName, wsURL
	portName, wsURL = "", ""
	t.Cleanup(func() { portName, wsURL = oldPort, oldURL })

	_, _, err := openConnection(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--port or --url")
}

func TestOpenConnection_FlagTrumpsConfig(t *testing.T) {
	oldPort, oldURL := portName, wsURL
	portName, wsURL = "/dev/ttyACM3", ""
	t.Cleanup(func() { portName, wsURL = oldPort, oldURL })

	_, target, err := openConnection(Config{Port: "/dev/ttyUSB0"})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyACM3", target)
}
