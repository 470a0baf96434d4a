// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// consoleMode is the fixed serial geometry of the tracker console.
func consoleMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: kestrel.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// SerialConnection wraps a serial port as a kestrel.Conn. The read
// timeout makes Read return (0, nil) slices on an idle line, which the
// engine relies on for its stalled-line bookkeeping.
type SerialConnection struct {
	port serial.Port
	name string
}

// OpenSerialConnection opens the named serial device with the console
// geometry.
func OpenSerialConnection(name string) (*SerialConnection, error) {
	port, err := serial.Open(name, consoleMode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(kestrel.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return &SerialConnection{port: port, name: name}, nil
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// Reopen closes and reopens the same device path. Used by the engine's
// reconnect policy; the USB device node usually comes back under the
// same name after a tracker reboot.
func (s *SerialConnection) Reopen() error {
	s.port.Close()

	port, err := serial.Open(s.name, consoleMode())
	if err != nil {
		return fmt.Errorf("reopen serial port %s: %w", s.name, err)
	}
	if err := port.SetReadTimeout(kestrel.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", s.name, err)
	}
	s.port = port
	return nil
}

// ResetOutput drops unsent bytes so a fresh command never queues behind
// stale output on a half-dead link.
func (s *SerialConnection) ResetOutput() error {
	return s.port.ResetOutputBuffer()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket
// connection.
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection bridges a tracker console relayed over a
// WebSocket to a kestrel.Conn. Dial parameters are kept so Reopen can
// redial the same endpoint.
type WebSocketConnection struct {
	conn *websocket.Conn

	wsURL      string
	username   string
	password   string
	skipVerify bool

	buf       []byte
	bufOffset int
	closed    bool
}

// OpenWebSocketConnection dials a ws:// or wss:// console bridge with
// HTTP Basic auth.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	w := &WebSocketConnection{
		wsURL:      wsURL,
		username:   username,
		password:   password,
		skipVerify: skipSSLVerify,
	}
	if err := w.dial(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WebSocketConnection) dial() error {
	u, err := url.Parse(w.wsURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: w.skipVerify,
		}
	}

	headers := http.Header{}
	if w.username != "" && w.password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.username + ":" + w.password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, w.wsURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w.conn = conn
	w.closed = false
	w.buf = nil
	w.bufOffset = 0
	return nil
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// Serve buffered bytes from the last frame first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// The bridge relays console bytes as binary frames, but some
	// gateway builds send text frames. Either way the payload is the
	// raw console stream.
	data, err := w.readFrame()
	if err != nil {
		w.closed = true
		return 0, err
	}

	w.buf = data
	w.bufOffset = 0
	n := copy(p, w.buf)
	w.bufOffset = n
	return n, nil
}

func (w *WebSocketConnection) readFrame() ([]byte, error) {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch messageType {
		case websocket.BinaryMessage, websocket.TextMessage:
			if len(data) == 0 {
				continue
			}
			return data, nil
		default:
			continue
		}
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	w.closed = true
	return w.conn.Close()
}

// Reopen redials the stored endpoint with the stored credentials.
func (w *WebSocketConnection) Reopen() error {
	if w.conn != nil {
		w.conn.Close()
	}
	return w.dial()
}

// ResetOutput is a no-op; frames are written whole.
func (w *WebSocketConnection) ResetOutput() error {
	return nil
}

// getPassword retrieves the WebSocket password from the environment or
// prompts for it without echo.
func getPassword() (string, error) {
	if pw := os.Getenv("OUTRIDER_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// openConnection resolves the connection target from the flags, falling
// back to the preferences, and returns the dialer for it. The password
// for an authenticated WebSocket target is resolved once, up front, so
// reconnects never prompt.
func openConnection(cfg Config) (dial kestrel.DialFunc, target string, err error) {
	targetURL := wsURL
	targetPort := portName
	if targetURL == "" && targetPort == "" {
		targetURL = cfg.URL
		targetPort = cfg.Port
	}

	if targetURL != "" {
		username := wsUsername
		if username == "" {
			username = cfg.Username
		}
		password := ""
		if username != "" {
			password, err = getPassword()
			if err != nil {
				return nil, "", err
			}
		}
		skipVerify := wsNoSSLVerify

		dial = func(target string) (kestrel.Conn, error) {
			return OpenWebSocketConnection(target, username, password, skipVerify)
		}
		return dial, targetURL, nil
	}

	if targetPort != "" {
		dial = func(target string) (kestrel.Conn, error) {
			return OpenSerialConnection(target)
		}
		return dial, targetPort, nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified (none saved in preferences)")
}

// resolveBreaks picks the line break policies from the flags, falling
// back to the preferences.
func resolveBreaks(cfg Config) (rx, tx kestrel.Terminator, err error) {
	rxSpell := rxBreakFlag
	if rxSpell == "" {
		rxSpell = cfg.RxBreak
	}
	txSpell := txBreakFlag
	if txSpell == "" {
		txSpell = cfg.TxBreak
	}

	if rx, err = kestrel.ParseTerminator(rxSpell); err != nil {
		return 0, 0, fmt.Errorf("--rx-break: %w", err)
	}
	if tx, err = kestrel.ParseTerminator(txSpell); err != nil {
		return 0, 0, fmt.Errorf("--tx-break: %w", err)
	}
	return rx, tx, nil
}

// rememberConnection writes the connected target back to the
// preferences file. A save failure is not fatal.
func rememberConnection(cfg Config, cfgPath, target string) {
	if strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://") {
		cfg.URL = target
		if wsUsername != "" {
			cfg.Username = wsUsername
		}
	} else {
		cfg.Port = target
	}
	if err := cfg.Save(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

// openEngine resolves the preferences and flags, dials the target and
// returns an opened engine. One-shot commands share this; the monitor
// and console wire their own callbacks before starting.
func openEngine() (*kestrel.Engine, string, error) {
	cfg, cfgPath, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}
	rx, tx, err := resolveBreaks(cfg)
	if err != nil {
		return nil, "", err
	}
	dial, target, err := openConnection(cfg)
	if err != nil {
		return nil, "", err
	}

	eng := kestrel.NewEngine(kestrel.Config{
		Dial:    dial,
		RxBreak: rx,
		TxBreak: tx,
		Logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "[kestrel] "+format+"\n", args...)
		},
	})
	if err := eng.Open(target); err != nil {
		return nil, "", err
	}
	rememberConnection(cfg, cfgPath, target)
	return eng, target, nil
}
