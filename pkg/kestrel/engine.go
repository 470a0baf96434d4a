// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a byte transport to a tracker console.
//
// Read may return (0, nil) on an idle timeout; the engine treats that as
// no data and keeps the read loop responsive to Stop. Reopen closes and
// reopens the same endpoint on the same handle. ResetOutput drops any
// unsent bytes; transports without that notion return nil.
type Conn interface {
	io.ReadWriteCloser
	Reopen() error
	ResetOutput() error
}

// DialFunc opens a transport to the named port.
type DialFunc func(port string) (Conn, error)

// Config configures an Engine.
type Config struct {
	// Dial opens transports for Open and the redial fallback of
	// Reconnect. May be nil for an offline engine fed through Ingest.
	Dial DialFunc

	// RxBreak and TxBreak are the line break policies for the two
	// directions of the link. Zero value is TermLF for both.
	RxBreak Terminator
	TxBreak Terminator

	// Logf receives operational messages. May be nil.
	Logf func(format string, args ...any)
}

// Engine owns a tracker connection: the reader that frames and queues
// console lines, the poller that mines them for status, and the console
// request/response exchanges. All methods are safe for concurrent use.
type Engine struct {
	dial DialFunc
	logf func(format string, args ...any)

	connMu sync.RWMutex
	conn   Conn
	port   string
	live   bool

	decMu sync.Mutex
	dec   *LineDecoder

	txMu    sync.Mutex
	txBreak Terminator

	queue    *LineQueue
	status   *statusRecord
	info     *identityRecord
	settings *settingsStore
	stats    *Statistics

	// scanMu serializes queue consumers: poll rounds, console
	// exchanges and the reboot wait. The reader never takes it.
	scanMu  sync.Mutex
	sendMu  sync.Mutex
	applyMu sync.Mutex

	loopMu  sync.Mutex
	halt    chan struct{}
	wg      sync.WaitGroup
	running bool

	infoPending atomic.Bool

	rebootMu    sync.Mutex
	rebootPhase RebootPhase

	cbMu          sync.RWMutex
	onLine        func(line string)
	onConnLost    func(err error)
	onReconnected func(port string)
	onOffline     func()

	// Timings, overridable in tests.
	lineTimeout    time.Duration
	settleSettings time.Duration
	settleVersion  time.Duration
	settleSend     time.Duration
	settleApply    time.Duration
	reconnectWait  time.Duration
	rebootPollIvl  time.Duration
	rebootDeadline time.Duration
	rebootSettleD  time.Duration
	pollInterval   time.Duration
	infoRetryIvl   time.Duration
}

// NewEngine creates an engine. It does not touch the transport; call
// Open and Start to bring the link up.
func NewEngine(cfg Config) *Engine {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Engine{
		dial:     cfg.Dial,
		logf:     logf,
		dec:      NewLineDecoder(cfg.RxBreak),
		txBreak:  cfg.TxBreak,
		queue:    NewLineQueue(),
		status:   newStatusRecord(),
		info:     newIdentityRecord(),
		settings: newSettingsStore(),
		stats:    NewStatistics(),

		lineTimeout:    LineTimeout,
		settleSettings: settingsSettle,
		settleVersion:  versionSettle,
		settleSend:     sendSettle,
		settleApply:    applyWait,
		reconnectWait:  reconnectInterval,
		rebootPollIvl:  rebootPoll,
		rebootDeadline: rebootTimeout,
		rebootSettleD:  rebootSettle,
		pollInterval:   statusPollInterval,
		infoRetryIvl:   infoRetryInterval,
	}
}

//////////////////////////////////////////////////////////////
// Connection lifecycle
//////////////////////////////////////////////////////////////

// Open dials the named port and makes it the live connection, closing
// any previous one. A fresh connection arms the identity refresh.
func (e *Engine) Open(port string) error {
	if port == "" {
		return fmt.Errorf("kestrel: no port given")
	}
	if e.dial == nil {
		return fmt.Errorf("kestrel: engine has no dialer")
	}

	conn, err := e.dial(port)
	if err != nil {
		return transportErr("dial", port, err)
	}

	e.connMu.Lock()
	old := e.conn
	e.conn = conn
	e.port = port
	e.live = true
	e.connMu.Unlock()

	if old != nil {
		old.Close()
	}

	e.infoPending.Store(true)
	e.logf("connected to %s", port)
	return nil
}

// Close drops the connection, forgets the port and empties the line
// queue.
func (e *Engine) Close() error {
	e.connMu.Lock()
	conn := e.conn
	port := e.port
	e.conn = nil
	e.port = ""
	e.live = false
	e.connMu.Unlock()

	e.queue.Clear()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return transportErr("close", port, err)
	}
	return nil
}

// ChangePort closes the current connection and opens the named port.
func (e *Engine) ChangePort(port string) error {
	e.Close()
	return e.Open(port)
}

// Reconnect reopens the current handle if one exists, otherwise redials
// the last port.
func (e *Engine) Reconnect() error {
	e.connMu.RLock()
	conn := e.conn
	port := e.port
	e.connMu.RUnlock()

	if conn != nil {
		if err := conn.Reopen(); err != nil {
			return transportErr("reopen", port, err)
		}
		e.setLive(true)
		return nil
	}
	if port == "" {
		return ErrNotConnected
	}
	return e.Open(port)
}

// Live reports whether the connection is considered healthy.
func (e *Engine) Live() bool {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.live
}

// Port returns the connected port name, empty when closed.
func (e *Engine) Port() string {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.port
}

func (e *Engine) setLive(live bool) {
	e.connMu.Lock()
	e.live = live
	e.connMu.Unlock()
}

func (e *Engine) currentConn() Conn {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.conn
}

//////////////////////////////////////////////////////////////
// Loop lifecycle
//////////////////////////////////////////////////////////////

// Start launches the reader and the status poller. It is a no-op when
// they are already running.
func (e *Engine) Start() error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.running {
		return nil
	}
	if !e.Live() {
		return ErrNotConnected
	}

	e.halt = make(chan struct{})
	e.running = true
	e.wg.Add(2)
	go e.readLoop(e.halt)
	go e.pollLoop(e.halt)
	return nil
}

// Stop halts the loops, closes the connection to unblock the reader,
// and joins. The engine can be reopened and restarted afterwards.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	if !e.running {
		e.loopMu.Unlock()
		return
	}
	e.running = false
	close(e.halt)
	e.loopMu.Unlock()

	e.Close()
	e.wg.Wait()
}

func (e *Engine) haltChan() chan struct{} {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if !e.running {
		return nil
	}
	return e.halt
}

// waitOrHalt sleeps for d, cut short when the engine stops. Reports
// whether the full wait elapsed.
func (e *Engine) waitOrHalt(d time.Duration) bool {
	halt := e.haltChan()
	if halt == nil {
		time.Sleep(d)
		return true
	}
	select {
	case <-halt:
		return false
	case <-time.After(d):
		return true
	}
}

func halted(halt <-chan struct{}) bool {
	select {
	case <-halt:
		return true
	default:
		return false
	}
}

//////////////////////////////////////////////////////////////
// Reader
//////////////////////////////////////////////////////////////

func (e *Engine) readLoop(halt chan struct{}) {
	defer e.wg.Done()

	buf := make([]byte, 256)
	lineBegan := time.Now()

	for {
		if halted(halt) {
			return
		}

		conn := e.currentConn()
		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			if halted(halt) {
				return
			}
			if !e.recover(halt, err) {
				return
			}
			lineBegan = time.Now()
			continue
		}

		if n == 0 {
			// Idle timeout slice. A silent tracker still has to
			// produce sentinels on schedule.
			if time.Since(lineBegan) > e.lineTimeout {
				e.emitSentinel()
				lineBegan = time.Now()
			}
			continue
		}

		for i := 0; i < n; i++ {
			if time.Since(lineBegan) > e.lineTimeout {
				e.emitSentinel()
				lineBegan = time.Now()
			}
			if line, ok := e.feed(buf[i]); ok {
				e.pushLine(line)
				lineBegan = time.Now()
			}
		}
	}
}

func (e *Engine) feed(b byte) (string, bool) {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	return e.dec.Feed(b)
}

func (e *Engine) abandonLine() {
	e.decMu.Lock()
	defer e.decMu.Unlock()
	e.dec.Abandon()
}

// emitSentinel abandons the stalled partial line and pushes the
// sentinel in its place.
func (e *Engine) emitSentinel() {
	e.abandonLine()
	e.stats.addSentinel()
	e.pushLine(SentinelLine)
}

// pushLine runs a completed line through the sleep latch and into the
// queue, then hands it to the line callback.
func (e *Engine) pushLine(line string) {
	e.stats.addLine(len(line))

	// While the tracker reboots, nothing may be evicted: the boot
	// marker has to survive until the reboot wait sees it.
	hold := e.status.event() == EventDeviceReboot

	e.status.wakeOnLine(line)

	switch e.queue.Push(line, hold) {
	case PushOverflowed:
		e.stats.addOverflow()
		e.logf("%v, queue cleared", ErrQueueOverflow)
	case PushEvictedOldest:
		e.stats.addEviction()
	}

	e.cbMu.RLock()
	cb := e.onLine
	e.cbMu.RUnlock()
	if cb != nil {
		cb(line)
	}
}

// Ingest feeds a line into the engine as if the reader had framed it
// off the transport. Replay and tests use it to drive the parse path
// without a connection.
func (e *Engine) Ingest(line string) {
	e.pushLine(line)
}

// recover runs the reconnect policy after a dead read. It reports
// whether the read loop should continue.
func (e *Engine) recover(halt chan struct{}, readErr error) bool {
	port := e.Port()
	e.setLive(false)
	e.abandonLine()
	e.logf("read failed on %s: %v", port, readErr)

	e.cbMu.RLock()
	lost := e.onConnLost
	e.cbMu.RUnlock()
	if lost != nil {
		lost(transportErr("read", port, readErr))
	}

	for attempt := 1; attempt <= reconnectAttempts; attempt++ {
		if halted(halt) {
			return false
		}
		err := e.Reconnect()
		if err == nil {
			e.stats.addReconnect()
			port = e.Port()
			e.logf("reconnected to %s (attempt %d)", port, attempt)
			e.pushLine(fmt.Sprintf("Reconnected to %s.", port))

			e.cbMu.RLock()
			back := e.onReconnected
			e.cbMu.RUnlock()
			if back != nil {
				back(port)
			}
			return true
		}
		e.logf("reconnect attempt %d/%d failed: %v", attempt, reconnectAttempts, err)
		if attempt < reconnectAttempts {
			select {
			case <-halt:
				return false
			case <-time.After(e.reconnectWait):
			}
		}
	}

	e.logf("giving up on %s after %d reconnect attempts", port, reconnectAttempts)
	e.cbMu.RLock()
	off := e.onOffline
	e.cbMu.RUnlock()
	if off != nil {
		off()
	}
	return false
}

//////////////////////////////////////////////////////////////
// Poller
//////////////////////////////////////////////////////////////

func (e *Engine) pollLoop(halt chan struct{}) {
	defer e.wg.Done()

	statusTick := time.NewTicker(e.pollInterval)
	defer statusTick.Stop()
	infoTick := time.NewTicker(e.infoRetryIvl)
	defer infoTick.Stop()

	for {
		select {
		case <-halt:
			return

		case <-infoTick.C:
			if !e.infoPending.Load() || !e.Live() {
				continue
			}
			if err := e.RequestVersion(); err != nil {
				e.logf("identity refresh: %v", err)
				continue
			}
			if e.Info().Complete() {
				e.infoPending.Store(false)
			}

		case <-statusTick.C:
			if !e.Live() {
				continue
			}
			e.PollStatus()
			if e.status.event() == EventDeviceReboot {
				e.handleReboot(halt)
			}
		}
	}
}

// PollStatus runs one scan round over the queued lines: state first,
// then voltage, then event.
func (e *Engine) PollStatus() {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	e.scanState()
	e.scanVolts()
	e.scanEvent()
}

func (e *Engine) handleReboot(halt chan struct{}) {
	if err := e.rebootWait(halt); err != nil {
		e.logf("reboot wait: %v", err)
	}
	if halted(halt) {
		return
	}
	e.info.clear()
	e.infoPending.Store(true)
}

// rebootWait blocks until the tracker announces its boot, then settles.
// Queue consumers stay locked out for the whole window so nothing can
// steal the boot marker. A missed deadline still completes the wait so
// a lost marker cannot wedge the poller in reboot handling forever.
func (e *Engine) rebootWait(halt chan struct{}) error {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	e.setRebootPhase(RebootWaiting)
	defer e.setRebootPhase(RebootIdle)

	deadline := time.Now().Add(e.rebootDeadline)
	tick := time.NewTicker(e.rebootPollIvl)
	defer tick.Stop()

	var waitErr error
	for {
		found := false
		e.queue.Scan(func(line string) ScanAction {
			if containsBootMarker(line) {
				found = true
				return ScanStop
			}
			return ScanNext
		})
		if found {
			break
		}
		if time.Now().After(deadline) {
			waitErr = ErrRebootTimeout
			break
		}
		select {
		case <-halt:
			return ErrClosed
		case <-tick.C:
		}
	}

	e.setRebootPhase(RebootSettling)
	select {
	case <-halt:
		return ErrClosed
	case <-time.After(e.rebootSettleD):
	}

	e.status.setEvent(EventRebootComplete)
	e.info.clearBoot()
	e.queue.Clear()
	return waitErr
}

func (e *Engine) setRebootPhase(p RebootPhase) {
	e.rebootMu.Lock()
	e.rebootPhase = p
	e.rebootMu.Unlock()
}

// RebootPhase reports where a reboot wait currently stands.
func (e *Engine) RebootPhase() RebootPhase {
	e.rebootMu.Lock()
	defer e.rebootMu.Unlock()
	return e.rebootPhase
}

//////////////////////////////////////////////////////////////
// Console commands
//////////////////////////////////////////////////////////////

// Send writes a console command with the transmit line break appended.
// forceCR overrides the policy with a bare carriage return; some
// tracker bootloaders only accept CR-framed input. A write failure
// marks the connection dead.
func (e *Engine) Send(cmd string, forceCR bool) error {
	e.connMu.RLock()
	conn := e.conn
	port := e.port
	live := e.live
	e.connMu.RUnlock()

	if conn == nil || !live {
		return ErrNotConnected
	}

	term := e.txTerm()
	if forceCR {
		term = TermCR
	}
	payload := []byte(cmd + term.eol())

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if err := conn.ResetOutput(); err != nil {
		e.logf("output reset on %s: %v", port, err)
	}
	if _, err := conn.Write(payload); err != nil {
		e.setLive(false)
		return transportErr("write", port, err)
	}

	// Let the tracker's line buffer drain before anyone writes again.
	time.Sleep(e.settleSend)
	return nil
}

// RequestSettings asks the tracker to dump its settings and parses the
// response into the settings store.
func (e *Engine) RequestSettings() error {
	if !e.Live() {
		return ErrNotConnected
	}

	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	if err := e.Send(cmdSettings, false); err != nil {
		return err
	}
	if !e.waitOrHalt(e.settleSettings) {
		return ErrClosed
	}
	e.parseSettingsDump(e.queue.SnapshotAndClear())
	return nil
}

// RequestVersion asks the tracker for its version dump and parses the
// response into the identity record.
func (e *Engine) RequestVersion() error {
	if !e.Live() {
		return ErrNotConnected
	}

	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	if err := e.Send(cmdVersion, false); err != nil {
		return err
	}
	if !e.waitOrHalt(e.settleVersion) {
		return ErrClosed
	}
	e.parseVersionDump(e.queue.SnapshotAndClear())
	return nil
}

// HarvestIdentity parses any version dump lines already queued, without
// consuming them. Replay needs this: a capture carries whatever dumps
// the recorded session happened to request, and an engine with no
// transport cannot re-request them. Live sessions use RequestVersion.
func (e *Engine) HarvestIdentity() {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	var lines []string
	e.queue.Scan(func(line string) ScanAction {
		lines = append(lines, line)
		return ScanNext
	})
	e.parseVersionDump(lines)
}

// ApplySettings writes the changed slots to the tracker, one set
// command per slot in ascending order. A rejected write is logged and
// the walk continues; an accepted write is followed by the flash
// commit wait. The local settings store is not touched: the next dump
// is the source of truth for what the tracker actually took.
func (e *Engine) ApplySettings(changes map[int]string) error {
	if !e.Live() {
		return ErrNotConnected
	}
	if e.Status().State == StateSleeping {
		return ErrDeviceAsleep
	}

	indices := make([]int, 0, len(changes))
	for i := range changes {
		if i < 1 || i > SettingsCount {
			return fmt.Errorf("%w: %d", ErrSettingIndex, i)
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)

	if !e.applyMu.TryLock() {
		return ErrBusy
	}
	defer e.applyMu.Unlock()

	for _, i := range indices {
		value := changes[i]
		current, _ := e.settings.get(i)
		if current == value {
			continue
		}

		if err := e.Send(fmt.Sprintf(setCommandFormat, i, value), false); err != nil {
			e.logf("write %s failed: %v", SettingKey(i), err)
			continue
		}
		e.logf("wrote %s = %s", SettingKey(i), value)
		if !e.waitOrHalt(e.settleApply) {
			return ErrClosed
		}
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Accessors
//////////////////////////////////////////////////////////////

// Status returns the current status snapshot.
func (e *Engine) Status() Status {
	return e.status.snapshot()
}

// Info returns the current identity snapshot.
func (e *Engine) Info() Identity {
	return e.info.snapshot()
}

// Setting returns the last dumped value of a slot.
func (e *Engine) Setting(index int) (string, error) {
	return e.settings.get(index)
}

// SettingsSnapshot returns the populated slots keyed by index.
func (e *Engine) SettingsSnapshot() map[int]string {
	return e.settings.snapshot()
}

// Stats returns the session counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// QueueLen returns the current line queue depth.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// SetLineBreaks switches the line break policies. The receive side
// takes effect at the next byte, the transmit side at the next send.
func (e *Engine) SetLineBreaks(rx, tx Terminator) {
	e.decMu.Lock()
	e.dec.SetTerminator(rx)
	e.decMu.Unlock()

	e.txMu.Lock()
	e.txBreak = tx
	e.txMu.Unlock()
}

func (e *Engine) txTerm() Terminator {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	return e.txBreak
}

//////////////////////////////////////////////////////////////
// Callbacks
//////////////////////////////////////////////////////////////

// SetOnLine installs a callback invoked for every line the engine
// queues, including sentinels and the synthetic reconnect notice. The
// callback runs on the reader goroutine and must not block.
func (e *Engine) SetOnLine(fn func(line string)) {
	e.cbMu.Lock()
	e.onLine = fn
	e.cbMu.Unlock()
}

// SetConnectionLostHandler installs a callback invoked when a read
// fails, before the reconnect policy runs.
func (e *Engine) SetConnectionLostHandler(fn func(err error)) {
	e.cbMu.Lock()
	e.onConnLost = fn
	e.cbMu.Unlock()
}

// SetReconnectedHandler installs a callback invoked when the reconnect
// policy restores the link.
func (e *Engine) SetReconnectedHandler(fn func(port string)) {
	e.cbMu.Lock()
	e.onReconnected = fn
	e.cbMu.Unlock()
}

// SetOfflineHandler installs a callback invoked when the reconnect
// policy gives up and the reader exits.
func (e *Engine) SetOfflineHandler(fn func()) {
	e.cbMu.Lock()
	e.onOffline = fn
	e.cbMu.Unlock()
}
