// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Dana Whitfield, Rovertec

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rovertec/outrider/pkg/kestrel"
	"github.com/spf13/cobra"
)

// Simulation pacing, in report cycles of one second.
const (
	demoIgnitionEvery = 20
	demoRebootEvery   = 90
	demoBootDelay     = 3 * time.Second
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the monitor against a simulated tracker",
	Long: `Run the full monitor TUI against a built-in tracker simulation.

The simulated device emits GPS reports, voltage lines, ignition events
and an occasional reboot, and answers the settings and version queries.
No hardware or saved preferences are needed.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	bridge := newEngineBridge()
	eng := kestrel.NewEngine(kestrel.Config{
		Dial: func(string) (kestrel.Conn, error) {
			return newDemoConn(), nil
		},
		RxBreak: kestrel.TermLF,
		TxBreak: kestrel.TermLF,
		Logf:    bridge.logf,
	})
	if err := eng.Open("demo"); err != nil {
		return err
	}
	return launchMonitor(eng, bridge, nil, "demo")
}

// demoConn simulates a VT-series tracker behind the Conn interface.
// Reads produce scripted console traffic; writes answer the version,
// settings and set commands the engine issues.
type demoConn struct {
	mu      sync.Mutex
	pending bytes.Buffer
	closed  bool

	seq      int
	nextEmit time.Time
	bootDue  time.Time
	ignition bool
	vin      int
	batt     int
	settings map[int]string
}

func newDemoConn() *demoConn {
	return &demoConn{
		nextEmit: time.Now().Add(500 * time.Millisecond),
		vin:      12400,
		batt:     3950,
		settings: map[int]string{
			1:   "30",
			2:   "900",
			11:  "1",
			36:  "0",
			62:  "1",
			115: "vt7.rovertec.net",
			122: "apn.rovertec.net",
		},
	}
}

func (d *demoConn) Read(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, io.EOF
	}

	if d.pending.Len() == 0 {
		now := time.Now()
		if !d.bootDue.IsZero() {
			// Device is rebooting; silent until the boot marker.
			if now.After(d.bootDue) {
				d.bootDue = time.Time{}
				d.nextEmit = now.Add(2 * time.Second)
				d.emit("devStateChange: curr=Boot prev=Run")
				d.emit("VT7 bootloader ok")
			}
		} else if now.After(d.nextEmit) {
			d.nextEmit = now.Add(time.Second)
			d.emitReport()
		}
	}

	if d.pending.Len() > 0 {
		n, _ := d.pending.Read(p)
		d.mu.Unlock()
		return n, nil
	}
	d.mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	return 0, nil
}

func (d *demoConn) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.EOF
	}

	cmd := strings.TrimRight(string(p), "\r\n")
	switch {
	case cmd == "version":
		d.emitVersionDump()
	case cmd == "settings":
		d.emitSettingsDump()
	case strings.HasPrefix(cmd, "set,"):
		d.applySet(cmd)
	default:
		d.emit(fmt.Sprintf("unknown cmd: %s", cmd))
	}
	return len(p), nil
}

func (d *demoConn) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *demoConn) Reopen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
	d.pending.Reset()
	return nil
}

func (d *demoConn) ResetOutput() error { return nil }

func (d *demoConn) emit(line string) {
	d.pending.WriteString(line)
	d.pending.WriteByte('\n')
}

// emitReport produces the next second of scripted traffic.
func (d *demoConn) emitReport() {
	d.seq++

	switch {
	case d.seq%demoRebootEvery == 0:
		d.emit(">< >< >< DEVICE_REBOOT logged")
		d.bootDue = time.Now().Add(demoBootDelay)
		d.ignition = false
		return
	case d.seq%demoIgnitionEvery == 0:
		d.ignition = !d.ignition
		if d.ignition {
			d.emit(">< >< >< EVENT_IGNITION_ON logged")
		} else {
			d.emit(">< >< >< IGNITION_OFF logged")
		}
		return
	case d.seq%7 == 0:
		d.emit(fmt.Sprintf("meter Vin %d Batt %d", d.vin, d.batt))
		return
	}

	d.wander()
	state := "Stopped"
	if d.ignition {
		state = "Idling"
		if d.seq%5 < 3 {
			state = "Moving"
		}
	}
	sats := 6 + d.seq%5
	d.emit(fmt.Sprintf("GPS fix ok sats: %02d %s Vin %d Batt %d", sats, state, d.vin, d.batt))
}

func (d *demoConn) wander() {
	d.vin += rand.IntN(61) - 30
	if d.vin < 11900 {
		d.vin = 11900
	}
	if d.vin > 12600 {
		d.vin = 12600
	}
	d.batt += rand.IntN(11) - 5
	if d.batt < 3850 {
		d.batt = 3850
	}
	if d.batt > 4050 {
		d.batt = 4050
	}
}

func (d *demoConn) emitVersionDump() {
	d.emit("main=VT7.4.120 build 2209")
	d.emit("sett=SET.31")
	d.emit("vcm=VCM.2.08")
	d.emit("vcm_cfg=CFG.114")
	d.emit("bt=5.2.1")
	d.emit("power=PMIC.9")
	d.emit("imei=351756051523999")
	d.emit("imsi=310170845466094")
	d.emit("iccid=8901260852290736138")
	d.emit("msidn=15615551234")
}

func (d *demoConn) emitSettingsDump() {
	indices := make([]int, 0, len(d.settings))
	for i := range d.settings {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		d.emit(fmt.Sprintf("%s=%s", kestrel.SettingKey(i), d.settings[i]))
	}
}

func (d *demoConn) applySet(cmd string) {
	parts := strings.SplitN(cmd, ",", 3)
	if len(parts) != 3 {
		d.emit("set: parse error")
		return
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 1 || idx > kestrel.SettingsCount {
		d.emit("set: bad index")
		return
	}
	d.settings[idx] = parts[2]
	d.emit(fmt.Sprintf("%s=%s", kestrel.SettingKey(idx), parts[2]))
}
