// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import (
	"strings"
	"testing"
)

// offlineEngine builds an engine with no transport, fed through Ingest.
func offlineEngine() *Engine {
	return NewEngine(Config{})
}

// Canonical tracker lines. The state token sits at byte offset 20, the
// event code at byte offset 9.
const (
	gpsMoving  = "GPS fix ok sats: 08 Moving Vin 12400 Batt 3900"
	gpsStopped = "GPS fix ok sats: 07 Stopped Vin 12100 Batt 3850"
	evReboot   = ">< >< >< DEVICE_REBOOT"
	evIgnition = ">< >< >< EVENT_IGNITION_ON"
)

// ============================================================
// State Scan Tests
// ============================================================

func TestScanState_Basic(t *testing.T) {
	e := offlineEngine()
	e.Ingest(gpsMoving)
	e.scanState()

	s := e.Status()
	if s.State != StateMoving {
		t.Errorf("state = %v, expected Moving", s.State)
	}
	if s.Vin != "12400 mV" || s.Batt != "3900 mV" {
		t.Errorf("volts = %q/%q, expected 12400 mV/3900 mV", s.Vin, s.Batt)
	}
	if e.QueueLen() != 1 {
		t.Errorf("queue len = %d, state scan must not clear", e.QueueLen())
	}
}

func TestScanState_LastReportWins(t *testing.T) {
	e := offlineEngine()
	e.Ingest(gpsStopped)
	e.Ingest(gpsMoving)
	e.scanState()

	if s := e.Status().State; s != StateMoving {
		t.Errorf("state = %v, expected the newest report (Moving)", s)
	}
}

func TestScanState_TieBreaks(t *testing.T) {
	// The latched case needs a dotted report line: a dotless one would
	// clear the latch at push time, before the scan ever runs.
	tests := []struct {
		name     string
		event    Event
		latch    bool
		line     string
		expected State
	}{
		{"ignition refines moving", EventIgnitionOn, false, "GPS fix ok sats: 08 Moving", StateIgnitionOn},
		{"virtual ignition refines moving", EventVirtualIgnitionOn, false, "GPS fix ok sats: 08 Moving", StateVirtualIgnitionOn},
		{"ignition leaves other states", EventIgnitionOn, false, "GPS fix ok sats: 08 Idling", StateIdling},
		{"stale sleeping reads stopped", EventNone, false, "GPS fix ok sats: 08 Sleeping", StateStopped},
		{"latched sleeping stays", EventNone, true, "GPS 1.2 ok sats: 08 Sleeping", StateSleeping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := offlineEngine()
			e.status.setEvent(tt.event)
			if tt.latch {
				e.status.setSleeping()
			}
			e.Ingest(tt.line)
			e.scanState()
			if s := e.Status().State; s != tt.expected {
				t.Errorf("state = %v, expected %v", s, tt.expected)
			}
		})
	}
}

func TestScanState_BadTokenStopsScan(t *testing.T) {
	e := offlineEngine()
	e.Ingest("GPS fix ok sats: 08 Warping")
	e.Ingest(gpsMoving)
	e.scanState()

	if s := e.Status().State; s != StateUnknown {
		t.Errorf("state = %v, expected Unknown after a bad token stopped the scan", s)
	}
	if e.QueueLen() != 2 {
		t.Errorf("queue len = %d, a stopped scan must not clear", e.QueueLen())
	}
	if e.Stats().Malformed != 1 {
		t.Errorf("malformed = %d, expected 1", e.Stats().Malformed)
	}
}

func TestScanState_ShortLine(t *testing.T) {
	e := offlineEngine()
	e.Ingest("early sats: report")
	e.scanState()

	if s := e.Status().State; s != StateUnknown {
		t.Errorf("state = %v, expected Unknown for a short report", s)
	}
	if e.Stats().Malformed != 1 {
		t.Errorf("malformed = %d, expected 1", e.Stats().Malformed)
	}
}

// ============================================================
// Voltage Scan Tests
// ============================================================

func TestScanVolts_Pair(t *testing.T) {
	e := offlineEngine()
	e.Ingest("meter Vin 1200 Batt 900")
	e.scanVolts()

	s := e.Status()
	if s.Vin != "1200 mV" || s.Batt != "900 mV" {
		t.Errorf("volts = %q/%q, expected 1200 mV/900 mV", s.Vin, s.Batt)
	}
	if e.QueueLen() != 0 {
		t.Errorf("queue len = %d, voltage scan must clear", e.QueueLen())
	}
}

func TestScanVolts_ClearsWithoutBatt(t *testing.T) {
	e := offlineEngine()
	e.status.setVolts("1111 mV", "2222 mV")
	e.Ingest("meter Vin 1200 only")
	e.Ingest("trailing line")
	e.scanVolts()

	s := e.Status()
	if s.Vin != "1111 mV" || s.Batt != "2222 mV" {
		t.Errorf("volts = %q/%q, a truncated report must not overwrite", s.Vin, s.Batt)
	}
	if e.QueueLen() != 0 {
		t.Errorf("queue len = %d, the queue clears even without a battery reading", e.QueueLen())
	}
}

func TestScanVolts_SkipsUnrelatedLines(t *testing.T) {
	e := offlineEngine()
	e.Ingest("noise")
	e.Ingest("more noise")
	e.Ingest("meter Vin 1300 Batt 910")
	e.scanVolts()

	if s := e.Status(); s.Vin != "1300 mV" {
		t.Errorf("vin = %q, expected 1300 mV", s.Vin)
	}
}

func TestExtractReading_MarkerAtEnd(t *testing.T) {
	if got := extractReading("meter Vin", "Vin"); got != " mV" {
		t.Errorf("got %q, expected %q", got, " mV")
	}
}

// ============================================================
// Event Scan Tests
// ============================================================

func TestScanEvent_Known(t *testing.T) {
	e := offlineEngine()
	e.Ingest("noise")
	e.Ingest(evIgnition)
	e.Ingest("after")
	e.scanEvent()

	if ev := e.Status().Event; ev != EventIgnitionOn {
		t.Errorf("event = %v, expected Ignition On", ev)
	}
	if e.QueueLen() != 0 {
		t.Errorf("queue len = %d, a recognized event clears the queue", e.QueueLen())
	}
}

func TestScanEvent_UnknownCodeKeepsQueue(t *testing.T) {
	e := offlineEngine()
	e.Ingest(">< >< >< EVENT_WARP_DRIVE")
	e.Ingest("after")
	e.scanEvent()

	if ev := e.Status().Event; ev != EventNone {
		t.Errorf("event = %v, expected none", ev)
	}
	if e.QueueLen() != 2 {
		t.Errorf("queue len = %d, an unknown code must not clear", e.QueueLen())
	}
	if e.Stats().UnknownEvents != 1 {
		t.Errorf("unknown events = %d, expected 1", e.Stats().UnknownEvents)
	}
}

func TestScanEvent_AllCodes(t *testing.T) {
	tests := []struct {
		code     string
		expected Event
	}{
		{"EVENT_IGNITION_ON", EventIgnitionOn},
		{"IGNITION_OFF", EventIgnitionOff},
		{"EVENT_VIRTUAL_IGN_ON", EventVirtualIgnitionOn},
		{"VIRTUAL_IGN_OFF", EventVirtualIgnitionOff},
		{"DEVICE_REBOOT", EventDeviceReboot},
		{"END_OF_TOW", EventEndOfTow},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			e := offlineEngine()
			e.Ingest(">< >< >< " + tt.code + " logged")
			e.scanEvent()
			if ev := e.Status().Event; ev != tt.expected {
				t.Errorf("event = %v, expected %v", ev, tt.expected)
			}
		})
	}
}

// ============================================================
// Sentinel and Sleep Latch Tests
// ============================================================

func TestScans_SentinelSetsSleeping(t *testing.T) {
	scans := map[string]func(*Engine){
		"state": (*Engine).scanState,
		"volts": (*Engine).scanVolts,
		"event": (*Engine).scanEvent,
	}

	for name, scan := range scans {
		t.Run(name, func(t *testing.T) {
			e := offlineEngine()
			e.Ingest("before")
			e.Ingest(SentinelLine)
			scan(e)

			if s := e.Status().State; s != StateSleeping {
				t.Errorf("state = %v, expected Sleeping", s)
			}
			if !e.status.latched() {
				t.Error("latch not armed by the sentinel")
			}
			if e.QueueLen() != 0 {
				t.Errorf("queue len = %d, the sentinel clears the queue", e.QueueLen())
			}
		})
	}
}

func TestSleepLatch_ClearedByDotlessLine(t *testing.T) {
	e := offlineEngine()
	e.Ingest(SentinelLine)
	e.scanState()
	if s := e.Status().State; s != StateSleeping {
		t.Fatalf("state = %v, expected Sleeping", s)
	}

	// Lines with a '.' keep the latch: the sentinel itself, and the
	// synthetic reconnect notice.
	e.Ingest("Reconnected to /dev/ttyUSB0.")
	if s := e.Status().State; s != StateSleeping {
		t.Errorf("state = %v, a dotted line must not clear the latch", s)
	}

	e.Ingest("wakeup banner")
	if s := e.Status().State; s != StateStopped {
		t.Errorf("state = %v, expected Stopped after a dotless line", s)
	}
	if e.status.latched() {
		t.Error("latch still armed")
	}
}

// ============================================================
// Settings Dump Tests
// ============================================================

func TestParseSettingsDump(t *testing.T) {
	e := offlineEngine()
	e.parseSettingsDump([]string{
		"settings[01]=30",
		"\tsettings[02]= 900",
		"settings[62]=1.2.3.4",
		"settings[122]=apn.rovertec.net",
	})

	tests := []struct {
		index    int
		expected string
	}{
		{1, "30"},
		{2, "900"}, // leading whitespace trimmed
		{62, "1.2.3.4"},
		{122, "apn.rovertec.net"},
	}
	for _, tt := range tests {
		got, err := e.Setting(tt.index)
		if err != nil {
			t.Fatalf("Setting(%d): %v", tt.index, err)
		}
		if got != tt.expected {
			t.Errorf("slot %d = %q, expected %q", tt.index, got, tt.expected)
		}
	}
}

func TestParseSettingsDump_FirstMatchWins(t *testing.T) {
	e := offlineEngine()
	e.parseSettingsDump([]string{
		"settings[05]=first",
		"settings[05]=second",
	})
	if got, _ := e.Setting(5); got != "first" {
		t.Errorf("slot 5 = %q, expected the first match", got)
	}
}

func TestParseSettingsDump_MissingSeparatorSkipsSlot(t *testing.T) {
	e := offlineEngine()
	e.parseSettingsDump([]string{
		"settings[07] corrupt",
		"settings[08]=ok",
	})
	if got, _ := e.Setting(7); got != "" {
		t.Errorf("slot 7 = %q, expected empty", got)
	}
	if got, _ := e.Setting(8); got != "ok" {
		t.Errorf("slot 8 = %q, a bad slot must not abort the rest", got)
	}
	if e.Stats().Malformed != 1 {
		t.Errorf("malformed = %d, expected 1", e.Stats().Malformed)
	}
}

func TestSettingKey_Padding(t *testing.T) {
	tests := []struct {
		index    int
		expected string
	}{
		{1, "settings[01]"},
		{42, "settings[42]"},
		{122, "settings[122]"},
	}
	for _, tt := range tests {
		if got := SettingKey(tt.index); got != tt.expected {
			t.Errorf("SettingKey(%d) = %q, expected %q", tt.index, got, tt.expected)
		}
	}
}

func TestSetting_IndexRange(t *testing.T) {
	e := offlineEngine()
	for _, index := range []int{0, -3, SettingsCount + 1} {
		if _, err := e.Setting(index); err == nil {
			t.Errorf("Setting(%d) accepted an out-of-range index", index)
		}
	}
}

// ============================================================
// Version Dump Tests
// ============================================================

func TestParseVersionDump(t *testing.T) {
	e := offlineEngine()
	e.parseVersionDump([]string{
		"main=VT7.4.120 build 2209",
		"sett=SET.31",
		"vcm=2.0.7",
		"vcm_cfg=factory",
		"bt=5.2.1",
		"power=P14",
		"imei=351756051523999",
		"imsi=310170845466094",
		"iccid=8991101200003204510",
		"msidn=15551234567",
	})

	id := e.Info()
	if id.Main != "VT7.4.120" {
		t.Errorf("main = %q, expected truncation at the first space", id.Main)
	}
	if id.VcmCfg != "factory" {
		t.Errorf("vcm_cfg = %q", id.VcmCfg)
	}
	if id.Imei != "351756051523999" {
		t.Errorf("imei = %q", id.Imei)
	}
	if !id.Complete() {
		t.Error("identity should be complete")
	}
}

func TestParseVersionDump_PartialKeepsPrevious(t *testing.T) {
	e := offlineEngine()
	e.info.store(Identity{Main: "VT7.4.119", Imei: "351756051523999"})
	e.parseVersionDump([]string{"main=VT7.4.120"})

	id := e.Info()
	if id.Main != "VT7.4.120" {
		t.Errorf("main = %q, expected refresh", id.Main)
	}
	if id.Imei != "351756051523999" {
		t.Errorf("imei = %q, an absent field keeps its value", id.Imei)
	}
}

func TestParseVersionDump_MarkerAtEndSkipsField(t *testing.T) {
	e := offlineEngine()
	e.parseVersionDump([]string{
		"main=",
		"imei=351756051523999",
	})

	id := e.Info()
	if id.Main != "" {
		t.Errorf("main = %q, expected skip", id.Main)
	}
	if id.Imei == "" {
		t.Error("imei missing, a bad field must not abort the rest")
	}
	if id.Complete() {
		t.Error("identity must stay incomplete so the refresh retries")
	}
}

func TestParseVersionDump_FirstMatchWins(t *testing.T) {
	e := offlineEngine()
	e.parseVersionDump([]string{
		"main=VT7.4.120",
		"main=VT7.4.121",
	})
	if got := e.Info().Main; got != "VT7.4.120" {
		t.Errorf("main = %q, expected the first match", got)
	}
}

// ============================================================
// Poll Round Tests
// ============================================================

func TestPollStatus_Round(t *testing.T) {
	// One round over a GPS report and an event banner. The event lands
	// on this round; the state it refines is only visible on the next
	// round's report.
	e := offlineEngine()
	e.Ingest("GPS fix ok sats: 08 Moving")
	e.Ingest(evIgnition)
	e.PollStatus()

	s := e.Status()
	if s.State != StateMoving {
		t.Errorf("state = %v, expected Moving", s.State)
	}
	if s.Event != EventIgnitionOn {
		t.Errorf("event = %v, expected Ignition On", s.Event)
	}
	if e.QueueLen() != 0 {
		t.Errorf("queue len = %d, expected the round to drain it", e.QueueLen())
	}

	e.Ingest("GPS fix ok sats: 08 Moving")
	e.PollStatus()
	if s := e.Status().State; s != StateIgnitionOn {
		t.Errorf("state = %v, expected the event to refine the next report", s)
	}
}

func TestPollStatus_VoltageClearConsumesBanner(t *testing.T) {
	// The voltage scan clears the whole queue once it finds a voltage
	// line, so a banner sharing the round with one is consumed unseen.
	// The next banner is caught normally.
	e := offlineEngine()
	e.Ingest(evIgnition)
	e.Ingest("meter Vin 1250 Batt 905")
	e.PollStatus()

	if s := e.Status(); s.Event != EventNone || s.Vin != "1250 mV" {
		t.Errorf("event/vin = %v/%q, expected none/1250 mV", s.Event, s.Vin)
	}

	e.Ingest(evIgnition)
	e.PollStatus()
	if ev := e.Status().Event; ev != EventIgnitionOn {
		t.Errorf("event = %v, expected Ignition On on the next round", ev)
	}
}

func TestIngest_CountsLines(t *testing.T) {
	e := offlineEngine()
	e.Ingest("abc")
	e.Ingest("defg")

	snap := e.Stats()
	if snap.Lines != 2 {
		t.Errorf("lines = %d, expected 2", snap.Lines)
	}
	if snap.Bytes != 7 {
		t.Errorf("bytes = %d, expected 7", snap.Bytes)
	}
	if !strings.Contains(snap.String(), "Lines:") {
		t.Error("summary block missing the line counter")
	}
}
