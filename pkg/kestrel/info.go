// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Dana Whitfield, Rovertec

package kestrel

import "sync"

// Identity holds the firmware and subscriber identity fields a tracker
// reports in its version dump.
type Identity struct {
	Main   string // main firmware build
	Sett   string // settings image build
	Vcm    string // vehicle control module firmware
	VcmCfg string // vehicle control module config
	Bt     string // bluetooth stack build
	Power  string // power controller build
	Imei   string
	Imsi   string
	Iccid  string
	Msidn  string
}

// Complete reports whether the fields that matter for identification
// have been read. The identity refresh retries until they have.
func (id Identity) Complete() bool {
	return id.Main != "" && id.Imei != ""
}

// identityMarkers lists the version dump markers in scan order, each
// with a selector for the field it populates.
var identityMarkers = []struct {
	marker string
	sel    func(*Identity) *string
}{
	{"main=", func(id *Identity) *string { return &id.Main }},
	{"sett=", func(id *Identity) *string { return &id.Sett }},
	{"vcm=", func(id *Identity) *string { return &id.Vcm }},
	{"vcm_cfg=", func(id *Identity) *string { return &id.VcmCfg }},
	{"bt=", func(id *Identity) *string { return &id.Bt }},
	{"power=", func(id *Identity) *string { return &id.Power }},
	{"imei=", func(id *Identity) *string { return &id.Imei }},
	{"imsi=", func(id *Identity) *string { return &id.Imsi }},
	{"iccid=", func(id *Identity) *string { return &id.Iccid }},
	{"msidn=", func(id *Identity) *string { return &id.Msidn }},
}

// identityRecord guards the live identity.
type identityRecord struct {
	mu sync.RWMutex
	id Identity
}

func newIdentityRecord() *identityRecord {
	return &identityRecord{}
}

func (r *identityRecord) snapshot() Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *identityRecord) store(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

// clear drops every field. Used once a reboot wait hands control back to
// the poller, before the refresh is re-armed.
func (r *identityRecord) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = Identity{}
}

// clearBoot drops only the fields a reboot invalidates immediately. The
// rest stay readable until the full refresh lands.
func (r *identityRecord) clearBoot() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id.Main = ""
	r.id.Imei = ""
}
