// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transceiver

import (
	"testing"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
)

func newTestEngine() (*Engine, *SimLine, *coarsetime.Clock) {
	line := NewSimLine()
	clock := &coarsetime.Clock{}
	e := New(Config{Line: line, Clock: clock})
	line.Attach(e)
	return e, line, clock
}

func TestSetBreakTime_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()

	tests := []struct {
		us uint16
		ok bool
	}{
		{43, false},
		{44, true},
		{176, true},
		{800, true},
		{801, false},
	}
	for _, tt := range tests {
		if got := e.SetBreakTime(tt.us); got != tt.ok {
			t.Errorf("SetBreakTime(%d) = %v, want %v", tt.us, got, tt.ok)
		}
	}

	// A rejected value must not change the setting.
	e.SetBreakTime(200)
	e.SetBreakTime(9000)
	if e.BreakTime() != 200 {
		t.Errorf("BreakTime = %d after rejected set, want 200", e.BreakTime())
	}
}

func TestSetMarkTime_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()

	tests := []struct {
		us uint16
		ok bool
	}{
		{3, false},
		{4, true},
		{12, true},
		{800, true},
		{801, false},
	}
	for _, tt := range tests {
		if got := e.SetMarkTime(tt.us); got != tt.ok {
			t.Errorf("SetMarkTime(%d) = %v, want %v", tt.us, got, tt.ok)
		}
	}
}

func TestSetRDMResponderDelay_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()

	tests := []struct {
		delay uint16
		ok    bool
	}{
		{1759, false},
		{1760, true},
		{10000, true},
		{20000, true},
		{20001, false},
	}
	for _, tt := range tests {
		if got := e.SetRDMResponderDelay(tt.delay); got != tt.ok {
			t.Errorf("SetRDMResponderDelay(%d) = %v, want %v", tt.delay, got, tt.ok)
		}
	}
}

func TestSetRDMResponderJitter_ClampedByDelay(t *testing.T) {
	e, _, _ := newTestEngine()

	if !e.SetRDMResponderDelay(19000) {
		t.Fatal("SetRDMResponderDelay(19000) rejected")
	}
	if e.SetRDMResponderJitter(1001) {
		t.Error("jitter pushing delay past the ceiling must be rejected")
	}
	if !e.SetRDMResponderJitter(1000) {
		t.Error("jitter within the ceiling rejected")
	}

	// Raising the delay clamps an existing jitter back down.
	if !e.SetRDMResponderDelay(19500) {
		t.Fatal("SetRDMResponderDelay(19500) rejected")
	}
	if e.RDMResponderJitter() != 500 {
		t.Errorf("jitter = %d after delay raise, want clamped to 500", e.RDMResponderJitter())
	}
}

func TestSetRDMResponseTimeout_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()
	if e.SetRDMResponseTimeout(9) || e.SetRDMResponseTimeout(51) {
		t.Error("out-of-range response timeout accepted")
	}
	if !e.SetRDMResponseTimeout(10) || !e.SetRDMResponseTimeout(50) {
		t.Error("in-range response timeout rejected")
	}
}

func TestSetRDMBroadcastTimeout_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()
	if !e.SetRDMBroadcastTimeout(0) || !e.SetRDMBroadcastTimeout(50) {
		t.Error("in-range broadcast timeout rejected")
	}
	if e.SetRDMBroadcastTimeout(51) {
		t.Error("out-of-range broadcast timeout accepted")
	}
}

func TestSetRDMDUBResponseLimit_Bounds(t *testing.T) {
	e, _, _ := newTestEngine()
	if e.SetRDMDUBResponseLimit(9999) || e.SetRDMDUBResponseLimit(35001) {
		t.Error("out-of-range DUB response limit accepted")
	}
	if !e.SetRDMDUBResponseLimit(10000) || !e.SetRDMDUBResponseLimit(35000) {
		t.Error("in-range DUB response limit rejected")
	}
}
