// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import "testing"

func TestCounters_ResetCommsStatus(t *testing.T) {
	var c Counters
	c.CountDMXFrame()
	c.countRDMFrame()
	c.countRDMShortFrame()
	c.countRDMLengthMismatch()
	c.countRDMChecksumInvalid()

	c.ResetCommsStatus()

	// Only the three COMMS_STATUS counters clear.
	if c.RDMShortFrame() != 0 || c.RDMLengthMismatch() != 0 || c.RDMChecksumInvalid() != 0 {
		t.Error("comms-status counters not cleared")
	}
	if c.DMXFrames() != 1 || c.RDMFrames() != 1 {
		t.Error("frame totals must survive a comms-status reset")
	}
}

func TestCounters_Saturate(t *testing.T) {
	var c Counters
	for i := 0; i < 0x10010; i++ {
		c.countRDMShortFrame()
	}
	if c.RDMShortFrame() != 0xFFFF {
		t.Errorf("RDMShortFrame = %#x, want saturation at 0xFFFF", c.RDMShortFrame())
	}
}

func TestCounters_NilReceiver(t *testing.T) {
	var c *Counters
	// Counting against a nil receiver is a no-op, not a panic.
	c.CountDMXFrame()
	c.countRDMFrame()
	c.countRDMShortFrame()
	c.countRDMLengthMismatch()
	c.countRDMChecksumInvalid()
}
