// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import "sync/atomic"

// Counters tracks received frame statistics. The RDM short-frame,
// length-mismatch and checksum counters back the COMMS_STATUS parameter;
// the DMX and RDM frame totals are diagnostics only. All counters are
// 16-bit and saturate at 0xFFFF rather than wrapping, as COMMS_STATUS
// values are expected to be monotonic between resets.
type Counters struct {
	dmxFrames         atomic.Uint32
	rdmFrames         atomic.Uint32
	rdmShortFrame     atomic.Uint32
	rdmLengthMismatch atomic.Uint32
	rdmChecksumBad    atomic.Uint32
}

func saturatingAdd(c *atomic.Uint32) {
	for {
		v := c.Load()
		if v >= 0xFFFF {
			return
		}
		if c.CompareAndSwap(v, v+1) {
			return
		}
	}
}

// CountDMXFrame records a completed DMX frame.
func (c *Counters) CountDMXFrame() {
	if c != nil {
		saturatingAdd(&c.dmxFrames)
	}
}

func (c *Counters) countRDMFrame() {
	if c != nil {
		saturatingAdd(&c.rdmFrames)
	}
}

func (c *Counters) countRDMShortFrame() {
	if c != nil {
		saturatingAdd(&c.rdmShortFrame)
	}
}

func (c *Counters) countRDMLengthMismatch() {
	if c != nil {
		saturatingAdd(&c.rdmLengthMismatch)
	}
}

func (c *Counters) countRDMChecksumInvalid() {
	if c != nil {
		saturatingAdd(&c.rdmChecksumBad)
	}
}

// DMXFrames returns the DMX frame total.
func (c *Counters) DMXFrames() uint16 { return uint16(c.dmxFrames.Load()) }

// RDMFrames returns the valid RDM frame total.
func (c *Counters) RDMFrames() uint16 { return uint16(c.rdmFrames.Load()) }

// RDMShortFrame returns the short-frame count.
func (c *Counters) RDMShortFrame() uint16 { return uint16(c.rdmShortFrame.Load()) }

// RDMLengthMismatch returns the length-mismatch count.
func (c *Counters) RDMLengthMismatch() uint16 { return uint16(c.rdmLengthMismatch.Load()) }

// RDMChecksumInvalid returns the checksum-failure count.
func (c *Counters) RDMChecksumInvalid() uint16 { return uint16(c.rdmChecksumBad.Load()) }

// ResetCommsStatus clears the three COMMS_STATUS counters. The DMX and
// RDM frame totals are left untouched; SET COMMS_STATUS must only clear
// the error counters.
func (c *Counters) ResetCommsStatus() {
	c.rdmShortFrame.Store(0)
	c.rdmLengthMismatch.Store(0)
	c.rdmChecksumBad.Store(0)
}
