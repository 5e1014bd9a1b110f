// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

const (
	dubPreamble  = 0xFE
	dubDelimiter = 0xAA
	orAA         = 0xAA
	or55         = 0x55
)

// handleDUBRequest answers DISC_UNIQUE_BRANCH. The parameter data is a
// lower and upper UID; a responder that is unmuted and inside the range
// stages the 24-byte encoded response and returns DUBResponse so it goes
// out raw, with no break. Everything else stays silent.
func (r *Responder) handleDUBRequest(paramData []byte, out []byte) int {
	if r.isMuted || len(paramData) != 2*rdm.UIDLength {
		return NoResponse
	}

	var lower, upper rdm.UID
	copy(lower[:], paramData[:rdm.UIDLength])
	copy(upper[:], paramData[rdm.UIDLength:])
	if !r.uid.InRange(lower, upper) {
		return NoResponse
	}

	// Seven preamble bytes, the delimiter, then each UID byte expanded
	// to an (b | 0xAA, b | 0x55) pair, then the checksum of the twelve
	// expanded UID bytes expanded the same way.
	for i := 0; i < 7; i++ {
		out[i] = dubPreamble
	}
	out[7] = dubDelimiter
	for i, b := range r.uid {
		out[8+2*i] = b | orAA
		out[8+2*i+1] = b | or55
	}
	checksum := rdm.Checksum(out[8:20])
	out[20] = byte(checksum>>8) | orAA
	out[21] = byte(checksum>>8) | or55
	out[22] = byte(checksum) | orAA
	out[23] = byte(checksum) | or55
	return DUBResponse
}

// setMute handles DISC_MUTE. A mute with parameter data is malformed
// and, being a discovery command, is dropped rather than NACKed. The
// response carries the control field; non-unicast requests mute silently.
func (r *Responder) setMute(h *rdm.Header, out []byte) int {
	if h.ParamDataLength != 0 {
		return NoResponse
	}
	r.isMuted = true
	r.mutePin.Clear()

	if !h.DestUID.IsUnicast() {
		return NoResponse
	}
	i := rdm.PushUInt16(out, rdm.HeaderSize, r.controlField())
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// setUnMute handles DISC_UN_MUTE, restarting the mute LED cadence.
func (r *Responder) setUnMute(h *rdm.Header, out []byte) int {
	if h.ParamDataLength != 0 {
		return NoResponse
	}
	r.isMuted = false
	r.mutePin.Set()
	if r.clock != nil {
		r.muteTimer = r.clock.Now()
	}

	if !h.DestUID.IsUnicast() {
		return NoResponse
	}
	i := rdm.PushUInt16(out, rdm.HeaderSize, r.controlField())
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}
