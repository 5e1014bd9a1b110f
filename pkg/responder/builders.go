// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

// addHeaderAndChecksum writes the response header for the request h into
// out, with the staged parameter data already in place at out[24:], then
// appends the checksum. messageLength is the header plus parameter data
// length. Returns the full frame length, or NoResponse for a command
// class that takes no response.
func (r *Responder) addHeaderAndChecksum(h *rdm.Header, responseType rdm.ResponseType,
	messageLength int, out []byte) int {
	var cc rdm.CommandClass
	switch h.CommandClass {
	case rdm.DiscoveryCommand:
		cc = rdm.DiscoveryCommandResponse
	case rdm.GetCommand:
		cc = rdm.GetCommandResponse
	case rdm.SetCommand:
		cc = rdm.SetCommandResponse
	default:
		return NoResponse
	}

	rdm.WriteHeader(out, &rdm.Header{
		StartCode:         rdm.StartCode,
		SubStartCode:      rdm.SubStartCode,
		MessageLength:     uint8(messageLength),
		DestUID:           h.SrcUID,
		SrcUID:            r.uid,
		TransactionNumber: h.TransactionNumber,
		PortID:            uint8(responseType),
		MessageCount:      r.queuedMessageCount,
		SubDevice:         h.SubDevice,
		CommandClass:      cc,
		ParamID:           h.ParamID,
		ParamDataLength:   uint8(messageLength - rdm.HeaderSize),
	})
	return rdm.AppendChecksum(out)
}

// setAck builds an ACK with no parameter data. Non-unicast requests get
// no response.
func (r *Responder) setAck(h *rdm.Header, out []byte) int {
	if !h.DestUID.IsUnicast() {
		return NoResponse
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, rdm.HeaderSize, out)
}

// nack builds a NACK carrying the reason code. Non-unicast requests get
// no response.
func (r *Responder) nack(h *rdm.Header, reason rdm.NackReason, out []byte) int {
	if !h.DestUID.IsUnicast() {
		return NoResponse
	}
	i := rdm.PushUInt16(out, rdm.HeaderSize, uint16(reason))
	return r.addHeaderAndChecksum(h, rdm.ResponseNackReason, i, out)
}

// AckTimer builds an ACK_TIMER with the delay in tenths of a second.
// Model handlers use it for writes that take effect later.
func (r *Responder) AckTimer(h *rdm.Header, delay uint16, out []byte) int {
	i := rdm.PushUInt16(out, rdm.HeaderSize, delay)
	return r.addHeaderAndChecksum(h, rdm.ResponseAckTimer, i, out)
}

// ParamDescription builds a PARAMETER_DESCRIPTION response for a
// manufacturer-specific PID.
func (r *Responder) ParamDescription(h *rdm.Header, paramID rdm.PID,
	desc *ParameterDescription, out []byte) int {
	i := rdm.PushUInt16(out, rdm.HeaderSize, uint16(paramID))
	out[i] = desc.PDLSize
	out[i+1] = desc.DataType
	out[i+2] = desc.CommandClass
	out[i+3] = 0 // type is always 0
	out[i+4] = desc.Unit
	out[i+5] = desc.Prefix
	i = rdm.PushUInt32(out, i+6, desc.MinValidValue)
	i = rdm.PushUInt32(out, i, desc.MaxValidValue)
	i = rdm.PushUInt32(out, i, desc.DefaultValue)
	i = rdm.PushString(out, i, desc.Description, rdm.MaxStringSize)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// Nack builds a NACK response for h in out. Exposed for the frame
// router, which NACKs sub-device addressing errors before any PID table
// is consulted.
func (r *Responder) Nack(h *rdm.Header, reason rdm.NackReason, out []byte) int {
	return r.nack(h, reason, out)
}

// SetAck builds a bare ACK response for h in out. Exposed for the frame
// router's sub-device all-call handling.
func (r *Responder) SetAck(h *rdm.Header, out []byte) int {
	return r.setAck(h, out)
}

// Generic handler bodies shared by several PIDs.
// ----------------------------------------------------------------------------

func (r *Responder) returnString(h *rdm.Header, s string, out []byte) int {
	i := rdm.PushString(out, rdm.HeaderSize, s, rdm.MaxStringSize)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

func (r *Responder) getBool(h *rdm.Header, value bool, out []byte) int {
	out[rdm.HeaderSize] = 0
	if value {
		out[rdm.HeaderSize] = 1
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, rdm.HeaderSize+1, out)
}

func (r *Responder) setBool(h *rdm.Header, paramData []byte, value *bool, out []byte) int {
	if h.ParamDataLength != 1 {
		return r.nack(h, rdm.NRFormatError, out)
	}
	switch paramData[0] {
	case 0:
		*value = false
	case 1:
		*value = true
	default:
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}
	return r.setAck(h, out)
}

func (r *Responder) getUInt16(h *rdm.Header, value uint16, out []byte) int {
	i := rdm.PushUInt16(out, rdm.HeaderSize, value)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

func (r *Responder) getUInt32(h *rdm.Header, value uint32, out []byte) int {
	i := rdm.PushUInt32(out, rdm.HeaderSize, value)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}
