// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"errors"
)

// Frame validation errors. ShortFrame, LengthMismatch and ChecksumInvalid
// each have a matching receiver counter (see Counters).
var (
	ErrShortFrame      = errors.New("rdm: frame shorter than header plus checksum")
	ErrLengthMismatch  = errors.New("rdm: declared message length does not match frame")
	ErrChecksumInvalid = errors.New("rdm: checksum mismatch")
	ErrNotRDM          = errors.New("rdm: not an RDM frame")
)

// Header is the fixed 24-byte RDM message prefix.
type Header struct {
	StartCode         uint8
	SubStartCode      uint8
	MessageLength     uint8
	DestUID           UID
	SrcUID            UID
	TransactionNumber uint8
	PortID            uint8 // response type on responses
	MessageCount      uint8
	SubDevice         uint16
	CommandClass      CommandClass
	ParamID           PID
	ParamDataLength   uint8
}

// PushUInt16 appends a big-endian uint16 at buf[i] and returns the new
// write offset.
func PushUInt16(buf []byte, i int, v uint16) int {
	buf[i] = byte(v >> 8)
	buf[i+1] = byte(v)
	return i + 2
}

// PushUInt32 appends a big-endian uint32 at buf[i] and returns the new
// write offset.
func PushUInt32(buf []byte, i int, v uint32) int {
	buf[i] = byte(v >> 24)
	buf[i+1] = byte(v >> 16)
	buf[i+2] = byte(v >> 8)
	buf[i+3] = byte(v)
	return i + 4
}

// U16 reads a big-endian uint16 at buf[i].
func U16(buf []byte, i int) uint16 {
	return uint16(buf[i])<<8 | uint16(buf[i+1])
}

// U32 reads a big-endian uint32 at buf[i].
func U32(buf []byte, i int) uint32 {
	return uint32(buf[i])<<24 | uint32(buf[i+1])<<16 |
		uint32(buf[i+2])<<8 | uint32(buf[i+3])
}

// PushString copies up to max bytes of s into buf[i:], stopping at the
// first NUL, and returns the new write offset. RDM strings are not NUL
// terminated on the wire.
func PushString(buf []byte, i int, s string, max int) int {
	n := 0
	for ; n < len(s) && n < max; n++ {
		if s[n] == 0 {
			break
		}
		buf[i+n] = s[n]
	}
	return i + n
}

// Checksum computes the 16-bit additive checksum over buf.
func Checksum(buf []byte) uint16 {
	var sum uint16
	for _, b := range buf {
		sum += uint16(b)
	}
	return sum
}

// AppendChecksum computes the additive checksum over the declared message
// length (buf[2]) and writes the two big-endian checksum bytes after it.
// Returns the full frame length including the checksum.
func AppendChecksum(buf []byte) int {
	length := int(buf[2])
	PushUInt16(buf, length, Checksum(buf[:length]))
	return length + ChecksumSize
}

// WriteHeader serializes h into buf[0:HeaderSize].
func WriteHeader(buf []byte, h *Header) {
	buf[0] = h.StartCode
	buf[1] = h.SubStartCode
	buf[2] = h.MessageLength
	copy(buf[3:9], h.DestUID[:])
	copy(buf[9:15], h.SrcUID[:])
	buf[15] = h.TransactionNumber
	buf[16] = h.PortID
	buf[17] = h.MessageCount
	PushUInt16(buf, 18, h.SubDevice)
	buf[20] = byte(h.CommandClass)
	PushUInt16(buf, 21, uint16(h.ParamID))
	buf[23] = h.ParamDataLength
}

// ParseHeader deserializes the 24-byte prefix without validating it.
// buf must hold at least HeaderSize bytes.
func ParseHeader(buf []byte) *Header {
	h := &Header{
		StartCode:         buf[0],
		SubStartCode:      buf[1],
		MessageLength:     buf[2],
		TransactionNumber: buf[15],
		PortID:            buf[16],
		MessageCount:      buf[17],
		SubDevice:         U16(buf, 18),
		CommandClass:      CommandClass(buf[20]),
		ParamID:           PID(U16(buf, 21)),
		ParamDataLength:   buf[23],
	}
	copy(h.DestUID[:], buf[3:9])
	copy(h.SrcUID[:], buf[9:15])
	return h
}

// Validate checks the structure of a received RDM frame and parses its
// header. A frame is valid when the start codes match, the declared
// message length covers the header, the frame carries the declared bytes
// plus checksum, and the checksum matches. Each failure increments the
// matching counter on c; pass nil to skip counting.
func Validate(buf []byte, c *Counters) (*Header, []byte, error) {
	if len(buf) < 1 || buf[0] != StartCode {
		return nil, nil, ErrNotRDM
	}
	if len(buf) < HeaderSize+ChecksumSize || buf[1] != SubStartCode {
		c.countRDMShortFrame()
		return nil, nil, ErrShortFrame
	}

	length := int(buf[2])
	if length < HeaderSize || length+ChecksumSize > len(buf) {
		c.countRDMLengthMismatch()
		return nil, nil, ErrLengthMismatch
	}

	h := ParseHeader(buf)
	if int(h.ParamDataLength) != length-HeaderSize {
		c.countRDMLengthMismatch()
		return nil, nil, ErrLengthMismatch
	}

	if Checksum(buf[:length]) != U16(buf, length) {
		c.countRDMChecksumInvalid()
		return nil, nil, ErrChecksumInvalid
	}

	c.countRDMFrame()
	return h, buf[HeaderSize : HeaderSize+int(h.ParamDataLength)], nil
}
