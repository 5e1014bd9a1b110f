// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"errors"
	"testing"
)

// buildFrame assembles a checksummed RDM frame for tests.
func buildFrame(h *Header, paramData []byte) []byte {
	buf := make([]byte, MaxFrameSize)
	h.MessageLength = uint8(HeaderSize + len(paramData))
	h.ParamDataLength = uint8(len(paramData))
	WriteHeader(buf, h)
	copy(buf[HeaderSize:], paramData)
	n := AppendChecksum(buf)
	return buf[:n]
}

func testHeader() *Header {
	return &Header{
		StartCode:         StartCode,
		SubStartCode:      SubStartCode,
		DestUID:           NewUID(0x7a70, 1),
		SrcUID:            NewUID(0x0001, 1),
		TransactionNumber: 0x42,
		PortID:            1,
		SubDevice:         SubDeviceRoot,
		CommandClass:      GetCommand,
		ParamID:           PIDDeviceInfo,
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	want := testHeader()
	frame := buildFrame(want, []byte{0x01, 0x02, 0x03})

	var c Counters
	got, paramData, err := Validate(frame, &c)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if *got != *want {
		t.Errorf("header round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if len(paramData) != 3 || paramData[0] != 0x01 || paramData[2] != 0x03 {
		t.Errorf("param data = % x, want 01 02 03", paramData)
	}
	if c.RDMFrames() != 1 {
		t.Errorf("RDMFrames = %d, want 1", c.RDMFrames())
	}
}

func TestValidate_Errors(t *testing.T) {
	good := buildFrame(testHeader(), []byte{0xAA})

	short := make([]byte, 10)
	short[0] = StartCode
	short[1] = SubStartCode

	badChecksum := append([]byte(nil), good...)
	badChecksum[len(badChecksum)-1] ^= 0xFF

	truncated := append([]byte(nil), good...)
	truncated = truncated[:len(truncated)-1]

	badPDL := append([]byte(nil), good...)
	badPDL[23] = 5 // declared PDL no longer matches message length

	tests := []struct {
		name  string
		frame []byte
		want  error
		count func(c *Counters) uint16
	}{
		{"short frame", short, ErrShortFrame, (*Counters).RDMShortFrame},
		{"truncated", truncated, ErrLengthMismatch, (*Counters).RDMLengthMismatch},
		{"pdl mismatch", badPDL, ErrLengthMismatch, (*Counters).RDMLengthMismatch},
		{"bad checksum", badChecksum, ErrChecksumInvalid, (*Counters).RDMChecksumInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Counters
			_, _, err := Validate(tt.frame, &c)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate = %v, want %v", err, tt.want)
			}
			if got := tt.count(&c); got != 1 {
				t.Errorf("counter = %d, want 1", got)
			}
			if c.RDMFrames() != 0 {
				t.Errorf("RDMFrames = %d, want 0", c.RDMFrames())
			}
		})
	}
}

func TestValidate_NotRDM(t *testing.T) {
	if _, _, err := Validate([]byte{NullStartCode, 1, 2, 3}, nil); !errors.Is(err, ErrNotRDM) {
		t.Errorf("Validate = %v, want ErrNotRDM", err)
	}
	if _, _, err := Validate(nil, nil); !errors.Is(err, ErrNotRDM) {
		t.Errorf("Validate(nil) = %v, want ErrNotRDM", err)
	}
}

func TestValidate_SubStartCode(t *testing.T) {
	frame := buildFrame(testHeader(), nil)
	frame[1] = 0x02
	var c Counters
	if _, _, err := Validate(frame, &c); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Validate = %v, want ErrShortFrame", err)
	}
	if c.RDMShortFrame() != 1 {
		t.Errorf("RDMShortFrame = %d, want 1", c.RDMShortFrame())
	}
}

func TestChecksum_Additive(t *testing.T) {
	if got := Checksum([]byte{0x01, 0x02, 0xFF}); got != 0x0102 {
		t.Errorf("Checksum = %#04x, want 0x0102", got)
	}
	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = %#04x, want 0", got)
	}
}

func TestPushHelpers(t *testing.T) {
	buf := make([]byte, 8)
	i := PushUInt16(buf, 0, 0x1234)
	i = PushUInt32(buf, i, 0xDEADBEEF)
	if i != 6 {
		t.Fatalf("offset = %d, want 6", i)
	}
	want := []byte{0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF}
	for j, b := range want {
		if buf[j] != b {
			t.Fatalf("buf = % x, want % x", buf[:6], want)
		}
	}
	if U16(buf, 0) != 0x1234 || U32(buf, 2) != 0xDEADBEEF {
		t.Errorf("read back mismatch: %#x %#x", U16(buf, 0), U32(buf, 2))
	}
}

func TestPushString(t *testing.T) {
	buf := make([]byte, 16)
	if got := PushString(buf, 0, "hello", 32); got != 5 {
		t.Errorf("PushString = %d, want 5", got)
	}
	if got := PushString(buf, 0, "a long label that overflows", 8); got != 8 {
		t.Errorf("PushString truncation = %d, want 8", got)
	}
	if got := PushString(buf, 0, "ab\x00cd", 32); got != 2 {
		t.Errorf("PushString NUL stop = %d, want 2", got)
	}
}

func FuzzValidate(f *testing.F) {
	f.Add(buildFrame(testHeader(), []byte{1, 2, 3}))
	f.Add([]byte{StartCode})
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		var c Counters
		h, paramData, err := Validate(data, &c)
		if err == nil {
			if h == nil {
				t.Fatal("nil header with nil error")
			}
			if int(h.ParamDataLength) != len(paramData) {
				t.Fatalf("param data length %d != declared %d",
					len(paramData), h.ParamDataLength)
			}
		}
	})
}
