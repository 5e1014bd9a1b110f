// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rdm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// UID is a 48-bit RDM unique identifier: a 16-bit manufacturer id
// followed by a 32-bit device id, big-endian on the wire.
type UID [UIDLength]byte

// NewUID builds a UID from a manufacturer and device id.
func NewUID(manufacturer uint16, device uint32) UID {
	var u UID
	binary.BigEndian.PutUint16(u[0:2], manufacturer)
	binary.BigEndian.PutUint32(u[2:6], device)
	return u
}

// ParseUID parses the "mmmm:dddddddd" hex form, e.g. "7a70:00000001".
func ParseUID(s string) (UID, error) {
	var manufacturer uint16
	var device uint32
	if _, err := fmt.Sscanf(s, "%04x:%08x", &manufacturer, &device); err != nil {
		return UID{}, fmt.Errorf("invalid UID %q: %w", s, err)
	}
	return NewUID(manufacturer, device), nil
}

// ManufacturerID returns the upper 16 bits.
func (u UID) ManufacturerID() uint16 {
	return binary.BigEndian.Uint16(u[0:2])
}

// DeviceID returns the lower 32 bits.
func (u UID) DeviceID() uint32 {
	return binary.BigEndian.Uint32(u[2:6])
}

// Compare orders two UIDs lexicographically, big-endian.
func (u UID) Compare(other UID) int {
	return bytes.Compare(u[:], other[:])
}

// IsBroadcast reports whether the device-id part is all ones.
func (u UID) IsBroadcast() bool {
	return u.DeviceID() == 0xFFFFFFFF
}

// IsUnicast reports whether the UID addresses a single device: neither
// the device id nor the full UID is in a broadcast form.
func (u UID) IsUnicast() bool {
	return !u.IsBroadcast()
}

// InRange reports whether lower <= u <= upper lexicographically.
func (u UID) InRange(lower, upper UID) bool {
	return lower.Compare(u) <= 0 && u.Compare(upper) <= 0
}

// String renders the "mmmm:dddddddd" form.
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.ManufacturerID(), u.DeviceID())
}
