// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package responder implements the RDM responder model: a declarative
// responder definition (PID dispatch table, personalities, sensors,
// labels) plus the mutable per-responder state and the PID handlers.
// Dispatch always takes an explicit *Responder handle; there is no
// process-wide current responder.
package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

// NoResponse is returned by a handler when no reply frame should be sent.
const NoResponse = 0

// DUBResponse is the handler return for a matched DISC_UNIQUE_BRANCH:
// the negative length tells the transmit path to send the staged bytes
// raw, with no break or mark.
const DUBResponse = -rdm.DUBResponseLength

// Handler is a PID handler. It reads the request and stages any reply in
// out, returning the reply's byte length, NoResponse, or DUBResponse.
type Handler func(r *Responder, h *rdm.Header, paramData []byte, out []byte) int

// PIDDescriptor binds a PID to its GET and SET handlers. A nil handler
// NACKs with NR_UNSUPPORTED_COMMAND_CLASS. GetParamSize is enforced
// before the GET handler runs; SET handlers validate their own input.
type PIDDescriptor struct {
	PID          rdm.PID
	GetHandler   Handler
	GetParamSize uint8
	SetHandler   Handler
}

// ParameterDescription describes a manufacturer-specific PID, per
// section 10.4.2 of E1.20.
type ParameterDescription struct {
	PDLSize       uint8
	DataType      uint8
	CommandClass  uint8
	Unit          uint8
	Prefix        uint8
	MinValidValue uint32
	MaxValidValue uint32
	DefaultValue  uint32
	Description   string
}

// SlotDefinition describes one DMX slot of a personality.
type SlotDefinition struct {
	Description  string
	SlotLabelID  uint16
	SlotType     uint8
	DefaultValue uint8
}

// PersonalityDefinition describes one DMX512 personality.
type PersonalityDefinition struct {
	DMXFootprint uint16
	Description  string
	// Slots may be nil when slot definitions aren't provided.
	Slots []SlotDefinition
}

// SensorDefinition carries everything reported by SENSOR_DEFINITION.
type SensorDefinition struct {
	Description        string
	RangeMinimumValue  int16
	RangeMaximumValue  int16
	NormalMinimumValue int16
	NormalMaximumValue int16
	// RecordedValueSupport is the E1.20 support bitfield: bit 0 for
	// recording, bit 1 for lowest/highest tracking.
	RecordedValueSupport uint8
	Type                 uint8
	Unit                 uint8
	Prefix               uint8
}

// SensorData is the mutable state of one sensor.
type SensorData struct {
	PresentValue  int16
	LowestValue   int16
	HighestValue  int16
	RecordedValue int16
	// NackReason is used when ShouldNack is set.
	NackReason rdm.NackReason
	ShouldNack bool
}

// Definition is the static description of a responder: the PID dispatch
// table and the constant data behind DEVICE_INFO and friends. One
// Definition may back many Responder instances.
type Definition struct {
	Descriptors []PIDDescriptor

	// Sensors may be nil when the responder has none.
	Sensors []SensorDefinition

	// Personalities may be nil when the responder has none.
	Personalities []PersonalityDefinition

	SoftwareVersionLabel string
	ManufacturerLabel    string
	ModelDescription     string
	DefaultDeviceLabel   string

	ProductDetailIDs []uint16

	SoftwareVersion uint32
	ModelID         uint16
	ProductCategory uint16
}

// personality returns the 1-based personality definition, or nil.
func (d *Definition) personality(index uint8) *PersonalityDefinition {
	if d.Personalities == nil || index == 0 || int(index) > len(d.Personalities) {
		return nil
	}
	return &d.Personalities[index-1]
}
