// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import (
	"strings"
	"testing"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/rdm"
)

// fakePin records the last driven level.
type fakePin struct {
	on bool
}

func (p *fakePin) Set()    { p.on = true }
func (p *fakePin) Clear()  { p.on = false }
func (p *fakePin) Toggle() { p.on = !p.on }

func nackReason(t *testing.T, out []byte, n int) rdm.NackReason {
	t.Helper()
	got, paramData := reply(t, out, n)
	if got.PortID != uint8(rdm.ResponseNackReason) {
		t.Fatalf("response type = %d, want NACK", got.PortID)
	}
	return rdm.NackReason(rdm.U16(paramData, 0))
}

func TestSetDMXStartAddress_OutOfRange(t *testing.T) {
	r, _, _ := newTestResponder(t)
	before := r.DMXStartAddress()

	// 513 = 0x0201.
	h := request(rdm.SetCommand, rdm.PIDDMXStartAddress, rdm.SubDeviceRoot, 2)
	out, n := dispatch(r, h, []byte{0x02, 0x01})

	if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
		t.Errorf("reason = %#x, want NR_DATA_OUT_OF_RANGE", got)
	}
	if r.DMXStartAddress() != before {
		t.Errorf("start address changed to %d on a rejected SET", r.DMXStartAddress())
	}
}

func TestSetDMXStartAddress_Valid(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.SetCommand, rdm.PIDDMXStartAddress, rdm.SubDeviceRoot, 2)
	out, n := dispatch(r, h, []byte{0x01, 0xFF})
	got, _ := reply(t, out, n)

	if got.PortID != uint8(rdm.ResponseAck) {
		t.Fatalf("response type = %d, want ACK", got.PortID)
	}
	if r.DMXStartAddress() != 511 {
		t.Errorf("start address = %d, want 511", r.DMXStartAddress())
	}
	if r.UsingFactoryDefaults() {
		t.Error("factory-defaults flag still set after changing the start address")
	}
}

func TestGetDMXStartAddress(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDDMXStartAddress, rdm.SubDeviceRoot, 0)
	out, n := dispatch(r, h, nil)
	_, paramData := reply(t, out, n)

	if rdm.U16(paramData, 0) != 1 {
		t.Errorf("start address = %d, want factory default 1", rdm.U16(paramData, 0))
	}
}

func TestFactoryDefaultsFlag(t *testing.T) {
	r, _, _ := newTestResponder(t)

	if !r.UsingFactoryDefaults() {
		t.Fatal("fresh responder not at factory defaults")
	}

	// A SET to the same value leaves the flag alone.
	h := request(rdm.SetCommand, rdm.PIDDMXStartAddress, rdm.SubDeviceRoot, 2)
	dispatch(r, h, []byte{0x00, 0x01})
	if !r.UsingFactoryDefaults() {
		t.Error("SET to the unchanged value cleared the flag")
	}

	dispatch(r, h, []byte{0x00, 0x10})
	if r.UsingFactoryDefaults() {
		t.Error("SET to a new value left the flag set")
	}

	r.ResetToFactoryDefaults()
	if !r.UsingFactoryDefaults() {
		t.Error("flag not restored by factory reset")
	}
	if r.DMXStartAddress() != 1 {
		t.Errorf("start address = %d after factory reset, want 1", r.DMXStartAddress())
	}
}

func TestFactoryDefaultsFlag_Identify(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.SetCommand, rdm.PIDIdentifyDevice, rdm.SubDeviceRoot, 1)
	dispatch(r, h, []byte{1})
	if !r.IdentifyOn() {
		t.Fatal("identify not enabled")
	}
	if r.UsingFactoryDefaults() {
		t.Error("identify change left the factory-defaults flag set")
	}
}

func TestSetIdentifyDevice_OutOfRange(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.SetCommand, rdm.PIDIdentifyDevice, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{2})
	if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
		t.Errorf("reason = %#x, want NR_DATA_OUT_OF_RANGE", got)
	}
	if r.IdentifyOn() {
		t.Error("rejected identify SET changed state")
	}
}

func TestSetDeviceLabel(t *testing.T) {
	r, _, _ := newTestResponder(t)

	label := "test fixture 7"
	h := request(rdm.SetCommand, rdm.PIDDeviceLabel, rdm.SubDeviceRoot, uint8(len(label)))
	out, n := dispatch(r, h, []byte(label))
	reply(t, out, n)

	if r.DeviceLabel() != label {
		t.Errorf("label = %q, want %q", r.DeviceLabel(), label)
	}
	if r.UsingFactoryDefaults() {
		t.Error("label change left the factory-defaults flag set")
	}

	// 33 bytes is one past the limit.
	long := strings.Repeat("x", 33)
	h = request(rdm.SetCommand, rdm.PIDDeviceLabel, rdm.SubDeviceRoot, 33)
	out, n = dispatch(r, h, []byte(long))
	if got := nackReason(t, out, n); got != rdm.NRFormatError {
		t.Errorf("reason = %#x, want NR_FORMAT_ERROR", got)
	}
	if r.DeviceLabel() != label {
		t.Error("rejected label SET changed state")
	}
}

func TestSetDMXPersonality(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.SetCommand, rdm.PIDDMXPersonality, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{2})
	reply(t, out, n)
	if r.CurrentPersonality() != 2 {
		t.Errorf("personality = %d, want 2", r.CurrentPersonality())
	}
	if r.Footprint() != 4 {
		t.Errorf("footprint = %d, want 4", r.Footprint())
	}

	// 0 and count+1 are out of range.
	for _, bad := range []byte{0, 3} {
		out, n = dispatch(r, request(rdm.SetCommand, rdm.PIDDMXPersonality, rdm.SubDeviceRoot, 1), []byte{bad})
		if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
			t.Errorf("personality %d: reason = %#x, want NR_DATA_OUT_OF_RANGE", bad, got)
		}
	}
	if r.CurrentPersonality() != 2 {
		t.Error("rejected personality SET changed state")
	}
}

func TestGetDMXPersonalityDescription(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDDMXPersonalityDesc, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{1})
	_, paramData := reply(t, out, n)

	if paramData[0] != 1 {
		t.Errorf("index = %d, want 1", paramData[0])
	}
	if rdm.U16(paramData, 1) != 3 {
		t.Errorf("footprint = %d, want 3", rdm.U16(paramData, 1))
	}
	if string(paramData[3:]) != "RGB" {
		t.Errorf("description = %q, want RGB", paramData[3:])
	}
}

func TestGetDeviceInfo(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDDeviceInfo, rdm.SubDeviceRoot, 0)
	out, n := dispatch(r, h, nil)
	_, paramData := reply(t, out, n)

	if len(paramData) != 19 {
		t.Fatalf("DEVICE_INFO length = %d, want 19", len(paramData))
	}
	if rdm.U16(paramData, 0) != rdm.RDMVersion {
		t.Errorf("protocol version = %#x", rdm.U16(paramData, 0))
	}
	if rdm.U16(paramData, 4) != rdm.ProductCategoryFixture {
		t.Errorf("category = %#x, want fixture", rdm.U16(paramData, 4))
	}
	if rdm.U16(paramData, 10) != 3 {
		t.Errorf("footprint = %d, want 3", rdm.U16(paramData, 10))
	}
	if paramData[12] != 1 || paramData[13] != 2 {
		t.Errorf("personality = %d/%d, want 1/2", paramData[12], paramData[13])
	}
	if rdm.U16(paramData, 14) != 1 {
		t.Errorf("start address = %d, want 1", rdm.U16(paramData, 14))
	}
	if paramData[18] != 2 {
		t.Errorf("sensor count = %d, want 2", paramData[18])
	}
}

func TestSupportedParameters_RootFiltersRequired(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDSupportedParameters, rdm.SubDeviceRoot, 0)
	out, n := dispatch(r, h, nil)
	_, paramData := reply(t, out, n)

	pids := map[uint16]bool{}
	for i := 0; i+1 < len(paramData); i += 2 {
		pids[rdm.U16(paramData, i)] = true
	}
	for _, required := range []rdm.PID{
		rdm.PIDDiscUniqueBranch, rdm.PIDDeviceInfo, rdm.PIDSupportedParameters,
		rdm.PIDDMXStartAddress, rdm.PIDIdentifyDevice,
	} {
		if pids[uint16(required)] {
			t.Errorf("root SUPPORTED_PARAMETERS lists required PID %#04x", uint16(required))
		}
	}
	if !pids[uint16(rdm.PIDDeviceLabel)] || !pids[uint16(rdm.PIDSensorValue)] {
		t.Error("optional PIDs missing from SUPPORTED_PARAMETERS")
	}
}

func TestCommsStatus(t *testing.T) {
	r, counters, _ := newTestResponder(t)

	// Push a bad frame through validation to bump a counter.
	bad := make([]byte, 30)
	bad[0] = rdm.StartCode
	bad[1] = rdm.SubStartCode
	bad[2] = 50 // declared length past the frame
	rdm.Validate(bad, counters)

	h := request(rdm.GetCommand, rdm.PIDCommsStatus, rdm.SubDeviceRoot, 0)
	out, n := dispatch(r, h, nil)
	_, paramData := reply(t, out, n)

	if rdm.U16(paramData, 2) != 1 {
		t.Errorf("length mismatch counter = %d, want 1", rdm.U16(paramData, 2))
	}

	set := request(rdm.SetCommand, rdm.PIDCommsStatus, rdm.SubDeviceRoot, 0)
	out, n = dispatch(r, set, nil)
	reply(t, out, n)

	out, n = dispatch(r, h, nil)
	_, paramData = reply(t, out, n)
	for i := 0; i < 6; i += 2 {
		if rdm.U16(paramData, i) != 0 {
			t.Errorf("counter at %d = %d after SET COMMS_STATUS, want 0", i, rdm.U16(paramData, i))
		}
	}
}

func TestSensorValue(t *testing.T) {
	r, _, _ := newTestResponder(t)
	r.UpdateSensor(0, 55)
	r.UpdateSensor(0, 70)
	r.UpdateSensor(0, 60)

	h := request(rdm.GetCommand, rdm.PIDSensorValue, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{0})
	_, paramData := reply(t, out, n)

	if paramData[0] != 0 {
		t.Errorf("sensor index = %d, want 0", paramData[0])
	}
	if int16(rdm.U16(paramData, 1)) != 60 {
		t.Errorf("present = %d, want 60", int16(rdm.U16(paramData, 1)))
	}
	if int16(rdm.U16(paramData, 3)) != 0 {
		t.Errorf("lowest = %d, want 0 (initial reset value)", int16(rdm.U16(paramData, 3)))
	}
	if int16(rdm.U16(paramData, 5)) != 70 {
		t.Errorf("highest = %d, want 70", int16(rdm.U16(paramData, 5)))
	}

	// Sensor 1 has no lowest/highest or recording support.
	out, n = dispatch(r, request(rdm.GetCommand, rdm.PIDSensorValue, rdm.SubDeviceRoot, 1), []byte{1})
	_, paramData = reply(t, out, n)
	if int16(rdm.U16(paramData, 3)) != rdm.SensorValueUnsupported ||
		int16(rdm.U16(paramData, 7)) != rdm.SensorValueUnsupported {
		t.Error("unsupported sensor fields not reported as SENSOR_VALUE_UNSUPPORTED")
	}

	out, n = dispatch(r, request(rdm.GetCommand, rdm.PIDSensorValue, rdm.SubDeviceRoot, 1), []byte{9})
	if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
		t.Errorf("reason = %#x, want NR_DATA_OUT_OF_RANGE", got)
	}
}

func TestSetSensorValue_ResetsTracking(t *testing.T) {
	r, _, _ := newTestResponder(t)
	r.UpdateSensor(0, 90)

	h := request(rdm.SetCommand, rdm.PIDSensorValue, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{0})
	_, paramData := reply(t, out, n)

	// Lowest and highest snap back to the present value.
	if int16(rdm.U16(paramData, 3)) != 90 || int16(rdm.U16(paramData, 5)) != 90 {
		t.Errorf("reset sensor = % x, want lowest/highest 90", paramData)
	}

	// ALL_SENSORS replies with nine zero bytes.
	out, n = dispatch(r, request(rdm.SetCommand, rdm.PIDSensorValue, rdm.SubDeviceRoot, 1), []byte{rdm.AllSensors})
	_, paramData = reply(t, out, n)
	if len(paramData) != 9 {
		t.Fatalf("ALL_SENSORS reply length = %d, want 9", len(paramData))
	}
	for _, b := range paramData {
		if b != 0 {
			t.Fatalf("ALL_SENSORS reply = % x, want zeros", paramData)
		}
	}
}

func TestRecordSensors(t *testing.T) {
	r, _, _ := newTestResponder(t)
	r.UpdateSensor(0, 42)

	h := request(rdm.SetCommand, rdm.PIDRecordSensors, rdm.SubDeviceRoot, 1)
	out, n := dispatch(r, h, []byte{0})
	reply(t, out, n)
	if r.Sensor(0).RecordedValue != 42 {
		t.Errorf("recorded = %d, want 42", r.Sensor(0).RecordedValue)
	}

	// Sensor 1 does not support recording.
	out, n = dispatch(r, request(rdm.SetCommand, rdm.PIDRecordSensors, rdm.SubDeviceRoot, 1), []byte{1})
	if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
		t.Errorf("reason = %#x, want NR_DATA_OUT_OF_RANGE", got)
	}
}

func TestGetSlotInfo(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDSlotInfo, rdm.SubDeviceRoot, 0)
	out, n := dispatch(r, h, nil)
	_, paramData := reply(t, out, n)

	// Three slots, five bytes each.
	if len(paramData) != 15 {
		t.Fatalf("SLOT_INFO length = %d, want 15", len(paramData))
	}
	if rdm.U16(paramData, 3) != rdm.SlotIDColorRed {
		t.Errorf("slot 0 label = %#x, want red", rdm.U16(paramData, 3))
	}
}

func TestGetSlotDescription(t *testing.T) {
	r, _, _ := newTestResponder(t)

	h := request(rdm.GetCommand, rdm.PIDSlotDescription, rdm.SubDeviceRoot, 2)
	out, n := dispatch(r, h, []byte{0x00, 0x01})
	_, paramData := reply(t, out, n)
	if string(paramData[2:]) != "Green" {
		t.Errorf("description = %q, want Green", paramData[2:])
	}

	out, n = dispatch(r, request(rdm.GetCommand, rdm.PIDSlotDescription, rdm.SubDeviceRoot, 2), []byte{0x00, 0x09})
	if got := nackReason(t, out, n); got != rdm.NRDataOutOfRange {
		t.Errorf("reason = %#x, want NR_DATA_OUT_OF_RANGE", got)
	}
}

func TestIdentifyLEDCadence(t *testing.T) {
	var pin fakePin
	var counters rdm.Counters
	clock := &coarsetime.Clock{}
	r := New(Settings{
		UID:         ownUID,
		Definition:  LEDWashDefinition(),
		Counters:    &counters,
		Clock:       clock,
		IdentifyPin: &pin,
	})

	h := request(rdm.SetCommand, rdm.PIDIdentifyDevice, rdm.SubDeviceRoot, 1)
	dispatch(r, h, []byte{1})
	if !pin.on {
		t.Fatal("identify pin not driven high when identify starts")
	}

	// One second per toggle.
	clock.SetCounter(clock.Now() + flashFast + 1)
	r.Tasks()
	if pin.on {
		t.Error("identify pin did not toggle after 1s")
	}
	clock.SetCounter(clock.Now() + flashFast + 1)
	r.Tasks()
	if !pin.on {
		t.Error("identify pin did not toggle back after another 1s")
	}

	dispatch(r, h, []byte{0})
	if pin.on {
		t.Error("identify pin not cleared when identify stops")
	}
}

func TestMuteLEDSolidOffWhenMuted(t *testing.T) {
	var pin fakePin
	var counters rdm.Counters
	clock := &coarsetime.Clock{}
	r := New(Settings{
		UID:        ownUID,
		Definition: LEDWashDefinition(),
		Counters:   &counters,
		Clock:      clock,
		MutePin:    &pin,
	})
	if !pin.on {
		t.Fatal("mute pin not set while unmuted")
	}

	// Unmuted: blinks on the slow cadence.
	clock.SetCounter(clock.Now() + flashSlow + 1)
	r.Tasks()
	if pin.on {
		t.Error("mute pin did not blink while unmuted")
	}

	// Muted: held solid off, no blinking.
	dispatch(r, request(rdm.DiscoveryCommand, rdm.PIDDiscMute, rdm.SubDeviceRoot, 0), nil)
	if pin.on {
		t.Fatal("mute pin not cleared on mute")
	}
	clock.SetCounter(clock.Now() + 2*flashSlow)
	r.Tasks()
	if pin.on {
		t.Error("mute pin toggled while muted")
	}
}
