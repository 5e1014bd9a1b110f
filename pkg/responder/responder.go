// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import (
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/rdm"
)

// LED cadence, coarse ticks.
const (
	flashFast = 10000  // 1s per toggle for the identify LED
	flashSlow = 100000 // 10s per toggle for the mute LED
)

const sensorValueParamDataLength = 9

// Pin is a single output the responder can drive, such as the identify
// and mute indicator LEDs.
type Pin interface {
	Set()
	Clear()
	Toggle()
}

type noopPin struct{}

func (noopPin) Set()    {}
func (noopPin) Clear()  {}
func (noopPin) Toggle() {}

// Responder holds the mutable state of one logical responder. Root and
// sub-device responders share the shape; sub-devices set IsSubDevice.
type Responder struct {
	def *Definition
	uid rdm.UID

	deviceLabel string
	sensors     []SensorData

	dmxStartAddress    uint16
	subDeviceCount     uint16
	currentPersonality uint8
	queuedMessageCount uint8

	isMuted              bool
	identifyOn           bool
	usingFactoryDefaults bool
	isSubDevice          bool
	isManagedProxy       bool
	isProxiedDevice      bool

	counters *rdm.Counters
	clock    *coarsetime.Clock
	log      logrus.FieldLogger

	identifyPin   Pin
	mutePin       Pin
	identifyTimer coarsetime.Value
	muteTimer     coarsetime.Value
}

// Settings configures a new Responder.
type Settings struct {
	UID         rdm.UID
	Definition  *Definition
	Counters    *rdm.Counters
	Clock       *coarsetime.Clock
	IdentifyPin Pin
	MutePin     Pin
	IsSubDevice bool
	Log         logrus.FieldLogger
}

// New creates a responder in its factory-default state.
func New(s Settings) *Responder {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Responder{
		def:         s.Definition,
		uid:         s.UID,
		counters:    s.Counters,
		clock:       s.Clock,
		isSubDevice: s.IsSubDevice,
		identifyPin: s.IdentifyPin,
		mutePin:     s.MutePin,
		log:         log.WithField("component", "rdm-responder"),
	}
	if r.identifyPin == nil {
		r.identifyPin = noopPin{}
	}
	if r.mutePin == nil {
		r.mutePin = noopPin{}
	}
	if r.def != nil && r.def.Sensors != nil {
		r.sensors = make([]SensorData, len(r.def.Sensors))
	}
	r.identifyPin.Clear()
	r.mutePin.Set()
	if r.clock != nil {
		r.muteTimer = r.clock.Now()
	}
	r.ResetToFactoryDefaults()
	return r
}

// UID returns the responder's UID.
func (r *Responder) UID() rdm.UID { return r.uid }

// IsMuted reports the discovery mute state.
func (r *Responder) IsMuted() bool { return r.isMuted }

// IdentifyOn reports the identify state.
func (r *Responder) IdentifyOn() bool { return r.identifyOn }

// UsingFactoryDefaults reports whether any SET has moved the responder
// off its defaults since the last factory reset.
func (r *Responder) UsingFactoryDefaults() bool { return r.usingFactoryDefaults }

// DMXStartAddress returns the current start address, or
// rdm.InvalidDMXStartAddress when the responder has no footprint.
func (r *Responder) DMXStartAddress() uint16 { return r.dmxStartAddress }

// CurrentPersonality returns the 1-based active personality.
func (r *Responder) CurrentPersonality() uint8 { return r.currentPersonality }

// DeviceLabel returns the current device label.
func (r *Responder) DeviceLabel() string { return r.deviceLabel }

// SetSubDeviceCount records how many sub-devices hang off this responder.
// It is reported in DEVICE_INFO and the mute control field.
func (r *Responder) SetSubDeviceCount(n uint16) { r.subDeviceCount = n }

// Sensor returns the mutable data for sensor i, or nil.
func (r *Responder) Sensor(i int) *SensorData {
	if i < 0 || i >= len(r.sensors) {
		return nil
	}
	return &r.sensors[i]
}

// Footprint returns the DMX footprint of the active personality.
func (r *Responder) Footprint() uint16 {
	if p := r.def.personality(r.currentPersonality); p != nil {
		return p.DMXFootprint
	}
	return 0
}

// ResetToFactoryDefaults restores all mutable state and raises the
// factory-defaults flag.
func (r *Responder) ResetToFactoryDefaults() {
	r.dmxStartAddress = rdm.InvalidDMXStartAddress
	r.subDeviceCount = 0
	r.currentPersonality = 1
	r.queuedMessageCount = 0
	r.isMuted = false
	r.identifyOn = false
	r.identifyPin.Clear()

	if r.def != nil {
		r.deviceLabel = r.def.DefaultDeviceLabel
		if len(r.deviceLabel) > rdm.MaxStringSize {
			r.deviceLabel = r.deviceLabel[:rdm.MaxStringSize]
		}
		if len(r.def.Personalities) > 0 {
			r.currentPersonality = 1
			r.dmxStartAddress = 1
		}
		for i := range r.sensors {
			r.resetSensor(i)
		}
	}
	r.usingFactoryDefaults = true
}

// Tasks drives the indicator LEDs; call it from the scheduler loop. The
// identify LED toggles every second while identify is on. The mute LED
// blinks slowly while unmuted and is held solid off while muted.
func (r *Responder) Tasks() {
	if r.clock == nil {
		return
	}
	if r.identifyOn && r.clock.HasElapsed(r.identifyTimer, flashFast) {
		r.identifyTimer = r.clock.Now()
		r.identifyPin.Toggle()
	}
	if !r.isMuted && r.clock.HasElapsed(r.muteTimer, flashSlow) {
		r.muteTimer = r.clock.Now()
		r.mutePin.Toggle()
	}
}

// controlField builds the mute/un-mute control bits.
func (r *Responder) controlField() uint16 {
	var field uint16
	if r.subDeviceCount > 0 {
		field |= rdm.MuteSubDeviceFlag
	}
	if r.isManagedProxy {
		field |= rdm.MuteManagedProxyFlag
	}
	if r.isProxiedDevice {
		field |= rdm.MuteProxiedFlag
	}
	return field
}

// recordSensor snapshots the present value if the sensor supports it.
func (r *Responder) recordSensor(i int) {
	if r.def.Sensors[i].RecordedValueSupport&rdm.SensorSupportsRecording != 0 {
		r.sensors[i].RecordedValue = r.sensors[i].PresentValue
	}
}

// resetSensor clears the tracked values back to the present value, or to
// SENSOR_VALUE_UNSUPPORTED for fields the definition doesn't support.
func (r *Responder) resetSensor(i int) {
	def := &r.def.Sensors[i]
	data := &r.sensors[i]
	if def.RecordedValueSupport&rdm.SensorSupportsLowestHighest != 0 {
		data.LowestValue = data.PresentValue
		data.HighestValue = data.PresentValue
	} else {
		data.LowestValue = rdm.SensorValueUnsupported
		data.HighestValue = rdm.SensorValueUnsupported
	}
	if def.RecordedValueSupport&rdm.SensorSupportsRecording != 0 {
		data.RecordedValue = data.PresentValue
	} else {
		data.RecordedValue = rdm.SensorValueUnsupported
	}
}

// UpdateSensor sets the present value of sensor i and tracks the lowest
// and highest seen when the sensor supports it.
func (r *Responder) UpdateSensor(i int, value int16) {
	if i < 0 || i >= len(r.sensors) {
		return
	}
	data := &r.sensors[i]
	data.PresentValue = value
	if r.def.Sensors[i].RecordedValueSupport&rdm.SensorSupportsLowestHighest != 0 {
		if value < data.LowestValue {
			data.LowestValue = value
		}
		if value > data.HighestValue {
			data.HighestValue = value
		}
	}
}
