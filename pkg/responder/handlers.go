// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

// BootSoftwareVersion identifies the bootloader build reported through
// BOOT_SOFTWARE_VERSION_ID / _LABEL.
const (
	BootSoftwareVersion      = 0x00000001
	BootSoftwareVersionLabel = "0.0.1"
)

// Frame packing limits. Larger slot tables would need ACK_OVERFLOW.
const (
	maxSlotInfoPerFrame         = 46
	maxDefaultSlotValuePerFrame = 77
)

// GetSupportedParameters answers SUPPORTED_PARAMETERS. The discovery and
// required PIDs are left out at the root and included for sub-devices,
// matching what a controller expects from each.
func GetSupportedParameters(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	i := rdm.HeaderSize
	for _, d := range r.def.Descriptors {
		switch d.PID {
		case rdm.PIDDiscUniqueBranch, rdm.PIDDiscMute, rdm.PIDDiscUnMute,
			rdm.PIDSupportedParameters, rdm.PIDParameterDescription,
			rdm.PIDDeviceInfo, rdm.PIDSoftwareVersionLabel,
			rdm.PIDDMXStartAddress, rdm.PIDIdentifyDevice:
			if r.isSubDevice {
				i = rdm.PushUInt16(out, i, uint16(d.PID))
			}
		default:
			i = rdm.PushUInt16(out, i, uint16(d.PID))
		}
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetCommsStatus answers COMMS_STATUS with the short-frame,
// length-mismatch and checksum counters.
func GetCommsStatus(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	i := rdm.PushUInt16(out, rdm.HeaderSize, r.counters.RDMShortFrame())
	i = rdm.PushUInt16(out, i, r.counters.RDMLengthMismatch())
	i = rdm.PushUInt16(out, i, r.counters.RDMChecksumInvalid())
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// SetCommsStatus clears the COMMS_STATUS counters.
func SetCommsStatus(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	if h.ParamDataLength != 0 {
		return r.nack(h, rdm.NRFormatError, out)
	}
	r.counters.ResetCommsStatus()
	return r.setAck(h, out)
}

// GetDeviceInfo answers DEVICE_INFO.
func GetDeviceInfo(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	personality := r.def.personality(r.currentPersonality)

	i := rdm.PushUInt16(out, rdm.HeaderSize, rdm.RDMVersion)
	i = rdm.PushUInt16(out, i, r.def.ModelID)
	i = rdm.PushUInt16(out, i, r.def.ProductCategory)
	i = rdm.PushUInt32(out, i, r.def.SoftwareVersion)
	footprint := uint16(0)
	if personality != nil {
		footprint = personality.DMXFootprint
	}
	i = rdm.PushUInt16(out, i, footprint)
	out[i] = r.currentPersonality
	i++
	if len(r.def.Personalities) > 0 {
		out[i] = uint8(len(r.def.Personalities))
	} else {
		out[i] = 1
	}
	i++
	i = rdm.PushUInt16(out, i, r.dmxStartAddress)
	i = rdm.PushUInt16(out, i, r.subDeviceCount)
	out[i] = uint8(len(r.def.Sensors))
	i++
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetProductDetailIDs answers PRODUCT_DETAIL_ID_LIST, at most
// rdm.MaxProductDetails entries.
func GetProductDetailIDs(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	i := rdm.HeaderSize
	ids := r.def.ProductDetailIDs
	if len(ids) > rdm.MaxProductDetails {
		ids = ids[:rdm.MaxProductDetails]
	}
	for _, id := range ids {
		i = rdm.PushUInt16(out, i, id)
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetDeviceModelDescription answers DEVICE_MODEL_DESCRIPTION.
func GetDeviceModelDescription(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.returnString(h, r.def.ModelDescription, out)
}

// GetManufacturerLabel answers MANUFACTURER_LABEL.
func GetManufacturerLabel(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.returnString(h, r.def.ManufacturerLabel, out)
}

// GetSoftwareVersionLabel answers SOFTWARE_VERSION_LABEL.
func GetSoftwareVersionLabel(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.returnString(h, r.def.SoftwareVersionLabel, out)
}

// GetBootSoftwareVersion answers BOOT_SOFTWARE_VERSION_ID.
func GetBootSoftwareVersion(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.getUInt32(h, BootSoftwareVersion, out)
}

// GetBootSoftwareVersionLabel answers BOOT_SOFTWARE_VERSION_LABEL.
func GetBootSoftwareVersionLabel(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.returnString(h, BootSoftwareVersionLabel, out)
}

// GetDeviceLabel answers DEVICE_LABEL.
func GetDeviceLabel(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.returnString(h, r.deviceLabel, out)
}

// SetDeviceLabel stores a new device label, at most 32 bytes, and clears
// the factory-defaults flag.
func SetDeviceLabel(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	if h.ParamDataLength > rdm.MaxStringSize {
		return r.nack(h, rdm.NRFormatError, out)
	}
	label := string(paramData[:h.ParamDataLength])
	if i := indexNul(label); i >= 0 {
		label = label[:i]
	}
	if r.deviceLabel != label {
		r.usingFactoryDefaults = false
	}
	r.deviceLabel = label
	return r.setAck(h, out)
}

func indexNul(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return -1
}

// GetDMXPersonality answers DMX_PERSONALITY.
func GetDMXPersonality(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	out[rdm.HeaderSize] = r.currentPersonality
	out[rdm.HeaderSize+1] = uint8(len(r.def.Personalities))
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, rdm.HeaderSize+2, out)
}

// SetDMXPersonality switches the active personality, 1-based.
func SetDMXPersonality(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	if h.ParamDataLength != 1 {
		return r.nack(h, rdm.NRFormatError, out)
	}
	personality := paramData[0]
	if personality == 0 || int(personality) > len(r.def.Personalities) {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}
	if r.currentPersonality != personality {
		r.usingFactoryDefaults = false
	}
	r.currentPersonality = personality
	return r.setAck(h, out)
}

// GetDMXPersonalityDescription answers DMX_PERSONALITY_DESCRIPTION for
// the personality index in the request.
func GetDMXPersonalityDescription(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	index := paramData[0]
	if index == 0 || int(index) > len(r.def.Personalities) {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}
	personality := r.def.personality(index)
	if personality == nil {
		return r.nack(h, rdm.NRHardwareFault, out)
	}

	out[rdm.HeaderSize] = index
	i := rdm.PushUInt16(out, rdm.HeaderSize+1, personality.DMXFootprint)
	i = rdm.PushString(out, i, personality.Description, rdm.MaxStringSize)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetDMXStartAddress answers DMX_START_ADDRESS.
func GetDMXStartAddress(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.getUInt16(h, r.dmxStartAddress, out)
}

// SetDMXStartAddress stores a new start address in 1..512.
func SetDMXStartAddress(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	if h.ParamDataLength != 2 {
		return r.nack(h, rdm.NRFormatError, out)
	}
	address := rdm.U16(paramData, 0)
	if address == 0 || address > rdm.MaxDMXStartAddress {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}
	if r.dmxStartAddress != address {
		r.usingFactoryDefaults = false
	}
	r.dmxStartAddress = address
	return r.setAck(h, out)
}

// GetSlotInfo answers SLOT_INFO for the active personality.
func GetSlotInfo(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	personality := r.def.personality(r.currentPersonality)
	if personality == nil || personality.Slots == nil {
		return r.nack(h, rdm.NRHardwareFault, out)
	}

	count := len(personality.Slots)
	if count > maxSlotInfoPerFrame {
		count = maxSlotInfoPerFrame
	}
	i := rdm.HeaderSize
	for slot := 0; slot < count; slot++ {
		i = rdm.PushUInt16(out, i, uint16(slot))
		out[i] = personality.Slots[slot].SlotType
		i = rdm.PushUInt16(out, i+1, personality.Slots[slot].SlotLabelID)
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetSlotDescription answers SLOT_DESCRIPTION for the slot in the
// request.
func GetSlotDescription(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	slot := rdm.U16(paramData, 0)
	personality := r.def.personality(r.currentPersonality)
	if personality == nil || personality.Slots == nil {
		return r.nack(h, rdm.NRHardwareFault, out)
	}
	if int(slot) >= len(personality.Slots) {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}

	i := rdm.PushUInt16(out, rdm.HeaderSize, slot)
	i = rdm.PushString(out, i, personality.Slots[slot].Description, rdm.MaxStringSize)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetDefaultSlotValue answers DEFAULT_SLOT_VALUE for the active
// personality.
func GetDefaultSlotValue(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	personality := r.def.personality(r.currentPersonality)
	if personality == nil || personality.Slots == nil {
		return r.nack(h, rdm.NRHardwareFault, out)
	}

	count := len(personality.Slots)
	if count > maxDefaultSlotValuePerFrame {
		count = maxDefaultSlotValuePerFrame
	}
	i := rdm.HeaderSize
	for slot := 0; slot < count; slot++ {
		i = rdm.PushUInt16(out, i, uint16(slot))
		out[i] = personality.Slots[slot].DefaultValue
		i++
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// GetSensorDefinition answers SENSOR_DEFINITION for the sensor in the
// request.
func GetSensorDefinition(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	index := paramData[0]
	if int(index) >= len(r.def.Sensors) {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}

	def := &r.def.Sensors[index]
	out[rdm.HeaderSize] = index
	out[rdm.HeaderSize+1] = def.Type
	out[rdm.HeaderSize+2] = def.Unit
	out[rdm.HeaderSize+3] = def.Prefix
	i := rdm.PushUInt16(out, rdm.HeaderSize+4, uint16(def.RangeMinimumValue))
	i = rdm.PushUInt16(out, i, uint16(def.RangeMaximumValue))
	i = rdm.PushUInt16(out, i, uint16(def.NormalMinimumValue))
	i = rdm.PushUInt16(out, i, uint16(def.NormalMaximumValue))
	out[i] = def.RecordedValueSupport
	i = rdm.PushString(out, i+1, def.Description, rdm.MaxStringSize)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

func pushSensorValue(out []byte, i int, index uint8, data *SensorData) int {
	out[i] = index
	i = rdm.PushUInt16(out, i+1, uint16(data.PresentValue))
	i = rdm.PushUInt16(out, i, uint16(data.LowestValue))
	i = rdm.PushUInt16(out, i, uint16(data.HighestValue))
	i = rdm.PushUInt16(out, i, uint16(data.RecordedValue))
	return i
}

// GetSensorValue answers SENSOR_VALUE for the sensor in the request.
func GetSensorValue(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	index := paramData[0]
	if int(index) >= len(r.sensors) {
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}

	data := &r.sensors[index]
	if data.ShouldNack {
		return r.nack(h, data.NackReason, out)
	}
	i := pushSensorValue(out, rdm.HeaderSize, index, data)
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// SetSensorValue resets one sensor, or all of them for ALL_SENSORS.
func SetSensorValue(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	if h.ParamDataLength != 1 {
		return r.nack(h, rdm.NRFormatError, out)
	}

	index := paramData[0]
	switch {
	case int(index) < len(r.sensors):
		r.resetSensor(int(index))
	case index == rdm.AllSensors:
		for i := range r.sensors {
			r.resetSensor(i)
		}
	default:
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}

	if !h.DestUID.IsUnicast() {
		return NoResponse
	}

	i := rdm.HeaderSize
	if index == rdm.AllSensors {
		for j := 0; j < sensorValueParamDataLength; j++ {
			out[i+j] = 0
		}
		i += sensorValueParamDataLength
	} else {
		i = pushSensorValue(out, i, index, &r.sensors[index])
	}
	return r.addHeaderAndChecksum(h, rdm.ResponseAck, i, out)
}

// SetRecordSensors snapshots one sensor, or all of them for ALL_SENSORS.
func SetRecordSensors(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	if h.ParamDataLength != 1 {
		return r.nack(h, rdm.NRFormatError, out)
	}

	index := paramData[0]
	switch {
	case int(index) < len(r.sensors):
		if r.def.Sensors[index].RecordedValueSupport&rdm.SensorSupportsRecording == 0 {
			return r.nack(h, rdm.NRDataOutOfRange, out)
		}
		r.recordSensor(int(index))
	case index == rdm.AllSensors:
		for i := range r.sensors {
			r.recordSensor(i)
		}
	default:
		return r.nack(h, rdm.NRDataOutOfRange, out)
	}
	return r.setAck(h, out)
}

// GetIdentifyDevice answers IDENTIFY_DEVICE.
func GetIdentifyDevice(r *Responder, h *rdm.Header, _ []byte, out []byte) int {
	return r.getBool(h, r.identifyOn, out)
}

// SetIdentifyDevice starts or stops the identify flash. Changing the
// state clears the factory-defaults flag.
func SetIdentifyDevice(r *Responder, h *rdm.Header, paramData []byte, out []byte) int {
	previous := r.identifyOn
	result := r.setBool(h, paramData, &r.identifyOn, out)
	if r.identifyOn == previous {
		return result
	}
	r.usingFactoryDefaults = false
	if r.identifyOn {
		if r.clock != nil {
			r.identifyTimer = r.clock.Now()
		}
		r.identifyPin.Set()
	} else {
		r.identifyPin.Clear()
	}
	return result
}

// BaseDescriptors returns the PID table shared by every responder model,
// sorted by PID.
func BaseDescriptors() []PIDDescriptor {
	return []PIDDescriptor{
		{PID: rdm.PIDDiscUniqueBranch},
		{PID: rdm.PIDDiscMute},
		{PID: rdm.PIDDiscUnMute},
		{PID: rdm.PIDCommsStatus, GetHandler: GetCommsStatus, SetHandler: SetCommsStatus},
		{PID: rdm.PIDSupportedParameters, GetHandler: GetSupportedParameters},
		{PID: rdm.PIDDeviceInfo, GetHandler: GetDeviceInfo},
		{PID: rdm.PIDProductDetailIDList, GetHandler: GetProductDetailIDs},
		{PID: rdm.PIDDeviceModelDescription, GetHandler: GetDeviceModelDescription},
		{PID: rdm.PIDManufacturerLabel, GetHandler: GetManufacturerLabel},
		{PID: rdm.PIDDeviceLabel, GetHandler: GetDeviceLabel, SetHandler: SetDeviceLabel},
		{PID: rdm.PIDSoftwareVersionLabel, GetHandler: GetSoftwareVersionLabel},
		{PID: rdm.PIDBootSoftwareVersionID, GetHandler: GetBootSoftwareVersion},
		{PID: rdm.PIDBootSoftwareVersionLabel, GetHandler: GetBootSoftwareVersionLabel},
		{PID: rdm.PIDDMXPersonality, GetHandler: GetDMXPersonality, SetHandler: SetDMXPersonality},
		{PID: rdm.PIDDMXPersonalityDesc, GetHandler: GetDMXPersonalityDescription, GetParamSize: 1},
		{PID: rdm.PIDDMXStartAddress, GetHandler: GetDMXStartAddress, SetHandler: SetDMXStartAddress},
		{PID: rdm.PIDSlotInfo, GetHandler: GetSlotInfo},
		{PID: rdm.PIDSlotDescription, GetHandler: GetSlotDescription, GetParamSize: 2},
		{PID: rdm.PIDDefaultSlotValue, GetHandler: GetDefaultSlotValue},
		{PID: rdm.PIDSensorDefinition, GetHandler: GetSensorDefinition, GetParamSize: 1},
		{PID: rdm.PIDSensorValue, GetHandler: GetSensorValue, GetParamSize: 1, SetHandler: SetSensorValue},
		{PID: rdm.PIDRecordSensors, SetHandler: SetRecordSensors},
		{PID: rdm.PIDIdentifyDevice, GetHandler: GetIdentifyDevice, SetHandler: SetIdentifyDevice},
	}
}
