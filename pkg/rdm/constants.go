// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rdm implements the E1.20 RDM frame codec: header
// serialization and parsing, the 16-bit additive checksum, and the
// receiver counters reported through COMMS_STATUS.
package rdm

// Start codes
const (
	NullStartCode = 0x00 // DMX512 null start code
	StartCode     = 0xCC // RDM start code (SC_RDM)
	SubStartCode  = 0x01 // RDM sub start code (SC_SUB_MESSAGE)
)

// Frame geometry
const (
	UIDLength         = 6
	HeaderSize        = 24
	ChecksumSize      = 2
	MaxParamDataSize  = 231
	MaxFrameSize      = HeaderSize + MaxParamDataSize + ChecksumSize
	DUBResponseLength = 24 // 7 x 0xFE preamble + 0xAA + 12 UID + 4 checksum
	MaxStringSize     = 32 // device / manufacturer / description strings
)

// DMX geometry
const (
	MaxSlotCount = 512
	// DMXFrameSize is the worst case wire frame: start code plus 512 slots.
	DMXFrameSize = MaxSlotCount + 1
)

// DMX start address limits
const (
	MaxDMXStartAddress     = 512
	InvalidDMXStartAddress = 0xFFFF
)

// RDMVersion is the E1.20 protocol version reported in DEVICE_INFO.
const RDMVersion = 0x0100

// Sub device addressing
const (
	SubDeviceRoot    = 0x0000
	SubDeviceAllCall = 0xFFFF
)

// CommandClass is the RDM command class field.
type CommandClass uint8

// Command classes
const (
	DiscoveryCommand         CommandClass = 0x10
	DiscoveryCommandResponse CommandClass = 0x11
	GetCommand               CommandClass = 0x20
	GetCommandResponse       CommandClass = 0x21
	SetCommand               CommandClass = 0x30
	SetCommandResponse       CommandClass = 0x31
)

// ResponseType is carried in the port-id field of a response.
type ResponseType uint8

// Response types
const (
	ResponseAck         ResponseType = 0x00
	ResponseAckTimer    ResponseType = 0x01
	ResponseNackReason  ResponseType = 0x02
	ResponseAckOverflow ResponseType = 0x03
)

// PID is an RDM parameter identifier.
type PID uint16

// Parameter IDs, E1.20 Table A-3.
const (
	PIDDiscUniqueBranch         PID = 0x0001
	PIDDiscMute                 PID = 0x0002
	PIDDiscUnMute               PID = 0x0003
	PIDCommsStatus              PID = 0x0015
	PIDQueuedMessage            PID = 0x0020
	PIDSupportedParameters      PID = 0x0050
	PIDParameterDescription     PID = 0x0051
	PIDDeviceInfo               PID = 0x0060
	PIDProductDetailIDList      PID = 0x0070
	PIDDeviceModelDescription   PID = 0x0080
	PIDManufacturerLabel        PID = 0x0081
	PIDDeviceLabel              PID = 0x0082
	PIDFactoryDefaults          PID = 0x0090
	PIDSoftwareVersionLabel     PID = 0x00C0
	PIDBootSoftwareVersionID    PID = 0x00C1
	PIDBootSoftwareVersionLabel PID = 0x00C2
	PIDDMXPersonality           PID = 0x00E0
	PIDDMXPersonalityDesc       PID = 0x00E1
	PIDDMXStartAddress          PID = 0x00F0
	PIDSlotInfo                 PID = 0x0120
	PIDSlotDescription          PID = 0x0121
	PIDDefaultSlotValue         PID = 0x0122
	PIDSensorDefinition         PID = 0x0200
	PIDSensorValue              PID = 0x0201
	PIDRecordSensors            PID = 0x0202
	PIDIdentifyDevice           PID = 0x1000
)

// NackReason is an RDM NACK reason code.
type NackReason uint16

// NACK reasons, E1.20 Table A-17.
const (
	NRUnknownPID              NackReason = 0x0000
	NRFormatError             NackReason = 0x0001
	NRHardwareFault           NackReason = 0x0002
	NRProxyReject             NackReason = 0x0003
	NRWriteProtect            NackReason = 0x0004
	NRUnsupportedCommandClass NackReason = 0x0005
	NRDataOutOfRange          NackReason = 0x0006
	NRBufferFull              NackReason = 0x0007
	NRPacketSizeUnsupported   NackReason = 0x0008
	NRSubDeviceOutOfRange     NackReason = 0x0009
	NRProxyBufferFull         NackReason = 0x000A
)

// Mute / un-mute control field bits.
const (
	MuteSubDeviceFlag    = 1 << 0
	MuteManagedProxyFlag = 1 << 1
	MuteProxiedFlag      = 1 << 2
)

// Product categories, E1.20 Table A-5 (subset).
const (
	ProductCategoryFixture       = 0x0101
	ProductCategoryDimmer        = 0x0501
	ProductCategoryTestEquipment = 0x7101
)

// Product detail IDs, E1.20 Table A-6 (subset).
const (
	ProductDetailLED   = 0x0005
	ProductDetailPWM   = 0x0401
	ProductDetailOther = 0x7FFF
)

// MaxProductDetails is the number of IDs PRODUCT_DETAIL_ID_LIST can carry.
const MaxProductDetails = 6

// Sensor constants.
const (
	SensorTypeTemperature = 0x00
	SensorTypeVoltage     = 0x01

	SensorUnitNone       = 0x00
	SensorUnitCentigrade = 0x01
	SensorUnitVoltsDC    = 0x03

	SensorPrefixNone  = 0x00
	SensorPrefixDeci  = 0x01
	SensorPrefixCenti = 0x02

	SensorSupportsRecording     = 1 << 0
	SensorSupportsLowestHighest = 1 << 1

	SensorValueUnsupported = 0
	AllSensors             = 0xFF
)

// Slot types and label IDs, E1.20 Table C-1 / C-2 (subset).
const (
	SlotTypePrimary  = 0x00
	SlotTypeSecFine  = 0x01
	SlotIDIntensity  = 0x0001
	SlotIDColorRed   = 0x0205
	SlotIDColorGreen = 0x0206
	SlotIDColorBlue  = 0x0207
	SlotIDUndefined  = 0xFFFF
)
