// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package responder

import "github.com/Thermoquad/dmxbridge/pkg/rdm"

// LEDWashDefinition builds the definition for the stock RGB wash fixture
// model. It carries two personalities, a temperature sensor with full
// recording support and a supply-voltage sensor without, which together
// exercise every branch of the sensor and slot PIDs.
func LEDWashDefinition() *Definition {
	return &Definition{
		Descriptors: BaseDescriptors(),
		Sensors: []SensorDefinition{
			{
				Description:          "LED temperature",
				Type:                 rdm.SensorTypeTemperature,
				Unit:                 rdm.SensorUnitCentigrade,
				Prefix:               rdm.SensorPrefixNone,
				RangeMinimumValue:    -40,
				RangeMaximumValue:    125,
				NormalMinimumValue:   0,
				NormalMaximumValue:   85,
				RecordedValueSupport: rdm.SensorSupportsRecording | rdm.SensorSupportsLowestHighest,
			},
			{
				Description:        "Supply voltage",
				Type:               rdm.SensorTypeVoltage,
				Unit:               rdm.SensorUnitVoltsDC,
				Prefix:             rdm.SensorPrefixDeci,
				RangeMinimumValue:  0,
				RangeMaximumValue:  300,
				NormalMinimumValue: 110,
				NormalMaximumValue: 130,
			},
		},
		Personalities: []PersonalityDefinition{
			{
				DMXFootprint: 3,
				Description:  "RGB",
				Slots: []SlotDefinition{
					{Description: "Red", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorRed},
					{Description: "Green", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorGreen},
					{Description: "Blue", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorBlue},
				},
			},
			{
				DMXFootprint: 4,
				Description:  "Dimmer + RGB",
				Slots: []SlotDefinition{
					{Description: "Intensity", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDIntensity, DefaultValue: 0xFF},
					{Description: "Red", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorRed},
					{Description: "Green", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorGreen},
					{Description: "Blue", SlotType: rdm.SlotTypePrimary, SlotLabelID: rdm.SlotIDColorBlue},
				},
			},
		},
		SoftwareVersionLabel: "2.1.0",
		ManufacturerLabel:    "Thermoquad",
		ModelDescription:     "RGB Wash",
		DefaultDeviceLabel:   "RGB Wash",
		ProductDetailIDs:     []uint16{rdm.ProductDetailLED, rdm.ProductDetailPWM},
		SoftwareVersion:      0x02010000,
		ModelID:              0x0102,
		ProductCategory:      rdm.ProductCategoryFixture,
	}
}
