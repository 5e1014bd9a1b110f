// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the device settings file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/dmxbridge/pkg/rdm"
	"github.com/Thermoquad/dmxbridge/pkg/responder"
	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

// Config is the top-level device settings file.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Timing  TimingConfig  `yaml:"timing"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// DeviceConfig describes the responder identity.
type DeviceConfig struct {
	// UID in the "7a70:00000001" form.
	UID           string `yaml:"uid"`
	Label         string `yaml:"label"`
	Manufacturer  string `yaml:"manufacturer"`
	Model         string `yaml:"model"`
	SubDeviceCnt  int    `yaml:"sub_devices"`
}

// TimingConfig overrides the transceiver timing defaults. Zero values
// keep the defaults; out-of-range values fail validation.
type TimingConfig struct {
	BreakTimeUS       uint16 `yaml:"break_us"`
	MarkTimeUS        uint16 `yaml:"mark_us"`
	ResponderDelay    uint16 `yaml:"responder_delay_tenths_us"`
	ResponderJitter   uint16 `yaml:"responder_jitter_tenths_us"`
	ResponseTimeout   uint16 `yaml:"response_timeout_ticks"`
	BroadcastTimeout  uint16 `yaml:"broadcast_timeout_ticks"`
	DUBResponseLimit  uint16 `yaml:"dub_response_limit_tenths_us"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MonitorConfig controls the metrics endpoint.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			UID:   "7a70:00000001",
			Label: "RGB Wash",
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Monitor: MonitorConfig{Addr: ":9090"},
	}
}

// Load reads and validates a settings file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the identity and timing ranges.
func (c *Config) Validate() error {
	if _, err := rdm.ParseUID(c.Device.UID); err != nil {
		return err
	}
	if len(c.Device.Label) > rdm.MaxStringSize {
		return fmt.Errorf("device label %q longer than %d bytes", c.Device.Label, rdm.MaxStringSize)
	}
	t := c.Timing
	if t.BreakTimeUS != 0 && (t.BreakTimeUS < transceiver.MinTXBreakTime || t.BreakTimeUS > transceiver.MaxTXBreakTime) {
		return fmt.Errorf("break_us %d outside [%d, %d]", t.BreakTimeUS,
			transceiver.MinTXBreakTime, transceiver.MaxTXBreakTime)
	}
	if t.MarkTimeUS != 0 && (t.MarkTimeUS < transceiver.MinTXMarkTime || t.MarkTimeUS > transceiver.MaxTXMarkTime) {
		return fmt.Errorf("mark_us %d outside [%d, %d]", t.MarkTimeUS,
			transceiver.MinTXMarkTime, transceiver.MaxTXMarkTime)
	}
	if t.ResponderDelay != 0 && (t.ResponderDelay < transceiver.MinResponderDelay || t.ResponderDelay > transceiver.MaxResponderDelay) {
		return fmt.Errorf("responder_delay_tenths_us %d outside [%d, %d]", t.ResponderDelay,
			transceiver.MinResponderDelay, transceiver.MaxResponderDelay)
	}
	return nil
}

// UID parses the configured UID.
func (c *Config) UID() (rdm.UID, error) {
	return rdm.ParseUID(c.Device.UID)
}

// Definition builds the responder definition with the configured labels
// applied over the stock model.
func (c *Config) Definition() *responder.Definition {
	def := responder.LEDWashDefinition()
	if c.Device.Label != "" {
		def.DefaultDeviceLabel = c.Device.Label
	}
	if c.Device.Manufacturer != "" {
		def.ManufacturerLabel = c.Device.Manufacturer
	}
	if c.Device.Model != "" {
		def.ModelDescription = c.Device.Model
	}
	return def
}

// ApplyTiming pushes the non-zero timing overrides into the engine.
func (c *Config) ApplyTiming(e *transceiver.Engine) error {
	t := c.Timing
	apply := []struct {
		value uint16
		set   func(uint16) bool
		name  string
	}{
		{t.BreakTimeUS, e.SetBreakTime, "break_us"},
		{t.MarkTimeUS, e.SetMarkTime, "mark_us"},
		{t.ResponderDelay, e.SetRDMResponderDelay, "responder_delay_tenths_us"},
		{t.ResponderJitter, e.SetRDMResponderJitter, "responder_jitter_tenths_us"},
		{t.ResponseTimeout, e.SetRDMResponseTimeout, "response_timeout_ticks"},
		{t.BroadcastTimeout, e.SetRDMBroadcastTimeout, "broadcast_timeout_ticks"},
		{t.DUBResponseLimit, e.SetRDMDUBResponseLimit, "dub_response_limit_tenths_us"},
	}
	for _, a := range apply {
		if a.value == 0 {
			continue
		}
		if !a.set(a.value) {
			return fmt.Errorf("%s %d rejected by the transceiver", a.name, a.value)
		}
	}
	return nil
}
