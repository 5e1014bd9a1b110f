// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device wires the transceiver engine to the RDM responder: it
// owns the shared frame staging buffer, validates received frames,
// routes sub-device addressing, queues replies, and forwards controller
// completions to the host callback.
package device

import (
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/rdm"
	"github.com/Thermoquad/dmxbridge/pkg/responder"
	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

// Config assembles a Device.
type Config struct {
	UID        rdm.UID
	Definition *responder.Definition
	Line       transceiver.Line
	Clock      *coarsetime.Clock

	// OnEvent receives controller-mode completions and mode-change /
	// self-test results.
	OnEvent transceiver.EventFunc
	// OnDMX receives this fixture's slot window whenever a DMX frame
	// ends, based on the current start address and footprint.
	OnDMX func(levels []byte)

	IdentifyPin responder.Pin
	MutePin     responder.Pin
	Log         logrus.FieldLogger
}

// Device is the assembled DMX/RDM interface core.
type Device struct {
	engine   *transceiver.Engine
	root     *responder.Responder
	subs     map[uint16]*responder.Responder
	counters rdm.Counters
	clock    *coarsetime.Clock
	log      logrus.FieldLogger

	onEvent transceiver.EventFunc
	onDMX   func(levels []byte)

	// The single staging buffer shared between validation, dispatch and
	// the reply queue. The responder owns it for the duration of a
	// dispatch; the returned length hands it back.
	frame [rdm.MaxFrameSize]byte

	// handled marks that the frame currently being received has already
	// been dispatched; later continue events for it are ignored.
	handled bool
}

// New builds a Device around an engine on the given line.
func New(cfg Config) *Device {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		clock:   cfg.Clock,
		subs:    map[uint16]*responder.Responder{},
		onEvent: cfg.OnEvent,
		onDMX:   cfg.OnDMX,
		log:     log.WithField("component", "device"),
	}
	d.root = responder.New(responder.Settings{
		UID:         cfg.UID,
		Definition:  cfg.Definition,
		Counters:    &d.counters,
		Clock:       cfg.Clock,
		IdentifyPin: cfg.IdentifyPin,
		MutePin:     cfg.MutePin,
		Log:         log,
	})
	d.engine = transceiver.New(transceiver.Config{
		Line:    cfg.Line,
		Clock:   cfg.Clock,
		TXEvent: d.onTXEvent,
		RXEvent: d.onRXEvent,
		Log:     log,
	})
	return d
}

// Engine returns the transceiver for mode and timing control.
func (d *Device) Engine() *transceiver.Engine { return d.engine }

// Root returns the root responder.
func (d *Device) Root() *responder.Responder { return d.root }

// Counters returns the receiver counters.
func (d *Device) Counters() *rdm.Counters { return &d.counters }

// AddSubDevice registers a sub-device responder at the given non-zero
// index. Returns the new responder, or nil if the index is taken or
// reserved.
func (d *Device) AddSubDevice(index uint16, def *responder.Definition) *responder.Responder {
	if index == rdm.SubDeviceRoot || index == rdm.SubDeviceAllCall {
		return nil
	}
	if _, ok := d.subs[index]; ok {
		return nil
	}
	sub := responder.New(responder.Settings{
		UID:         d.root.UID(),
		Definition:  def,
		Counters:    &d.counters,
		Clock:       d.clock,
		IsSubDevice: true,
		Log:         d.log,
	})
	d.subs[index] = sub
	d.root.SetSubDeviceCount(uint16(len(d.subs)))
	return sub
}

// Tasks runs one scheduler pass over the engine and responders.
func (d *Device) Tasks() {
	d.engine.Tasks()
	d.root.Tasks()
	for _, sub := range d.subs {
		sub.Tasks()
	}
}

// Reset aborts everything in flight and re-arms the engine.
func (d *Device) Reset() {
	d.engine.Reset()
}

// onTXEvent forwards controller completions upstream, counting the RDM
// frames that came back well-formed on the way past.
func (d *Device) onTXEvent(ev *transceiver.Event) {
	if ev.Result == transceiver.ResultRxData &&
		(ev.Op == transceiver.OpRDMWithResponse || ev.Op == transceiver.OpRDMBroadcast) {
		rdm.Validate(ev.Data, &d.counters)
	}
	if d.onEvent != nil {
		d.onEvent(ev)
	}
}

// onRXEvent handles unsolicited responder-mode reception. RDM requests
// dispatch as soon as the declared frame is fully buffered, while the
// engine is still in its receive state; DMX frames complete at the
// inter-slot timeout.
func (d *Device) onRXEvent(ev *transceiver.Event) {
	switch ev.Result {
	case transceiver.ResultRxStartFrame:
		d.handled = false
		d.maybeDispatchRDM(ev.Data)
	case transceiver.ResultRxContinueFrame:
		d.maybeDispatchRDM(ev.Data)
	case transceiver.ResultRxFrameTimeout:
		d.handled = false
		if len(ev.Data) > 0 && ev.Data[0] == rdm.NullStartCode {
			d.counters.CountDMXFrame()
			d.applyDMX(ev.Data[1:])
		}
	}
}

func (d *Device) maybeDispatchRDM(frame []byte) {
	if d.handled || len(frame) < 3 || frame[0] != rdm.StartCode {
		return
	}
	total := int(frame[2]) + rdm.ChecksumSize
	if len(frame) < total {
		return
	}
	d.handled = true

	h, paramData, err := rdm.Validate(frame[:total], &d.counters)
	if err != nil {
		// Counted; the frame dies silently at the wire level.
		return
	}
	if !d.addressedToUs(h.DestUID) {
		return
	}

	n := d.route(h, paramData)
	switch {
	case n > 0:
		d.engine.QueueRDMResponse(true, d.frame[:n])
	case n < 0:
		d.engine.QueueRDMResponse(false, d.frame[:-n])
	}
}

// addressedToUs accepts our unicast UID, the all-devices broadcast, and
// our manufacturer's broadcast.
func (d *Device) addressedToUs(dest rdm.UID) bool {
	if dest == d.root.UID() {
		return true
	}
	if !dest.IsBroadcast() {
		return false
	}
	m := dest.ManufacturerID()
	return m == 0xFFFF || m == d.root.UID().ManufacturerID()
}

// route picks the responder handle for the addressed sub-device and
// dispatches. The handle is explicit for the duration of the dispatch;
// nothing global changes hands.
func (d *Device) route(h *rdm.Header, paramData []byte) int {
	out := d.frame[:]
	// Root-only administrative PIDs addressed to any sub-device are
	// silently dropped, even when the sub-device doesn't exist.
	if h.SubDevice != rdm.SubDeviceRoot &&
		(h.CommandClass == rdm.DiscoveryCommand || responder.IsRootOnlyPID(h.ParamID)) {
		return responder.NoResponse
	}
	switch h.SubDevice {
	case rdm.SubDeviceRoot:
		return d.root.Dispatch(h, paramData, out)
	case rdm.SubDeviceAllCall:
		// An all-call only makes sense for SETs; E1.20 requires
		// SUB_DEVICE_OUT_OF_RANGE otherwise.
		if h.CommandClass != rdm.SetCommand {
			return d.root.Nack(h, rdm.NRSubDeviceOutOfRange, out)
		}
		if len(d.subs) == 0 {
			return d.root.Nack(h, rdm.NRSubDeviceOutOfRange, out)
		}
		for _, sub := range d.subs {
			sub.Dispatch(h, paramData, out)
		}
		return d.root.SetAck(h, out)
	default:
		if sub, ok := d.subs[h.SubDevice]; ok {
			return sub.Dispatch(h, paramData, out)
		}
		return d.root.Nack(h, rdm.NRSubDeviceOutOfRange, out)
	}
}

// applyDMX hands the fixture's slot window to the DMX callback.
func (d *Device) applyDMX(slots []byte) {
	if d.onDMX == nil {
		return
	}
	address := d.root.DMXStartAddress()
	footprint := int(d.root.Footprint())
	if address == 0 || address == rdm.InvalidDMXStartAddress || footprint == 0 {
		return
	}
	start := int(address) - 1
	if start+footprint > len(slots) {
		return
	}
	d.onDMX(slots[start : start+footprint])
}
