// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transceiver

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/rdm"
)

// bench couples an engine, its simulated line and a manually advanced
// coarse clock, keeping the two time domains in step (one coarse tick per
// 1000 tenths of a microsecond).
type bench struct {
	e     *Engine
	line  *SimLine
	clock *coarsetime.Clock

	fine     uint32
	txEvents []Event
	rxEvents []Event
}

func newBench(t *testing.T) *bench {
	t.Helper()
	b := &bench{
		line:  NewSimLine(),
		clock: &coarsetime.Clock{},
	}
	b.e = New(Config{
		Line:  b.line,
		Clock: b.clock,
		TXEvent: func(ev *Event) {
			b.txEvents = append(b.txEvents, copyEvent(ev))
		},
		RXEvent: func(ev *Event) {
			b.rxEvents = append(b.rxEvents, copyEvent(ev))
		},
	})
	b.line.Attach(b.e)
	return b
}

func copyEvent(ev *Event) Event {
	out := *ev
	out.Data = append([]byte(nil), ev.Data...)
	return out
}

// run advances the virtual time by tenths of a microsecond, calling Tasks
// once per coarse tick the way the cooperative scheduler would.
func (b *bench) run(tenths uint32) {
	for consumed := uint32(0); consumed < tenths; {
		step := tenths - consumed
		if step > 1000 {
			step = 1000
		}
		b.line.Advance(step)
		b.fine += step
		b.clock.SetCounter(b.fine / 1000)
		b.e.Tasks()
		consumed += step
	}
}

// runTicks advances by whole coarse ticks.
func (b *bench) runTicks(ticks uint32) { b.run(ticks * 1000) }

func (b *bench) becomeController(t *testing.T) {
	t.Helper()
	if !b.e.SetMode(ModeController, 7) {
		t.Fatal("SetMode(controller) rejected")
	}
	b.runTicks(1)
	if b.e.Mode() != ModeController {
		t.Fatalf("mode = %v, want controller", b.e.Mode())
	}
	b.txEvents = nil
}

func TestController_QueueDMX(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	slots := []byte{0x10, 0x20, 0x30}
	if !b.e.QueueDMX(1, slots) {
		t.Fatal("QueueDMX rejected")
	}

	// Break, mark, then the slots, then the non-RDM backoff.
	b.runTicks(10)

	if b.line.BreakCount() != 1 {
		t.Fatalf("breaks = %d, want 1", b.line.BreakCount())
	}
	want := append([]byte{rdm.NullStartCode}, slots...)
	if !bytes.Equal(b.line.Sent(), want) {
		t.Fatalf("sent = % x, want % x", b.line.Sent(), want)
	}
	if len(b.txEvents) != 1 {
		t.Fatalf("tx events = %d, want 1", len(b.txEvents))
	}
	ev := b.txEvents[0]
	if ev.Token != 1 || ev.Op != OpTxOnly || ev.Result != ResultOK {
		t.Errorf("event = %+v", ev)
	}
}

func TestController_QueueRejectedInResponderMode(t *testing.T) {
	b := newBench(t)
	b.runTicks(1)
	if b.e.QueueDMX(1, []byte{1}) {
		t.Error("QueueDMX accepted in responder mode")
	}
	if b.e.QueueSelfTest(2) {
		t.Error("QueueSelfTest accepted outside self-test mode")
	}
}

func TestController_RDMRequestTimeout(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueRDMRequest(3, make([]byte, 25), false) {
		t.Fatal("QueueRDMRequest rejected")
	}

	// No responder: expect a timeout after the response wait elapses.
	b.runTicks(40)

	if len(b.txEvents) != 1 {
		t.Fatalf("tx events = %d, want 1", len(b.txEvents))
	}
	if b.txEvents[0].Result != ResultRxTimeout {
		t.Errorf("result = %v, want rx-timeout", b.txEvents[0].Result)
	}
}

func TestController_RDMRequestWithResponse(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueRDMRequest(4, make([]byte, 25), false) {
		t.Fatal("QueueRDMRequest rejected")
	}

	// Let the request go out; the engine is then waiting for a break.
	b.runTicks(5)
	if b.e.StateName() != "c-rx-wait-break" {
		t.Fatalf("state = %s, want c-rx-wait-break", b.e.StateName())
	}

	// Response: 100µs break, 20µs mark, then an RDM frame.
	b.line.Edge() // falling, break start
	b.run(1000)   // 100µs
	b.line.Edge() // rising, break end
	b.run(200)    // 20µs
	b.line.Edge() // falling, first start bit

	frame := []byte{rdm.StartCode, rdm.SubStartCode, 24}
	frame = append(frame, make([]byte, 23)...) // rest of header + checksum
	b.line.FeedBytes(frame...)
	b.runTicks(2)

	if len(b.txEvents) != 1 {
		t.Fatalf("tx events = %d, want 1", len(b.txEvents))
	}
	ev := b.txEvents[0]
	if ev.Result != ResultRxData {
		t.Fatalf("result = %v, want rx-data", ev.Result)
	}
	if !bytes.Equal(ev.Data, frame) {
		t.Errorf("data = % x, want % x", ev.Data, frame)
	}
	if ev.Timing.ResponseBreakStart == ev.Timing.ResponseMarkStart {
		t.Error("break timing not captured")
	}
}

func TestController_ShortResponseBreakRejected(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueRDMRequest(5, make([]byte, 25), false) {
		t.Fatal("QueueRDMRequest rejected")
	}
	b.runTicks(5)

	// A 50µs break is under the 88µs floor: the engine keeps waiting.
	b.line.Edge()
	b.run(500)
	b.line.Edge()
	if b.e.StateName() != "c-rx-wait-break" {
		t.Errorf("state = %s, want c-rx-wait-break after short break", b.e.StateName())
	}
}

func TestController_DUBBackoff(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueRDMDUB(6, make([]byte, 36)) {
		t.Fatal("QueueRDMDUB rejected")
	}

	// DUB window times out; the engine then sits in the 5.8ms backoff
	// measured from the end of the outgoing frame.
	b.runTicks(57) // t = 5.7ms
	if !b.e.QueueRDMRequest(7, make([]byte, 25), false) {
		t.Fatal("second request rejected")
	}
	breaks := b.line.BreakCount()
	if breaks != 1 {
		t.Fatalf("breaks = %d at 5.7ms, want 1 (second frame still queued)", breaks)
	}

	b.runTicks(5) // t = 6.2ms, past frame-end + 5.8ms
	if b.line.BreakCount() != 2 {
		t.Errorf("breaks = %d after backoff, want 2", b.line.BreakCount())
	}
}

func TestController_FIFOOrder(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueDMX(1, []byte{0xAA}) {
		t.Fatal("first queue rejected")
	}
	// The pending slot is taken until Tasks starts the frame.
	if b.e.QueueDMX(2, []byte{0xBB}) {
		t.Error("second queue accepted while the pending slot was full")
	}
	b.runTicks(1)
	if !b.e.QueueDMX(2, []byte{0xBB}) {
		t.Fatal("second queue rejected after the first frame started")
	}
	if b.e.QueueDMX(3, []byte{0xCC}) {
		t.Error("third queue accepted with no free buffer")
	}

	b.runTicks(30)
	if len(b.txEvents) != 2 {
		t.Fatalf("tx events = %d, want 2", len(b.txEvents))
	}
	if b.txEvents[0].Token != 1 || b.txEvents[1].Token != 2 {
		t.Errorf("completion order = %d, %d; want 1, 2",
			b.txEvents[0].Token, b.txEvents[1].Token)
	}
}

func TestModeChange_CancelsPending(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueDMX(9, []byte{1, 2}) {
		t.Fatal("QueueDMX rejected")
	}
	// Request the change before the frame starts; Tasks switches mode at
	// the next safe point and cancels the queued frame.
	if !b.e.SetMode(ModeResponder, 10) {
		t.Fatal("SetMode rejected")
	}
	b.runTicks(2)

	var cancelled, modeDone bool
	for _, ev := range b.txEvents {
		if ev.Token == 9 && ev.Result == ResultCancelled {
			cancelled = true
		}
		if ev.Token == 10 && ev.Op == OpModeChange && ev.Result == ResultOK {
			modeDone = true
		}
	}
	if !cancelled {
		t.Error("queued frame was not cancelled on mode change")
	}
	if !modeDone {
		t.Error("mode change completion missing")
	}
}

func TestReset_CancelsAndReturnsToReceive(t *testing.T) {
	b := newBench(t)
	b.becomeController(t)

	if !b.e.QueueDMX(11, []byte{1}) {
		t.Fatal("QueueDMX rejected")
	}
	b.e.SetBreakTime(300)
	b.e.Reset()

	var cancelled bool
	for _, ev := range b.txEvents {
		if ev.Token == 11 && ev.Result == ResultCancelled {
			cancelled = true
		}
	}
	if !cancelled {
		t.Error("pending token not returned as cancelled")
	}
	if b.e.FreeBufferCount() != numBuffers {
		t.Errorf("free buffers = %d, want %d", b.e.FreeBufferCount(), numBuffers)
	}
	if b.e.BreakTime() != DefaultBreakTime {
		t.Errorf("break time = %d after reset, want default", b.e.BreakTime())
	}
	// Reset lands in the mode switch state; the next Tasks re-enters the
	// desired mode's initialize path.
	b.runTicks(1)
	if b.e.Mode() != ModeController {
		t.Errorf("mode = %v after reset, want controller", b.e.Mode())
	}
}

// feedRequestFrame walks the responder RX path: break, mark, then slots.
func (b *bench) feedRequestFrame(t *testing.T, frame []byte) {
	t.Helper()
	b.runTicks(1) // let the responder arm capture
	if !b.line.Edge() {
		t.Fatal("capture not armed for break start")
	}
	b.run(1000) // 100µs break
	b.line.Edge()
	b.run(120) // 12µs mark
	b.line.Edge()
	b.line.FeedBytes(frame...)
	b.runTicks(1)
}

func TestResponder_ReceiveAndReply(t *testing.T) {
	b := newBench(t)

	request := []byte{rdm.StartCode, rdm.SubStartCode, 24}
	request = append(request, make([]byte, 23)...)

	reply := []byte{rdm.StartCode, rdm.SubStartCode, 0x42, 0x43}

	// The device layer queues replies from the RX callback; emulate it.
	b.e.rxEvent = func(ev *Event) {
		b.rxEvents = append(b.rxEvents, copyEvent(ev))
		if ev.Result == ResultRxStartFrame && len(ev.Data) == len(request) {
			if !b.e.QueueRDMResponse(true, reply) {
				t.Error("QueueRDMResponse rejected")
			}
		}
	}

	b.feedRequestFrame(t, request)

	if len(b.rxEvents) == 0 {
		t.Fatal("no rx events delivered")
	}

	// Turnaround delay, then break + mark + reply bytes.
	b.run(MinResponderDelay + 4000)
	if b.line.BreakCount() != 1 {
		t.Fatalf("breaks = %d, want 1 (reply break)", b.line.BreakCount())
	}
	if !bytes.Equal(b.line.Sent(), reply) {
		t.Errorf("sent = % x, want % x", b.line.Sent(), reply)
	}
	if b.e.StateName() != "r-rx-mbb" {
		t.Errorf("state = %s after reply, want r-rx-mbb", b.e.StateName())
	}
}

func TestResponder_DUBReplyHasNoBreak(t *testing.T) {
	b := newBench(t)

	request := []byte{rdm.StartCode, rdm.SubStartCode, 24}
	request = append(request, make([]byte, 23)...)
	raw := bytes.Repeat([]byte{0xFE}, 7)
	raw = append(raw, 0xAA)

	b.e.rxEvent = func(ev *Event) {
		if ev.Result == ResultRxStartFrame && len(ev.Data) == len(request) {
			b.e.QueueRDMResponse(false, raw)
		}
	}

	b.feedRequestFrame(t, request)
	b.run(MinResponderDelay + 4000)

	if b.line.BreakCount() != 0 {
		t.Errorf("breaks = %d, want 0 for a DUB response", b.line.BreakCount())
	}
	if !bytes.Equal(b.line.Sent(), raw) {
		t.Errorf("sent = % x, want % x", b.line.Sent(), raw)
	}
}

func TestResponder_ShortBreakIgnored(t *testing.T) {
	b := newBench(t)
	b.runTicks(1)

	b.line.Edge() // falling
	b.run(400)    // 40µs, too short
	b.line.Edge() // rising: rejected, back to waiting for a break
	if b.e.StateName() != "r-rx-mbb" {
		t.Errorf("state = %s after short break, want r-rx-mbb", b.e.StateName())
	}
}

func TestResponder_InterslotTimeoutEndsFrame(t *testing.T) {
	b := newBench(t)

	dmx := []byte{rdm.NullStartCode, 1, 2, 3}
	b.feedRequestFrame(t, dmx)

	// A DMX frame only ends at the 1s inter-slot timeout.
	b.runTicks(ResponderDMXInterslotTimeout + 2)

	var sawEnd bool
	for _, ev := range b.rxEvents {
		if ev.Result == ResultRxFrameTimeout {
			sawEnd = true
			if !bytes.Equal(ev.Data, dmx) {
				t.Errorf("end-frame data = % x, want % x", ev.Data, dmx)
			}
		}
	}
	if !sawEnd {
		t.Error("no end-of-frame event after inter-slot timeout")
	}
	if b.e.StateName() != "r-rx-mbb" {
		t.Errorf("state = %s, want r-rx-mbb (re-armed)", b.e.StateName())
	}
}

func TestResponder_RDMInterslotTimeout(t *testing.T) {
	b := newBench(t)

	// An RDM start code tightens the inter-slot budget to 2.1ms.
	b.feedRequestFrame(t, []byte{rdm.StartCode, rdm.SubStartCode})
	b.runTicks(ResponderRDMInterslotTimeout + 2)

	var sawEnd bool
	for _, ev := range b.rxEvents {
		if ev.Result == ResultRxFrameTimeout {
			sawEnd = true
		}
	}
	if !sawEnd {
		t.Error("no end-of-frame event after RDM inter-slot timeout")
	}
}

func TestResponder_FramingErrorRestartsFrame(t *testing.T) {
	b := newBench(t)
	b.feedRequestFrame(t, []byte{rdm.NullStartCode, 1, 2})

	b.line.FramingError()
	if b.e.StateName() != "r-rx-break" {
		t.Errorf("state = %s after framing error, want r-rx-break", b.e.StateName())
	}
}

func TestSelfTest(t *testing.T) {
	b := newBench(t)
	if !b.e.SetMode(ModeSelfTest, 20) {
		t.Fatal("SetMode(self-test) rejected")
	}
	b.runTicks(1)
	b.txEvents = nil

	if !b.e.QueueSelfTest(21) {
		t.Fatal("QueueSelfTest rejected")
	}
	b.runTicks(2)

	if len(b.txEvents) != 1 {
		t.Fatalf("tx events = %d, want 1", len(b.txEvents))
	}
	ev := b.txEvents[0]
	if ev.Token != 21 || ev.Op != OpSelfTest || ev.Result != ResultOK {
		t.Errorf("self test event = %+v", ev)
	}
}
