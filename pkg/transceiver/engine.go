// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transceiver implements the line-level DMX512/RDM engine: break
// and mark generation, slot transmit and receive, discovery (DUB) window
// capture, and the E1.20 timing rules for both the controller and
// responder roles.
//
// The engine is a pair of state machines driven from two directions. The
// event methods (TimerEvent, InputCaptureEvent, UARTTxEvent, UARTRxEvent,
// UARTErrorEvent) are the interrupt-context entry points: the line driver
// calls them at byte, edge and timer boundaries, and they only advance
// state. Tasks is the foreground entry point: it observes completions,
// runs callbacks and starts the next operation. Callbacks never run from
// an event method.
package transceiver

import (
	"math/rand/v2"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/rdm"
)

const bufferSize = rdm.DMXFrameSize

// numBuffers gives one active and one pending frame for overlapped I/O.
const numBuffers = 2

const (
	selfTestValue   = 0xA5
	selfTestTimeout = 100 // coarse ticks
)

type engineState uint8

const (
	// Controller states.
	stateCInitialize engineState = iota
	stateCTxReady
	stateCInBreak
	stateCInMark
	stateCTxData
	stateCTxDrain
	stateCRxWaitForBreak
	stateCRxInBreak
	stateCRxInMark
	stateCRxData
	stateCRxWaitForDUB
	stateCRxInDUB
	stateCRxTimeout
	stateCComplete
	stateCBackoff

	// Responder states.
	stateRInitialize
	stateRRxPrepare
	stateRRxMBB
	stateRRxBreak
	stateRRxMark
	stateRRxData
	stateRTxWaiting
	stateRTxBreak
	stateRTxMark
	stateRTxData
	stateRTxDrain
	stateRTxComplete

	// Self test states.
	stateTInitialize
	stateTTxReady
	stateTRxWait
	stateTVerify

	stateReset
	stateError
)

var stateNames = map[engineState]string{
	stateCInitialize:     "c-initialize",
	stateCTxReady:        "c-tx-ready",
	stateCInBreak:        "c-in-break",
	stateCInMark:         "c-in-mark",
	stateCTxData:         "c-tx-data",
	stateCTxDrain:        "c-tx-drain",
	stateCRxWaitForBreak: "c-rx-wait-break",
	stateCRxInBreak:      "c-rx-in-break",
	stateCRxInMark:       "c-rx-in-mark",
	stateCRxData:         "c-rx-data",
	stateCRxWaitForDUB:   "c-rx-wait-dub",
	stateCRxInDUB:        "c-rx-in-dub",
	stateCRxTimeout:      "c-rx-timeout",
	stateCComplete:       "c-complete",
	stateCBackoff:        "c-backoff",
	stateRInitialize:     "r-initialize",
	stateRRxPrepare:      "r-rx-prepare",
	stateRRxMBB:          "r-rx-mbb",
	stateRRxBreak:        "r-rx-break",
	stateRRxMark:         "r-rx-mark",
	stateRRxData:         "r-rx-data",
	stateRTxWaiting:      "r-tx-waiting",
	stateRTxBreak:        "r-tx-break",
	stateRTxMark:         "r-tx-mark",
	stateRTxData:         "r-tx-data",
	stateRTxDrain:        "r-tx-drain",
	stateRTxComplete:     "r-tx-complete",
	stateTInitialize:     "t-initialize",
	stateTTxReady:        "t-tx-ready",
	stateTRxWait:         "t-rx-wait",
	stateTVerify:         "t-verify",
	stateReset:           "reset",
	stateError:           "error",
}

type buffer struct {
	size  int
	op    Operation
	token int16
	data  [bufferSize]byte
}

// Engine is the DMX/RDM line transceiver.
type Engine struct {
	mu sync.Mutex

	line  Line
	clock *coarsetime.Clock
	log   logrus.FieldLogger

	txEvent EventFunc
	rxEvent EventFunc

	state       engineState
	mode        Mode
	desiredMode Mode

	settings settings
	timing   Timing

	buffers  [numBuffers]buffer
	freeList []*buffer
	active   *buffer
	next     *buffer

	dataIndex  int // transmit or receive position in active.data
	eventIndex int // last byte delivered upstream in responder RX

	txFrameStart coarsetime.Value
	txFrameEnd   coarsetime.Value

	// Response wait selected for the in-flight request: the unicast or
	// broadcast timeout, in coarse ticks.
	responseWait uint16

	lastByteFine   uint32 // fine clock at the last received byte
	lastByteCoarse coarsetime.Value
	breakStartFine uint32 // fine clock at the falling edge of a break
	breakEndFine   uint32 // fine clock at the rising edge of a break

	expectedLength      int
	foundExpectedLength bool

	result          Result
	modeChangeToken int16
}

// Config wires an Engine to its collaborators.
type Config struct {
	Line  Line
	Clock *coarsetime.Clock
	// TXEvent receives operation completions (queued frames, mode
	// changes, self tests).
	TXEvent EventFunc
	// RXEvent receives unsolicited responder-mode frames as they arrive.
	RXEvent EventFunc
	Log     logrus.FieldLogger
}

// New creates an engine in responder mode, line held in receive.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		line:            cfg.Line,
		clock:           cfg.Clock,
		log:             log.WithField("component", "transceiver"),
		txEvent:         cfg.TXEvent,
		rxEvent:         cfg.RXEvent,
		state:           stateRInitialize,
		mode:            ModeResponder,
		desiredMode:     ModeResponder,
		settings:        defaultSettings(),
		modeChangeToken: TokenNone,
	}
	e.initBuffers()
	return e
}

// Mode returns the current operating mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// StateName returns the current state for diagnostics.
func (e *Engine) StateName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return stateNames[e.state]
}

// SetMode requests a switch to the given mode. The switch happens at the
// next safe point in Tasks; token is echoed in the completion event. A
// request is rejected while another change is pending or when the mode is
// already active.
func (e *Engine) SetMode(mode Mode, token int16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != e.desiredMode {
		e.log.Warn("mode change already pending")
		return false
	}
	if e.mode == mode {
		return false
	}
	if mode > ModeSelfTest {
		return false
	}
	e.log.WithField("mode", mode.String()).Info("switching mode")
	e.desiredMode = mode
	e.modeChangeToken = token
	return true
}

// Buffer management
// ----------------------------------------------------------------------------

func (e *Engine) initBuffers() {
	e.active = nil
	e.next = nil
	e.freeList = e.freeList[:0]
	for i := range e.buffers {
		e.freeList = append(e.freeList, &e.buffers[i])
	}
}

// FreeBufferCount is exposed for testing.
func (e *Engine) FreeBufferCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.freeList)
}

func (e *Engine) freeActiveBuffer() {
	if e.active != nil {
		e.freeList = append(e.freeList, e.active)
		e.active = nil
	}
}

func (e *Engine) takeNextBuffer() {
	e.freeActiveBuffer()
	e.active = e.next
	e.next = nil
	e.dataIndex = 0
}

func (e *Engine) popFreeBuffer() *buffer {
	b := e.freeList[len(e.freeList)-1]
	e.freeList = e.freeList[:len(e.freeList)-1]
	return b
}

// Event delivery. Callers hold e.mu; the lock is dropped around the
// callback so a handler can queue follow-up work.
// ----------------------------------------------------------------------------

func (e *Engine) runTXEvent(ev *Event) {
	if ev.Token < 0 && ev.Op != OpRX {
		return
	}
	if e.txEvent == nil {
		return
	}
	e.mu.Unlock()
	e.txEvent(ev)
	e.mu.Lock()
}

func (e *Engine) runRXEvent(ev *Event) {
	if e.rxEvent == nil {
		return
	}
	e.mu.Unlock()
	e.rxEvent(ev)
	e.mu.Lock()
}

func (e *Engine) frameComplete() {
	var data []byte
	if e.active.op != OpTxOnly && e.dataIndex != 0 {
		data = e.active.data[:e.dataIndex]
		e.result = ResultRxData
	}
	timing := e.timing
	e.runTXEvent(&Event{
		Token:  e.active.token,
		Op:     e.active.op,
		Result: e.result,
		Data:   data,
		Timing: &timing,
	})
}

func (e *Engine) rxFrameEvent() {
	result := ResultRxContinueFrame
	if e.eventIndex == 0 {
		result = ResultRxStartFrame
	}
	timing := e.timing
	e.runRXEvent(&Event{
		Op:     OpRX,
		Result: result,
		Data:   e.active.data[:e.dataIndex],
		Timing: &timing,
	})
}

func (e *Engine) rxEndFrameEvent() {
	timing := e.timing
	e.runRXEvent(&Event{
		Op:     OpRX,
		Result: ResultRxFrameTimeout,
		Data:   e.active.data[:e.dataIndex],
		Timing: &timing,
	})
}

// Mode switching, called from Tasks at a safe point.
func (e *Engine) switchMode() {
	e.mode = e.desiredMode
	switch e.mode {
	case ModeController:
		e.log.Info("changed to controller mode")
		e.state = stateCInitialize
	case ModeResponder:
		e.log.Info("changed to responder mode")
		e.state = stateRInitialize
	case ModeSelfTest:
		e.log.Info("changed to self-test mode")
		e.state = stateTInitialize
	}

	// Cancel anything that was queued behind the mode change.
	if e.next != nil {
		e.runTXEvent(&Event{
			Token:  e.next.token,
			Op:     e.next.op,
			Result: ResultCancelled,
		})
	}
	e.initBuffers()

	if e.modeChangeToken != TokenNone {
		e.runTXEvent(&Event{
			Token:  e.modeChangeToken,
			Op:     OpModeChange,
			Result: ResultOK,
		})
		e.modeChangeToken = TokenNone
	}
}

// UART helpers
// ----------------------------------------------------------------------------

func (e *Engine) fillTxFIFO() {
	for e.dataIndex != e.active.size {
		if !e.line.WriteByte(e.active.data[e.dataIndex]) {
			return
		}
		e.dataIndex++
	}
}

// drainRxFIFO pulls received bytes into the active buffer and returns
// true when the buffer is full.
func (e *Engine) drainRxFIFO() bool {
	for e.dataIndex != bufferSize {
		b, ok := e.line.ReadByte()
		if !ok {
			break
		}
		e.active.data[e.dataIndex] = b
		e.dataIndex++
	}
	if e.active.op == OpRDMWithResponse || e.active.op == OpRDMBroadcast {
		if !e.foundExpectedLength && e.dataIndex >= 3 &&
			e.active.data[0] == rdm.StartCode &&
			e.active.data[1] == rdm.SubStartCode {
			e.foundExpectedLength = true
			e.expectedLength = int(e.active.data[2]) + rdm.ChecksumSize
		}
		if e.foundExpectedLength && e.dataIndex == e.expectedLength {
			// Full response received.
			e.line.DisableReceiver()
			e.resetToMark()
			e.state = stateCComplete
		}
	}
	e.lastByteFine = e.line.Now()
	e.lastByteCoarse = e.clock.Now()
	return e.dataIndex >= bufferSize
}

func (e *Engine) resetToMark() {
	e.line.SetMark()
	e.line.EnableTX()
}

// Responder reply preparation
// ----------------------------------------------------------------------------

func (e *Engine) prepareRDMResponse() {
	e.state = stateRTxWaiting
	e.line.DisableReceiver()
	e.takeNextBuffer()

	delay := uint32(e.settings.responderDelay)
	if e.settings.responderJitter > 0 {
		delay += rand.Uint32N(uint32(e.settings.responderJitter))
	}
	// The turnaround is measured from the end of the request's last
	// slot, so subtract what has already gone by.
	if sinceLast := e.line.Now() - e.lastByteFine; sinceLast < delay {
		delay -= sinceLast
	} else {
		delay = 1
	}
	e.line.StartTimer(delay)
}

func (e *Engine) startSendingRDMResponse() {
	e.line.EnableTransmitter()
	e.fillTxFIFO()
	e.state = stateRTxData
}

// Interrupt-context entry points
// ----------------------------------------------------------------------------

// InputCaptureEvent records an edge on the line. value is the fine clock
// at the edge, in tenths of a microsecond. Alternating falling and rising
// edges are assumed, starting from the state's expectation: the first
// edge out of idle is the falling edge of a break.
func (e *Engine) InputCaptureEvent(value uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCRxWaitForDUB:
		e.timing.DUBStart = value
		e.state = stateCRxInDUB
	case stateCRxInDUB:
		e.timing.DUBEnd = value
	case stateCRxWaitForBreak:
		e.timing.ResponseBreakStart = value
		e.state = stateCRxInBreak
	case stateCRxInBreak:
		if value-e.timing.ResponseBreakStart < ControllerRxBreakMin {
			// Break too short; keep looking.
			e.timing.ResponseBreakStart = value
			e.state = stateCRxWaitForBreak
		} else {
			e.timing.ResponseMarkStart = value
			e.line.EnableReceiver()
			e.state = stateCRxInMark
		}
	case stateCRxInMark:
		e.timing.ResponseMarkEnd = value
		e.line.DisableCapture()
		e.state = stateCRxData

	case stateRRxMBB:
		e.breakStartFine = value
		e.state = stateRRxBreak
	case stateRRxBreak:
		breakTime := value - e.breakStartFine
		if breakTime >= ResponderRxBreakMin && breakTime <= ResponderRxBreakMax {
			e.timing.BreakTime = breakTime
			e.breakEndFine = value
			e.line.EnableReceiver()
			e.state = stateRRxMark
		} else {
			// Break out of range; treat the edge as a new break start.
			e.state = stateRRxMBB
		}
	case stateRRxMark:
		markTime := value - e.breakEndFine
		if markTime < ResponderRxMarkMin || markTime > ResponderRxMarkMax {
			// Mark out of range; the edge starts a new break.
			e.line.DisableReceiver()
			e.line.FlushReceiver()
			e.breakStartFine = value
			e.state = stateRRxBreak
		} else {
			e.timing.MarkTime = markTime
			e.state = stateRRxData
		}

	default:
		// Edges in any TX state are ignored; a controller operation in
		// flight is never preempted.
	}
}

// TimerEvent is called when the armed fine timer expires.
func (e *Engine) TimerEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCInBreak, stateRTxBreak:
		e.line.SetMark()
		if e.state == stateCInBreak {
			e.state = stateCInMark
		} else {
			e.state = stateRTxMark
		}
		e.line.StartTimer(uint32(e.settings.markTime) * 10)
	case stateCInMark:
		// Break and mark are done; stream the slots.
		e.line.EnableTransmitter()
		e.fillTxFIFO()
		e.state = stateCTxData
	case stateRTxWaiting:
		e.line.EnableTX()
		if e.active.op == opRDMResponse {
			e.line.SetBreak()
			e.line.StartTimer(uint32(e.settings.breakTime) * 10)
			e.state = stateRTxBreak
		} else {
			// DUB responses have no break.
			e.startSendingRDMResponse()
		}
	case stateRTxMark:
		e.startSendingRDMResponse()
	default:
	}
}

// UARTTxEvent is called when the TX FIFO drains. In the data states it
// refills the FIFO; in the drain states it marks the frame as fully
// shifted out and turns the line around.
func (e *Engine) UARTTxEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCTxData:
		e.fillTxFIFO()
		if e.dataIndex == e.active.size {
			e.state = stateCTxDrain
		}
	case stateCTxDrain:
		e.txFrameEnd = e.clock.Now()
		e.line.DisableTransmitter()
		e.postTXTransition()
	case stateRTxData:
		e.fillTxFIFO()
		if e.dataIndex == e.active.size {
			e.state = stateRTxDrain
		}
	case stateRTxDrain:
		e.line.EnableRX()
		e.line.DisableTransmitter()
		e.state = stateRTxComplete
	default:
	}
}

// postTXTransition picks the follow-on state once a controller frame has
// fully left the shift register.
func (e *Engine) postTXTransition() {
	switch e.active.op {
	case OpTxOnly:
		e.resetToMark()
		e.state = stateCComplete
	case OpRDMDUB:
		e.responseWait = e.settings.responseTimeout
		e.state = stateCRxWaitForDUB
		e.dataIndex = 0
		e.line.EnableRX()
		e.line.FlushReceiver()
		e.line.EnableCapture()
		e.line.EnableReceiver()
	case OpRDMBroadcast:
		if e.settings.broadcastTimeout == 0 {
			e.dataIndex = 0
			e.state = stateCComplete
			return
		}
		fallthrough
	default:
		// Unicast request, or a broadcast with a listen window.
		if e.active.op == OpRDMBroadcast {
			e.responseWait = e.settings.broadcastTimeout
		} else {
			e.responseWait = e.settings.responseTimeout
		}
		e.state = stateCRxWaitForBreak
		e.dataIndex = 0
		e.line.EnableRX()
		e.line.FlushReceiver()
		e.line.EnableCapture()
	}
}

// UARTRxEvent is called when received bytes are waiting in the RX FIFO.
func (e *Engine) UARTRxEvent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCRxInDUB, stateCRxData:
		if e.drainRxFIFO() {
			// A responder should never send more than an RDM frame's
			// worth; a full buffer ends the operation.
			e.line.DisableReceiver()
			e.line.DisableCapture()
			e.resetToMark()
			e.state = stateCComplete
		}
	case stateRRxData:
		if e.drainRxFIFO() {
			e.line.DisableReceiver()
			e.state = stateRTxComplete
		}
	case stateTRxWait:
		e.drainRxFIFO()
		e.state = stateTVerify
	default:
		// Bytes outside a receive state are stale; drop them.
		e.line.FlushReceiver()
	}
}

// UARTErrorEvent is called on a framing, parity or overrun error. framing
// errors in responder receive indicate a probable new break.
func (e *Engine) UARTErrorEvent(framing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateCRxInDUB:
		e.line.DisableCapture()
		fallthrough
	case stateCRxData:
		e.line.DisableReceiver()
		e.resetToMark()
		e.state = stateCComplete
	case stateRRxData:
		// Probably a new break; restart the frame.
		e.line.DisableReceiver()
		e.line.FlushReceiver()
		e.breakStartFine = e.line.Now()
		e.dataIndex = 0
		e.eventIndex = 0
		e.state = stateRRxBreak
	default:
	}
}

// Foreground
// ----------------------------------------------------------------------------

// Tasks runs one iteration of the foreground state machine. It never
// blocks; call it from the cooperative scheduler loop.
func (e *Engine) Tasks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	// Controller states.
	case stateCInitialize:
		e.line.StopTimer()
		e.line.DisableReceiver()
		e.line.DisableTransmitter()
		e.line.DisableCapture()
		e.resetToMark()
		e.state = stateCTxReady
		fallthrough
	case stateCTxReady:
		if e.desiredMode != ModeController {
			e.switchMode()
			return
		}
		if e.next == nil {
			return
		}
		e.takeNextBuffer()
		e.foundExpectedLength = false
		e.expectedLength = 0
		e.result = ResultOK
		e.timing = Timing{}

		e.txFrameStart = e.clock.Now()
		e.state = stateCInBreak
		e.line.SetBreak()
		e.line.StartTimer(uint32(e.settings.breakTime) * 10)

	case stateCInBreak, stateCInMark, stateCTxData, stateCTxDrain:
		// Waiting on timer or UART events.

	case stateCRxWaitForBreak:
		if e.clock.HasElapsed(e.txFrameEnd, uint32(e.responseWait)) {
			e.line.DisableCapture()
			e.line.DisableReceiver()
			e.resetToMark()
			e.state = stateCRxTimeout
		}

	case stateCRxInBreak:
		if e.line.Now()-e.timing.ResponseBreakStart > ControllerRxBreakMax {
			// Break too long.
			e.result = ResultRxInvalid
			e.line.DisableCapture()
			e.resetToMark()
			e.state = stateCComplete
		}

	case stateCRxInMark:
		if e.line.Now()-e.timing.ResponseMarkStart > ControllerRxMarkMax {
			e.result = ResultRxInvalid
			e.line.DisableCapture()
			e.resetToMark()
			e.state = stateCComplete
		}

	case stateCRxData:
		// There is no hard timeout on RDM responses; the inter-slot
		// timeout combined with the fixed buffer bounds how long a bad
		// responder can hold the line.
		if e.dataIndex > 0 &&
			e.clock.HasElapsed(e.lastByteCoarse, ControllerRxInterslotTimeout) {
			e.line.DisableReceiver()
			e.resetToMark()
			e.state = stateCComplete
		}

	case stateCRxWaitForDUB:
		if e.clock.HasElapsed(e.txFrameEnd, uint32(e.responseWait)) {
			e.line.DisableCapture()
			e.line.DisableReceiver()
			e.resetToMark()
			e.state = stateCRxTimeout
		}

	case stateCRxInDUB:
		if e.line.Now()-e.timing.DUBStart > uint32(e.settings.dubResponseLimit) {
			// We saw at least one edge, so this is a collision window
			// closing, not a timeout.
			e.line.DisableCapture()
			e.line.DisableReceiver()
			e.resetToMark()
			e.state = stateCComplete
		}

	case stateCRxTimeout:
		e.result = ResultRxTimeout
		e.state = stateCComplete
		fallthrough
	case stateCComplete:
		e.frameComplete()
		e.state = stateCBackoff
		fallthrough
	case stateCBackoff:
		ok := e.clock.HasElapsed(e.txFrameStart, ControllerMinBreakToBreak)
		switch e.active.op {
		case OpTxOnly:
			ok = ok && e.clock.HasElapsed(e.txFrameEnd, ControllerNonRDMBackoff)
		case OpRDMDUB:
			ok = ok && e.clock.HasElapsed(e.txFrameEnd, ControllerDUBBackoff)
		case OpRDMBroadcast:
			ok = ok && e.clock.HasElapsed(e.txFrameEnd, ControllerBroadcastBackoff)
		case OpRDMWithResponse:
			ok = ok && e.clock.HasElapsed(e.txFrameEnd, ControllerMissingRespBackoff)
		}
		if ok {
			e.freeActiveBuffer()
			e.state = stateCTxReady
		}

	// Responder states.
	case stateRInitialize:
		e.line.StopTimer()
		e.line.DisableTransmitter()
		e.line.DisableReceiver()
		e.line.FlushReceiver()
		e.line.EnableRX()
		e.state = stateRRxPrepare
		fallthrough
	case stateRRxPrepare:
		if e.active == nil {
			if len(e.freeList) == 0 {
				e.log.Error("lost buffers")
				e.state = stateError
				return
			}
			e.active = e.popFreeBuffer()
		}
		e.timing = Timing{}
		e.dataIndex = 0
		e.eventIndex = 0
		e.active.op = OpRX
		e.active.token = TokenNone
		e.state = stateRRxMBB
		e.line.EnableCapture()
		fallthrough
	case stateRRxMBB:
		if e.desiredMode != ModeResponder {
			e.line.DisableCapture()
			e.line.StopTimer()
			e.freeActiveBuffer()
			e.switchMode()
		}

	case stateRRxBreak, stateRRxMark:
		// Waiting on capture events.

	case stateRRxData:
		if e.dataIndex != 0 {
			// The start code decides the inter-slot budget.
			rdmTimeout := e.active.data[0] == rdm.StartCode &&
				e.clock.HasElapsed(e.lastByteCoarse, ResponderRDMInterslotTimeout)
			if rdmTimeout ||
				e.clock.HasElapsed(e.lastByteCoarse, ResponderDMXInterslotTimeout) {
				e.rxEndFrameEvent()
				e.line.DisableReceiver()
				e.line.DisableCapture()
				e.state = stateRRxPrepare
				return
			}
		}
		if e.eventIndex != e.dataIndex {
			e.rxFrameEvent()
			e.eventIndex = e.dataIndex
			// The callback may have queued a reply.
		}
		if e.next != nil {
			e.line.DisableCapture()
			e.prepareRDMResponse()
		}

	case stateRTxWaiting, stateRTxBreak, stateRTxMark, stateRTxData:
		// Waiting on timer or UART events.

	case stateRTxDrain:
		e.freeActiveBuffer()

	case stateRTxComplete:
		e.dataIndex = 0
		e.state = stateRRxPrepare

	// Self test states.
	case stateTInitialize:
		e.line.DisableTransmitter()
		e.line.FlushReceiver()
		e.line.EnableLoopback()
		e.state = stateTTxReady
		fallthrough
	case stateTTxReady:
		if e.desiredMode != ModeSelfTest {
			e.switchMode()
			return
		}
		if e.next == nil {
			return
		}
		e.takeNextBuffer()
		e.dataIndex = 0
		e.txFrameStart = e.clock.Now()
		e.state = stateTRxWait
		e.line.EnableReceiver()
		e.line.EnableTransmitter()
		e.line.WriteByte(selfTestValue)
		fallthrough
	case stateTRxWait:
		if e.clock.HasElapsed(e.txFrameStart, selfTestTimeout) {
			e.state = stateTVerify
		}

	case stateTVerify:
		e.line.DisableReceiver()
		e.line.DisableTransmitter()
		e.result = ResultSelfTestFailed
		if e.dataIndex > 0 && e.active.data[0] == selfTestValue {
			e.result = ResultOK
		}
		e.dataIndex = 0
		e.frameComplete()
		e.freeActiveBuffer()
		e.state = stateTTxReady

	case stateReset:
		e.switchMode()
	case stateError:
	}
}

// Queueing
// ----------------------------------------------------------------------------

func (e *Engine) queueFrame(token int16, startCode uint8, op Operation, data []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.freeList) == 0 || e.next != nil {
		return false
	}
	if op == OpSelfTest {
		if e.mode != ModeSelfTest {
			return false
		}
	} else if e.mode != ModeController {
		return false
	}

	b := e.popFreeBuffer()
	if len(data) > rdm.MaxSlotCount {
		data = data[:rdm.MaxSlotCount]
	}
	b.size = len(data) + 1 // include the start code
	b.op = op
	b.token = token
	b.data[0] = startCode
	copy(b.data[1:], data)
	e.next = b
	return true
}

// QueueDMX queues a null-start-code DMX frame. data holds the slots
// after the start code.
func (e *Engine) QueueDMX(token int16, data []byte) bool {
	return e.queueFrame(token, rdm.NullStartCode, OpTxOnly, data)
}

// QueueASC queues an alternate-start-code frame.
func (e *Engine) QueueASC(token int16, startCode uint8, data []byte) bool {
	return e.queueFrame(token, startCode, OpTxOnly, data)
}

// QueueRDMDUB queues a DISC_UNIQUE_BRANCH request and opens the raw DUB
// receive window after it.
func (e *Engine) QueueRDMDUB(token int16, data []byte) bool {
	return e.queueFrame(token, rdm.StartCode, OpRDMDUB, data)
}

// QueueRDMRequest queues an RDM request. Broadcast requests do not wait
// for a response unless a broadcast listen window is configured.
func (e *Engine) QueueRDMRequest(token int16, data []byte, isBroadcast bool) bool {
	op := OpRDMWithResponse
	if isBroadcast {
		op = OpRDMBroadcast
	}
	return e.queueFrame(token, rdm.StartCode, op, data)
}

// QueueSelfTest queues a loopback self test. Only valid in self-test mode.
func (e *Engine) QueueSelfTest(token int16) bool {
	return e.queueFrame(token, 0, OpSelfTest, nil)
}

// QueueRDMResponse queues a responder-mode reply. includeBreak selects a
// framed response (break + mark + slots) versus a raw DUB response. Only
// valid while a request frame is being received; the reply goes out after
// the responder delay.
func (e *Engine) QueueRDMResponse(includeBreak bool, chunks ...[]byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeResponder || len(e.freeList) == 0 || e.next != nil {
		return false
	}
	if e.state != stateRRxData {
		return false
	}

	b := e.popFreeBuffer()
	offset := 0
	for _, chunk := range chunks {
		if offset+len(chunk) > bufferSize {
			n := copy(b.data[offset:], chunk)
			offset += n
			e.log.Error("truncated RDM response")
			break
		}
		copy(b.data[offset:], chunk)
		offset += len(chunk)
	}
	b.size = offset
	b.token = TokenNone
	if includeBreak {
		b.op = opRDMResponse
	} else {
		b.op = opRDMDUBResponse
	}
	e.next = b
	return true
}

// Reset aborts any in-flight operation, cancels pending frames and
// returns both state machines to idle with the line in receive. Pending
// tokens complete as cancelled. Timing settings return to defaults.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.line.StopTimer()
	e.line.DisableCapture()
	e.line.DisableReceiver()
	e.line.DisableTransmitter()
	e.line.FlushReceiver()

	if e.active != nil && e.active.token != TokenNone {
		e.runTXEvent(&Event{
			Token:  e.active.token,
			Op:     e.active.op,
			Result: ResultCancelled,
		})
	}
	if e.next != nil && e.next.token != TokenNone {
		e.runTXEvent(&Event{
			Token:  e.next.token,
			Op:     e.next.op,
			Result: ResultCancelled,
		})
	}
	e.initBuffers()
	e.settings = defaultSettings()
	e.line.SetMark()
	e.line.EnableRX()
	e.state = stateReset
}
