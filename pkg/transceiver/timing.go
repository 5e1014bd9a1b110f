// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transceiver

// Timing constants from E1.11-2008 [DMX] and E1.20-2010 [RDM]. Fine-domain
// values are in tenths of a microsecond, coarse-domain values in coarse
// ticks (100µs, see coarsetime). Some configurable values are allowed
// outside the ranges in the standards; this is for testing fixtures.

// Common TX limits, microseconds.
const (
	// MinTXBreakTime is the shortest configurable break. DMX1990 was 88µs
	// and later versions raised it to 92µs; 44µs is allowed for testing.
	MinTXBreakTime = 44
	MaxTXBreakTime = 800

	// MinTXMarkTime is the shortest configurable mark. DMX1986 allows a
	// 4µs mark time.
	MinTXMarkTime = 4
	MaxTXMarkTime = 800
)

// Controller receive limits, tenths of a microsecond. Values from
// Table 3-1 of E1.20.
const (
	ControllerRxBreakMin = 880  // 88.0µs
	ControllerRxBreakMax = 3520 // 352.0µs
	ControllerRxMarkMax  = 880  // 88.0µs
)

// Controller backoffs, coarse ticks. Values from Table 6 of E1.11 and
// Table 3-2 of E1.20, rounded up to the tick.
const (
	ControllerMinBreakToBreak      = 13 // 1.3ms, from 1.204ms
	ControllerDUBBackoff           = 58 // 5.8ms
	ControllerBroadcastBackoff     = 2  // 0.2ms, from 176µs
	ControllerMissingRespBackoff   = 30 // 3.0ms
	ControllerNonRDMBackoff        = 2  // 0.2ms, from 176µs
	ControllerRxInterslotTimeout   = 21 // 2.1ms, Table 3-1 line 2
)

// Responder receive limits. Values from Table 3-3 of E1.20 and Table 6
// of E1.11.
const (
	ResponderRxBreakMin = 880        // 88.0µs, tenths of µs
	ResponderRxBreakMax = 10_000_000 // 1s, tenths of µs
	ResponderRxMarkMin  = 80         // 8.0µs, tenths of µs
	ResponderRxMarkMax  = 10_000_000 // 1s, tenths of µs

	ResponderRDMInterslotTimeout = 21    // 2.1ms, coarse ticks
	ResponderDMXInterslotTimeout = 10000 // 1s, coarse ticks
)

// Responder turnaround, tenths of a microsecond. Table 3-4 of E1.20.
const (
	MinResponderDelay = 1760  // 176.0µs
	MaxResponderDelay = 20000 // 2.0ms
)

// Configurable timing defaults.
const (
	DefaultBreakTime        = 176 // µs
	DefaultMarkTime         = 12  // µs
	DefaultResponseTimeout  = 28  // coarse ticks, 2.8ms
	DefaultBroadcastTimeout = 0   // don't listen after a broadcast
	DefaultDUBResponseLimit = 29000 // tenths of µs, 2.9ms
	DefaultResponderDelay   = MinResponderDelay
)

// Setter bounds for the host-configurable timeouts: coarse ticks for the
// response and broadcast timeouts, tenths of a microsecond for the DUB
// response limit.
const (
	minResponseTimeout  = 10
	maxResponseTimeout  = 50
	maxBroadcastTimeout = 50
	minDUBResponseLimit = 10000
	maxDUBResponseLimit = 35000
)

// settings holds the host-configurable timing parameters.
type settings struct {
	breakTime        uint16 // µs
	markTime         uint16 // µs
	responseTimeout  uint16 // coarse ticks
	broadcastTimeout uint16 // coarse ticks
	dubResponseLimit uint16 // tenths of µs
	responderDelay   uint16 // tenths of µs
	responderJitter  uint16 // tenths of µs
}

func defaultSettings() settings {
	return settings{
		breakTime:        DefaultBreakTime,
		markTime:         DefaultMarkTime,
		responseTimeout:  DefaultResponseTimeout,
		broadcastTimeout: DefaultBroadcastTimeout,
		dubResponseLimit: DefaultDUBResponseLimit,
		responderDelay:   DefaultResponderDelay,
	}
}

// SetBreakTime sets the transmit break duration in microseconds.
// Returns false, without changing state, when outside [44, 800].
func (e *Engine) SetBreakTime(breakTimeUS uint16) bool {
	if breakTimeUS < MinTXBreakTime || breakTimeUS > MaxTXBreakTime {
		return false
	}
	e.mu.Lock()
	e.settings.breakTime = breakTimeUS
	e.mu.Unlock()
	e.log.WithField("break_us", breakTimeUS).Debug("break time set")
	return true
}

// BreakTime returns the configured break duration in microseconds.
func (e *Engine) BreakTime() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.breakTime
}

// SetMarkTime sets the mark-after-break duration in microseconds.
// Returns false, without changing state, when outside [4, 800].
func (e *Engine) SetMarkTime(markTimeUS uint16) bool {
	if markTimeUS < MinTXMarkTime || markTimeUS > MaxTXMarkTime {
		return false
	}
	e.mu.Lock()
	e.settings.markTime = markTimeUS
	e.mu.Unlock()
	e.log.WithField("mark_us", markTimeUS).Debug("mark time set")
	return true
}

// MarkTime returns the configured mark duration in microseconds.
func (e *Engine) MarkTime() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.markTime
}

// SetRDMResponseTimeout sets how long, in coarse ticks, the controller
// waits for a unicast RDM response.
func (e *Engine) SetRDMResponseTimeout(ticks uint16) bool {
	if ticks < minResponseTimeout || ticks > maxResponseTimeout {
		return false
	}
	e.mu.Lock()
	e.settings.responseTimeout = ticks
	e.mu.Unlock()
	return true
}

// RDMResponseTimeout returns the unicast response wait in coarse ticks.
func (e *Engine) RDMResponseTimeout() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.responseTimeout
}

// SetRDMBroadcastTimeout sets how long, in coarse ticks, the controller
// listens after a broadcast RDM request. 0 disables listening.
func (e *Engine) SetRDMBroadcastTimeout(ticks uint16) bool {
	if ticks > maxBroadcastTimeout {
		return false
	}
	e.mu.Lock()
	e.settings.broadcastTimeout = ticks
	e.mu.Unlock()
	return true
}

// RDMBroadcastTimeout returns the broadcast listen window in coarse ticks.
func (e *Engine) RDMBroadcastTimeout() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.broadcastTimeout
}

// SetRDMDUBResponseLimit sets the DUB receive window in tenths of a
// microsecond. The ceiling bounds how many response bytes can arrive, so
// the RX buffer cannot overflow within the window.
func (e *Engine) SetRDMDUBResponseLimit(limit uint16) bool {
	if limit < minDUBResponseLimit || limit > maxDUBResponseLimit {
		return false
	}
	e.mu.Lock()
	e.settings.dubResponseLimit = limit
	e.mu.Unlock()
	return true
}

// RDMDUBResponseLimit returns the DUB receive window in tenths of a µs.
func (e *Engine) RDMDUBResponseLimit() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.dubResponseLimit
}

// SetRDMResponderDelay sets the responder turnaround in tenths of a
// microsecond. Returns false, without changing state, when outside
// [176.0µs, 2.0ms]. The jitter is clamped so delay + jitter stays within
// the ceiling.
func (e *Engine) SetRDMResponderDelay(delay uint16) bool {
	if delay < MinResponderDelay || delay > MaxResponderDelay {
		return false
	}
	e.mu.Lock()
	e.settings.responderDelay = delay
	if maxJitter := uint16(MaxResponderDelay - delay); e.settings.responderJitter > maxJitter {
		e.settings.responderJitter = maxJitter
	}
	e.mu.Unlock()
	return true
}

// RDMResponderDelay returns the responder turnaround in tenths of a µs.
func (e *Engine) RDMResponderDelay() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.responderDelay
}

// SetRDMResponderJitter sets the maximum random addition to the responder
// delay, in tenths of a microsecond.
func (e *Engine) SetRDMResponderJitter(maxJitter uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if uint32(maxJitter)+uint32(e.settings.responderDelay) > MaxResponderDelay {
		return false
	}
	e.settings.responderJitter = maxJitter
	return true
}

// RDMResponderJitter returns the configured jitter in tenths of a µs.
func (e *Engine) RDMResponderJitter() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.responderJitter
}
