// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

// DMXBaudRate is the DMX512 signalling rate.
const DMXBaudRate = 250000

// SerialLine drives the transceiver engine over a USB RS-485 adapter
// through go.bug.st/serial. The adapter's UART generates the break; the
// engine's microsecond break/mark state machine still runs, but the
// actual low period is the UART break of the configured duration.
//
// Adapters have no input-capture hardware, so received break edges are
// not observable: controller transmit works fully, responder-mode break
// measurement needs real capture hardware (or the SimLine in tests).
type SerialLine struct {
	mu    sync.Mutex
	port  serial.Port
	ev    transceiver.EventSink
	epoch time.Time

	breakDuration time.Duration
	timer         *time.Timer

	rxEnabled bool
	txEnabled bool

	readBuf []byte
	closed  chan struct{}
}

// OpenSerialLine opens an RS-485 adapter at the DMX rate, 8N2.
func OpenSerialLine(portName string) (*SerialLine, error) {
	mode := &serial.Mode{
		BaudRate: DMXBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialLine{
		port:          port,
		epoch:         time.Now(),
		breakDuration: transceiver.DefaultBreakTime * time.Microsecond,
		readBuf:       make([]byte, 0, 600),
		closed:        make(chan struct{}),
	}, nil
}

// Attach connects the engine and starts the read pump.
func (s *SerialLine) Attach(ev transceiver.EventSink) {
	s.ev = ev
	go s.readLoop()
}

// SetBreakDuration sets the UART break length used for SetBreak.
func (s *SerialLine) SetBreakDuration(d time.Duration) {
	s.mu.Lock()
	s.breakDuration = d
	s.mu.Unlock()
}

// Close stops the read pump and closes the port.
func (s *SerialLine) Close() error {
	close(s.closed)
	return s.port.Close()
}

func (s *SerialLine) readLoop() {
	buf := make([]byte, 512)
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		s.mu.Lock()
		deliver := s.rxEnabled
		if deliver {
			s.readBuf = append(s.readBuf, buf[:n]...)
		}
		s.mu.Unlock()
		if deliver {
			s.ev.UARTRxEvent()
		}
	}
}

// Line implementation
// ----------------------------------------------------------------------------

// EnableTX and EnableRX are no-ops: the adapter's RS-485 driver handles
// direction automatically.
func (s *SerialLine) EnableTX() {}
func (s *SerialLine) EnableRX() {}

// EnableLoopback is unsupported on an adapter; the self test will time
// out and report a failure, which is the honest answer.
func (s *SerialLine) EnableLoopback() {}

// SetBreak issues a UART break of the configured duration. The engine's
// own mark timer paces the transition that follows.
func (s *SerialLine) SetBreak() {
	s.mu.Lock()
	d := s.breakDuration
	s.mu.Unlock()
	go s.port.Break(d)
}

func (s *SerialLine) SetMark() {}

func (s *SerialLine) EnableReceiver() {
	s.mu.Lock()
	s.rxEnabled = true
	s.mu.Unlock()
	s.port.ResetInputBuffer()
}

func (s *SerialLine) DisableReceiver() {
	s.mu.Lock()
	s.rxEnabled = false
	s.mu.Unlock()
}

func (s *SerialLine) EnableTransmitter()  { s.txEnabled = true }
func (s *SerialLine) DisableTransmitter() { s.txEnabled = false }

func (s *SerialLine) WriteByte(b byte) bool {
	if _, err := s.port.Write([]byte{b}); err != nil {
		return false
	}
	// The OS buffers writes; report the FIFO drained so the engine can
	// finish the frame.
	go s.ev.UARTTxEvent()
	return true
}

func (s *SerialLine) ReadByte() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readBuf) == 0 {
		return 0, false
	}
	b := s.readBuf[0]
	s.readBuf = s.readBuf[1:]
	return b, true
}

func (s *SerialLine) FlushReceiver() {
	s.mu.Lock()
	s.readBuf = s.readBuf[:0]
	s.mu.Unlock()
}

func (s *SerialLine) StartTimer(d uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(time.Duration(d)*100*time.Nanosecond, s.ev.TimerEvent)
}

func (s *SerialLine) StopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Now returns tenths of microseconds since the line opened.
func (s *SerialLine) Now() uint32 {
	return uint32(time.Since(s.epoch) / (100 * time.Nanosecond))
}

// EnableCapture and DisableCapture are no-ops; see the type comment.
func (s *SerialLine) EnableCapture()  {}
func (s *SerialLine) DisableCapture() {}
