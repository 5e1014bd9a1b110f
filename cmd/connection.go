// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/dmxbridge/pkg/coarsetime"
	"github.com/Thermoquad/dmxbridge/pkg/config"
	"github.com/Thermoquad/dmxbridge/pkg/device"
	"github.com/Thermoquad/dmxbridge/pkg/monitor"
	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

// bridge bundles a running device and its collaborators.
type bridge struct {
	cfg    *config.Config
	log    *logrus.Logger
	dev    *device.Device
	line   *device.SerialLine
	clock  *coarsetime.Clock
	events chan transceiver.Event
}

// openBridge builds the device on the configured serial port.
func openBridge() (*bridge, error) {
	if portName == "" {
		return nil, fmt.Errorf("no serial port given, use --port")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	uid, err := cfg.UID()
	if err != nil {
		return nil, err
	}
	line, err := device.OpenSerialLine(portName)
	if err != nil {
		return nil, err
	}

	b := &bridge{
		cfg:    cfg,
		log:    log,
		line:   line,
		clock:  &coarsetime.Clock{},
		events: make(chan transceiver.Event, 16),
	}
	b.dev = device.New(device.Config{
		UID:        uid,
		Definition: cfg.Definition(),
		Line:       line,
		Clock:      b.clock,
		Log:        log,
		OnEvent: func(ev *transceiver.Event) {
			out := *ev
			out.Data = append([]byte(nil), ev.Data...)
			select {
			case b.events <- out:
			default:
				log.Warn("event queue full, dropping completion")
			}
		},
	})
	line.Attach(b.dev.Engine())
	if err := cfg.ApplyTiming(b.dev.Engine()); err != nil {
		line.Close()
		return nil, err
	}
	line.SetBreakDuration(time.Duration(b.dev.Engine().BreakTime()) * time.Microsecond)

	log.WithFields(logrus.Fields{
		"port": portName,
		"uid":  uid.String(),
	}).Info("bridge up")
	return b, nil
}

// run drives the coarse tick and the cooperative scheduler until the
// context ends.
func (b *bridge) run(ctx context.Context) {
	stop := make(chan struct{})
	defer close(stop)
	go b.clock.Run(stop)

	if b.cfg.Monitor.Enabled {
		mon := monitor.New(b.dev, b.log)
		go func() {
			if err := mon.Serve(b.cfg.Monitor.Addr); err != nil {
				b.log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	ticker := time.NewTicker(coarsetime.TickDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.dev.Reset()
			b.line.Close()
			return
		case <-ticker.C:
			b.dev.Tasks()
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
