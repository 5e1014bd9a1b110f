// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor exports the receiver counters and engine state as
// Prometheus metrics.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/dmxbridge/pkg/device"
)

// collector reads the device's counters on scrape.
type collector struct {
	dev *device.Device

	dmxFrames      *prometheus.Desc
	rdmFrames      *prometheus.Desc
	shortFrames    *prometheus.Desc
	lengthMismatch *prometheus.Desc
	checksumBad    *prometheus.Desc
	mode           *prometheus.Desc
}

func newCollector(dev *device.Device) *collector {
	return &collector{
		dev: dev,
		dmxFrames: prometheus.NewDesc("dmxbridge_dmx_frames_total",
			"DMX frames received", nil, nil),
		rdmFrames: prometheus.NewDesc("dmxbridge_rdm_frames_total",
			"Valid RDM frames received", nil, nil),
		shortFrames: prometheus.NewDesc("dmxbridge_rdm_short_frames_total",
			"RDM frames shorter than a header", nil, nil),
		lengthMismatch: prometheus.NewDesc("dmxbridge_rdm_length_mismatch_total",
			"RDM frames with a bad declared length", nil, nil),
		checksumBad: prometheus.NewDesc("dmxbridge_rdm_checksum_invalid_total",
			"RDM frames failing the checksum", nil, nil),
		mode: prometheus.NewDesc("dmxbridge_transceiver_mode",
			"Current transceiver mode", []string{"mode"}, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dmxFrames
	ch <- c.rdmFrames
	ch <- c.shortFrames
	ch <- c.lengthMismatch
	ch <- c.checksumBad
	ch <- c.mode
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	counters := c.dev.Counters()
	ch <- prometheus.MustNewConstMetric(c.dmxFrames, prometheus.CounterValue,
		float64(counters.DMXFrames()))
	ch <- prometheus.MustNewConstMetric(c.rdmFrames, prometheus.CounterValue,
		float64(counters.RDMFrames()))
	ch <- prometheus.MustNewConstMetric(c.shortFrames, prometheus.CounterValue,
		float64(counters.RDMShortFrame()))
	ch <- prometheus.MustNewConstMetric(c.lengthMismatch, prometheus.CounterValue,
		float64(counters.RDMLengthMismatch()))
	ch <- prometheus.MustNewConstMetric(c.checksumBad, prometheus.CounterValue,
		float64(counters.RDMChecksumInvalid()))
	ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, 1,
		c.dev.Engine().Mode().String())
}

// Monitor serves the metrics endpoint for one device.
type Monitor struct {
	registry *prometheus.Registry
	log      logrus.FieldLogger
}

// New registers the device's collector on a fresh registry.
func New(dev *device.Device, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(dev))
	return &Monitor{registry: registry, log: log.WithField("component", "monitor")}
}

// Handler returns the /metrics handler.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr.
func (m *Monitor) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.WithField("addr", addr).Info("metrics listening")
	return server.ListenAndServe()
}
