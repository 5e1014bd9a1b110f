// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxbridge/pkg/config"
)

var (
	portName   string
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dmxbridge",
	Short: "USB DMX512/RDM interface core",
	Long: `Dmxbridge - the firmware core of a USB-attached DMX512/RDM interface.

It drives an RS-485 line as a DMX/RDM controller or an RDM responder:
break and mark generation, slot transmit and receive, discovery (DUB)
handling, and the full RDM responder PID set.

Connection:
  --port /dev/ttyUSB0       RS-485 adapter device
  --config device.yaml      responder identity and timing overrides`,
	Version: "2.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "RS-485 serial port device")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Device settings file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the settings file, or the defaults when none is given.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// newLogger builds the process logger from the flags and config.
func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()

	level := logLevel
	if cfg.Log.Level != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		level = cfg.Log.Level
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
