// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

var consoleTUI bool

const consoleHelp = `Runs the bridge with an interactive console on stdin.

Commands:
  + / -   raise / lower the log level
  c       dump the receiver counters
  h       this help
  m / M   show / toggle the transceiver mode
  r       reset the transceiver
  t       dump the transceiver timing settings
  d i w e f   emit a test log line at each level
  u       show the responder UID
Anything else is echoed as a log line.`

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive single-character console",
	Long:  consoleHelp,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		if consoleTUI {
			return runConsoleTUI(b)
		}
		return runConsole(b)
	},
}

func init() {
	consoleCmd.Flags().BoolVar(&consoleTUI, "tui", false, "Full-screen console")
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(b *bridge) error {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	ctx, cancel := signalContext()
	defer cancel()
	go b.run(ctx)
	go func() {
		for range b.events {
		}
	}()

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return nil
		}
		if buf[0] == 0x03 { // ctrl-c in raw mode
			cancel()
			return nil
		}
		if handleConsoleKey(b, buf[0]) {
			return nil
		}
	}
}

// handleConsoleKey runs one console command; returns true on quit.
func handleConsoleKey(b *bridge, key byte) bool {
	log := b.log
	switch key {
	case '+':
		if level := log.GetLevel(); level < logrus.TraceLevel {
			log.SetLevel(level + 1)
		}
		fmt.Printf("log level: %s\r\n", log.GetLevel())
	case '-':
		if level := log.GetLevel(); level > logrus.PanicLevel {
			log.SetLevel(level - 1)
		}
		fmt.Printf("log level: %s\r\n", log.GetLevel())
	case 'c':
		fmt.Print(formatCounters(b))
	case 'h':
		fmt.Print(consoleHelp, "\r\n")
	case 'm':
		fmt.Printf("mode: %s\r\n", b.dev.Engine().Mode())
	case 'M':
		mode := transceiver.ModeController
		if b.dev.Engine().Mode() == transceiver.ModeController {
			mode = transceiver.ModeResponder
		}
		if b.dev.Engine().SetMode(mode, transceiver.TokenNone) {
			fmt.Printf("switching to %s\r\n", mode)
		} else {
			fmt.Print("mode change rejected\r\n")
		}
	case 'r':
		b.dev.Reset()
		fmt.Print("transceiver reset\r\n")
	case 't':
		fmt.Print(formatTiming(b.dev.Engine()))
	case 'd':
		log.Debug("debug log test")
	case 'i':
		log.Info("info log test")
	case 'w':
		log.Warn("warn log test")
	case 'e':
		log.Error("error log test")
	case 'f':
		log.Log(logrus.FatalLevel, "fatal log test")
	case 'u':
		fmt.Printf("uid: %s\r\n", b.dev.Root().UID())
	case 'q':
		return true
	default:
		log.Infof("console: %q", key)
	}
	return false
}

func formatCounters(b *bridge) string {
	c := b.dev.Counters()
	return fmt.Sprintf(
		"DMX frames:          %5d\r\n"+
			"RDM frames:          %5d\r\n"+
			"RDM short frames:    %5d\r\n"+
			"RDM length mismatch: %5d\r\n"+
			"RDM checksum bad:    %5d\r\n",
		c.DMXFrames(), c.RDMFrames(), c.RDMShortFrame(),
		c.RDMLengthMismatch(), c.RDMChecksumInvalid())
}

func formatTiming(e *transceiver.Engine) string {
	return fmt.Sprintf(
		"break:             %4d us\r\n"+
			"mark:              %4d us\r\n"+
			"response timeout:  %4d ticks\r\n"+
			"broadcast timeout: %4d ticks\r\n"+
			"DUB limit:         %5d tenths us\r\n"+
			"responder delay:   %5d tenths us\r\n"+
			"responder jitter:  %5d tenths us\r\n",
		e.BreakTime(), e.MarkTime(), e.RDMResponseTimeout(),
		e.RDMBroadcastTimeout(), e.RDMDUBResponseLimit(),
		e.RDMResponderDelay(), e.RDMResponderJitter())
}
