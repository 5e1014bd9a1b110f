// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

var (
	sendStartCode uint8
	sendRepeat    int
)

var sendCmd = &cobra.Command{
	Use:   "send <hex-slots>",
	Short: "Transmit a DMX frame as a controller",
	Long: `Switches to controller mode and transmits one frame of slot data.

The slots are given as hex, e.g. "ff 00 80" or "ff0080". With
--start-code, an alternate start code frame is sent instead of DMX.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slots, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		if err != nil {
			return fmt.Errorf("bad slot data: %w", err)
		}

		b, err := openBridge()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		go b.run(ctx)

		engine := b.dev.Engine()
		engine.SetMode(transceiver.ModeController, 0)
		if !awaitEvent(b, transceiver.OpModeChange, 5*time.Second) {
			return fmt.Errorf("mode change did not complete")
		}

		for i := 0; i < sendRepeat; i++ {
			token := int16(i + 1)
			for !queueFrame(engine, token, slots) {
				time.Sleep(time.Millisecond)
			}
			if !awaitToken(b, token, 5*time.Second) {
				return fmt.Errorf("frame %d did not complete", token)
			}
		}
		b.log.WithField("frames", sendRepeat).Info("transmit done")
		return nil
	},
}

func queueFrame(e *transceiver.Engine, token int16, slots []byte) bool {
	if sendStartCode != 0 {
		return e.QueueASC(token, sendStartCode, slots)
	}
	return e.QueueDMX(token, slots)
}

// awaitEvent waits for the next completion of the given operation.
func awaitEvent(b *bridge, op transceiver.Operation, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-b.events:
			if ev.Op == op {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// awaitToken waits for the completion carrying the given token.
func awaitToken(b *bridge, token int16, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-b.events:
			if ev.Token == token {
				return ev.Result == transceiver.ResultOK ||
					ev.Result == transceiver.ResultRxData
			}
		case <-deadline:
			return false
		}
	}
}

func init() {
	sendCmd.Flags().Uint8Var(&sendStartCode, "start-code", 0, "Alternate start code")
	sendCmd.Flags().IntVar(&sendRepeat, "repeat", 1, "Number of frames to send")
	rootCmd.AddCommand(sendCmd)
}
