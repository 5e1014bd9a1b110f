// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
)

var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Run as an RDM responder on the RS-485 line",
	Long: `Runs the bridge headless in responder mode: it receives DMX,
answers RDM discovery and GET/SET requests, and exposes the receiver
counters on the metrics endpoint when enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		// Drain completions so mode changes and self tests get logged.
		go func() {
			for ev := range b.events {
				b.log.WithFields(map[string]interface{}{
					"token":  ev.Token,
					"op":     ev.Op.String(),
					"result": ev.Result.String(),
				}).Debug("operation complete")
			}
		}()

		b.run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(respondCmd)
}
