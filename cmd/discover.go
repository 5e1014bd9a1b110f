// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/dmxbridge/pkg/rdm"
	"github.com/Thermoquad/dmxbridge/pkg/transceiver"
)

var discoverSourceUID string

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run RDM discovery on the line",
	Long: `Switches to controller mode and runs the DISC_UNIQUE_BRANCH
binary search: un-mute everything, probe UID ranges, mute each
responder as it is found, and print the discovered UIDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceUID, err := rdm.ParseUID(discoverSourceUID)
		if err != nil {
			return err
		}

		b, err := openBridge()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		go b.run(ctx)

		d := &discoverer{bridge: b, sourceUID: sourceUID}
		engine := b.dev.Engine()
		engine.SetMode(transceiver.ModeController, 0)
		if !awaitEvent(b, transceiver.OpModeChange, 5*time.Second) {
			return fmt.Errorf("mode change did not complete")
		}

		found, err := d.run()
		if err != nil {
			return err
		}
		for _, uid := range found {
			fmt.Println(uid)
		}
		b.log.WithField("count", len(found)).Info("discovery complete")
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverSourceUID, "source-uid", "7a70:fffffffe",
		"Controller UID used in requests")
	rootCmd.AddCommand(discoverCmd)
}

type discoverer struct {
	*bridge
	sourceUID rdm.UID
	tn        uint8
	token     int16
}

func (d *discoverer) run() ([]rdm.UID, error) {
	// Un-mute everything first so a previous run doesn't hide devices.
	if err := d.sendMute(rdm.NewUID(0xFFFF, 0xFFFFFFFF), rdm.PIDDiscUnMute); err != nil {
		return nil, err
	}

	var found []rdm.UID
	type span struct{ lower, upper rdm.UID }
	stack := []span{{rdm.NewUID(0, 0), rdm.NewUID(0xFFFF, 0xFFFFFFFE)}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		window, timedOut, err := d.sendDUB(s.lower, s.upper)
		if err != nil {
			return nil, err
		}
		if timedOut {
			continue
		}

		uid, err := rdm.DecodeDUBResponse(window)
		if err == nil {
			// Confirm by muting; a mute ACK pins the device down even
			// if the window was two responders aliasing cleanly.
			if err := d.sendMute(uid, rdm.PIDDiscMute); err != nil {
				return nil, err
			}
			found = append(found, uid)
			// Re-probe the span for anything the winner was masking.
			stack = append(stack, s)
			continue
		}

		// Collision: split the span.
		if s.lower == s.upper {
			d.log.WithField("uid", s.lower).Warn("unresolvable collision")
			continue
		}
		mid := midpointUID(s.lower, s.upper)
		stack = append(stack, span{s.lower, mid}, span{nextUID(mid), s.upper})
	}
	return found, nil
}

// sendDUB probes one UID span and returns the raw response window.
func (d *discoverer) sendDUB(lower, upper rdm.UID) ([]byte, bool, error) {
	paramData := make([]byte, 2*rdm.UIDLength)
	copy(paramData[:rdm.UIDLength], lower[:])
	copy(paramData[rdm.UIDLength:], upper[:])

	frame := d.buildRequest(rdm.NewUID(0xFFFF, 0xFFFFFFFF), rdm.DiscoveryCommand,
		rdm.PIDDiscUniqueBranch, paramData)

	d.token++
	token := d.token
	for !d.dev.Engine().QueueRDMDUB(token, frame[1:]) {
		time.Sleep(time.Millisecond)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-d.events:
			if ev.Token != token {
				continue
			}
			return ev.Data, ev.Result == transceiver.ResultRxTimeout, nil
		case <-deadline:
			return nil, false, fmt.Errorf("DUB completion lost")
		}
	}
}

// sendMute sends DISC_MUTE or DISC_UN_MUTE to one UID.
func (d *discoverer) sendMute(dest rdm.UID, pid rdm.PID) error {
	frame := d.buildRequest(dest, rdm.DiscoveryCommand, pid, nil)

	d.token++
	token := d.token
	broadcast := dest.IsBroadcast()
	for !d.dev.Engine().QueueRDMRequest(token, frame[1:], broadcast) {
		time.Sleep(time.Millisecond)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-d.events:
			if ev.Token != token {
				continue
			}
			if !broadcast && ev.Result != transceiver.ResultRxData {
				return fmt.Errorf("mute of %s got %s", dest, ev.Result)
			}
			return nil
		case <-deadline:
			return fmt.Errorf("mute completion lost")
		}
	}
}

// buildRequest assembles a checksummed request frame including the start
// code; the engine re-adds the start code, so queue frame[1:].
func (d *discoverer) buildRequest(dest rdm.UID, cc rdm.CommandClass, pid rdm.PID, paramData []byte) []byte {
	buf := make([]byte, rdm.MaxFrameSize)
	d.tn++
	rdm.WriteHeader(buf, &rdm.Header{
		StartCode:         rdm.StartCode,
		SubStartCode:      rdm.SubStartCode,
		MessageLength:     uint8(rdm.HeaderSize + len(paramData)),
		DestUID:           dest,
		SrcUID:            d.sourceUID,
		TransactionNumber: d.tn,
		PortID:            1,
		SubDevice:         rdm.SubDeviceRoot,
		CommandClass:      cc,
		ParamID:           pid,
		ParamDataLength:   uint8(len(paramData)),
	})
	copy(buf[rdm.HeaderSize:], paramData)
	n := rdm.AppendChecksum(buf)
	return buf[:n]
}

// midpointUID returns the midpoint of a UID span.
func midpointUID(lower, upper rdm.UID) rdm.UID {
	lo := uidToUint64(lower)
	hi := uidToUint64(upper)
	return uidFromUint64(lo + (hi-lo)/2)
}

func nextUID(u rdm.UID) rdm.UID {
	return uidFromUint64(uidToUint64(u) + 1)
}

func uidToUint64(u rdm.UID) uint64 {
	var v uint64
	for _, b := range u {
		v = v<<8 | uint64(b)
	}
	return v
}

func uidFromUint64(v uint64) rdm.UID {
	var u rdm.UID
	for i := rdm.UIDLength - 1; i >= 0; i-- {
		u[i] = byte(v)
		v >>= 8
	}
	return u
}
