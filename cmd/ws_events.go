// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var wsListenAddr string

// wireEvent is the CBOR shape of a completion event on the stream.
type wireEvent struct {
	Token  int16  `cbor:"1,keyasint"`
	Op     string `cbor:"2,keyasint"`
	Result string `cbor:"3,keyasint"`
	Data   []byte `cbor:"4,keyasint,omitempty"`
}

var wsEventsCmd = &cobra.Command{
	Use:   "ws-events",
	Short: "Stream transceiver events over WebSocket",
	Long: `Runs the bridge and pushes every operation completion to the
connected WebSocket clients as CBOR-encoded binary messages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBridge()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		go b.run(ctx)

		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}

		var mu sync.Mutex
		clients := map[*websocket.Conn]struct{}{}

		go func() {
			for ev := range b.events {
				payload, err := cbor.Marshal(wireEvent{
					Token:  ev.Token,
					Op:     ev.Op.String(),
					Result: ev.Result.String(),
					Data:   ev.Data,
				})
				if err != nil {
					continue
				}
				mu.Lock()
				for conn := range clients {
					conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
						conn.Close()
						delete(clients, conn)
					}
				}
				mu.Unlock()
			}
		}()

		mux := http.NewServeMux()
		mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				b.log.WithError(err).Warn("websocket upgrade failed")
				return
			}
			b.log.WithField("remote", r.RemoteAddr).Info("event client connected")
			mu.Lock()
			clients[conn] = struct{}{}
			mu.Unlock()
		})

		server := &http.Server{
			Addr:              wsListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			server.Close()
		}()
		b.log.WithField("addr", wsListenAddr).Info("event stream listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

func init() {
	wsEventsCmd.Flags().StringVar(&wsListenAddr, "listen", ":8571", "WebSocket listen address")
	rootCmd.AddCommand(wsEventsCmd)
}
