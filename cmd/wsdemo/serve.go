package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/betamos/wsproto/ws"
)

func newServeCmd() *cobra.Command {
	var addr string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a WebSocket echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, chunkSize)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "fragment outgoing messages above this many bytes (0 disables)")
	return cmd
}

func runServe(addr string, chunkSize int) error {
	server := ws.NewServer(ws.ServerOptions{
		ReadTimeout: 180 * time.Second,
		ChunkSize:   chunkSize,
	})
	server.Handle(func(c *ws.Conn) {
		ws.Log.Printf("connected: %s", c.RemoteAddr())
		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				ws.Log.Printf("disconnected: %s: %v", c.RemoteAddr(), err)
				return
			}
			if err := c.WriteMessage(kind, data); err != nil {
				return
			}
		}
	})

	go func() {
		for err := range server.Diagnostics {
			ws.Log.Printf("handler fault: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/", server)
	ws.Log.Printf("listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
