package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/betamos/wsproto/ws"
)

func newDialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial [url]",
		Short: "Connect to a WebSocket server and echo stdin lines to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDial(args[0])
		},
	}
	return cmd
}

func runDial(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, resp, err := ws.Open(ctx, url, ws.ClientOptions{ReadTimeout: 180 * time.Second})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	go func() {
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == ws.TextMessage {
				fmt.Println(string(data))
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.WriteText(scanner.Text()); err != nil {
			return err
		}
	}
	return conn.Close()
}
