// Command wsdemo is a small echo client/server used to exercise the ws
// package end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wsdemo",
		Short: "Run a WebSocket echo server or dial one",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newDialCmd())
	return root
}
