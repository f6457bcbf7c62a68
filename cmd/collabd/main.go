// Command collabd runs the real-time collaboration backbone: a WebSocket
// server that accepts per-document editing sessions, persists deltas to an
// embedded BadgerDB store, and fans broadcasts out to every connected peer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "collabd",
		Short: "Real-time collaboration backbone server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to collabd.yaml (optional; defaults apply if absent)")
	root.AddCommand(serveCmd())
	return root
}
