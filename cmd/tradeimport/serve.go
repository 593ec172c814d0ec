package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import queue behind an HTTP API",
	Long: `Start the HTTP API. The queue keeps running in this process and is
controlled through /api/queue and /api/items. Queue changes are streamed
as server-sent events on /api/queue/events.`,
	Example: `  tradeimport serve
  tradeimport serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default: configured server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Stop()

	if serveAddr != "" {
		a.Config().Server.Addr = serveAddr
	}

	fmt.Println(color.CyanString("🌐 TradeImport API listening on %s", a.Config().Server.Addr))
	return a.Serve(cmd.Context())
}
