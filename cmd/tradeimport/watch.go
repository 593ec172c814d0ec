package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Import files as they appear in a directory",
	Long: `Watch a directory and queue every supported file created in it.
Files are queued once they stop changing. Press Ctrl+C to stop; the
active file is left paused.`,
	Example: `  # Import new drops
  tradeimport watch ~/drops

  # Also import files already in the directory
  tradeimport watch ~/drops --existing --filter Exchange=NSE`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchExisting bool
	watchFilters  []string
)

func init() {
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false,
		"Queue supported files already in the directory")
	watchCmd.Flags().StringArrayVarP(&watchFilters, "filter", "f", nil,
		"Backend filter as key=value (can be used multiple times)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(watchFilters)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx := cmd.Context()
	q, err := a.Queue(ctx)
	if err != nil {
		return err
	}
	unsubscribe := q.Subscribe(reportEvents(progress.NewReporter(progress.ReporterConfig{})))
	defer unsubscribe()

	fmt.Println(color.CyanString("👀 Watching %s", args[0]))
	fmt.Println()
	return a.Watch(ctx, args[0], watchExisting, filters)
}
