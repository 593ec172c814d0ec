package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vishalSecmark/tradewebx-sub002/internal/app"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Queue files for import and upload them",
	Long: `Queue one or more files and upload them in order.

Each file is matched against the configured import targets by name.
Files with no matching target are recorded as no_match, files whose
target is switched off are recorded as disabled. Press Ctrl+C to pause;
the active file resumes from its next chunk with 'tradeimport resume'.`,
	Example: `  # Import two files
  tradeimport import clients.csv margins.xlsx

  # Import with extra backend filters
  tradeimport import trades.txt --filter Exchange=NSE --filter Segment=FO`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

var (
	importFilters []string
	importFormat  string
)

func init() {
	importCmd.Flags().StringArrayVarP(&importFilters, "filter", "f", nil,
		"Backend filter as key=value (can be used multiple times)")
	importCmd.Flags().StringVarP(&importFormat, "output", "o", string(progress.OutputFormatTerminal),
		"Progress output: terminal, json or quiet")
}

func runImport(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(importFilters)
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

	format := progress.OutputFormat(importFormat)
	if format == progress.OutputFormatTerminal {
		fmt.Println(color.CyanString("📥 TradeImport"))
		fmt.Println()
	}

	reporter := progress.NewReporter(progress.ReporterConfig{Format: format, Output: os.Stdout})
	unsubscribe := q.Subscribe(reportEvents(reporter))
	defer unsubscribe()

	res, err := a.Import(ctx, args, filters)
	if err != nil {
		return err
	}
	if format == progress.OutputFormatTerminal {
		printAddResult(res)
	}
	return waitAndSummarize(ctx, a, q, format)
}

// reportEvents feeds queue events into the progress reporter.
func reportEvents(r *progress.Reporter) queue.EventHandler {
	return func(e queue.Event) {
		switch e.Type {
		case queue.EventItemProgress:
			if e.Progress != nil {
				r.Update(e.Progress.FileName, snapshotOf(*e.Progress))
			}
		case queue.EventItemCompleted, queue.EventItemFailed, queue.EventItemPaused:
			if e.Item != nil {
				r.Finish(e.Item.FileName, string(e.Item.Status), e.Item.Error)
			}
		}
	}
}

func snapshotOf(p upload.Progress) progress.Snapshot {
	s := progress.Snapshot{
		Total:     int64(p.TotalRecords),
		Processed: int64(p.ProcessedRecords),
		State:     progress.StateRunning,
	}
	if p.State == upload.StateCompleted {
		s.State = progress.StateCompleted
	}
	return s
}

func printAddResult(res *queue.AddResult) {
	for _, it := range res.Items {
		switch it.Status {
		case queue.StatusPending:
			fmt.Printf("  %s %s → %s\n", color.GreenString("✓"), it.FileName, it.MatchedRecord.FileName)
		case queue.StatusDisabled:
			fmt.Printf("  %s %s (target disabled)\n", color.YellowString("–"), it.FileName)
		default:
			fmt.Printf("  %s %s (%s)\n", color.YellowString("?"), it.FileName, it.Status)
		}
	}
	for _, r := range res.Rejected {
		fmt.Printf("  %s %s: %s\n", color.RedString("✗"), r.FileName, r.Reason)
	}
	fmt.Println()
}

// waitAndSummarize runs the queue to idle and prints the outcome.
func waitAndSummarize(ctx context.Context, a *app.App, q *queue.Manager, format progress.OutputFormat) error {
	if err := a.Run(ctx); err != nil {
		return err
	}
	if format != progress.OutputFormatTerminal {
		return nil
	}

	snap := q.Snapshot()
	stats := snap.Stats()
	fmt.Println()
	switch {
	case snap.IsPaused || stats.Paused > 0:
		fmt.Println(color.YellowString("⏸  Import paused. Run 'tradeimport resume' to continue."))
	case stats.Failed > 0:
		fmt.Println(color.RedString("⚠️  %d file(s) failed. See 'tradeimport status' and 'tradeimport export failed <id>'.", stats.Failed))
	default:
		fmt.Println(color.GreenString("✅ Import completed"))
	}
	fmt.Printf("  Success: %d  Failed: %d  No match: %d  Disabled: %d\n",
		stats.Success, stats.Failed, stats.NoMatch, stats.Disabled)
	return nil
}
