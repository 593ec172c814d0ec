package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status [item-id]",
	Short: "Show the import queue",
	Long: `Display every file in the import queue with its status and progress.

The queue is read from storage without recovering it, so status can be
used while another process is uploading.`,
	Example: `  # Show the queue
  tradeimport status

  # Show one file in detail
  tradeimport status 5f1c2a

  # Follow the queue as it changes
  tradeimport status --watch`,
	RunE: runStatus,
}

var watchStatus bool

func init() {
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false,
		"Continuously monitor the queue")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	obs, err := a.Observer(ctx)
	if err != nil {
		return err
	}

	if watchStatus {
		return obs.Watch(ctx, func(q *queue.BackgroundUploadQueue) {
			fmt.Print("\033[H\033[2J")
			showQueue(q)
			fmt.Println(color.New(color.FgHiBlack).Sprint("\nWatching for changes, press Ctrl+C to stop"))
		})
	}

	q, err := obs.Snapshot(ctx)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		it := findItem(q, args[0])
		if it == nil {
			return fmt.Errorf("queue item not found: %s", args[0])
		}
		failures, inSession, err := a.State().FailureLog(ctx, it.ID, it.SessionID)
		if err != nil {
			return err
		}
		showItem(it)
		showFailureLog(failures, inSession)
		return nil
	}

	showQueue(q)
	return nil
}

// findItem matches an id or a unique id prefix.
func findItem(q *queue.BackgroundUploadQueue, id string) *queue.FileQueueItem {
	if it := q.Find(id); it != nil {
		return it
	}
	var found *queue.FileQueueItem
	for _, it := range q.Items {
		if strings.HasPrefix(it.ID, id) {
			if found != nil {
				return nil
			}
			found = it
		}
	}
	return found
}

func showQueue(q *queue.BackgroundUploadQueue) {
	fmt.Println(color.CyanString("📊 TradeImport Queue"))
	fmt.Println()

	if len(q.Items) == 0 {
		fmt.Println(color.YellowString("The queue is empty."))
		fmt.Println("\nUse 'tradeimport import <file>' to queue files")
		return
	}

	if q.IsPaused {
		fmt.Println(color.YellowString("⏸  Queue is paused"))
		fmt.Println()
	}

	if cur := q.Current(); cur != nil {
		fmt.Printf("%s Uploading %s, chunk %d of %d\n\n", color.CyanString("▶"), cur.FileName, cur.NextChunk+1, cur.TotalChunks)
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "File", "Target", "Status", "Progress", "Records", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 40},
	})

	for _, it := range q.Items {
		target := "-"
		if it.MatchedRecord != nil {
			target = it.MatchedRecord.FileName
		}
		t.AppendRow(table.Row{
			shortID(it.ID),
			it.FileName,
			target,
			statusColor(it.Status),
			fmt.Sprintf("%d%%", it.Progress),
			fmt.Sprintf("%d/%d", it.UploadedRecords, it.TotalRecords),
			it.Error,
		})
	}

	stats := q.Stats()
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d file(s)", stats.Total), "",
		fmt.Sprintf("%d ok / %d failed", stats.Success, stats.Failed)})

	fmt.Println(t.Render())
}

func showItem(it *queue.FileQueueItem) {
	fmt.Printf("%s File: %s\n", color.GreenString("▶"), color.CyanString(it.FileName))
	fmt.Println(strings.Repeat("─", 50))

	info := [][]string{
		{"ID", it.ID},
		{"Status", statusColor(it.Status)},
		{"Size", progress.FormatBytes(it.FileSize)},
		{"Session", it.SessionID},
		{"Chunks", fmt.Sprintf("%d/%d (size %d)", it.NextChunk, it.TotalChunks, it.ChunkSize)},
	}
	if it.MatchedRecord != nil {
		info = append(info, []string{"Target", fmt.Sprintf("%s (%s)", it.MatchedRecord.FileName, it.MatchedRecord.FileType)})
	}
	if it.StartTime != nil {
		info = append(info, []string{"Started", it.StartTime.Format("Jan 2, 2006 3:04:05 PM")})
	}
	if it.EndTime != nil {
		info = append(info, []string{"Finished", it.EndTime.Format("Jan 2, 2006 3:04:05 PM")})
	}
	if it.Error != "" {
		info = append(info, []string{"Error", color.RedString(it.Error)})
	}
	for _, row := range info {
		fmt.Printf("  %-10s %s\n", row[0]+":", row[1])
	}

	if it.TotalRecords > 0 {
		fmt.Println()
		bar := progressbar.NewOptions64(
			int64(it.TotalRecords),
			progressbar.OptionSetDescription("  Records"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		_ = bar.Set64(int64(it.UploadedRecords))
		fmt.Print("\n")
	}

	if len(it.FailedChunks) > 0 {
		fmt.Println()
		fmt.Println(color.YellowString("Failed chunks:"))
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Chunk", "First Row", "Records", "Retries", "Error"})
		for _, fc := range it.FailedChunks {
			t.AppendRow(table.Row{fc.ChunkIndex, fc.StartIndex, fc.Records(), fc.RetryCount, fc.Error})
		}
		fmt.Println(t.Render())
		fmt.Printf("\nUse 'tradeimport export failed %s' to save the failed rows\n", shortID(it.ID))
	}
}

// showFailureLog prints the chunk failure journal of an item, which keeps
// the failures of earlier attempts that a retry cleared from the queue.
func showFailureLog(failures []*state.ChunkFailure, inSession int) {
	if len(failures) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("%s %d logged, %d in the current attempt\n",
		color.YellowString("Failure log:"), len(failures), inSession)

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Chunk", "First Row", "Records", "Retries", "Logged", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, WidthMax: 40},
	})
	for _, f := range failures {
		t.AppendRow(table.Row{
			f.ChunkIndex,
			f.StartIndex,
			f.Records,
			f.RetryCount,
			f.CreatedAt.Local().Format("Jan 2 15:04:05"),
			state.NullStringValue(f.ErrorMessage),
		})
	}
	fmt.Println(t.Render())
}

func statusColor(s queue.Status) string {
	switch s {
	case queue.StatusSuccess:
		return color.GreenString(string(s))
	case queue.StatusFailed:
		return color.RedString(string(s))
	case queue.StatusUploading:
		return color.CyanString(string(s))
	case queue.StatusPaused, queue.StatusNoMatch, queue.StatusDisabled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
