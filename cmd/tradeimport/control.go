package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vishalSecmark/tradewebx-sub002/internal/app"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/pkg/progress"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the import queue",
	Long: `Stop dispatching chunks. The active file, if any, finishes its
in-flight chunk and is marked paused. To pause an import running in a
'serve' process use POST /api/queue/pause instead.`,
	Args: cobra.NoArgs,
	RunE: runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the import queue",
	Long: `Clear the pause flag and continue uploading.

Paused files resume from the first chunk not yet sent. Files paused by an
earlier run no longer hold their content; they are re-opened from --dir
by name before the queue resumes.`,
	Example: `  # Resume, re-opening paused files from the current directory
  tradeimport resume

  # Re-open paused files from another directory
  tradeimport resume --dir ~/exports`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

var retryCmd = &cobra.Command{
	Use:   "retry <item-id>",
	Short: "Re-upload a failed or paused file from the start",
	Example: `  # Retry a file that was imported in this session
  tradeimport retry 5f1c2a

  # Retry a file after a restart
  tradeimport retry 5f1c2a --file ./clients.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

var removeCmd = &cobra.Command{
	Use:   "remove <item-id>",
	Short: "Remove a file from the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove finished files from the queue",
	Long: `Remove successfully imported files from the queue. With --all the
whole queue is emptied and any active upload is cancelled.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

var (
	resumeDir string
	retryFile string
	forceFlag bool
	clearAll  bool
)

func init() {
	resumeCmd.Flags().StringVar(&resumeDir, "dir", ".",
		"Directory to re-open paused files from")
	retryCmd.Flags().StringVar(&retryFile, "file", "",
		"Path of the file to re-attach before retrying")
	removeCmd.Flags().BoolVarP(&forceFlag, "force", "y", false,
		"Do not ask for confirmation")
	clearCmd.Flags().BoolVar(&clearAll, "all", false,
		"Remove every file and cancel the active upload")
	clearCmd.Flags().BoolVarP(&forceFlag, "force", "y", false,
		"Do not ask for confirmation")
}

// withQueue opens the application and its queue, runs fn and stops.
func withQueue(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, q *queue.Manager) error) error {
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
	return fn(ctx, a, q)
}

// resolveID expands a unique id prefix to the full item id.
func resolveID(q *queue.Manager, id string) (string, error) {
	it := findItem(q.Snapshot(), id)
	if it == nil {
		return "", fmt.Errorf("queue item not found: %s", id)
	}
	return it.ID, nil
}

func confirm(message string) bool {
	if forceFlag {
		return true
	}
	var ok bool
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false
	}
	return ok
}

func runPause(cmd *cobra.Command, args []string) error {
	return withQueue(cmd, func(ctx context.Context, a *app.App, q *queue.Manager) error {
		if err := q.Pause(ctx); err != nil {
			return err
		}
		fmt.Println(color.YellowString("⏸  Queue paused"))
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	return withQueue(cmd, func(ctx context.Context, a *app.App, q *queue.Manager) error {
		fmt.Println(color.CyanString("🔄 TradeImport Resume"))
		fmt.Println()

		for _, it := range q.Snapshot().Items {
			if it.Status != queue.StatusPaused || it.HasFile() {
				continue
			}
			path := filepath.Join(resumeDir, it.FileName)
			if _, err := os.Stat(path); err != nil {
				fmt.Printf("  %s %s not found in %s, use 'tradeimport retry %s --file <path>'\n",
					color.YellowString("–"), it.FileName, resumeDir, shortID(it.ID))
				continue
			}
			if err := a.Reattach(ctx, it.ID, path); err != nil {
				fmt.Printf("  %s %s: %v\n", color.RedString("✗"), it.FileName, err)
				continue
			}
			fmt.Printf("  %s %s (from chunk %d)\n", color.GreenString("✓"), it.FileName, it.NextChunk)
		}

		unsubscribe := q.Subscribe(reportEvents(progress.NewReporter(progress.ReporterConfig{})))
		defer unsubscribe()

		if err := q.Resume(ctx); err != nil {
			return err
		}
		return waitAndSummarize(ctx, a, q, progress.OutputFormatTerminal)
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	return withQueue(cmd, func(ctx context.Context, a *app.App, q *queue.Manager) error {
		id, err := resolveID(q, args[0])
		if err != nil {
			return err
		}
		if retryFile != "" {
			if err := a.Reattach(ctx, id, retryFile); err != nil {
				return err
			}
		}

		unsubscribe := q.Subscribe(reportEvents(progress.NewReporter(progress.ReporterConfig{})))
		defer unsubscribe()

		if err := q.RetryItem(ctx, id); err != nil {
			return err
		}
		return waitAndSummarize(ctx, a, q, progress.OutputFormatTerminal)
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withQueue(cmd, func(ctx context.Context, a *app.App, q *queue.Manager) error {
		id, err := resolveID(q, args[0])
		if err != nil {
			return err
		}
		it, err := q.Item(id)
		if err != nil {
			return err
		}
		if !confirm(fmt.Sprintf("Remove %s from the queue?", it.FileName)) {
			return nil
		}
		if err := q.RemoveItem(ctx, id); err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ Removed %s", it.FileName))
		return nil
	})
}

func runClear(cmd *cobra.Command, args []string) error {
	return withQueue(cmd, func(ctx context.Context, a *app.App, q *queue.Manager) error {
		if !clearAll {
			n, err := q.ClearCompleted(ctx)
			if err != nil {
				return err
			}
			fmt.Println(color.GreenString("✓ %d item(s) removed", n))
			return nil
		}

		fmt.Println(color.YellowString("⚠️  Warning: This removes every file and cancels the active upload"))
		if !confirm("Clear the whole queue?") {
			return nil
		}
		n, err := q.ClearAll(ctx)
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("✓ %d item(s) removed", n))
		return nil
	})
}
