/**
 * Progress Reporter
 * Renders per-file import progress for the terminal
 *
 * Features:
 * - Terminal output with progress bars
 * - JSON lines for programmatic consumption
 * - Quiet mode for minimal output
 * - Human-readable formatting
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-12: Initial implementation
 */

package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// OutputFormat defines the output format for progress reporting.
type OutputFormat string

const (
	OutputFormatTerminal OutputFormat = "terminal"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatQuiet    OutputFormat = "quiet"
)

// ReporterConfig configures a progress reporter.
type ReporterConfig struct {
	Format OutputFormat
	Output io.Writer
}

// Reporter renders progress for one file at a time.
type Reporter struct {
	format      OutputFormat
	output      io.Writer
	progressBar *progressbar.ProgressBar
	current     string
	mu          sync.Mutex
}

// NewReporter creates a new progress reporter.
func NewReporter(config ReporterConfig) *Reporter {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Format == "" {
		config.Format = OutputFormatTerminal
	}

	return &Reporter{
		format: config.Format,
		output: config.Output,
	}
}

// Update reports progress for fileName.
func (r *Reporter) Update(fileName string, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.format {
	case OutputFormatTerminal:
		r.updateBar(fileName, snap)
	case OutputFormatJSON:
		r.writeJSON(fileName, snap, "")
	}
}

// Finish closes the bar for fileName and prints its outcome.
func (r *Reporter) Finish(fileName, status, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.format {
	case OutputFormatTerminal:
		if r.progressBar != nil && r.current == fileName {
			_ = r.progressBar.Finish()
			r.progressBar = nil
			r.current = ""
		}
		if message != "" {
			fmt.Fprintf(r.output, "%s: %s (%s)\n", fileName, status, message)
		} else {
			fmt.Fprintf(r.output, "%s: %s\n", fileName, status)
		}
	case OutputFormatJSON:
		r.writeJSON(fileName, Snapshot{}, status)
	case OutputFormatQuiet:
		if message != "" {
			fmt.Fprintf(r.output, "%s\t%s\t%s\n", fileName, status, message)
		}
	}
}

func (r *Reporter) updateBar(fileName string, snap Snapshot) {
	if r.progressBar == nil || r.current != fileName {
		if r.progressBar != nil {
			_ = r.progressBar.Finish()
		}
		r.current = fileName
		r.progressBar = progressbar.NewOptions64(
			max64(snap.Total, 1),
			progressbar.OptionSetWriter(r.output),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", fileName)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rec"),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(r.output, "\n")
			}),
		)
	}

	if snap.Total > 0 {
		r.progressBar.ChangeMax64(snap.Total)
	}
	_ = r.progressBar.Set64(snap.Processed)
	r.progressBar.Describe(fmt.Sprintf("[cyan]%s[reset] %d%% ETA %s", fileName, snap.Percentage(), snap.ETAString()))
}

type progressLine struct {
	File       string  `json:"file"`
	Status     string  `json:"status,omitempty"`
	Processed  int64   `json:"processed"`
	Total      int64   `json:"total"`
	Percentage int     `json:"percentage"`
	Speed      float64 `json:"speed"`
	ETA        string  `json:"eta"`
}

func (r *Reporter) writeJSON(fileName string, snap Snapshot, status string) {
	line := progressLine{
		File:       fileName,
		Status:     status,
		Processed:  snap.Processed,
		Total:      snap.Total,
		Percentage: snap.Percentage(),
		Speed:      snap.Speed(),
		ETA:        snap.ETAString(),
	}
	if status != "" {
		line.ETA = ""
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Fprintln(r.output, string(data))
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// FormatBytes formats bytes into human-readable format.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats duration into human-readable format.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

// FormatSpeed formats a records-per-second rate.
func FormatSpeed(perSecond float64) string {
	if perSecond <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f rec/s", perSecond)
}

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
