package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vishalSecmark/tradewebx-sub002/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export failed rows and reconciliation reports",
}

var exportFailedCmd = &cobra.Command{
	Use:   "failed <item-id>",
	Short: "Write the rows of failed chunks to CSV",
	Long: `Write every row of a file's failed chunks to a CSV file with the
original headers, ready to be corrected and imported again.`,
	Example: `  tradeimport export failed 5f1c2a
  tradeimport export failed 5f1c2a -o retry_clients.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExportFailed,
}

var exportReportCmd = &cobra.Command{
	Use:   "report [item-id]",
	Short: "Write reconciliation reports to CSV or Excel",
	Long: `Write the backend's per-record results. Without an item id every
stored report is written. The format follows the output extension:
.csv writes the file's report (or one combined CSV with a FileName column
when several files are exported), .xlsx writes a Summary sheet plus one
Errors sheet covering every file.`,
	Example: `  tradeimport export report -o reports.xlsx
  tradeimport export report 5f1c2a -o clients_report.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExportReport,
}

var exportOutput string

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "",
		"Output file (default derived from the file name)")
	exportCmd.AddCommand(exportFailedCmd)
	exportCmd.AddCommand(exportReportCmd)
}

func runExportFailed(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx := cmd.Context()
	obs, err := a.Observer(ctx)
	if err != nil {
		return err
	}
	q, err := obs.Snapshot(ctx)
	if err != nil {
		return err
	}

	it := findItem(q, args[0])
	if it == nil {
		return fmt.Errorf("queue item not found: %s", args[0])
	}
	if len(it.FailedChunks) == 0 {
		fmt.Println(color.YellowString("%s has no failed chunks", it.FileName))
		return nil
	}

	out := exportOutput
	if out == "" {
		out = "failed_" + strings.TrimSuffix(it.FileName, filepath.Ext(it.FileName)) + ".csv"
	}
	if err := writeFile(out, func(w io.Writer) error {
		return report.WriteFailedChunksCSV(w, it.Headers, it.FailedChunks)
	}); err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓ Wrote %d failed record(s) to %s", it.FailedRecords(), out))
	return nil
}

func runExportReport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Stop()

	ctx := cmd.Context()
	var reports []report.FileReport
	if len(args) > 0 {
		id := args[0]
		if obs, err := a.Observer(ctx); err == nil {
			if q, err := obs.Snapshot(ctx); err == nil {
				if it := findItem(q, id); it != nil {
					id = it.ID
				}
			}
		}
		stored, err := a.State().GetReport(ctx, id)
		if err != nil {
			return err
		}
		reports = []report.FileReport{report.FromStored(stored)}
	} else {
		stored, err := a.State().ListReports(ctx)
		if err != nil {
			return err
		}
		reports = report.FromStoredList(stored)
	}

	if len(reports) == 0 {
		fmt.Println(color.YellowString("No reports found."))
		return nil
	}

	out := exportOutput
	if out == "" {
		out = "import_report.csv"
		if len(reports) == 1 {
			out = strings.TrimSuffix(reports[0].FileName, filepath.Ext(reports[0].FileName)) + "_report.csv"
		}
	}

	write, err := reportWriter(filepath.Ext(out), reports, len(args) > 0)
	if err != nil {
		return err
	}
	if err := writeFile(out, write); err != nil {
		return err
	}

	for _, r := range reports {
		fmt.Printf("  %s\n", r.Summary())
	}
	fmt.Println(color.GreenString("✓ Wrote %d report(s) to %s", len(reports), out))
	return nil
}

// reportWriter picks the export for an output extension. A single item
// exported to CSV uses the per-file layout.
func reportWriter(ext string, reports []report.FileReport, single bool) (func(io.Writer) error, error) {
	switch strings.ToLower(ext) {
	case ".xlsx":
		return func(w io.Writer) error { return report.WriteXLSX(w, reports) }, nil
	case ".csv":
		if single && len(reports) == 1 {
			return func(w io.Writer) error { return report.WriteFileCSV(w, reports[0]) }, nil
		}
		return func(w io.Writer) error { return report.WriteCombinedCSV(w, reports) }, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q, use .csv or .xlsx", ext)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
