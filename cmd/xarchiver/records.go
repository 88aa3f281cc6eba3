package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xarchiver/pkg/ledgersync"
	"xarchiver/pkg/records"
	"xarchiver/pkg/report"
	"xarchiver/pkg/ui"
)

var (
	exportStatus  string
	clearFailures bool
)

// recordsCmd represents the records command
var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and maintain the download ledger",
	Long: `Inspect and maintain the CSV ledger of archived URLs.

The ledger lives in the output directory (records.csv by default). A URL
marked success is never downgraded by a later failure.`,
}

var recordsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild ledger rows from archived folders and the failures file",
	Long: `Scan every folder in the output directory for meta.json and record it in
the ledger with source sync_scan, then import the entries of failures.json
with source sync_failures.`,
	Args: cobra.NoArgs,
	RunE: runRecordsSync,
}

var recordsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger counts by status",
	Args:  cobra.NoArgs,
	RunE:  runRecordsStats,
}

var recordsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export ledger rows as CSV",
	Example: `  # Every failed URL, ready to feed back to download
  xarchiver records export --status failed failed.csv

  # Everything to stdout
  xarchiver records export`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecordsExport,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsSyncCmd, recordsStatsCmd, recordsExportCmd)

	recordsCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory holding the ledger")
	recordsSyncCmd.Flags().BoolVar(&clearFailures, "clear-failures", false, "delete the failures file once imported")
	recordsExportCmd.Flags().StringVar(&exportStatus, "status", "", "only export rows with this status (success, failed, pending)")
}

func outputFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	return flags
}

func openLedger() (*records.Store, error) {
	cfg, log, err := loadConfig(outputFlags())
	if err != nil {
		return nil, err
	}
	return records.Open(cfg.RecordsPath(), records.WithLogger(log))
}

func runRecordsSync(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(outputFlags())
	if err != nil {
		return err
	}
	store, err := records.Open(cfg.RecordsPath(), records.WithLogger(log))
	if err != nil {
		return err
	}

	res, err := ledgersync.Sync(store, cfg.Output.BaseDirectory, cfg.FailuresPath(), log)
	if err != nil {
		return err
	}

	ui.PrintSuccess("Ledger synchronized: " + store.Path())
	ui.PrintInfo("Folders imported", fmt.Sprint(res.Folders))
	ui.PrintInfo("Failures imported", fmt.Sprint(res.Failures))
	if res.Skipped > 0 {
		ui.PrintWarning("Folders skipped", res.Skipped)
	}
	if res.Errors > 0 {
		return fmt.Errorf("%d rows could not be written", res.Errors)
	}
	if clearFailures {
		if err := report.Delete(cfg.FailuresPath()); err != nil {
			return err
		}
		ui.PrintInfo("Removed", cfg.FailuresPath())
	}
	return nil
}

func runRecordsStats(cmd *cobra.Command, args []string) error {
	store, err := openLedger()
	if err != nil {
		return err
	}

	st := store.Stats()
	ui.PrintHighlight("Ledger: " + store.Path())
	ui.PrintInfo("Total", fmt.Sprint(st.Total))
	ui.PrintInfo("Success", fmt.Sprint(st.Success))
	ui.PrintInfo("Failed", fmt.Sprint(st.Failed))
	ui.PrintInfo("Pending", fmt.Sprint(st.Pending))
	return nil
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	status := records.Status(exportStatus)
	switch status {
	case "", records.StatusSuccess, records.StatusFailed, records.StatusPending:
	default:
		return fmt.Errorf("unknown status %q", exportStatus)
	}

	store, err := openLedger()
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if len(args) == 1 {
		file, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer file.Close()
		out = file
	}

	n, err := store.Export(out, status)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		ui.PrintSuccess(fmt.Sprintf("Exported %d rows to %s", n, args[0]))
	}
	return nil
}
