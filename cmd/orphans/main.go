// Command orphans reports disagreements between the catalog tables and the
// storage tree. It only reads; fixing anything is left to the operator.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"portfolio/internal/app"
	"portfolio/internal/config"
	"portfolio/internal/database"
	"portfolio/internal/domain/upload"
	"portfolio/internal/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile    string
		asJSON     bool
		failOnFind bool
	)

	cmd := &cobra.Command{
		Use:          "orphans",
		Short:        "Report catalog rows without files and files without catalog rows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}

			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			db, err := database.Connect(cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			store, err := upload.NewDiskStore(cfg.StorageRoot)
			if err != nil {
				return err
			}

			report, err := app.NewService(cfg, db, store, log).Audit(cmd.Context())
			if err != nil {
				return err
			}

			if err := printReport(cmd, report, asJSON); err != nil {
				return err
			}
			if failOnFind && !report.Clean() {
				return fmt.Errorf("found %d missing and %d untracked files",
					len(report.MissingFiles), len(report.UntrackedFiles))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "load environment from this file first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&failOnFind, "fail", false, "exit non-zero when orphans are found")
	return cmd
}

func printReport(cmd *cobra.Command, report *upload.AuditReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "catalog rows: %d, files on disk: %d\n", report.Rows, report.Files)
	for _, m := range report.MissingFiles {
		fmt.Fprintf(out, "missing file  %s/%s  %s\n", m.Table, m.ID, m.Path)
	}
	for _, p := range report.UntrackedFiles {
		fmt.Fprintf(out, "untracked     %s\n", p)
	}
	if report.Clean() {
		fmt.Fprintln(out, "no orphans found")
	}
	return nil
}
