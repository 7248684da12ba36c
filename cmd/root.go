package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "kpi-cli",
	Short: "Financial KPI ingest and reporting",
	Long: `Reads vessel KPI exports (CSV or XLSX, local or over http/ftp), resolves
their one- or two-row headers, normalizes fiscal periods and KPI amounts, and
validates the result before appending it to Postgres or SQLite.

  ingest   load files, URLs or zip archives into the records table
  report   grouped KPI totals by year, month, quarter, sector or vessel
  uploads  list the upload log
  serve    HTTP API for uploads, records, reports and metrics
  migrate  create the records and upload log tables`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
