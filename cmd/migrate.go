package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateTables []string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the upload log and record tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		tables := migrateTables
		if len(tables) == 0 {
			tables = []string{cfg.Store.Table}
		}

		st, err := initStore(cmd.Context(), tables...)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("migrations applied",
			zap.String("driver", cfg.Store.Driver),
			zap.Strings("tables", tables),
		)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringSliceVar(&migrateTables, "table", nil, "record tables to create (default from config)")
	rootCmd.AddCommand(migrateCmd)
}
