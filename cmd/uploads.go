package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/kpi-cli/internal/model"
)

var uploadsLimit int

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List the upload log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		uploads, err := st.ListUploads(ctx, uploadsLimit)
		if err != nil {
			return eris.Wrap(err, "uploads list")
		}
		if len(uploads) == 0 {
			fmt.Fprintln(os.Stderr, "No uploads found.")
			return nil
		}

		formatUploads(os.Stdout, uploads)
		return nil
	},
}

func init() {
	uploadsCmd.Flags().IntVar(&uploadsLimit, "limit", 50, "max number of uploads to display")
	rootCmd.AddCommand(uploadsCmd)
}

// formatUploads writes a tabular upload log to out.
func formatUploads(out io.Writer, uploads []model.Upload) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFILE\tSTATUS\tROWS_IN\tSTORED\tVALID\tSTARTED\tDURATION\tDETAIL")
	for _, u := range uploads {
		dur := "-"
		if u.CompletedAt != nil {
			dur = u.CompletedAt.Sub(u.StartedAt).Truncate(time.Millisecond).String()
		}
		detail := u.Error
		if detail == "" {
			detail = strings.Join(u.Issues, "; ")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%t\t%s\t%s\t%s\n",
			u.ID, u.Filename, u.Status, u.RowsIn, u.RowsStored, u.Valid,
			u.StartedAt.Format(time.RFC3339), dur, detail)
	}
	_ = w.Flush()
}
