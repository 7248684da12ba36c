package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/kpi-cli/internal/fetcher"
	"github.com/sells-group/kpi-cli/internal/loader"
	"github.com/sells-group/kpi-cli/internal/source"
)

var (
	ingestTable       string
	ingestDryRun      bool
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE|URL...",
	Short: "Normalize, validate and store KPI files",
	Long: "Loads CSV and XLSX exports into the record table. Arguments may be local paths, " +
		"http(s) or ftp URLs, or .zip archives whose csv and xlsx members are ingested.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if ingestConcurrency > 0 {
			cfg.Ingest.Concurrency = ingestConcurrency
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		table := tableFlag(ingestTable)

		ld := &loader.Loader{Table: table, DryRun: ingestDryRun}
		if !ingestDryRun {
			st, err := initStore(ctx, table)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			ld.Store = st
		}

		tmp, err := os.MkdirTemp("", "kpi-ingest-*")
		if err != nil {
			return eris.Wrap(err, "ingest: create temp dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck

		f := fetcher.New(fetcher.Options{
			Timeout:     time.Duration(cfg.Ingest.FetchTimeoutSecs) * time.Second,
			MaxAttempts: cfg.Ingest.FetchAttempts,
		})
		paths, unresolved := resolveInputs(ctx, f, args, tmp)

		outcomes := append(ingestFiles(ctx, ld, paths, cfg.Ingest.Concurrency), unresolved...)
		formatIngestResults(os.Stdout, outcomes)
		return ingestError(outcomes)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTable, "table", "", "record table (default from config)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "normalize and validate without storing")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "files processed in parallel (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

// ingestOutcome is the result of one file.
type ingestOutcome struct {
	Path   string
	Result *loader.Result
	Err    error
}

// resolveInputs turns arguments into local file paths: URLs are downloaded
// and ZIP archives extracted under tmp. Arguments that cannot be resolved
// come back as failed outcomes.
func resolveInputs(ctx context.Context, f fetcher.Fetcher, args []string, tmp string) ([]string, []ingestOutcome) {
	var (
		paths  []string
		failed []ingestOutcome
	)
	for i, arg := range args {
		dir := filepath.Join(tmp, strconv.Itoa(i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			failed = append(failed, ingestOutcome{Path: arg, Err: eris.Wrap(err, "ingest: create temp dir")})
			continue
		}

		local := arg
		if fetcher.IsRemote(arg) {
			p, err := fetcher.DownloadToDir(ctx, f, arg, dir)
			if err != nil {
				zap.L().Error("ingest: download failed", zap.String("url", arg), zap.Error(err))
				failed = append(failed, ingestOutcome{Path: arg, Err: err})
				continue
			}
			local = p
		}

		if fetcher.IsArchive(local) {
			members, err := fetcher.ExtractExports(local, filepath.Join(dir, "unzipped"))
			if err != nil {
				zap.L().Error("ingest: extract failed", zap.String("archive", arg), zap.Error(err))
				failed = append(failed, ingestOutcome{Path: arg, Err: err})
				continue
			}
			paths = append(paths, members...)
			continue
		}
		paths = append(paths, local)
	}
	return paths, failed
}

// ingestFiles runs the loader over paths with at most concurrency files in
// flight. A failed file does not stop the others. Outcomes keep the order of
// paths.
func ingestFiles(ctx context.Context, ld *loader.Loader, paths []string, concurrency int) []ingestOutcome {
	outcomes := make([]ingestOutcome, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, path := range paths {
		g.Go(func() error {
			out := ingestOutcome{Path: path}
			src, err := source.Open(path)
			if err == nil {
				out.Result, err = ld.Run(gctx, src)
			}
			if err != nil {
				out.Err = err
				zap.L().Error("ingest failed", zap.String("path", path), zap.Error(err))
			}

			outcomes[i] = out
			return nil // keep going on individual failure
		})
	}
	_ = g.Wait()

	return outcomes
}

// ingestError summarizes failed files, or returns nil when every file loaded.
func ingestError(outcomes []ingestOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return eris.Errorf("ingest: %d of %d files failed", failed, len(outcomes))
}

func formatIngestResults(out io.Writer, outcomes []ingestOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tUPLOAD\tROWS_IN\tROWS_OUT\tSTORED\tVALID\tERROR")
	for _, o := range outcomes {
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s\n", o.Path, o.Err.Error())
			continue
		}
		r := o.Result
		upload := r.UploadID
		if upload == "" {
			upload = "(dry run)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%t\t\n",
			o.Path, upload, r.RowsIn, r.RowsOut, r.RowsStored, r.Report.Passed)
	}
	_ = w.Flush()
}
