// Package loader runs one file through ingest, validation and storage, and
// records the run in the upload log.
package loader

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/ingest"
	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/monitoring"
	"github.com/sells-group/kpi-cli/internal/source"
	"github.com/sells-group/kpi-cli/internal/store"
)

// Loader ingests sources into a record table.
type Loader struct {
	Store   store.Store
	Table   string
	DryRun  bool                // ingest and validate only; nothing is written
	Metrics *monitoring.Metrics // optional
}

// Result describes one completed run.
type Result struct {
	UploadID   string          `json:"upload_id,omitempty"`
	Source     string          `json:"source"`
	RowsIn     int             `json:"rows_in"`
	RowsOut    int             `json:"rows_out"`
	RowsStored int64           `json:"rows_stored"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Report     *ingest.Report  `json:"validation"`
	Dataset    *ingest.Dataset `json:"-"`
	Duration   time.Duration   `json:"duration_ns"`
}

// Run loads src, validates it and appends the records. Validation failures
// are recorded in the upload log but do not block storage. Errors from
// ingest are returned unchanged so callers can test ingest.IsMalformed.
func (l *Loader) Run(ctx context.Context, src source.Source) (*Result, error) {
	log := zap.L().With(zap.String("source", src.Name()), zap.String("table", l.Table))
	start := time.Now()

	var upload *model.Upload
	if !l.DryRun {
		var err error
		upload, err = l.Store.CreateUpload(ctx, src.Name())
		if err != nil {
			return nil, eris.Wrap(err, "loader: create upload")
		}
		log = log.With(zap.String("upload_id", upload.ID))
	}

	fail := func(err error) {
		l.Metrics.ObserveRun(monitoring.RunStats{
			Status:   string(model.UploadStatusFailed),
			Duration: time.Since(start),
		})
		log.Error("loader: ingest failed", zap.Error(err))
		if upload == nil {
			return
		}
		if failErr := l.Store.FailUpload(ctx, upload.ID, err.Error()); failErr != nil {
			log.Warn("loader: failed to record upload failure", zap.Error(failErr))
		}
	}

	ds, err := ingest.Load(ctx, src)
	if err != nil {
		fail(err)
		return nil, err
	}

	rep := ingest.Validate(ds)

	res := &Result{
		Source:  src.Name(),
		RowsIn:  ds.Stats.RowsIn,
		RowsOut: len(ds.Records),
		DryRun:  l.DryRun,
		Report:  rep,
		Dataset: ds,
	}

	if !l.DryRun {
		res.UploadID = upload.ID
		n, err := l.Store.AppendRecords(ctx, l.Table, ds.Records)
		if err != nil {
			fail(err)
			return nil, eris.Wrap(err, "loader: append records")
		}
		res.RowsStored = n

		if err := l.Store.CompleteUpload(ctx, upload.ID, model.UploadResult{
			RowsIn:     ds.Stats.RowsIn,
			RowsStored: n,
			Valid:      rep.Passed,
			Issues:     rep.Messages(),
		}); err != nil {
			log.Warn("loader: failed to complete upload", zap.Error(err))
		}
	}
	res.Duration = time.Since(start)

	failed := make([]string, 0, len(rep.Issues))
	for _, is := range rep.Issues {
		failed = append(failed, is.Check)
	}
	l.Metrics.ObserveRun(monitoring.RunStats{
		Status:          string(model.UploadStatusComplete),
		RowsIn:          ds.Stats.RowsIn,
		RowsStored:      res.RowsStored,
		DroppedPeriod:   ds.Stats.DroppedPeriod,
		DroppedRequired: ds.Stats.DroppedRequired,
		FailedChecks:    failed,
		Duration:        res.Duration,
	})

	log.Info("loader: ingest complete",
		zap.Int("rows_in", res.RowsIn),
		zap.Int("rows_out", res.RowsOut),
		zap.Int64("rows_stored", res.RowsStored),
		zap.Bool("valid", rep.Passed),
		zap.Bool("dry_run", l.DryRun),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
