package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-cli/internal/model"
)

// maxUploadsScanned bounds how much of the upload log one snapshot reads.
const maxUploadsScanned = 1000

// UploadSnapshot holds a point-in-time view of ingest health.
type UploadSnapshot struct {
	Total          int     `json:"total"`
	Complete       int     `json:"complete"`
	Failed         int     `json:"failed"`
	Running        int     `json:"running"`
	InvalidUploads int     `json:"invalid_uploads"`
	FailRate       float64 `json:"fail_rate"`
	RowsIn         int     `json:"rows_in"`
	RowsStored     int64   `json:"rows_stored"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// UploadLister is the part of store.Store the collector reads.
type UploadLister interface {
	ListUploads(ctx context.Context, limit int) ([]model.Upload, error)
}

// Collector summarizes the upload log.
type Collector struct {
	uploads UploadLister
}

// NewCollector creates a new upload log collector.
func NewCollector(uploads UploadLister) *Collector {
	return &Collector{uploads: uploads}
}

// Collect summarizes uploads started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*UploadSnapshot, error) {
	now := time.Now().UTC()
	snap := &UploadSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	uploads, err := c.uploads.ListUploads(ctx, maxUploadsScanned)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list uploads")
	}

	for _, u := range uploads {
		if u.StartedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch u.Status {
		case model.UploadStatusComplete:
			snap.Complete++
			if !u.Valid {
				snap.InvalidUploads++
			}
		case model.UploadStatusFailed:
			snap.Failed++
		case model.UploadStatusRunning:
			snap.Running++
		}
		snap.RowsIn += u.RowsIn
		snap.RowsStored += u.RowsStored
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
