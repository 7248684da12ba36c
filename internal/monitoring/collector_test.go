package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kpi-cli/internal/model"
)

// mockUploads implements UploadLister for testing.
type mockUploads struct {
	uploads []model.Upload
	err     error
}

func (m *mockUploads) ListUploads(_ context.Context, _ int) ([]model.Upload, error) {
	return m.uploads, m.err
}

func TestCollector_EmptyLog(t *testing.T) {
	c := NewCollector(&mockUploads{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Total)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_UploadMetrics(t *testing.T) {
	now := time.Now().UTC()
	c := NewCollector(&mockUploads{uploads: []model.Upload{
		{ID: "1", Status: model.UploadStatusComplete, Valid: true, RowsIn: 10, RowsStored: 9, StartedAt: now.Add(-time.Hour)},
		{ID: "2", Status: model.UploadStatusComplete, Valid: false, RowsIn: 5, RowsStored: 5, StartedAt: now.Add(-2 * time.Hour)},
		{ID: "3", Status: model.UploadStatusFailed, StartedAt: now.Add(-3 * time.Hour)},
		{ID: "4", Status: model.UploadStatusRunning, StartedAt: now.Add(-time.Minute)},
		// Outside the lookback window.
		{ID: "5", Status: model.UploadStatusFailed, StartedAt: now.Add(-48 * time.Hour)},
	}})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 2, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Running)
	assert.Equal(t, 1, snap.InvalidUploads)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 1e-9)
	assert.Equal(t, 15, snap.RowsIn)
	assert.Equal(t, int64(14), snap.RowsStored)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockUploads{err: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list uploads")
}
