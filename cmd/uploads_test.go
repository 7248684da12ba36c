package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/kpi-cli/internal/model"
)

func TestFormatUploads(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	done := started.Add(1500 * time.Millisecond)
	uploads := []model.Upload{
		{ID: "u1", Filename: "a.csv", Status: model.UploadStatusComplete, RowsIn: 5, RowsStored: 4,
			Valid: false, Issues: []string{"found 1 duplicate rows"}, StartedAt: started, CompletedAt: &done},
		{ID: "u2", Filename: "b.csv", Status: model.UploadStatusFailed, Error: "malformed input", StartedAt: started, CompletedAt: &done},
		{ID: "u3", Filename: "c.csv", Status: model.UploadStatusRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	formatUploads(&buf, uploads)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "found 1 duplicate rows")
	assert.Contains(t, out, "malformed input")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "2024-05-01T10:00:00Z")
	assert.Contains(t, out, "running")
}
