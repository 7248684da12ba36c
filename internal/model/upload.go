package model

import "time"

// UploadStatus represents the state of a file ingest run.
type UploadStatus string

const (
	UploadStatusRunning  UploadStatus = "running"
	UploadStatusComplete UploadStatus = "complete"
	UploadStatusFailed   UploadStatus = "failed"
)

// Upload is one entry of the upload log.
type Upload struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	Status      UploadStatus `json:"status"`
	RowsIn      int          `json:"rows_in"`
	RowsStored  int64        `json:"rows_stored"`
	Valid       bool         `json:"valid"`
	Issues      []string     `json:"issues,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// UploadResult holds the outcome passed to CompleteUpload.
type UploadResult struct {
	RowsIn     int      `json:"rows_in"`
	RowsStored int64    `json:"rows_stored"`
	Valid      bool     `json:"valid"`
	Issues     []string `json:"issues,omitempty"`
}
