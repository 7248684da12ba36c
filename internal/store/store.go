// Package store persists normalized KPI records and the upload log.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-cli/internal/model"
)

// UploadsTable is the upload log table.
const UploadsTable = "kpi_uploads"

// Store defines the persistence interface for ingested KPI data.
type Store interface {
	// Records
	AppendRecords(ctx context.Context, table string, recs []model.Record) (int64, error)
	QueryAll(ctx context.Context, table string) ([]model.Record, error)

	// Upload log
	CreateUpload(ctx context.Context, filename string) (*model.Upload, error)
	CompleteUpload(ctx context.Context, id string, result model.UploadResult) error
	FailUpload(ctx context.Context, id string, errMsg string) error
	ListUploads(ctx context.Context, limit int) ([]model.Upload, error)

	// Lifecycle
	Migrate(ctx context.Context, tables ...string) error
	Close() error
}

// StorageError reports a failed store operation against a table.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

var (
	tableNameRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	qualifiedNameRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*$`)
)

func validateTable(op, table string, allowSchema bool) error {
	re := tableNameRe
	if allowSchema {
		re = qualifiedNameRe
	}
	if !re.MatchString(table) {
		return &StorageError{Op: op, Table: table, Err: eris.New("invalid table name")}
	}
	return nil
}

// recordColumns is the column order used for inserts and selects.
var recordColumns = []string{
	"sector", "vessel", "year", "month",
	"total_income", "doe", "ioe", "pbt", "gop",
	"extra", "loaded_at",
}

// recordValues flattens a record into recordColumns order.
func recordValues(r model.Record, loadedAt time.Time) ([]any, error) {
	var extra any
	if len(r.Extra) > 0 {
		b, err := json.Marshal(r.Extra)
		if err != nil {
			return nil, eris.Wrap(err, "marshal extra")
		}
		extra = string(b)
	}
	var year any
	if r.Year != nil {
		year = int64(*r.Year)
	}
	return []any{
		nullString(r.Sector), nullString(r.Vessel), year, nullString(r.Month),
		r.TotalIncome, r.DOE, r.IOE, r.PBT, r.GOP,
		extra, loadedAt,
	}, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func decodeExtra(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "unmarshal extra")
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func encodeIssues(issues []string) (string, error) {
	if issues == nil {
		issues = []string{}
	}
	b, err := json.Marshal(issues)
	if err != nil {
		return "", eris.Wrap(err, "marshal issues")
	}
	return string(b), nil
}

func decodeIssues(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var issues []string
	if err := json.Unmarshal(raw, &issues); err != nil {
		return nil, eris.Wrap(err, "unmarshal issues")
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return issues, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 50
	}
	return limit
}
