package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/kpi-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteUploadsMigration = `
CREATE TABLE IF NOT EXISTS kpi_uploads (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_in      INTEGER NOT NULL DEFAULT 0,
	rows_stored  INTEGER NOT NULL DEFAULT 0,
	valid        INTEGER NOT NULL DEFAULT 0,
	issues       TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_kpi_uploads_started_at ON kpi_uploads(started_at);
`

const sqliteRecordsMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sector       TEXT,
	vessel       TEXT,
	year         INTEGER,
	month        TEXT,
	total_income REAL NOT NULL DEFAULT 0,
	doe          REAL NOT NULL DEFAULT 0,
	ioe          REAL NOT NULL DEFAULT 0,
	pbt          REAL NOT NULL DEFAULT 0,
	gop          REAL NOT NULL DEFAULT 0,
	extra        TEXT,
	loaded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_year ON %[1]s(year);
`

// Migrate creates the upload log and each named record table.
func (s *SQLiteStore) Migrate(ctx context.Context, tables ...string) error {
	if _, err := s.db.ExecContext(ctx, sqliteUploadsMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate uploads")
	}
	for _, table := range tables {
		if err := validateTable("migrate", table, false); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteRecordsMigration, table)); err != nil {
			return &StorageError{Op: "migrate", Table: table, Err: err}
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendRecords inserts recs in a single transaction.
func (s *SQLiteStore) AppendRecords(ctx context.Context, table string, recs []model.Record) (int64, error) {
	if err := validateTable("append", table, false); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &StorageError{Op: "append", Table: table, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`, table, strings.Join(recordColumns, ", "), placeholders))
	if err != nil {
		return 0, &StorageError{Op: "append", Table: table, Err: err}
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for i, r := range recs {
		vals, err := recordValues(r, now)
		if err != nil {
			return 0, &StorageError{Op: "append", Table: table, Err: err}
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return 0, &StorageError{Op: "append", Table: table, Err: eris.Wrapf(err, "row %d", i)}
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, &StorageError{Op: "append", Table: table, Err: err}
	}
	return n, nil
}

// QueryAll returns every record in table in load order.
func (s *SQLiteStore) QueryAll(ctx context.Context, table string) ([]model.Record, error) {
	if err := validateTable("query", table, false); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT sector, vessel, year, month, total_income, doe, ioe, pbt, gop, extra FROM %s ORDER BY id`, table))
	if err != nil {
		return nil, &StorageError{Op: "query", Table: table, Err: err}
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Record
	for rows.Next() {
		var (
			r                     model.Record
			sector, vessel, month sql.NullString
			year                  sql.NullInt64
			extra                 sql.NullString
		)
		if err := rows.Scan(&sector, &vessel, &year, &month,
			&r.TotalIncome, &r.DOE, &r.IOE, &r.PBT, &r.GOP, &extra); err != nil {
			return nil, &StorageError{Op: "query", Table: table, Err: err}
		}
		r.Sector = fromNullString(sector)
		r.Vessel = fromNullString(vessel)
		r.Month = fromNullString(month)
		if year.Valid {
			r.Year = model.Ptr(int(year.Int64))
		}
		if extra.Valid {
			if r.Extra, err = decodeExtra([]byte(extra.String)); err != nil {
				return nil, &StorageError{Op: "query", Table: table, Err: err}
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Table: table, Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) CreateUpload(ctx context.Context, filename string) (*model.Upload, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kpi_uploads (id, filename, status, started_at) VALUES (?, ?, ?, ?)`,
		id, filename, string(model.UploadStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert upload")
	}

	return &model.Upload{
		ID:        id,
		Filename:  filename,
		Status:    model.UploadStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteUpload(ctx context.Context, id string, result model.UploadResult) error {
	issues, err := encodeIssues(result.Issues)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete upload")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE kpi_uploads SET status = ?, rows_in = ?, rows_stored = ?, valid = ?, issues = ?, completed_at = ? WHERE id = ?`,
		string(model.UploadStatusComplete), result.RowsIn, result.RowsStored, result.Valid, issues, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete upload %s", id)
	}
	return checkRowsAffected(res, "upload", id)
}

func (s *SQLiteStore) FailUpload(ctx context.Context, id string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kpi_uploads SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.UploadStatusFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail upload %s", id)
	}
	return checkRowsAffected(res, "upload", id)
}

// ListUploads returns the most recent uploads first.
func (s *SQLiteStore) ListUploads(ctx context.Context, limit int) ([]model.Upload, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, status, rows_in, rows_stored, valid, issues, error, started_at, completed_at
		 FROM kpi_uploads ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list uploads")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list uploads")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUpload(row scannable) (*model.Upload, error) {
	var (
		u           model.Upload
		status      string
		issues      sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Filename, &status, &u.RowsIn, &u.RowsStored, &u.Valid,
		&issues, &errMsg, &u.StartedAt, &completedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan upload")
	}

	u.Status = model.UploadStatus(status)
	u.Error = errMsg.String
	if completedAt.Valid {
		u.CompletedAt = model.Ptr(completedAt.Time)
	}
	if issues.Valid {
		if u.Issues, err = decodeIssues([]byte(issues.String)); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan upload")
		}
	}
	return &u, nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return model.Ptr(ns.String)
}
