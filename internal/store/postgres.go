package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/db"
	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	retry   resilience.RetryConfig
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool, pool.Close), nil
}

func newPostgresWithPool(pool db.Pool, closeFn func()) *PostgresStore {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("postgres: append records")
	return &PostgresStore{pool: pool, closeFn: closeFn, retry: cfg}
}

// migrationLockID keys the advisory lock held while migrating.
const migrationLockID int64 = 0x6b7069

const postgresUploadsMigration = `
CREATE TABLE IF NOT EXISTS kpi_uploads (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	rows_in      INTEGER NOT NULL DEFAULT 0,
	rows_stored  BIGINT NOT NULL DEFAULT 0,
	valid        BOOLEAN NOT NULL DEFAULT false,
	issues       JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_kpi_uploads_started_at ON kpi_uploads(started_at DESC);
`

const postgresRecordsMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id           BIGSERIAL PRIMARY KEY,
	sector       TEXT,
	vessel       TEXT,
	year         INTEGER,
	month        TEXT,
	total_income DOUBLE PRECISION NOT NULL DEFAULT 0,
	doe          DOUBLE PRECISION NOT NULL DEFAULT 0,
	ioe          DOUBLE PRECISION NOT NULL DEFAULT 0,
	pbt          DOUBLE PRECISION NOT NULL DEFAULT 0,
	gop          DOUBLE PRECISION NOT NULL DEFAULT 0,
	extra        JSONB,
	loaded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the upload log and each named record table.
func (s *PostgresStore) Migrate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if err := validateTable("migrate", table, true); err != nil {
			return err
		}
	}

	// Serializes concurrent migrations from overlapping deploys.
	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			zap.L().Warn("postgres: failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, postgresUploadsMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate uploads")
	}
	for _, table := range tables {
		ddl := fmt.Sprintf(postgresRecordsMigration, db.Identifier(table).Sanitize())
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return &StorageError{Op: "migrate", Table: table, Err: err}
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// AppendRecords bulk-loads recs with COPY, retrying transient failures.
// COPY is all-or-nothing, so a retry never duplicates rows.
func (s *PostgresStore) AppendRecords(ctx context.Context, table string, recs []model.Record) (int64, error) {
	if err := validateTable("append", table, true); err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		vals, err := recordValues(r, now)
		if err != nil {
			return 0, &StorageError{Op: "append", Table: table, Err: err}
		}
		rows = append(rows, vals)
	}

	n, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return db.CopyFrom(ctx, s.pool, table, recordColumns, rows)
	})
	if err != nil {
		return 0, &StorageError{Op: "append", Table: table, Err: err}
	}

	zap.L().Debug("postgres: appended records",
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return n, nil
}

// QueryAll returns every record in table in load order.
func (s *PostgresStore) QueryAll(ctx context.Context, table string) ([]model.Record, error) {
	if err := validateTable("query", table, true); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT sector, vessel, year, month, total_income, doe, ioe, pbt, gop, extra FROM %s ORDER BY id`,
		db.Identifier(table).Sanitize())
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, &StorageError{Op: "query", Table: table, Err: err}
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			r     model.Record
			year  *int32
			extra []byte
		)
		if err := rows.Scan(&r.Sector, &r.Vessel, &year, &r.Month,
			&r.TotalIncome, &r.DOE, &r.IOE, &r.PBT, &r.GOP, &extra); err != nil {
			return nil, &StorageError{Op: "query", Table: table, Err: err}
		}
		if year != nil {
			r.Year = model.Ptr(int(*year))
		}
		if r.Extra, err = decodeExtra(extra); err != nil {
			return nil, &StorageError{Op: "query", Table: table, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "query", Table: table, Err: err}
	}
	return out, nil
}

func (s *PostgresStore) CreateUpload(ctx context.Context, filename string) (*model.Upload, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO kpi_uploads (id, filename, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, filename, string(model.UploadStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert upload")
	}

	return &model.Upload{
		ID:        id,
		Filename:  filename,
		Status:    model.UploadStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteUpload(ctx context.Context, id string, result model.UploadResult) error {
	issues, err := encodeIssues(result.Issues)
	if err != nil {
		return eris.Wrap(err, "postgres: complete upload")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE kpi_uploads SET status = $1, rows_in = $2, rows_stored = $3, valid = $4, issues = $5, completed_at = $6 WHERE id = $7`,
		string(model.UploadStatusComplete), result.RowsIn, result.RowsStored, result.Valid, issues, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete upload %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("upload not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailUpload(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE kpi_uploads SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.UploadStatusFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail upload %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("upload not found: %s", id)
	}
	return nil
}

// ListUploads returns the most recent uploads first.
func (s *PostgresStore) ListUploads(ctx context.Context, limit int) ([]model.Upload, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, status, rows_in, rows_stored, valid, issues, error, started_at, completed_at
		 FROM kpi_uploads ORDER BY started_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list uploads")
	}
	defer rows.Close()

	var out []model.Upload
	for rows.Next() {
		var (
			u      model.Upload
			status string
			issues []byte
			errMsg *string
		)
		if err := rows.Scan(&u.ID, &u.Filename, &status, &u.RowsIn, &u.RowsStored, &u.Valid,
			&issues, &errMsg, &u.StartedAt, &u.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload")
		}
		u.Status = model.UploadStatus(status)
		u.Error = model.StringOrEmpty(errMsg)
		if u.Issues, err = decodeIssues(issues); err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list uploads")
}
