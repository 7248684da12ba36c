package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresWithPool(mock, nil)
	s.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).
		WillReturnResult(pgconn.NewCommandTag("SELECT 1"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kpi_uploads`).
		WillReturnResult(pgconn.NewCommandTag("CREATE TABLE"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "reports"\."kpi_data"`).
		WillReturnResult(pgconn.NewCommandTag("CREATE TABLE"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).
		WillReturnResult(pgconn.NewCommandTag("SELECT 1"))

	require.NoError(t, s.Migrate(context.Background(), "reports.kpi_data"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateRejectsBadTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Names are checked before any DDL runs.
	err := s.Migrate(context.Background(), "kpi data")
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateReleasesLockOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).
		WillReturnResult(pgconn.NewCommandTag("SELECT 1"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kpi_uploads`).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).
		WillReturnResult(pgconn.NewCommandTag("SELECT 1"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate uploads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"kpi_data"}, recordColumns).
		WillReturnResult(2)

	n, err := s.AppendRecords(context.Background(), "kpi_data", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecordsRetriesDeadlock(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"kpi_data"}, recordColumns).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectCopyFrom(pgx.Identifier{"kpi_data"}, recordColumns).
		WillReturnResult(2)

	n, err := s.AppendRecords(context.Background(), "kpi_data", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecordsPermanentError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"kpi_data"}, recordColumns).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

	_, err := s.AppendRecords(context.Background(), "kpi_data", sampleRecords())
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "append", se.Op)
	assert.Contains(t, err.Error(), "relation does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendRecordsEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.AppendRecords(context.Background(), "kpi_data", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryAllRejectsBadTable(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	_, err := s.QueryAll(context.Background(), "kpi_data; --")
	var se *StorageError
	require.True(t, errors.As(err, &se))
}

func TestPostgresStore_CreateUpload(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO kpi_uploads`).
		WithArgs(pgxmock.AnyArg(), "march.csv", "running", pgxmock.AnyArg()).
		WillReturnResult(pgconn.NewCommandTag("INSERT 0 1"))

	up, err := s.CreateUpload(context.Background(), "march.csv")
	require.NoError(t, err)
	assert.NotEmpty(t, up.ID)
	assert.Equal(t, model.UploadStatusRunning, up.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteUpload(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE kpi_uploads SET status = \$1, rows_in`).
		WithArgs("complete", 5, int64(4), true, `["a"]`, pgxmock.AnyArg(), "u1").
		WillReturnResult(pgconn.NewCommandTag("UPDATE 1"))

	err := s.CompleteUpload(context.Background(), "u1", model.UploadResult{
		RowsIn: 5, RowsStored: 4, Valid: true, Issues: []string{"a"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailUploadNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE kpi_uploads SET status = \$1, error`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgconn.NewCommandTag("UPDATE 0"))

	err := s.FailUpload(context.Background(), "missing", "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUploadsError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, filename, status`).
		WithArgs(50).
		WillReturnError(errors.New("connection closed"))

	_, err := s.ListUploads(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list uploads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	closed := false
	s := newPostgresWithPool(nil, func() { closed = true })
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
