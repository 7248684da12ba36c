package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kpi-cli/internal/loader"
	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/monitoring"
	"github.com/sells-group/kpi-cli/internal/store"
)

const table = "kpi_data"

const kpiCSV = `Sector Code,Vessel,financial_year,financial_month,Total Income (In Lacs),DOE (In Lacs),GOP (In Lacs)
,,,,Debit/Credit Amount,Debit/Credit Amount,Debit/Credit Amount
LNG,Ship A,2024,May,100,20,10
LNG,Ship A,2024,May,100,20,10
Tanker,Ship B,2023,June,50,5,-4
`

type fixture struct {
	handler http.Handler
	store   *store.SQLiteStore
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "kpi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background(), table))

	reg := prometheus.NewRegistry()
	ld := &loader.Loader{Store: st, Table: table, Metrics: monitoring.NewMetrics(reg)}
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	if opts.Collector == nil {
		opts.Collector = monitoring.NewCollector(st)
	}
	return &fixture{handler: NewRouter(ld, st, table, opts), store: st, reg: reg}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestUpload_StoresRecords(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.upload(t, "kpi.csv", kpiCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	assert.NotEmpty(t, resp.UploadID)
	assert.Equal(t, "kpi.csv", resp.Source)
	assert.Equal(t, 3, resp.RowsIn)
	assert.EqualValues(t, 3, resp.RowsStored)
	assert.False(t, resp.Valid, "duplicate row fails validation")
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "duplicate_rows", resp.Issues[0].Check)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "GOP", resp.Warnings[0].Column)

	records, err := f.store.QueryAll(context.Background(), table)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestUpload_MissingFileField(t *testing.T) {
	f := newFixture(t, Options{})
	body, ct := multipartBody(t, "document", "kpi.csv", kpiCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrResponse](t, rec).ErrorText, "file")
}

func TestUpload_NotMultipart(t *testing.T) {
	f := newFixture(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(kpiCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_EmptyFileIsUnprocessable(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.upload(t, "empty.csv", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	uploads, err := f.store.ListUploads(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, model.UploadStatusFailed, uploads[0].Status)
}

func TestUpload_BrokenWorkbookIsUnprocessable(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.upload(t, "kpi.xlsx", "not a zip archive")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 64})
	rec := f.upload(t, "kpi.csv", kpiCSV)
	assert.Contains(t, []int{http.StatusRequestEntityTooLarge, http.StatusBadRequest}, rec.Code)
}

func TestUpload_RateLimited(t *testing.T) {
	f := newFixture(t, Options{UploadsPerMinute: 1})

	first := f.upload(t, "kpi.csv", kpiCSV)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.upload(t, "kpi.csv", kpiCSV)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, f.get(t, "/api/uploads").Code)
}

func TestListUploads(t *testing.T) {
	f := newFixture(t, Options{})
	empty := f.get(t, "/api/uploads")
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, "[]", empty.Body.String())

	require.Equal(t, http.StatusCreated, f.upload(t, "a.csv", kpiCSV).Code)
	require.Equal(t, http.StatusCreated, f.upload(t, "b.csv", kpiCSV).Code)

	rec := f.get(t, "/api/uploads?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	uploads := decode[[]model.Upload](t, rec)
	require.Len(t, uploads, 1)
	assert.Equal(t, model.UploadStatusComplete, uploads[0].Status)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/uploads?limit=many").Code)
}

func TestUploadStats(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "a.csv", kpiCSV).Code)
	require.Equal(t, http.StatusUnprocessableEntity, f.upload(t, "b.csv", "").Code)

	rec := f.get(t, "/api/uploads/stats?hours=1")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[monitoring.UploadSnapshot](t, rec)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.InvalidUploads)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/uploads/stats?hours=-1").Code)
}

func TestRecords_Filtered(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "kpi.csv", kpiCSV).Code)

	rec := f.get(t, "/api/records?sector=Tanker")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]model.Record](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "Ship B", *records[0].Vessel)

	none := f.get(t, "/api/records?from_year=2030")
	require.Equal(t, http.StatusOK, none.Code)
	assert.JSONEq(t, "[]", none.Body.String())
}

func TestRecords_BadQuery(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/records?from_year=abc").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/records?from_year=2025&to_year=2024").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/records?quarter=Q9").Code)
}

func TestReport_Yearly(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "kpi.csv", kpiCSV).Code)

	rec := f.get(t, "/api/reports/yearly?summary=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ReportResponse](t, rec)
	assert.Equal(t, "yearly", resp.Kind)
	require.NotNil(t, resp.Table)
	require.Len(t, resp.Table.Rows, 2)
	assert.Equal(t, []string{"2023", "Tanker", "Ship B"}, resp.Table.Rows[0].Keys)
	assert.Equal(t, []string{"2024", "LNG", "Ship A"}, resp.Table.Rows[1].Keys)
	assert.InDelta(t, 200, resp.Table.Rows[1].TotalIncome, 1e-9)

	require.NotNil(t, resp.Summary)
	assert.Equal(t, 3, resp.Summary.Records)
	assert.InDelta(t, 250, resp.Summary.KPIs["Total_Income"].Total, 1e-9)
}

func TestReport_NoSummaryByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.get(t, "/api/reports/yearly")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[ReportResponse](t, rec).Summary)
}

func TestReport_UnknownKind(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/reports/weekly").Code)
}

func TestReport_BadFilter(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/reports/monthly?from_month=Smarch").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{})
	require.Equal(t, http.StatusCreated, f.upload(t, "kpi.csv", kpiCSV).Code)

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kpi_uploads_total{status="complete"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/records", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

// failingStore fails every read. Embedding the interface leaves other
// methods nil; the tests only reach the overridden ones.
type failingStore struct {
	store.Store
}

func (failingStore) QueryAll(context.Context, string) ([]model.Record, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) ListUploads(context.Context, int) ([]model.Upload, error) {
	return nil, errors.New("connection refused")
}

func TestStoreErrors(t *testing.T) {
	st := failingStore{}
	h := NewRouter(&loader.Loader{Store: st, Table: table}, st, table, Options{})

	for _, target := range []string{"/api/records", "/api/reports/yearly", "/api/uploads"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
