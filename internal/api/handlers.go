package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/ingest"
	"github.com/sells-group/kpi-cli/internal/model"
	"github.com/sells-group/kpi-cli/internal/report"
	"github.com/sells-group/kpi-cli/internal/source"
)

const uploadField = "file"

// UploadResponse is returned by POST /api/uploads.
type UploadResponse struct {
	UploadID   string         `json:"upload_id"`
	Source     string         `json:"source"`
	RowsIn     int            `json:"rows_in"`
	RowsOut    int            `json:"rows_out"`
	RowsStored int64          `json:"rows_stored"`
	Valid      bool           `json:"valid"`
	Issues     []ingest.Issue `json:"issues"`
	Warnings   []ingest.Issue `json:"warnings"`
}

// ReportResponse is returned by GET /api/reports/{kind}.
type ReportResponse struct {
	Kind    string          `json:"kind"`
	Filter  report.Filter   `json:"filter"`
	Table   *report.Table   `json:"table"`
	Summary *report.Summary `json:"summary,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Render(w, r, errWithStatus(http.StatusRequestEntityTooLarge, err)) //nolint:errcheck
			return
		}
		render.Render(w, r, errBadRequest(err)) //nolint:errcheck
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, hdr, err := r.FormFile(uploadField)
	if err != nil {
		render.Render(w, r, errBadRequest(errors.New("multipart field \"file\" is required"))) //nolint:errcheck
		return
	}
	defer file.Close() //nolint:errcheck

	src, err := source.OpenUpload(hdr.Filename, file)
	if err != nil {
		render.Render(w, r, errUnprocessable(err)) //nolint:errcheck
		return
	}

	res, err := s.loader.Run(r.Context(), src)
	if err != nil {
		if ingest.IsMalformed(err) {
			render.Render(w, r, errUnprocessable(err)) //nolint:errcheck
			return
		}
		zap.L().Error("api: upload failed", zap.String("filename", hdr.Filename), zap.Error(err))
		render.Render(w, r, errInternal(err)) //nolint:errcheck
		return
	}

	resp := UploadResponse{
		UploadID:   res.UploadID,
		Source:     res.Source,
		RowsIn:     res.RowsIn,
		RowsOut:    res.RowsOut,
		RowsStored: res.RowsStored,
		Valid:      res.Report.Passed,
		Issues:     nonNil(res.Report.Issues),
		Warnings:   nonNil(res.Report.Warnings),
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

func (s *server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			render.Render(w, r, errBadRequest(errors.New("limit must be an integer"))) //nolint:errcheck
			return
		}
		limit = n
	}

	uploads, err := s.store.ListUploads(r.Context(), limit)
	if err != nil {
		render.Render(w, r, errInternal(err)) //nolint:errcheck
		return
	}
	if uploads == nil {
		uploads = []model.Upload{}
	}
	render.JSON(w, r, uploads)
}

func (s *server) handleUploadStats(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		render.Render(w, r, errUnavailable) //nolint:errcheck
		return
	}
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			render.Render(w, r, errBadRequest(errors.New("hours must be a positive integer"))) //nolint:errcheck
			return
		}
		hours = n
	}

	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		render.Render(w, r, errInternal(err)) //nolint:errcheck
		return
	}
	render.JSON(w, r, snap)
}

func (s *server) handleRecords(w http.ResponseWriter, r *http.Request) {
	f, err := report.FilterFromValues(r.URL.Query())
	if err != nil {
		render.Render(w, r, errBadRequest(err)) //nolint:errcheck
		return
	}

	records, err := s.store.QueryAll(r.Context(), s.table)
	if err != nil {
		render.Render(w, r, errInternal(err)) //nolint:errcheck
		return
	}
	out := report.Apply(records, f)
	if out == nil {
		out = []model.Record{}
	}
	render.JSON(w, r, out)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if _, ok := report.Preset(kind); !ok {
		render.Render(w, r, errNotFound) //nolint:errcheck
		return
	}

	f, err := report.FilterFromValues(r.URL.Query())
	if err != nil {
		render.Render(w, r, errBadRequest(err)) //nolint:errcheck
		return
	}

	records, err := s.store.QueryAll(r.Context(), s.table)
	if err != nil {
		render.Render(w, r, errInternal(err)) //nolint:errcheck
		return
	}

	tbl, _ := report.Build(records, kind, f)
	resp := ReportResponse{Kind: kind, Filter: f, Table: tbl}
	if wantSummary(r) {
		sum := report.Summarize(report.Apply(records, f))
		resp.Summary = &sum
	}
	render.JSON(w, r, resp)
}

func wantSummary(r *http.Request) bool {
	v := r.URL.Query().Get("summary")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func nonNil(issues []ingest.Issue) []ingest.Issue {
	if issues == nil {
		return []ingest.Issue{}
	}
	return issues
}
