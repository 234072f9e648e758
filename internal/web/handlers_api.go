package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/portal/internal/core"
	mw "github.com/JonMunkholm/portal/internal/web/middleware"
)

// batchResponse is the JSON body of POST /api/batches.
type batchResponse struct {
	*core.Summary
	Message   string          `json:"message"`
	RowErrors []core.RowError `json:"row_errors"`
}

// resultsResponse is the JSON body of GET /api/me/results.
type resultsResponse struct {
	ID       int64              `json:"id"`
	Username string             `json:"username"`
	Name     string             `json:"name"`
	Results  []core.ScoreRecord `json:"results"`
	Average  *float64           `json:"average"`
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAPIMyResults(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r.Context())

	report, err := s.service.StudentReport(r.Context(), p.ID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	results := report.Results
	if results == nil {
		results = []core.ScoreRecord{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		ID:       report.Student.ID,
		Username: report.Student.Username,
		Name:     report.Student.Name(),
		Results:  results,
		Average:  report.Average,
	})
}

// handleAPIImportBatch accepts a multipart csv_file part or a raw CSV body.
// ?dry_run=true reconciles and rolls back.
func (s *Server) handleAPIImportBatch(w http.ResponseWriter, r *http.Request) {
	var opts core.ImportOptions
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "dry_run must be a boolean",
				Message: "dry_run must be a boolean",
				Code:    "REQ001",
			})
			return
		}
		opts.DryRun = dry
	}

	var (
		summary *core.Summary
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		summary, err = s.importUpload(w, r, opts, false)
	} else {
		name := r.URL.Query().Get("file")
		if name == "" {
			name = "batch.csv"
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+1)
		summary, err = s.service.ImportBatch(r.Context(), name, r.Body, r.ContentLength, opts)
	}
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	rowErrors := summary.RowErrors
	if rowErrors == nil {
		rowErrors = []core.RowError{}
	}
	writeJSON(w, http.StatusOK, batchResponse{
		Summary:   summary,
		Message:   summary.Message(),
		RowErrors: rowErrors,
	})
}
