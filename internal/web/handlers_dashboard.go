package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/portal/internal/core"
	mw "github.com/JonMunkholm/portal/internal/web/middleware"
	"github.com/JonMunkholm/portal/internal/web/templates"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	templates.AdminDashboard(pageFor(w, r), stats, s.cfg.Upload.MaxFileSize).Render(r.Context(), w)
}

func (s *Server) handleStudentDashboard(w http.ResponseWriter, r *http.Request) {
	p, _ := mw.PrincipalFrom(r.Context())

	report, err := s.service.StudentReport(r.Context(), p.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Account removed since the session was issued.
		clearSession(w)
		addFlash(w, r, templates.FlashError, "Your account is no longer available.")
		redirect(w, r, "/login")
		return
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	templates.StudentDashboard(pageFor(w, r), report).Render(r.Context(), w)
}

// handleAdminUpload reconciles an uploaded batch and reports the outcome
// as exactly one flash message.
func (s *Server) handleAdminUpload(w http.ResponseWriter, r *http.Request) {
	summary, err := s.importUpload(w, r, core.ImportOptions{}, true)
	switch {
	case errors.Is(err, errCSRF):
		addFlash(w, r, templates.FlashError, msgFormExpired)
	case errors.Is(err, errNotCSV):
		addFlash(w, r, templates.FlashError, "CSV files only!")
	case errors.Is(err, errNoFile):
		addFlash(w, r, templates.FlashError, "No file selected")
	case err != nil:
		msg := core.MapError(err)
		addFlash(w, r, templates.FlashError, "Error processing file: "+msg.Message+" (Code: "+msg.Code+")")
	case summary.Errors > 0:
		addFlash(w, r, templates.FlashWarning, summary.Message())
	default:
		addFlash(w, r, templates.FlashSuccess, summary.Message())
	}
	redirect(w, r, "/admin/dashboard")
}

// importUpload reads the csv_file part of a multipart request and runs it
// through the import service. Browser form posts must also carry the CSRF
// token.
func (s *Server) importUpload(w http.ResponseWriter, r *http.Request, opts core.ImportOptions, formPost bool) (*core.Summary, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+uploadOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, core.ErrFileTooLarge
		}
		return nil, errNoFile
	}
	defer r.MultipartForm.RemoveAll()

	if formPost && !mw.VerifyCSRF(r, r.FormValue(mw.CSRFFieldName)) {
		return nil, errCSRF
	}

	file, header, err := r.FormFile("csv_file")
	if err != nil {
		return nil, errNoFile
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, errNoFile
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		return nil, errNotCSV
	}

	return s.service.ImportBatch(r.Context(), header.Filename, file, header.Size, opts)
}
