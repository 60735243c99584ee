package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/ingest"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// FieldErrorResponse is one validation error as shown to API clients.
type FieldErrorResponse struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// DatasetResponse summarizes a validated dataset.
type DatasetResponse struct {
	JobID      string               `json:"job_id,omitempty"`
	Accepted   bool                 `json:"accepted"`
	SourceFile string               `json:"source_file"`
	Checksum   string               `json:"checksum"`
	Encoding   string               `json:"encoding,omitempty"`
	Delimiter  string               `json:"delimiter,omitempty"`
	Rows       int                  `json:"rows"`
	Versao     string               `json:"versao,omitempty"`
	Versions   []string             `json:"versions,omitempty"`
	Total      string               `json:"total"`
	Errors     []FieldErrorResponse `json:"errors,omitempty"`
	ReportURL  string               `json:"report_url,omitempty"`
	Message    string               `json:"message,omitempty"`
}

func newDatasetResponse(ds core.NormalizedDataset, info ingest.Info) DatasetResponse {
	resp := DatasetResponse{
		Accepted:   ds.Accepted(),
		SourceFile: ds.SourceFile,
		Checksum:   ds.Checksum,
		Encoding:   info.Encoding,
		Rows:       len(ds.Rows),
		Versao:     ds.Versao(),
		Versions:   ds.Versions(),
		Total:      core.FormatBRL(ds.TotalValor()),
		Errors:     fieldErrors(ds.Errors),
	}
	if info.Delimiter != 0 {
		resp.Delimiter = string(info.Delimiter)
	}
	return resp
}

func fieldErrors(errs []core.FieldError) []FieldErrorResponse {
	if len(errs) == 0 {
		return nil
	}
	out := make([]FieldErrorResponse, len(errs))
	for i, e := range errs {
		out[i] = FieldErrorResponse{
			Line:    e.Line(),
			Field:   e.Field,
			Value:   e.RawValue,
			Message: e.Message,
			Code:    core.MapError(e).Code,
		}
	}
	return out
}

// readUpload parses the multipart "file" field into a raw dataset.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.RawDataset, ingest.Info, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.RawDataset{}, ingest.Info{}, fmt.Errorf("%w: request body", ingest.ErrFileTooLarge)
		}
		return core.RawDataset{}, ingest.Info{}, fmt.Errorf("%w: no file provided: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.RawDataset{}, ingest.Info{}, fmt.Errorf("%w: no file provided", errBadRequest)
	}
	defer file.Close()

	return ingest.Read(file, header.Filename, ingest.Options{MaxBytes: maxSize})
}

// handleImport validates an uploaded sheet and, when accepted, starts the
// warehouse sync in the background. Rejections return 422 with every error.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, info, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	r = operatorOverride(r, r.FormValue("operator"))

	jobID, ds, err := s.service.StartImport(r.Context(), raw)
	switch {
	case errors.Is(err, core.ErrDatasetRejected):
		resp := newDatasetResponse(ds, info)
		resp.JobID = jobID
		resp.ReportURL = reportURL(jobID)
		resp.Message = core.FormatUserError(err)
		writeJSONStatus(w, http.StatusUnprocessableEntity, resp)
		return
	case err != nil:
		s.respondError(w, r, err)
		return
	}

	resp := newDatasetResponse(ds, info)
	resp.JobID = jobID
	resp.ReportURL = reportURL(jobID)
	writeJSONStatus(w, http.StatusAccepted, resp)
}

// handleValidate runs validation only. Nothing is written anywhere.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, info, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ds, err := s.service.Validate(r.Context(), raw)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if !ds.Accepted() {
		status = http.StatusUnprocessableEntity
	}
	writeJSONStatus(w, status, newDatasetResponse(ds, info))
}

func reportURL(jobID string) string {
	if jobID == "" {
		return ""
	}
	return "/imports/" + jobID + "/report"
}
