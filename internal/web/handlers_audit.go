package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/orcado/internal/core"
)

// parseIntParam parses a non-negative integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func auditFilter(r *http.Request) core.AuditFilter {
	return core.AuditFilter{
		Limit:  parseIntParam(r, "limit", core.DefaultAuditLimit),
		Offset: parseIntParam(r, "offset", 0),
	}
}

// handleAuditList returns audit records newest first.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.Audit().List(r.Context(), auditFilter(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if recs == nil {
		recs = []core.AuditRecord{}
	}
	writeJSON(w, recs)
}

// handleAuditExport downloads the audit log as a semicolon separated CSV.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	f := auditFilter(r)
	if r.URL.Query().Get("limit") == "" {
		f.Limit = core.MaxAuditLimit
	}

	filename := fmt.Sprintf("orcado_audit_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	// Headers are already sent when a write fails; the error is only logged.
	if err := s.service.Audit().ExportCSV(r.Context(), w, f); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusInternalServerError)
	}
}

// SnapshotResponse describes a kept snapshot without its rows.
type SnapshotResponse struct {
	ID         string               `json:"id"`
	JobID      string               `json:"job_id"`
	SourceFile string               `json:"source_file"`
	Checksum   string               `json:"checksum"`
	Versao     string               `json:"versao"`
	Status     core.SnapshotStatus  `json:"status"`
	Rows       int                  `json:"rows"`
	Total      string               `json:"total"`
	Error      string               `json:"error,omitempty"`
	Errors     []FieldErrorResponse `json:"errors,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func newSnapshotResponse(snap core.Snapshot, withErrors bool) SnapshotResponse {
	resp := SnapshotResponse{
		ID:         snap.ID,
		JobID:      snap.JobID,
		SourceFile: snap.SourceFile,
		Checksum:   snap.Checksum,
		Versao:     snap.Versao,
		Status:     snap.Status,
		Rows:       len(snap.Dataset.Rows),
		Total:      core.FormatBRL(snap.Dataset.TotalValor()),
		Error:      snap.Error,
		CreatedAt:  snap.CreatedAt,
		UpdatedAt:  snap.UpdatedAt,
	}
	if withErrors {
		resp.Errors = fieldErrors(snap.Dataset.Errors)
	}
	return resp
}

// handleListSnapshots lists kept snapshots, optionally by status.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	status := core.SnapshotStatus(r.URL.Query().Get("status"))
	snaps, err := s.service.Snapshots(r.Context(), status, parseIntParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]SnapshotResponse, len(snaps))
	for i, snap := range snaps {
		out[i] = newSnapshotResponse(snap, false)
	}
	writeJSON(w, out)
}

// handleGetSnapshot returns one snapshot with its validation errors.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, newSnapshotResponse(snap, true))
}

// handleReplaySnapshot re-runs only the sync phase for a kept snapshot.
func (s *Server) handleReplaySnapshot(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.service.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{
		"job_id":     jobID,
		"report_url": reportURL(jobID),
	})
}
