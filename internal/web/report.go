package web

//go:generate templ generate -f report.templ

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/orcado/internal/core"
)

// ReportData is everything the import report page shows.
type ReportData struct {
	Progress core.JobProgress
	Result   *core.JobResult // nil while the job runs
	Total    string          // empty when no snapshot was kept
}

// handleImportReport renders the HTML report of an import: the sync outcome
// when accepted, or every error grouped by field when rejected.
func (s *Server) handleImportReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	progress, err := s.service.Jobs().Get(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	data := ReportData{Progress: progress}
	if progress.Phase.Terminal() {
		res, err := s.service.Jobs().Wait(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		data.Result = &res
		if res.SnapshotID != "" {
			if snap, err := s.service.Snapshot(r.Context(), res.SnapshotID); err == nil {
				data.Total = core.FormatBRL(snap.Dataset.TotalValor())
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ImportReport(data).Render(r.Context(), w); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusInternalServerError)
	}
}

// errorGroup is the rejection table of one field.
type errorGroup struct {
	Field  string
	Errors []core.FieldError
}

// groupErrors groups errs by field, fields sorted by name.
func groupErrors(errs []core.FieldError) []errorGroup {
	byField := core.NormalizedDataset{Errors: errs}.ErrorsByField()
	groups := make([]errorGroup, 0, len(byField))
	for field, group := range byField {
		groups = append(groups, errorGroup{Field: field, Errors: group})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Field < groups[j].Field })
	return groups
}

// userError turns a stored job error into its user-facing text.
func userError(msg string) string {
	return core.FormatUserError(errors.New(msg))
}
