package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/logging"
)

// ProgressResponse is a job progress snapshot with its percentage.
type ProgressResponse struct {
	core.JobProgress
	Percent int `json:"percent"`
}

// handleJobProgress returns the current phase of a job.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.Jobs().Get(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, ProgressResponse{JobProgress: p, Percent: p.Percent()})
}

// handleJobResult blocks until the job finishes and returns its result.
// A client that disconnects first simply stops waiting.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Jobs().Wait(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleCancelJob requests cancellation. Jobs already past staging finish.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.service.CancelJob(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
}

// handleJobEvents streams job progress via Server-Sent Events.
// The event ID is the progress percentage, so a reconnecting client sending
// lastEventId skips updates it has already seen.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	progressCh, err := s.service.Jobs().Subscribe(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondErrorStatus(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	lastEventID := -1
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastEventID = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if percent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}
			lastEventID = percent

			if err := writeEvent(w, percent, "progress", ProgressResponse{JobProgress: progress, Percent: percent}); err != nil {
				logging.FromContext(r.Context()).Error("encode progress event",
					"job_id", progress.JobID, "phase", progress.Phase, "error", err)
				continue
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes one server-sent event. Nothing is written when v does
// not encode.
func writeEvent(w io.Writer, id int, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
