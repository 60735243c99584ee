package web

// errors.go provides unified error response handling for the web layer.
//
// The technical error is logged with the request ID; the client receives
// the message, action and support code from core.MapError, as JSON for
// /api routes and as plain text elsewhere.

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/orcado/internal/core"
	"github.com/JonMunkholm/orcado/internal/ingest"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with the status
// derived from it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
	} else {
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps an error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, core.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSnapshotNotReplayable):
		return http.StatusConflict
	case errors.Is(err, core.ErrDatasetRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports),
		errors.Is(err, core.ErrWarehouseUnavailable),
		core.IsConnectivity(err):
		return http.StatusServiceUnavailable
	case core.IsReconciliation(err):
		// The wrapped database error may read like a validation message.
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrEmptyFilter),
		errors.Is(err, core.ErrNothingToUpdate),
		errors.Is(err, core.ErrInvalidPatch),
		errors.Is(err, ingest.ErrEmptyFile),
		errors.Is(err, ingest.ErrInvalidCSV),
		errors.Is(err, ingest.ErrInvalidWorkbook),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	if strings.HasPrefix(core.MapError(err).Code, "VAL") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
