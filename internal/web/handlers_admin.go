package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/orcado/internal/core"
)

// maxJSONBody bounds admin request bodies.
const maxJSONBody = 1 << 20

// DeleteResponse reports how many records an admin delete removed.
type DeleteResponse struct {
	Versao  string `json:"versao,omitempty"`
	Filial  string `json:"filial,omitempty"`
	Deleted int64  `json:"deleted"`
}

// DeleteFilterRequest selects records for POST /api/records/delete.
// Dates use DD/MM/YYYY or any layout the DATA normalizer accepts.
type DeleteFilterRequest struct {
	Versao       string `json:"versao"`
	Filial       string `json:"filial"`
	NConta       *int64 `json:"n_conta"`
	NCentroCusto *int64 `json:"n_centro_custo"`
	DataFrom     string `json:"data_from"`
	DataTo       string `json:"data_to"`
}

// EditRecordRequest is the body of PATCH /api/records.
type EditRecordRequest struct {
	Key   core.RecordKey   `json:"key"`
	Patch core.RecordPatch `json:"patch"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// pathParam returns a decoded URL parameter; versions contain spaces.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

// handleDeleteVersion removes every record of one VERSAO.
func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	versao := pathParam(r, "versao")
	n, err := s.service.DeleteByVersion(r.Context(), versao)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	normalized, _ := core.NormalizeVersao(versao)
	writeJSON(w, DeleteResponse{Versao: normalized, Deleted: n})
}

// handleDeleteFilial removes every record of one FILIAL.
func (s *Server) handleDeleteFilial(w http.ResponseWriter, r *http.Request) {
	filial := pathParam(r, "filial")
	n, err := s.service.DeleteByFilial(r.Context(), filial)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	normalized, _ := core.NormalizeFilial(filial)
	writeJSON(w, DeleteResponse{Filial: normalized, Deleted: n})
}

// handleDeleteRecords removes the records matching a filter. An empty
// filter is refused.
func (s *Server) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req DeleteFilterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	filter, err := req.toFilter()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	n, err := s.service.DeleteByFilter(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, DeleteResponse{Versao: filter.Versao, Filial: filter.Filial, Deleted: n})
}

func (req DeleteFilterRequest) toFilter() (core.RecordFilter, error) {
	f := core.RecordFilter{
		Versao:       req.Versao,
		Filial:       req.Filial,
		NConta:       req.NConta,
		NCentroCusto: req.NCentroCusto,
	}
	var err error
	if f.DataFrom, err = parseFilterDate(req.DataFrom); err != nil {
		return f, fmt.Errorf("data_from: %w", err)
	}
	if f.DataTo, err = parseFilterDate(req.DataTo); err != nil {
		return f, fmt.Errorf("data_to: %w", err)
	}
	return f, nil
}

func parseFilterDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	canonical, err := core.NormalizeData(raw)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(core.CanonicalDateLayout, canonical)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// handleEditRecord applies a patch to one record and returns the stored result.
func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	var req EditRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	key, err := normalizeKey(req.Key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.EditRecord(r.Context(), key, req.Patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

// normalizeKey canonicalizes the DATA and VERSAO parts of a key so clients
// may send them the way they appear in a sheet.
func normalizeKey(k core.RecordKey) (core.RecordKey, error) {
	data, err := core.NormalizeData(k.Data)
	if err != nil {
		return k, fmt.Errorf("key data: %w", err)
	}
	versao, err := core.NormalizeVersao(k.Versao)
	if err != nil {
		return k, fmt.Errorf("key versao: %w", err)
	}
	k.Data = data
	k.Versao = versao
	return k, nil
}
