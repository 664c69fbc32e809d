package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

type tableRequest struct {
	Columns []dataset.Column `json:"columns"`
	Records []map[string]any `json:"records"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Kind  core.ErrorKind `json:"kind,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.agents != nil {
		body["agents"] = s.agents.Health()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	tbl, err := decodeTable(r)
	if err != nil {
		writeError(w, core.NewError(core.KindValidation, "server.dataset", "invalid dataset").Wrap(err))
		return
	}
	if err := s.sessions.Update(id, tbl, "upload"); err != nil {
		writeError(w, err)
		return
	}
	snap, _ := s.sessions.Snapshot(id)
	writeJSON(w, http.StatusCreated, snap)
}

func decodeTable(r *http.Request) (*dataset.Table, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		return dataset.ReadCSV(r.Body)
	}
	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return dataset.FromRecords(req.Columns, req.Records)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, core.NewError(core.KindValidation, "server.query", "invalid request body").Wrap(err))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, core.NewError(core.KindValidation, "server.query", "query must not be empty"))
		return
	}
	if !s.sessions.IsActive(id) {
		writeError(w, core.Errorf(core.KindValidation, "server.query", "session %q has no dataset", id))
		return
	}

	ctx := r.Context()
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	res := s.orch.RunFlowSync(ctx, req.Query, nil, id)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.List(chi.URLParam(r, "sessionID")))
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.History(chi.URLParam(r, "sessionID")))
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s.sessions.Clear(id)
	s.status.Clear(id)
	if s.opts.Artifacts != nil {
		s.opts.Artifacts.Clear(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Artifacts.List(chi.URLParam(r, "sessionID")))
}

func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.opts.Artifacts.Get(chi.URLParam(r, "sessionID"), chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: core.KindOf(err)})
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case core.KindValidation:
		code = http.StatusBadRequest
	case core.KindTimeout:
		code = http.StatusGatewayTimeout
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		code = http.StatusRequestEntityTooLarge
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}
