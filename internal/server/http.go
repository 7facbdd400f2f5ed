package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/layoutsync/internal/model"
)

// NewHTTPHandler returns an http.Handler serving the layouts API. tokens maps
// bearer tokens to principals; an empty map disables authentication.
func (s *Server) NewHTTPHandler(tokens map[string]string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(pattern, fn))
	}
	handle("GET /health", s.handleHealth)
	handle("GET /layouts", s.handleListLayouts)
	handle("POST /layouts", s.handleUpsertLayout)
	handle("POST /layouts/sync", s.handleSyncLayouts)
	handle("GET /layouts/{type}", s.handleGetLayout)
	handle("PUT /layouts/{type}", s.handleUpdateLayout)
	handle("DELETE /layouts/{type}", s.handleDeleteLayout)
	handle("GET /events", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = AuthMiddleware(tokens, mux)
	h = RequestLogMiddleware(s.logger, h)
	return RecoveryMiddleware(s.logger, h)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListLayouts handles GET /layouts.
func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	layouts, err := s.List(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, layouts)
}

// handleUpsertLayout handles POST /layouts.
func (s *Server) handleUpsertLayout(w http.ResponseWriter, r *http.Request) {
	var in model.LayoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rl, err := s.Upsert(r.Context(), PrincipalFrom(r.Context()), &in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// handleSyncLayouts handles POST /layouts/sync.
func (s *Server) handleSyncLayouts(w http.ResponseWriter, r *http.Request) {
	var batch []*model.LayoutInput
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	synced, err := s.Sync(r.Context(), PrincipalFrom(r.Context()), batch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &model.SyncResult{
		Message: "Layouts synced successfully",
		Synced:  synced,
	})
}

// handleGetLayout handles GET /layouts/{type}.
func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	rl, err := s.Get(r.Context(), PrincipalFrom(r.Context()), r.PathValue("type"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// handleUpdateLayout handles PUT /layouts/{type}.
func (s *Server) handleUpdateLayout(w http.ResponseWriter, r *http.Request) {
	var in model.LayoutUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rl, err := s.Update(r.Context(), PrincipalFrom(r.Context()), r.PathValue("type"), in.Config)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

// handleDeleteLayout handles DELETE /layouts/{type}.
func (s *Server) handleDeleteLayout(w http.ResponseWriter, r *http.Request) {
	if err := s.Delete(r.Context(), PrincipalFrom(r.Context()), r.PathValue("type")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Layout deleted successfully"})
}

// writeStoreError maps a layout operation error to a status code.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, errLayoutNotFound):
		writeError(w, http.StatusNotFound, "Layout not found")
	default:
		s.logger.Error("layout operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON marshals data as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

// writeError writes a JSON error response: {"error": "message"}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
