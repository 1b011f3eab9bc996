package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var value json.RawMessage
	found, err := s.store.GetSetting(r.Context(), name, &value)
	if err != nil {
		jsonError(w, "failed to read setting: "+err.Error(), http.StatusBadGateway)
		return
	}
	if !found {
		jsonError(w, "setting not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"name": name, "value": value})
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	var value json.RawMessage
	if err := json.Unmarshal(body, &value); err != nil {
		jsonError(w, "setting value must be JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.PutSetting(r.Context(), name, value); err != nil {
		jsonError(w, "failed to store setting: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
