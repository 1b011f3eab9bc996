package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil || s.llm.Stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model": s.llm.Model(),
		"stats": s.llm.Stats.Snapshot(),
	})
}

func (s *Server) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	usage, err := s.store.GetUsage(r.Context())
	if err != nil {
		jsonError(w, "failed to read usage: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"usage": usage})
}
