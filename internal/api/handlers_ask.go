package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/retrieval"
)

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadManual(w, r)
	if !ok {
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	rc := retrieval.BuildContext(question, m.Buckets, m.Pages)
	if strings.TrimSpace(rc.Text) == "" {
		jsonError(w, "manual has no content to answer from", http.StatusUnprocessableEntity)
		return
	}

	prompt := answerPrompt(m.Title, rc.Text, question)
	answer, err := s.llm.Generate(r.Context(), []llm.Part{llm.TextPart(prompt)}, false)
	if err != nil {
		s.log.Error("answer generation failed", "manual_id", m.ID, "error", err)
		jsonError(w, "failed to generate answer", http.StatusBadGateway)
		return
	}

	// Usage counters are best effort; an unreachable store must not
	// fail the answer.
	if err := s.store.BumpUsage(r.Context(), rc.Category); err != nil {
		s.log.Warn("usage bump failed", "category", rc.Category, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"answer":   answer,
		"category": rc.Category,
	})
}

func answerPrompt(title, context, question string) string {
	return fmt.Sprintf(`You are a product support assistant answering questions about "%s".
Answer using ONLY the manual excerpts below. If the excerpts do not
contain the answer, say so plainly. Cite page numbers when the excerpts
include them.

Manual excerpts:
%s

Question: %s`, title, context, question)
}
