package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/manual"
	"github.com/dgallion1/manualqa/internal/parser"
	"github.com/dgallion1/manualqa/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

func (s *Server) handleUploadManual(w http.ResponseWriter, r *http.Request) {
	// Limit total request size, with headroom for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	p, err := parser.ForFile(filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	doc, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		jsonError(w, "failed to parse file: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if len(doc.Pages) == 0 {
		jsonError(w, "no readable content in file", http.StatusUnprocessableEntity)
		return
	}

	m := manual.New(ulid.Make().String(), doc.Title, filename, doc.Pages)
	if title := r.FormValue("title"); title != "" {
		m.Title = title
	}

	if err := s.store.PutManual(r.Context(), m); err != nil {
		jsonError(w, "failed to store manual: "+err.Error(), http.StatusBadGateway)
		return
	}

	s.log.Info("manual uploaded", "manual_id", m.ID, "filename", filename, "pages", len(m.Pages))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"id":          m.ID,
		"title":       m.Title,
		"filename":    m.Filename,
		"page_count":  len(m.Pages),
		"extract_url": fmt.Sprintf("/api/manuals/%s/extract", m.ID),
	})
}

func (s *Server) handleListManuals(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListManuals(r.Context(), 200)
	if err != nil {
		jsonError(w, "failed to list manuals: "+err.Error(), http.StatusBadGateway)
		return
	}
	if summaries == nil {
		summaries = []kvstore.ManualSummary{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"manuals": summaries})
}

func (s *Server) handleGetManual(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadManual(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (s *Server) handleDeleteManual(w http.ResponseWriter, r *http.Request) {
	manualID := chi.URLParam(r, "manualID")
	if err := s.store.DeleteManual(r.Context(), manualID); err != nil {
		jsonError(w, "failed to delete manual: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadManual(w, r)
	if !ok {
		return
	}

	job, err := s.extractor.Start(r.Context(), m)
	if err != nil {
		if errors.Is(err, pipeline.ErrExtractionInFlight) {
			jsonError(w, "extraction already running for this manual", http.StatusConflict)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The background run mutates the job; read through Snapshot.
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.extractor.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

func (s *Server) loadManual(w http.ResponseWriter, r *http.Request) (*manual.Manual, bool) {
	manualID := chi.URLParam(r, "manualID")
	m, err := s.store.GetManual(r.Context(), manualID)
	if err != nil {
		jsonError(w, "failed to load manual: "+err.Error(), http.StatusBadGateway)
		return nil, false
	}
	if m == nil {
		jsonError(w, "manual not found", http.StatusNotFound)
		return nil, false
	}
	return m, true
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
