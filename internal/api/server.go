package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/manualqa/internal/config"
	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for manualqa.
type Server struct {
	router    chi.Router
	store     *kvstore.Client
	extractor *pipeline.Extractor
	llm       *llm.Client
	log       *slog.Logger
	cfg       config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(store *kvstore.Client, extractor *pipeline.Extractor, llmClient *llm.Client, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		store:     store,
		extractor: extractor,
		llm:       llmClient,
		log:       log,
		cfg:       cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/manuals", s.handleUploadManual)
		r.Get("/api/manuals", s.handleListManuals)
		r.Get("/api/manuals/{manualID}", s.handleGetManual)
		r.Delete("/api/manuals/{manualID}", s.handleDeleteManual)

		r.Post("/api/manuals/{manualID}/extract", s.handleExtract)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Post("/api/manuals/{manualID}/ask", s.handleAsk)

		r.Get("/api/stats/llm", s.handleLLMStats)
		r.Get("/api/stats/usage", s.handleUsageStats)

		r.Get("/api/settings/{name}", s.handleGetSetting)
		r.Put("/api/settings/{name}", s.handlePutSetting)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
