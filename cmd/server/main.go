package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/manualqa/internal/api"
	"github.com/dgallion1/manualqa/internal/categorize"
	"github.com/dgallion1/manualqa/internal/compress"
	"github.com/dgallion1/manualqa/internal/config"
	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	store := kvstore.NewClient(cfg.KVStoreURL, cfg.KVStoreAPIKey)
	llmClient := llm.NewClient(cfg.LLMAPIKey, cfg.LLMModel)
	compressor := compress.NewCompressor(
		compress.NewClient(cfg.CompressURL, cfg.CompressAPIKey),
		cfg.CompressModel, cfg.CompressRate, log,
	)
	categorizer := categorize.New(llmClient, log)

	// Initialize the extraction pipeline.
	extractor := pipeline.NewExtractor(compressor, categorizer, store, cfg.JobTTL, log)
	extractor.StartCleanup(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(store, extractor, llmClient, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		llmClient.Close()
		store.Close()
	}()

	log.Info("starting manualqa", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
