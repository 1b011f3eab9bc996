// Package pipeline runs extraction: sequential page compression, one
// categorization call, and atomic replacement of a manual's buckets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/manualqa/internal/categorize"
	"github.com/dgallion1/manualqa/internal/compress"
	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/manual"
)

// ErrExtractionInFlight is returned when an extraction is requested for
// a manual that already has one running. Requests are rejected, not
// queued.
var ErrExtractionInFlight = errors.New("extraction already in flight for this manual")

// bypassLength mirrors the compression adapter's short-page threshold:
// pages under it skip the service, and those that are also blank are
// dropped from the batch entirely.
const bypassLength = 50

// Extractor owns the extraction pipeline for all manuals.
type Extractor struct {
	compressor  *compress.Compressor
	categorizer *categorize.Categorizer
	store       *kvstore.Client
	jobs        *JobStore
	log         *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewExtractor(compressor *compress.Compressor, categorizer *categorize.Categorizer, store *kvstore.Client, jobTTL time.Duration, log *slog.Logger) *Extractor {
	return &Extractor{
		compressor:  compressor,
		categorizer: categorizer,
		store:       store,
		jobs:        NewJobStore(jobTTL),
		log:         log,
		inFlight:    make(map[string]bool),
	}
}

// StartCleanup evicts expired jobs until ctx is done.
func (e *Extractor) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.jobs.Cleanup()
			}
		}
	}()
}

// GetJob returns a job by ID, or nil.
func (e *Extractor) GetJob(id string) *Job {
	return e.jobs.Get(id)
}

// Start begins an extraction run for the manual in the background and
// returns its job. A run already in flight for the same manual causes
// ErrExtractionInFlight.
func (e *Extractor) Start(ctx context.Context, m *manual.Manual) (*Job, error) {
	e.mu.Lock()
	if e.inFlight[m.ID] {
		e.mu.Unlock()
		return nil, ErrExtractionInFlight
	}
	e.inFlight[m.ID] = true
	e.mu.Unlock()

	job := NewJob(m.ID, len(m.Pages))
	e.jobs.Put(job)

	// The run outlives the caller's request; detach its cancellation.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		status := e.run(runCtx, job, m)
		// The in-flight mark must be gone before the terminal status is
		// observable: a poller that sees "completed" may re-extract
		// immediately.
		e.mu.Lock()
		delete(e.inFlight, m.ID)
		e.mu.Unlock()
		job.SetStatus(status)
	}()

	return job, nil
}

// run executes one extraction and returns the terminal status, which
// the caller publishes only after releasing the in-flight mark.
// Buckets are only written after the full categorization response
// parses and normalizes; any failure leaves the manual's previous
// buckets in place.
func (e *Extractor) run(ctx context.Context, job *Job, m *manual.Manual) JobStatus {
	log := e.log.With("job_id", job.ID, "manual_id", m.ID)

	// Phase 1: compress pages one at a time, in page order. Sequential
	// on purpose: the service is rate limited and the job reports
	// per-page progress.
	job.SetStatus(StatusCompressing)
	compressed := e.compressPages(ctx, job, m, log)
	if len(compressed) == 0 {
		log.Warn("no pages left after compression")
		job.AddError("no extractable content")
		return StatusFailed
	}

	// Phase 2: one categorization call for the whole batch.
	job.SetStatus(StatusCategorizing)
	buckets, err := e.categorizeWithRetry(ctx, compressed, log)
	if err != nil {
		log.Error("categorization failed", "error", err)
		job.AddError(fmt.Sprintf("categorize: %s", err))
		return StatusFailed
	}
	job.SetResult(len(buckets), buckets.TotalItems())

	// Phase 3: replace buckets and persist.
	job.SetStatus(StatusStoring)
	m.ReplaceBuckets(buckets, time.Now())
	if err := e.store.PutManual(ctx, m); err != nil {
		log.Error("store failed", "error", err)
		job.AddError(fmt.Sprintf("store: %s", err))
		return StatusFailed
	}

	log.Info("extraction complete", "categories", len(buckets), "items", buckets.TotalItems())
	return StatusCompleted
}

// compressPages walks the pages in order. Short blank pages are dropped
// from the batch; every other page contributes either its compressed
// form or, on any service failure, its original text.
func (e *Extractor) compressPages(ctx context.Context, job *Job, m *manual.Manual, log *slog.Logger) []manual.CompressedPage {
	compressed := make([]manual.CompressedPage, 0, len(m.Pages))
	for _, page := range m.Pages {
		if len(page.Text) < bypassLength && strings.TrimSpace(page.Text) == "" {
			job.PageDropped()
			continue
		}
		text := e.compressor.CompressPage(ctx, page.PageNum, page.Text)
		compressed = append(compressed, manual.CompressedPage{
			PageNum: page.PageNum,
			Text:    text,
		})
		job.PageCompressed()
		log.Debug("page compressed", "page", page.PageNum, "in_len", len(page.Text), "out_len", len(text))
	}
	return compressed
}

// categorizeWithRetry retries only transient service errors. Parse
// failures and invalid response structures abort immediately: partial
// or repaired-beyond-trust categorization would mis-split content.
func (e *Extractor) categorizeWithRetry(ctx context.Context, pages []manual.CompressedPage, log *slog.Logger) (manual.Buckets, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		buckets, err := e.categorizer.Categorize(ctx, pages)
		if err == nil {
			return buckets, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		log.Warn("retryable categorization error", "attempt", attempt, "error", err)
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
