package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/manualqa/internal/categorize"
	"github.com/dgallion1/manualqa/internal/compress"
	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/manual"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testStore is a minimal in-memory kvstore fake.
type testStore struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

func newTestKVServer(t *testing.T) (*kvstore.Client, *testStore) {
	t.Helper()
	ts := &testStore{data: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/kv/")
		ts.mu.Lock()
		defer ts.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			ts.data[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := ts.data[key]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(body)
		case http.MethodDelete:
			delete(ts.data, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return kvstore.NewClient(srv.URL, "test-key"), ts
}

func newTestLLM(t *testing.T, responseText string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		part, _ := json.Marshal(responseText)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` + string(part) + `}]}}]}`))
	}))
	t.Cleanup(srv.Close)
	return llm.NewClientWithBaseURL(srv.URL, "k", "m")
}

func newTestCompressor(t *testing.T) *compress.Compressor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"compressed_prompt":"compressed page content here"}`))
	}))
	t.Cleanup(srv.Close)
	return compress.NewCompressor(compress.NewClient(srv.URL, "k"), "m", compress.DefaultRate, discardLogger())
}

func testManual() *manual.Manual {
	return &manual.Manual{
		ID:    "m1",
		Title: "Test Manual",
		Pages: []manual.PageRecord{
			{PageNum: 1, Text: strings.Repeat("Safety instructions. Unplug before cleaning. ", 3)},
			{PageNum: 2, Text: "   "}, // blank: dropped
			{PageNum: 3, Text: "Short page"},
		},
		CreatedAt: time.Now(),
	}
}

func waitForJob(t *testing.T, e *Extractor, id string) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := e.GetJob(id).Snapshot()
		if snap.Status == StatusCompleted || snap.Status == StatusFailed {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return JobSnapshot{}
}

func TestExtractor_SuccessfulRun(t *testing.T) {
	store, ts := newTestKVServer(t)
	response := `{"safety":[{"page":1,"text":"Unplug before cleaning"}]}`
	e := NewExtractor(
		newTestCompressor(t),
		categorize.New(newTestLLM(t, response), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	m := testManual()
	job, err := e.Start(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := waitForJob(t, e, job.ID)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.PagesDropped != 1 {
		t.Errorf("expected 1 dropped blank page, got %d", snap.Progress.PagesDropped)
	}
	if snap.Progress.PagesCompressed != 2 {
		t.Errorf("expected 2 compressed pages, got %d", snap.Progress.PagesCompressed)
	}
	if !m.Extracted() {
		t.Error("manual must be marked extracted")
	}
	if len(m.Buckets[manual.CategorySafety]) != 1 {
		t.Errorf("expected safety bucket installed, got %v", m.Buckets)
	}

	ts.mu.Lock()
	_, stored := ts.data["manuals/m1"]
	ts.mu.Unlock()
	if !stored {
		t.Error("expected manual persisted to kvstore")
	}
}

func TestExtractor_ParseFailureKeepsPriorBuckets(t *testing.T) {
	store, _ := newTestKVServer(t)
	e := NewExtractor(
		newTestCompressor(t),
		categorize.New(newTestLLM(t, "no json here at all"), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	m := testManual()
	prior := manual.Buckets{manual.CategoryParts: {{Page: 1, Text: "prior item"}}}
	m.Buckets = prior

	job, err := e.Start(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForJob(t, e, job.ID)
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if len(m.Buckets[manual.CategoryParts]) != 1 || m.Buckets[manual.CategoryParts][0].Text != "prior item" {
		t.Errorf("prior buckets must survive a failed run, got %v", m.Buckets)
	}
}

func TestExtractor_RejectsConcurrentRunForSameManual(t *testing.T) {
	store, _ := newTestKVServer(t)

	// Slow LLM keeps the first run in flight.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	t.Cleanup(slow.Close)

	e := NewExtractor(
		newTestCompressor(t),
		categorize.New(llm.NewClientWithBaseURL(slow.URL, "k", "m"), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	m := testManual()
	job, err := e.Start(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Start(context.Background(), m); err != ErrExtractionInFlight {
		t.Errorf("expected ErrExtractionInFlight, got %v", err)
	}
	waitForJob(t, e, job.ID)

	// After the run finishes a new one is allowed.
	if _, err := e.Start(context.Background(), m); err != nil {
		t.Errorf("expected new run allowed after completion, got %v", err)
	}
}

func TestExtractor_RestartAllowedImmediatelyAfterTerminalStatus(t *testing.T) {
	store, _ := newTestKVServer(t)
	e := NewExtractor(
		newTestCompressor(t),
		categorize.New(newTestLLM(t, `{"safety":[{"page":1,"text":"Unplug before cleaning"}]}`), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	// A poller that observes a terminal status must be able to start a
	// new run right away, every time.
	m := testManual()
	for i := 0; i < 5; i++ {
		job, err := e.Start(context.Background(), m)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if snap := waitForJob(t, e, job.ID); snap.Status != StatusCompleted {
			t.Fatalf("run %d: expected completed, got %s", i, snap.Status)
		}
	}
}

func TestExtractor_AllPagesBlankFails(t *testing.T) {
	store, _ := newTestKVServer(t)
	e := NewExtractor(
		newTestCompressor(t),
		categorize.New(newTestLLM(t, "{}"), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	m := &manual.Manual{ID: "m2", Pages: []manual.PageRecord{{PageNum: 1, Text: "  "}}}
	job, err := e.Start(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForJob(t, e, job.ID)
	if snap.Status != StatusFailed {
		t.Errorf("expected failed for all-blank manual, got %s", snap.Status)
	}
}

func TestExtractor_CompressionFailureDoesNotAbortBatch(t *testing.T) {
	// Compression service always errors; pages fall back to raw text
	// and the run still completes.
	brokenCompress := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(brokenCompress.Close)
	compressor := compress.NewCompressor(compress.NewClient(brokenCompress.URL, "k"), "m", compress.DefaultRate, discardLogger())

	store, _ := newTestKVServer(t)
	e := NewExtractor(
		compressor,
		categorize.New(newTestLLM(t, `{"procedures":[{"page":1,"text":"Descale monthly"}]}`), discardLogger()),
		store, time.Hour, discardLogger(),
	)

	m := testManual()
	job, err := e.Start(context.Background(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := waitForJob(t, e, job.ID)
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed despite per-page failures, got %s (%v)", snap.Status, snap.Progress.Errors)
	}
}
