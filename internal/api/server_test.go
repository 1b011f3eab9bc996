package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/manualqa/internal/categorize"
	"github.com/dgallion1/manualqa/internal/compress"
	"github.com/dgallion1/manualqa/internal/config"
	"github.com/dgallion1/manualqa/internal/kvstore"
	"github.com/dgallion1/manualqa/internal/llm"
	"github.com/dgallion1/manualqa/internal/manual"
	"github.com/dgallion1/manualqa/internal/pipeline"
)

const testAPIKey = "test-api-key"

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV(t *testing.T) (*httptest.Server, *fakeKV) {
	t.Helper()
	kv := &fakeKV{data: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/kv/")
		kv.mu.Lock()
		defer kv.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			kv.data[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			body, ok := kv.data[key]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(body)
		case http.MethodDelete:
			delete(kv.data, key)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, kv
}

type testEnv struct {
	server *Server
	store  *kvstore.Client
	kv     *fakeKV
}

// newTestEnv wires a full server against fake kvstore, compression and
// LLM backends.
func newTestEnv(t *testing.T, llmText string) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	kvSrv, kv := newFakeKV(t)
	store := kvstore.NewClient(kvSrv.URL, "kv-key")

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text, _ := json.Marshal(llmText)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` + string(text) + `}]}}]}`))
	}))
	t.Cleanup(llmSrv.Close)
	llmClient := llm.NewClientWithBaseURL(llmSrv.URL, "k", "test-model")

	compSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"compressed_prompt":"compressed page content"}`))
	}))
	t.Cleanup(compSrv.Close)
	compressor := compress.NewCompressor(compress.NewClient(compSrv.URL, "k"), "m", compress.DefaultRate, log)

	extractor := pipeline.NewExtractor(compressor, categorize.New(llmClient, log), store, time.Hour, log)

	cfg := config.Config{
		APIKey:         testAPIKey,
		MaxUploadBytes: 10 << 20,
	}
	return &testEnv{
		server: NewServer(store, extractor, llmClient, log, cfg),
		store:  store,
		kv:     kv,
	}
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, "{}")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/manuals", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/manuals", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/manuals", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return authed(req)
}

func TestUploadManual(t *testing.T) {
	env := newTestEnv(t, "{}")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, multipartUpload(t, "toaster.txt", "Safety first.\n\nUnplug before cleaning the crumb tray."))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		ID        string `json:"id"`
		PageCount int    `json:"page_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.ID == "" {
		t.Error("expected a manual ID")
	}
	if res.PageCount < 1 {
		t.Errorf("expected at least one page, got %d", res.PageCount)
	}

	env.kv.mu.Lock()
	_, stored := env.kv.data["manuals/"+res.ID]
	env.kv.mu.Unlock()
	if !stored {
		t.Error("expected manual persisted")
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, multipartUpload(t, "manual.exe", "binary"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetManualNotFound(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/manuals/nope", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	env := newTestEnv(t, "{}")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func seedManual(t *testing.T, env *testEnv, m *manual.Manual) {
	t.Helper()
	if err := env.store.PutManual(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

func TestExtractReturnsJob(t *testing.T) {
	env := newTestEnv(t, `{"safety":[{"page":1,"text":"Unplug before cleaning"}]}`)
	seedManual(t, env, manual.New("m1", "Toaster", "toaster.txt", []manual.PageRecord{
		{PageNum: 1, Text: strings.Repeat("Unplug the appliance before cleaning. ", 3)},
	}))

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/manuals/m1/extract", nil)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.JobID == "" {
		t.Fatal("expected a job ID")
	}

	// The job must be pollable right away.
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/jobs/"+res.JobID, nil)))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 polling job, got %d", rec.Code)
	}
}

func TestExtractResponseWhileRunActive(t *testing.T) {
	// Slow LLM keeps the background run mutating the job while the
	// handler encodes its response; the race detector guards the read.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	kvSrv, _ := newFakeKV(t)
	store := kvstore.NewClient(kvSrv.URL, "kv-key")

	slowLLM := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	t.Cleanup(slowLLM.Close)
	llmClient := llm.NewClientWithBaseURL(slowLLM.URL, "k", "m")

	compSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"compressed_prompt":"compressed page content"}`))
	}))
	t.Cleanup(compSrv.Close)
	compressor := compress.NewCompressor(compress.NewClient(compSrv.URL, "k"), "m", compress.DefaultRate, log)

	extractor := pipeline.NewExtractor(compressor, categorize.New(llmClient, log), store, time.Hour, log)
	srv := NewServer(store, extractor, llmClient, log, config.Config{APIKey: testAPIKey, MaxUploadBytes: 10 << 20})

	env := &testEnv{server: srv, store: store}
	seedManual(t, env, manual.New("m1", "Toaster", "toaster.txt", []manual.PageRecord{
		{PageNum: 1, Text: strings.Repeat("Unplug the appliance before cleaning. ", 3)},
	}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/manuals/m1/extract", nil)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status == "" {
		t.Error("expected a status in the accepted response")
	}
}

func TestAskAnswersFromBuckets(t *testing.T) {
	env := newTestEnv(t, "Unplug the toaster before cleaning it.")
	m := manual.New("m1", "Toaster", "toaster.txt", []manual.PageRecord{{PageNum: 1, Text: "page text"}})
	m.ReplaceBuckets(manual.Buckets{
		manual.CategorySafety: {{Page: 1, Text: "Unplug before cleaning"}},
	}, time.Now())
	seedManual(t, env, m)

	body := strings.NewReader(`{"question":"Is it dangerous to clean while plugged in?"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/manuals/m1/ask", body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Answer   string `json:"answer"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Answer == "" {
		t.Error("expected an answer")
	}
	if res.Category != string(manual.CategorySafety) {
		t.Errorf("expected safety category, got %q", res.Category)
	}

	// Usage counter for the answered category gets bumped.
	env.kv.mu.Lock()
	_, bumped := env.kv.data["metrics/usage/"+res.Category]
	env.kv.mu.Unlock()
	if !bumped {
		t.Error("expected usage counter written")
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	env := newTestEnv(t, "{}")
	seedManual(t, env, manual.New("m1", "Toaster", "toaster.txt", []manual.PageRecord{{PageNum: 1, Text: "text"}}))

	body := strings.NewReader(`{"question":"  "}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/manuals/m1/ask", body))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, "{}")

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/settings/compress_rate", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unset setting, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := authed(httptest.NewRequest(http.MethodPut, "/api/settings/compress_rate", strings.NewReader(`0.9`)))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/settings/compress_rate", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if string(res.Value) != "0.9" {
		t.Errorf("expected value 0.9, got %s", res.Value)
	}
}

func TestDeleteManual(t *testing.T) {
	env := newTestEnv(t, "{}")
	seedManual(t, env, manual.New("m1", "Toaster", "toaster.txt", []manual.PageRecord{{PageNum: 1, Text: "text"}}))

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodDelete, "/api/manuals/m1", nil)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, authed(httptest.NewRequest(http.MethodGet, "/api/manuals/m1", nil)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}
