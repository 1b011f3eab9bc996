package pipeline

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the state of an extraction run.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusCompressing  JobStatus = "compressing"
	StatusCategorizing JobStatus = "categorizing"
	StatusStoring      JobStatus = "storing"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
)

// Job tracks the state of a single extraction run over one manual.
type Job struct {
	mu sync.Mutex

	ID       string    `json:"job_id"`
	ManualID string    `json:"manual_id"`
	Status   JobStatus `json:"status"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	errors []string
}

// Progress tracks per-page and result counts for live reporting.
type Progress struct {
	TotalPages      int      `json:"total_pages"`
	PagesCompressed int      `json:"pages_compressed"`
	PagesDropped    int      `json:"pages_dropped"`
	Categories      int      `json:"categories"`
	Items           int      `json:"items"`
	Errors          []string `json:"errors"`
}

// NewJob creates a queued job for the given manual.
func NewJob(manualID string, totalPages int) *Job {
	now := time.Now()
	return &Job{
		ID:        ulid.Make().String(),
		ManualID:  manualID,
		Status:    StatusQueued,
		Progress:  Progress{TotalPages: totalPages},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// PageCompressed advances the per-page progress counter.
func (j *Job) PageCompressed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesCompressed++
	j.UpdatedAt = time.Now()
}

// PageDropped records a page excluded from the compressed batch.
func (j *Job) PageDropped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesDropped++
	j.UpdatedAt = time.Now()
}

// SetResult records the categorization outcome.
func (j *Job) SetResult(categories, items int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Categories = categories
	j.Progress.Items = items
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	ManualID string    `json:"manual_id"`
	Status   JobStatus `json:"status"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:       j.ID,
		ManualID: j.ManualID,
		Status:   j.Status,
		Progress: Progress{
			TotalPages:      j.Progress.TotalPages,
			PagesCompressed: j.Progress.PagesCompressed,
			PagesDropped:    j.Progress.PagesDropped,
			Categories:      j.Progress.Categories,
			Items:           j.Progress.Items,
			Errors:          errs,
		},
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
