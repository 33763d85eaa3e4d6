package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
)

// JobStatus represents the state of a queued document run.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusRunning     JobStatus = "running"
	StatusCompleted   JobStatus = "completed"
	StatusSkipped     JobStatus = "skipped"
	StatusInterrupted JobStatus = "interrupted"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusInterrupted, StatusFailed:
		return true
	}
	return false
}

// Job tracks one document run submitted through the API.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	DocID    string `json:"doc_id"`
	Filename string `json:"filename"`
	Strategy string `json:"strategy"`
	Force    bool   `json:"force"`
	Resume   bool   `json:"resume"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	path    string
	stats   *RunStats
	errors  []string
	cancel  context.CancelFunc
	stopped bool
}

// Progress mirrors the latest committed checkpoint of the job's document.
type Progress struct {
	LastCompletedPage int      `json:"last_completed_page"`
	TotalPages        int      `json:"total_pages"`
	Accepted          int      `json:"accepted"`
	Rejected          int      `json:"rejected"`
	LLMCalls          int      `json:"llm_calls"`
	Errors            []string `json:"errors"`
}

// NewJob creates a queued job for the uploaded file at path.
func NewJob(docID, filename, path string) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		DocID:     docID,
		Filename:  filename,
		Resume:    true,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		path:      path,
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

// Cleanup removes finished jobs older than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
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

// Observe copies checkpoint counters into the job's progress.
func (j *Job) Observe(s checkpoint.State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.LastCompletedPage = s.LastCompletedPage
	j.Progress.TotalPages = s.TotalPages
	j.Progress.Accepted = s.AcceptedCount
	j.Progress.Rejected = s.RejectedCount
	j.Progress.LLMCalls = s.LLMCallsMade
	j.UpdatedAt = time.Now()
}

func (j *Job) setStats(s RunStats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats = &s
}

// setCancel installs the run's cancel func. It reports false when Stop was
// already requested, in which case the run should not start.
func (j *Job) setCancel(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
	return !j.stopped
}

// Stop requests cancellation. The run ends at the next batch boundary.
func (j *Job) Stop() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.stopped = true
	if j.cancel != nil {
		j.cancel()
	}
	j.Phase = "stopping"
	j.UpdatedAt = time.Now()
	return true
}

// Path returns the uploaded file location.
func (j *Job) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.path
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Strategy  string    `json:"strategy"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Progress  Progress  `json:"progress"`
	Stats     *RunStats `json:"stats,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := j.Progress
	progress.Errors = append([]string{}, j.Progress.Errors...)
	var stats *RunStats
	if j.stats != nil {
		s := *j.stats
		stats = &s
	}
	return JobSnapshot{
		ID:        j.ID,
		DocID:     j.DocID,
		Filename:  j.Filename,
		Strategy:  j.Strategy,
		Status:    j.Status,
		Phase:     j.Phase,
		Progress:  progress,
		Stats:     stats,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
