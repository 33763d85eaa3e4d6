package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/config"
	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/parser"
	"github.com/dgallion1/chunkgate/internal/validate"
)

// ErrQueueFull is returned by Submit when the queue cannot take another job.
var ErrQueueFull = errors.New("job queue is full")

// JudgeFactory builds the judge for a job's resolved parameters.
type JudgeFactory func(params config.Params) (judge.Judge, error)

// Orchestrator runs queued document jobs on a bounded worker pool. All jobs
// share one checkpoint store, one judge call budget and one latency window.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	pool     *ants.Pool
	store    checkpoint.Store
	budget   *validate.Budget
	stats    *judge.LLMStats
	newJudge JudgeFactory
	log      *slog.Logger
	cfg      config.Config

	mu      sync.Mutex
	running map[string]string // doc ID -> job ID
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. budget may be nil, in which case every
// job gets its own budget from its parameters.
func NewOrchestrator(cfg config.Config, store checkpoint.Store, budget *validate.Budget, newJudge JudgeFactory, log *slog.Logger) (*Orchestrator, error) {
	pool, err := ants.NewPool(max(cfg.WorkerCount, 1))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	if newJudge == nil {
		newJudge = func(p config.Params) (judge.Judge, error) {
			return judge.New(p.JudgeConfig(cfg.ProviderKey(p.Semantic.Provider)))
		}
	}
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, max(cfg.MaxQueueSize, 1)),
		pool:     pool,
		store:    store,
		budget:   budget,
		stats:    judge.NewLLMStats(time.Hour),
		newJudge: newJudge,
		log:      log,
		cfg:      cfg,
		running:  make(map[string]string),
	}, nil
}

// Start launches the dispatcher and the job store cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for job := range o.queue {
			o.wg.Add(1)
			if err := o.pool.Submit(func() {
				defer o.wg.Done()
				o.process(workerCtx, job)
			}); err != nil {
				o.wg.Done()
				o.finish(job, StatusFailed, "dispatch", fmt.Sprintf("dispatch: %s", err))
			}
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels running jobs, which end at their next batch boundary with a
// valid checkpoint, and waits for them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	o.pool.Release()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("orchestrator stopped")
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// StopJob requests cancellation of a job. It reports false for unknown or
// finished jobs.
func (o *Orchestrator) StopJob(id string) bool {
	job := o.jobs.Get(id)
	if job == nil {
		return false
	}
	return job.Stop()
}

// Active reports whether a job currently owns docID.
func (o *Orchestrator) Active(docID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[docID]
	return ok
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Store returns the shared checkpoint store.
func (o *Orchestrator) Store() checkpoint.Store { return o.store }

// LLMStats returns the shared judge latency window.
func (o *Orchestrator) LLMStats() *judge.LLMStats { return o.stats }

// Budget returns the shared call budget, or nil when budgets are per job.
func (o *Orchestrator) Budget() *validate.Budget { return o.budget }

func (o *Orchestrator) claim(job *Job) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.running[job.DocID]; busy {
		return false
	}
	o.running[job.DocID] = job.ID
	return true
}

func (o *Orchestrator) release(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, job.DocID)
}

func (o *Orchestrator) finish(job *Job, status JobStatus, phase, errMsg string) {
	if p := job.Path(); p != "" {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.Warn("remove upload failed", "job_id", job.ID, "path", p, "error", err)
		}
	}
	if errMsg != "" {
		job.AddError(errMsg)
	}
	job.SetStatus(status, phase)
}

// process runs one job to a terminal status.
func (o *Orchestrator) process(ctx context.Context, job *Job) {
	log := o.log.With("job_id", job.ID, "doc_id", job.DocID)

	if ctx.Err() != nil {
		o.finish(job, StatusInterrupted, "shutdown", "")
		return
	}
	if !o.claim(job) {
		log.Warn("document already running")
		o.finish(job, StatusFailed, "claim", "document is already being processed")
		return
	}
	defer o.release(job)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !job.setCancel(cancel) {
		o.finish(job, StatusInterrupted, "stopped", "")
		return
	}

	job.SetStatus(StatusRunning, "resolving")
	overrides := map[string]any{}
	if !job.Resume {
		config.SetPath(overrides, "runtime.resume", false)
	}
	params, err := config.Resolve(jobCtx, job.Strategy, "", overrides)
	if err != nil {
		log.Error("resolve parameters failed", "error", err)
		o.finish(job, StatusFailed, "resolving", fmt.Sprintf("config: %s", err))
		return
	}

	opts := []RunnerOption{WithStats(o.stats)}
	if o.budget != nil {
		opts = append(opts, WithBudget(o.budget))
	}
	if params.Semantic.Enabled {
		j, err := o.newJudge(params)
		if err != nil {
			log.Error("create judge failed", "error", err)
			o.finish(job, StatusFailed, "resolving", fmt.Sprintf("judge: %s", err))
			return
		}
		if c, ok := j.(interface{ Close() }); ok {
			defer c.Close()
		}
		opts = append(opts, WithJudge(j))
	}

	job.SetStatus(StatusRunning, "parsing")
	src, err := parser.Open(job.Path(), job.DocID, parser.Options{
		FallbackPdftotext: o.cfg.PDFFallbackPdftotext,
		Normalize:         params.Runtime.Normalize,
	})
	if err != nil {
		log.Error("open document failed", "error", err)
		o.finish(job, StatusFailed, "parsing", fmt.Sprintf("parse: %s", err))
		return
	}
	defer src.Close()

	job.SetStatus(StatusRunning, "processing")
	runner := NewRunner(params, o.store, log, opts...)
	res, err := runner.Run(jobCtx, Document{
		ID:        job.DocID,
		Source:    src,
		OutputDir: o.cfg.OutputDir,
		Force:     job.Force,
		Progress:  job.Observe,
	})
	if res != nil {
		job.Observe(res.Checkpoint)
		job.setStats(res.Stats)
	}

	switch {
	case err == nil && res.Outcome == OutcomeSkipped:
		o.finish(job, StatusSkipped, "done", "")
	case err == nil:
		o.finish(job, StatusCompleted, "done", "")
	case errors.Is(err, ErrInterrupted):
		log.Info("job interrupted", "error", err)
		o.finish(job, StatusInterrupted, "stopped", "")
	default:
		log.Error("run failed", "error", err)
		o.finish(job, StatusFailed, "processing", err.Error())
	}
}
