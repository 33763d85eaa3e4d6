package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/chunker"
	"github.com/dgallion1/chunkgate/internal/config"
	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/parser"
	"github.com/dgallion1/chunkgate/internal/record"
	"github.com/dgallion1/chunkgate/internal/sink"
	"github.com/dgallion1/chunkgate/internal/validate"
)

var (
	// ErrInterrupted is returned when a run stops on cancellation. The
	// checkpoint reflects the last committed batch.
	ErrInterrupted = errors.New("run interrupted")
	// ErrCheckpoint wraps checkpoint persistence failures, which end the run.
	ErrCheckpoint = errors.New("checkpoint failure")
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeComplete    Outcome = "complete"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// Document is one input to a run.
type Document struct {
	ID     string
	Source parser.Source
	// OutputDir is the sink root; files go to OutputDir/<ID>/. Empty discards
	// all output.
	OutputDir string
	Force     bool
	// Progress, when set, is called after every committed batch.
	Progress func(checkpoint.State)
}

// Runner drives documents through chunking, both validation layers and the
// sinks, committing a checkpoint after every page batch.
type Runner struct {
	params config.Params
	store  checkpoint.Store
	judge  judge.Judge
	budget *validate.Budget
	stats  *judge.LLMStats
	log    *slog.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithJudge enables the semantic layer. Without a judge every candidate is
// decided by the rule layer alone.
func WithJudge(j judge.Judge) RunnerOption {
	return func(r *Runner) { r.judge = j }
}

// WithBudget shares one call budget across all documents of this runner.
// Without it each document gets its own budget of semantic.max_calls.
func WithBudget(b *validate.Budget) RunnerOption {
	return func(r *Runner) { r.budget = b }
}

// WithStats records judge latency into s.
func WithStats(s *judge.LLMStats) RunnerOption {
	return func(r *Runner) { r.stats = s }
}

func NewRunner(params config.Params, store checkpoint.Store, log *slog.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if !params.Runtime.EnableCheckpoint || store == nil {
		store = checkpoint.NewMemoryStore()
	}
	r := &Runner{params: params, store: store, log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Result summarizes one run.
type Result struct {
	DocumentID string           `json:"document_id"`
	Outcome    Outcome          `json:"outcome"`
	Stats      RunStats         `json:"stats"`
	Checkpoint checkpoint.State `json:"checkpoint"`
}

// run holds the mutable state of one document run.
type run struct {
	params   config.Params
	doc      Document
	log      *slog.Logger
	chunker  *chunker.Chunker
	rules    validate.RuleValidator
	semantic *validate.SemanticValidator
	budget   *validate.Budget
	out      sink.Writer
	tracker  *checkpoint.Tracker
	prevHash uint64
	calls    int
	accepted int
	rejected int
	stats    RunStats
}

// Run processes doc to completion, resuming from its checkpoint when one
// exists and resume is enabled. A completed document is skipped unless
// doc.Force is set.
func (r *Runner) Run(ctx context.Context, doc Document) (*Result, error) {
	log := r.log.With("doc_id", doc.ID)
	started := time.Now()

	prev, err := r.store.Load(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrCheckpoint, doc.ID, err)
	}
	if prev != nil && prev.Status == checkpoint.StatusComplete && !doc.Force {
		log.Info("document already complete, skipping")
		return &Result{DocumentID: doc.ID, Outcome: OutcomeSkipped, Checkpoint: *prev}, nil
	}
	resume := prev != nil && r.params.Runtime.Resume && !doc.Force
	if prev != nil && !resume {
		log.Info("discarding checkpoint for fresh start", "last_completed_page", prev.LastCompletedPage)
		if err := r.store.Delete(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("%w: delete %s: %w", ErrCheckpoint, doc.ID, err)
		}
	}

	state := checkpoint.State{
		DocumentID: doc.ID,
		Status:     checkpoint.StatusInProgress,
		TotalPages: doc.Source.TotalPages(),
	}
	if resume {
		state = *prev
		state.Status = checkpoint.StatusInProgress
		if n := doc.Source.TotalPages(); n > 0 {
			state.TotalPages = n
		}
	}

	rn, err := r.newRun(doc, log, state)
	if err != nil {
		return nil, err
	}
	defer rn.out.Close()

	if resume {
		if err := doc.Source.ResumeFrom(state.LastCompletedPage + 1); err != nil {
			return nil, fmt.Errorf("resume source at page %d: %w", state.LastCompletedPage+1, err)
		}
		rn.stats.ResumedFromPage = state.LastCompletedPage + 1
		log.Info("resuming document", "from_page", state.LastCompletedPage+1, "sequence", state.SequenceIndex,
			"llm_calls_made", state.LLMCallsMade)
	}

	runErr := rn.process(ctx)

	res := &Result{DocumentID: doc.ID, Checkpoint: rn.tracker.State()}
	switch {
	case runErr == nil:
		res.Outcome = OutcomeComplete
	case errors.Is(runErr, ErrInterrupted):
		res.Outcome = OutcomeInterrupted
	default:
		res.Outcome = OutcomeFailed
	}
	rn.stats.finish(res.Checkpoint, rn.budget, time.Since(started))
	res.Stats = rn.stats

	if doc.OutputDir != "" && res.Outcome != OutcomeFailed {
		statsPath := filepath.Join(doc.OutputDir, doc.ID, sink.StatsFile)
		if err := sink.WriteJSON(context.WithoutCancel(ctx), statsPath, res.Stats); err != nil {
			log.Warn("write stats failed", "error", err)
		}
	}

	log.Info("run finished", "outcome", res.Outcome,
		"accepted", res.Checkpoint.AcceptedCount, "rejected", res.Checkpoint.RejectedCount,
		"llm_calls", res.Checkpoint.LLMCallsMade, "last_page", res.Checkpoint.LastCompletedPage)
	return res, runErr
}

func (r *Runner) newRun(doc Document, log *slog.Logger, state checkpoint.State) (*run, error) {
	counter, err := chunker.CounterFor(r.params.Chunk.Counter)
	if err != nil {
		return nil, err
	}
	ch := chunker.New(doc.ID, r.params.Chunk.Config, counter)
	ch.Restore(state.Carry)

	budget := r.budget
	if budget == nil {
		budget = validate.NewBudget(r.params.Semantic.MaxCalls, log)
	}
	budget.Charge(state.LLMCallsMade)

	var sem *validate.SemanticValidator
	if r.params.Semantic.Enabled && r.judge != nil {
		sem = validate.NewSemanticValidator(r.judge, budget, r.params.SemanticConfig(), r.stats, log)
	}

	var out sink.Writer = &sink.Discard{}
	if doc.OutputDir != "" {
		files, err := sink.OpenFiles(filepath.Join(doc.OutputDir, doc.ID),
			sink.Offsets{Accepted: state.AcceptedOffset, Rejected: state.RejectedOffset})
		if err != nil {
			return nil, fmt.Errorf("open sinks: %w", err)
		}
		out = files
	}

	return &run{
		params:   r.params,
		doc:      doc,
		log:      log,
		chunker:  ch,
		rules:    validate.NewRuleValidator(r.params.Quality),
		semantic: sem,
		budget:   budget,
		out:      out,
		tracker:  checkpoint.NewTracker(r.store, state),
		prevHash: state.PrevContentHash,
		calls:    state.LLMCallsMade,
		accepted: state.AcceptedCount,
		rejected: state.RejectedCount,
		stats:    newRunStats(doc.ID),
	}, nil
}

// process runs the reader and the batch loop. The reader ignores run
// cancellation so the batch loop decides where to stop; it only ends early
// when the loop itself has returned.
func (rn *run) process(ctx context.Context) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	pages := make(chan record.PageRecord, 1)

	g.Go(func() error {
		for {
			p, err := rn.doc.Source.Next(gctx)
			if errors.Is(err, io.EOF) {
				close(pages)
				return nil
			}
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}
			select {
			case pages <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var loopErr error
	g.Go(func() error {
		loopErr = rn.batches(ctx, gctx, pages)
		return loopErr
	})

	err := g.Wait()
	if loopErr != nil {
		return loopErr
	}
	return err
}

func (rn *run) batches(ctx, gctx context.Context, pages <-chan record.PageRecord) error {
	every := rn.params.Runtime.CheckpointEvery
	var (
		batch    []record.Candidate
		inBatch  int
		pending  *record.PageRecord
		lastPage = rn.tracker.State().LastCompletedPage
	)

	for {
		var (
			next record.PageRecord
			ok   bool
		)
		select {
		case next, ok = <-pages:
		case <-gctx.Done():
			// The reader failed; Wait reports its error.
			return nil
		}

		if pending != nil {
			final := !ok
			batch = append(batch, rn.chunker.Feed(*pending)...)
			lastPage = pending.PageNumber
			inBatch++
			rn.stats.PagesProcessed++
			if final {
				batch = append(batch, rn.chunker.Finish()...)
			}
			if final || inBatch >= every {
				if err := rn.commit(ctx, batch, lastPage, final); err != nil {
					return err
				}
				batch, inBatch = nil, 0
				if final {
					return nil
				}
				if ctx.Err() != nil {
					return fmt.Errorf("%w: %s stopped after page %d", ErrInterrupted, rn.doc.ID, lastPage)
				}
			}
		} else if !ok {
			// No pages left to read: either an empty document or a resume
			// with nothing after the last committed page.
			return rn.commit(ctx, rn.chunker.Finish(), lastPage, true)
		}

		if !ok {
			return nil
		}
		p := next
		pending = &p
	}
}

// commit validates and writes one batch of candidates, then makes the batch
// durable: sinks are flushed and synced before the checkpoint is saved.
func (rn *run) commit(ctx context.Context, batch []record.Candidate, lastPage int, final bool) error {
	for _, c := range batch {
		v := rn.rules.Validate(c, rn.prevHash)
		rn.prevHash = record.ContentHash(c.Content)

		rev := rn.semantic.Review(ctx, c, v)
		rn.calls += rev.Calls
		rn.stats.observe(c, rev)

		if rev.Verdict.Accepted() {
			rn.accepted++
			if err := rn.out.Accept(record.NewAccepted(c, rev.Verdict)); err != nil {
				return fmt.Errorf("write accepted chunk: %w", err)
			}
			continue
		}
		rn.rejected++
		if err := rn.out.Reject(record.NewRejected(c, rev.Verdict)); err != nil {
			return fmt.Errorf("write rejected chunk: %w", err)
		}
	}

	offsets, err := rn.out.Commit()
	if err != nil {
		return fmt.Errorf("commit sinks: %w", err)
	}

	carry := rn.chunker.State()
	err = rn.tracker.Commit(context.WithoutCancel(ctx), func(s *checkpoint.State) {
		s.LastCompletedPage = lastPage
		s.SequenceIndex = carry.Sequence
		s.Carry = carry
		s.PrevContentHash = rn.prevHash
		s.LLMCallsMade = rn.calls
		s.BudgetExhausted = rn.budget.Exhausted()
		s.AcceptedOffset = offsets.Accepted
		s.RejectedOffset = offsets.Rejected
		s.AcceptedCount = rn.accepted
		s.RejectedCount = rn.rejected
		if final {
			s.Status = checkpoint.StatusComplete
			if s.TotalPages < lastPage {
				s.TotalPages = lastPage
			}
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	rn.log.Debug("batch committed", "last_page", lastPage, "candidates", len(batch), "final", final)
	if rn.doc.Progress != nil {
		rn.doc.Progress(rn.tracker.State())
	}
	return nil
}
