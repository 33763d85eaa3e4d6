package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/record"
)

// SemanticConfig controls the LLM gate.
type SemanticConfig struct {
	Enabled          bool
	OnlyEdge         bool
	Band             float64 // uncertainty band around RequiredMinScore
	RequiredMinScore float64
	Retries          int
	Timeout          time.Duration // per evaluation, retries included
}

// Review is the outcome of passing one candidate through the semantic gate.
type Review struct {
	Verdict   record.Verdict
	Selected  bool
	Evaluated bool
	Bypassed  bool // selected but skipped because the budget was spent
	Calls     int
	Outcome   judge.Outcome
}

// SemanticValidator applies an LLM judge to edge candidates.
type SemanticValidator struct {
	judge   judge.Judge
	budget  *Budget
	cfg     SemanticConfig
	stats   *judge.LLMStats
	log     *slog.Logger
	backoff func(attempt int) time.Duration
}

func NewSemanticValidator(j judge.Judge, budget *Budget, cfg SemanticConfig, stats *judge.LLMStats, log *slog.Logger) *SemanticValidator {
	if cfg.Retries <= 0 {
		cfg.Retries = judge.DefaultRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &SemanticValidator{
		judge:   j,
		budget:  budget,
		cfg:     cfg,
		stats:   stats,
		log:     log,
		backoff: judge.Backoff,
	}
}

// Selects reports whether c would be sent to the judge given its rule score.
func (s *SemanticValidator) Selects(c record.Candidate, ruleScore float64) bool {
	if s == nil || !s.cfg.Enabled || s.judge == nil {
		return false
	}
	if !s.cfg.OnlyEdge {
		return true
	}
	if c.First || c.Last {
		return true
	}
	return math.Abs(ruleScore-s.cfg.RequiredMinScore) <= s.cfg.Band+1e-9
}

// Review evaluates c when selected and merges the judge's rating into v.
// Judge failures leave v untouched. Run cancellation does not cut an
// evaluation short; only the evaluation timeout does.
func (s *SemanticValidator) Review(ctx context.Context, c record.Candidate, v record.Verdict) Review {
	out := Review{Verdict: v}
	if !s.Selects(c, v.RuleScore) {
		return out
	}
	out.Selected = true

	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	req := judge.Request{
		Content: c.Content,
		Context: fmt.Sprintf("document %s, pages %d-%d, chunk %d", c.DocumentID, c.PageStart, c.PageEnd, c.SequenceIndex),
	}

	start := time.Now()
	var (
		resp judge.Response
		err  error
	)
	for attempt := 0; attempt < s.cfg.Retries; attempt++ {
		if !s.budget.TryAcquire() {
			if out.Calls == 0 {
				out.Bypassed = true
				return out
			}
			break
		}
		out.Calls++
		resp, err = s.judge.Judge(ectx, req)
		if err == nil || !judge.IsRetryable(err) || attempt == s.cfg.Retries-1 {
			break
		}
		wait := s.backoff(attempt)
		s.log.Warn("retrying judge call", "chunk_seq", c.SequenceIndex, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ectx.Done():
			err = fmt.Errorf("judge retry: %w", ectx.Err())
		}
		if ectx.Err() != nil {
			break
		}
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		out.Outcome = judge.OutcomeOK
	case errors.Is(err, judge.ErrMalformed):
		out.Outcome = judge.OutcomeMalformed
	case errors.Is(err, context.DeadlineExceeded) || ectx.Err() != nil:
		out.Outcome = judge.OutcomeTimeout
	default:
		out.Outcome = judge.OutcomeError
	}
	s.stats.Record(elapsed, out.Outcome)

	if err != nil {
		s.log.Warn("judge evaluation failed, keeping rule verdict",
			"chunk_seq", c.SequenceIndex, "outcome", out.Outcome, "calls", out.Calls, "error", err)
		return out
	}

	out.Evaluated = true
	conf := resp.Confidence
	out.Verdict.LLMQuality = resp.Quality
	out.Verdict.LLMConfidence = &conf
	if resp.Quality == record.QualityPoor && out.Verdict.RuleAccepted {
		out.Verdict.Reason = record.ReasonSemantic
	}
	return out
}
