package validate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/record"
)

type fakeJudge struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (judge.Response, error)
}

func (f *fakeJudge) Name() string { return "fake" }

func (f *fakeJudge) Judge(ctx context.Context, _ judge.Request) (judge.Response, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

func answer(q record.Quality) *fakeJudge {
	return &fakeJudge{fn: func(context.Context, int32) (judge.Response, error) {
		return judge.Response{Quality: q, Confidence: 0.9}, nil
	}}
}

func newSemantic(j judge.Judge, maxCalls int, cfg SemanticConfig) *SemanticValidator {
	cfg.Enabled = true
	if cfg.RequiredMinScore == 0 {
		cfg.RequiredMinScore = 0.6
	}
	s := NewSemanticValidator(j, NewBudget(maxCalls, nil), cfg, judge.NewLLMStats(time.Hour), nil)
	s.backoff = func(int) time.Duration { return time.Millisecond }
	return s
}

var accepted = record.Verdict{RuleScore: 0.95, RuleAccepted: true}

func TestSemantic_PoorOverridesRuleAcceptance(t *testing.T) {
	s := newSemantic(answer(record.QualityPoor), 10, SemanticConfig{})
	r := s.Review(context.Background(), record.Candidate{First: true}, accepted)

	require.True(t, r.Evaluated)
	require.False(t, r.Verdict.Accepted())
	require.Equal(t, record.ReasonSemantic, r.Verdict.Reason)
	require.Equal(t, record.QualityPoor, r.Verdict.LLMQuality)
	require.NotNil(t, r.Verdict.LLMConfidence)
}

func TestSemantic_GoodDoesNotOverrideRuleRejection(t *testing.T) {
	s := newSemantic(answer(record.QualityGood), 10, SemanticConfig{})
	rejected := record.Verdict{RuleScore: 0.2, Reason: record.ReasonLength}
	r := s.Review(context.Background(), record.Candidate{Last: true}, rejected)

	require.True(t, r.Evaluated)
	require.False(t, r.Verdict.Accepted())
	require.Equal(t, record.ReasonLength, r.Verdict.Reason)
}

func TestSemantic_EdgeSelection(t *testing.T) {
	s := newSemantic(answer(record.QualityGood), 10, SemanticConfig{OnlyEdge: true, Band: 0.1})

	require.True(t, s.Selects(record.Candidate{First: true}, 0.99))
	require.True(t, s.Selects(record.Candidate{Last: true}, 0.99))
	require.True(t, s.Selects(record.Candidate{}, 0.65))
	require.True(t, s.Selects(record.Candidate{}, 0.5))
	require.False(t, s.Selects(record.Candidate{}, 0.85))
	require.False(t, s.Selects(record.Candidate{}, 0.3))

	all := newSemantic(answer(record.QualityGood), 10, SemanticConfig{OnlyEdge: false})
	require.True(t, all.Selects(record.Candidate{}, 0.99))

	var disabled *SemanticValidator
	require.False(t, disabled.Selects(record.Candidate{First: true}, 0.6))
}

func TestSemantic_TimeoutKeepsRuleVerdict(t *testing.T) {
	slow := &fakeJudge{fn: func(ctx context.Context, _ int32) (judge.Response, error) {
		<-ctx.Done()
		return judge.Response{}, ctx.Err()
	}}
	s := newSemantic(slow, 10, SemanticConfig{Timeout: 20 * time.Millisecond})
	r := s.Review(context.Background(), record.Candidate{First: true}, accepted)

	require.False(t, r.Evaluated)
	require.Equal(t, judge.OutcomeTimeout, r.Outcome)
	require.True(t, r.Verdict.Accepted())
	require.Empty(t, r.Verdict.LLMQuality)
	require.Nil(t, r.Verdict.LLMConfidence)
}

func TestSemantic_MalformedKeepsRuleVerdict(t *testing.T) {
	bad := &fakeJudge{fn: func(context.Context, int32) (judge.Response, error) {
		return judge.Parse("no idea")
	}}
	s := newSemantic(bad, 10, SemanticConfig{})
	r := s.Review(context.Background(), record.Candidate{First: true}, accepted)

	require.Equal(t, judge.OutcomeMalformed, r.Outcome)
	require.Equal(t, 1, r.Calls)
	require.True(t, r.Verdict.Accepted())
}

func TestSemantic_RetriesConsumeBudget(t *testing.T) {
	flaky := &fakeJudge{fn: func(_ context.Context, n int32) (judge.Response, error) {
		if n < 3 {
			return judge.Response{}, &judge.RetryableError{StatusCode: 503}
		}
		return judge.Response{Quality: record.QualityFair, Confidence: 0.5}, nil
	}}
	s := newSemantic(flaky, 10, SemanticConfig{Retries: 3})
	r := s.Review(context.Background(), record.Candidate{First: true}, accepted)

	require.True(t, r.Evaluated)
	require.Equal(t, 3, r.Calls)
	require.Equal(t, 3, s.budget.Used())
	require.Equal(t, record.QualityFair, r.Verdict.LLMQuality)
}

func TestSemantic_BudgetCeiling(t *testing.T) {
	j := answer(record.QualityGood)
	s := newSemantic(j, 4, SemanticConfig{OnlyEdge: false})

	var evaluated, bypassed int
	for i := 0; i < 10; i++ {
		r := s.Review(context.Background(), record.Candidate{SequenceIndex: i}, accepted)
		if r.Evaluated {
			evaluated++
		}
		if r.Bypassed {
			bypassed++
			require.True(t, r.Verdict.Accepted())
			require.Empty(t, r.Verdict.LLMQuality)
		}
	}
	require.Equal(t, 4, evaluated)
	require.Equal(t, 6, bypassed)
	require.EqualValues(t, 4, j.calls.Load())
	require.True(t, s.budget.Exhausted())
}

func TestSemantic_IgnoresRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newSemantic(answer(record.QualityGood), 10, SemanticConfig{})
	r := s.Review(ctx, record.Candidate{First: true}, accepted)
	require.True(t, r.Evaluated)
}

func TestBudgetCharge(t *testing.T) {
	b := NewBudget(5, nil)
	b.Charge(4)
	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())
	require.Equal(t, 5, b.Used())
	require.True(t, b.Exhausted())
}
