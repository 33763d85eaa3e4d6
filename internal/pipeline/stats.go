package pipeline

import (
	"time"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/record"
	"github.com/dgallion1/chunkgate/internal/validate"
)

// RunStats is written to stats.json next to the sinks. Counters under
// "session" cover only the pages processed by this invocation; the totals
// come from the checkpoint and span resumed runs.
type RunStats struct {
	DocumentID      string        `json:"document_id"`
	Status          string        `json:"status"`
	TotalPages      int           `json:"total_pages"`
	LastPage        int           `json:"last_completed_page"`
	TotalAccepted   int           `json:"total_accepted"`
	TotalRejected   int           `json:"total_rejected"`
	TotalLLMCalls   int           `json:"total_llm_calls"`
	BudgetUsed      int           `json:"budget_used"`
	BudgetMax       int           `json:"budget_max"`
	BudgetExhausted bool          `json:"budget_exhausted"`
	ResumedFromPage int           `json:"resumed_from_page,omitempty"`
	DurationMs      int64         `json:"duration_ms"`
	Session         SessionCounts `json:"session"`

	// Session counters, also exposed flat for callers.
	PagesProcessed int `json:"-"`
	Accepted       int `json:"-"`
	Rejected       int `json:"-"`

	tokenSum int
	scoreSum float64
}

// SessionCounts breaks down the candidates seen in one invocation.
type SessionCounts struct {
	PagesProcessed   int                   `json:"pages_processed"`
	Candidates       int                   `json:"candidates"`
	Accepted         int                   `json:"accepted"`
	Rejected         int                   `json:"rejected"`
	RejectedByReason map[record.Reason]int `json:"rejected_by_reason"`
	LLMSelected      int                   `json:"llm_selected"`
	LLMEvaluated     int                   `json:"llm_evaluated"`
	LLMBypassed      int                   `json:"llm_bypassed"`
	LLMCalls         int                   `json:"llm_calls"`
	LLMGood          int                   `json:"llm_good"`
	LLMFair          int                   `json:"llm_fair"`
	LLMPoor          int                   `json:"llm_poor"`
	AvgTokens        float64               `json:"avg_chunk_tokens"`
	AvgRuleScore     float64               `json:"avg_rule_score"`
}

func newRunStats(docID string) RunStats {
	return RunStats{
		DocumentID: docID,
		Session:    SessionCounts{RejectedByReason: map[record.Reason]int{}},
	}
}

func (s *RunStats) observe(c record.Candidate, rev validate.Review) {
	s.Session.Candidates++
	s.tokenSum += c.TokenCount
	s.scoreSum += rev.Verdict.RuleScore

	if rev.Verdict.Accepted() {
		s.Accepted++
	} else {
		s.Rejected++
		s.Session.RejectedByReason[rev.Verdict.Reason]++
	}

	if rev.Selected {
		s.Session.LLMSelected++
	}
	if rev.Bypassed {
		s.Session.LLMBypassed++
	}
	s.Session.LLMCalls += rev.Calls
	if rev.Evaluated {
		s.Session.LLMEvaluated++
		switch rev.Verdict.LLMQuality {
		case record.QualityGood:
			s.Session.LLMGood++
		case record.QualityFair:
			s.Session.LLMFair++
		case record.QualityPoor:
			s.Session.LLMPoor++
		}
	}
}

func (s *RunStats) finish(st checkpoint.State, budget *validate.Budget, elapsed time.Duration) {
	s.Status = string(st.Status)
	s.TotalPages = st.TotalPages
	s.LastPage = st.LastCompletedPage
	s.TotalAccepted = st.AcceptedCount
	s.TotalRejected = st.RejectedCount
	s.TotalLLMCalls = st.LLMCallsMade
	s.BudgetUsed = budget.Used()
	s.BudgetMax = budget.Max()
	s.BudgetExhausted = budget.Exhausted()
	s.DurationMs = elapsed.Milliseconds()

	s.Session.PagesProcessed = s.PagesProcessed
	s.Session.Accepted = s.Accepted
	s.Session.Rejected = s.Rejected
	if n := s.Session.Candidates; n > 0 {
		s.Session.AvgTokens = float64(s.tokenSum) / float64(n)
		s.Session.AvgRuleScore = s.scoreSum / float64(n)
	}
}
