package validate

import (
	"log/slog"
	"sync"
)

// Budget caps the number of judge calls across every document of a run.
// Each HTTP attempt, including retries, consumes one unit.
type Budget struct {
	mu        sync.Mutex
	max       int
	used      int
	exhausted bool
	log       *slog.Logger
}

func NewBudget(maxCalls int, log *slog.Logger) *Budget {
	if log == nil {
		log = slog.Default()
	}
	return &Budget{max: maxCalls, log: log}
}

// TryAcquire takes one unit. It returns false once the budget is spent;
// the first refusal is logged.
func (b *Budget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used < b.max {
		b.used++
		return true
	}
	if !b.exhausted {
		b.exhausted = true
		b.log.Warn("llm call budget exhausted, remaining candidates use rule verdict only",
			"max_calls", b.max, "used", b.used)
	}
	return false
}

// Charge records calls made by an earlier, interrupted run.
func (b *Budget) Charge(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.used += n
	b.mu.Unlock()
}

func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *Budget) Max() int { return b.max }

// Exhausted reports whether a call has been refused for lack of budget.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exhausted
}
