// Package checkpoint persists per-document progress so an interrupted run can
// resume where it stopped.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dgallion1/chunkgate/internal/chunker"
)

// Status is the persisted lifecycle status.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

// Phase is the lifecycle state as seen from outside a run.
type Phase string

const (
	PhaseNotStarted  Phase = "NOT_STARTED"
	PhaseInProgress  Phase = "IN_PROGRESS"
	PhaseInterrupted Phase = "INTERRUPTED"
	PhaseComplete    Phase = "COMPLETE"
)

// ErrBackward is returned when a save would lower LastCompletedPage.
var ErrBackward = errors.New("checkpoint would move backward")

// State is everything needed to resume a document.
type State struct {
	DocumentID        string        `json:"document_id"`
	Status            Status        `json:"status"`
	TotalPages        int           `json:"total_pages,omitempty"`
	LastCompletedPage int           `json:"last_completed_page"`
	SequenceIndex     int           `json:"sequence_index"`
	AcceptedCount     int           `json:"accepted_count"`
	RejectedCount     int           `json:"rejected_count"`
	LLMCallsMade      int           `json:"llm_calls_made"`
	BudgetExhausted   bool          `json:"budget_exhausted,omitempty"`
	Carry             chunker.State `json:"carry"`
	PrevContentHash   uint64        `json:"prev_content_hash,omitempty"`
	AcceptedOffset    int64         `json:"accepted_offset"`
	RejectedOffset    int64         `json:"rejected_offset"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// PhaseOf derives the lifecycle phase. active reports whether a run currently
// owns the document.
func PhaseOf(s *State, active bool) Phase {
	switch {
	case s == nil || s.Status == StatusNotStarted:
		if active {
			return PhaseInProgress
		}
		return PhaseNotStarted
	case s.Status == StatusComplete:
		return PhaseComplete
	case active:
		return PhaseInProgress
	}
	return PhaseInterrupted
}

// Store is a key-value store of checkpoint states keyed by document ID.
type Store interface {
	// Load returns nil, nil when no checkpoint exists.
	Load(ctx context.Context, docID string) (*State, error)
	// Save persists s durably. It fails with ErrBackward when s would lower
	// the stored LastCompletedPage.
	Save(ctx context.Context, s *State) error
	Delete(ctx context.Context, docID string) error
	List(ctx context.Context) ([]State, error)
	Close() error
}

func checkForward(prev, next *State) error {
	if prev != nil && next.LastCompletedPage < prev.LastCompletedPage {
		return fmt.Errorf("%w: %s page %d < %d", ErrBackward, next.DocumentID, next.LastCompletedPage, prev.LastCompletedPage)
	}
	return nil
}

var unsafeKeyRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Key maps a document ID onto a name safe for file names and URL paths.
func Key(docID string) string {
	return unsafeKeyRe.ReplaceAllString(docID, "_")
}
