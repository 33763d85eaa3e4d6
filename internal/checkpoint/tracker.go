package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/dgallion1/chunkgate/internal/chunker"
)

// Tracker owns the in-memory checkpoint of one document during a run and
// writes every change through to the store.
type Tracker struct {
	store Store
	state State
	now   func() time.Time
}

func NewTracker(store Store, initial State) *Tracker {
	return &Tracker{store: store, state: initial, now: time.Now}
}

// State returns a copy of the current state.
func (t *Tracker) State() State { return t.state }

// Commit applies update and saves the result synchronously. The in-memory
// state only changes when the save succeeds.
func (t *Tracker) Commit(ctx context.Context, update func(*State)) error {
	next := t.state
	next.Carry.Window = append([]chunker.Word(nil), t.state.Carry.Window...)
	update(&next)
	if err := checkForward(&t.state, &next); err != nil {
		return err
	}
	next.UpdatedAt = t.now().UTC()
	if err := t.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", next.DocumentID, err)
	}
	t.state = next
	return nil
}
