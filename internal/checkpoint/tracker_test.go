package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingStore struct{ *MemoryStore }

func (failingStore) Save(context.Context, *State) error { return errors.New("disk full") }

func TestTrackerCommit(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, State{DocumentID: "d", Status: StatusInProgress})
	ctx := context.Background()

	require.NoError(t, tr.Commit(ctx, func(s *State) {
		s.LastCompletedPage = 5
		s.AcceptedCount = 2
	}))
	require.Equal(t, 5, tr.State().LastCompletedPage)
	require.False(t, tr.State().UpdatedAt.IsZero())

	saved, err := store.Load(ctx, "d")
	require.NoError(t, err)
	require.Equal(t, 2, saved.AcceptedCount)

	err = tr.Commit(ctx, func(s *State) { s.LastCompletedPage = 4 })
	require.ErrorIs(t, err, ErrBackward)
	require.Equal(t, 5, tr.State().LastCompletedPage)
}

func TestTrackerCommitFailureKeepsState(t *testing.T) {
	tr := NewTracker(failingStore{NewMemoryStore()}, State{DocumentID: "d", LastCompletedPage: 2})
	err := tr.Commit(context.Background(), func(s *State) { s.LastCompletedPage = 3 })
	require.Error(t, err)
	require.Equal(t, 2, tr.State().LastCompletedPage)
}
