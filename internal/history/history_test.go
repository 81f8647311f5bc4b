package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmill/drover/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/history.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(t *testing.T, s *Store, url string, outcome types.Outcome, token string, at time.Time) {
	t.Helper()
	done := at.Add(time.Minute)
	err := s.Record(context.Background(), &Attempt{
		ID:           uuid.New().String(),
		ItemURL:      url,
		Agent:        "claude",
		Attempt:      1,
		Outcome:      outcome,
		SessionToken: token,
		StartedAt:    at,
		CompletedAt:  &done,
	})
	require.NoError(t, err)
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record(t, store, "https://github.com/o/r/issues/1", types.OutcomeDone, "", base)
	record(t, store, "https://github.com/o/r/issues/2", types.OutcomeFailed, "", base.Add(time.Hour))

	all, err := store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "https://github.com/o/r/issues/2", all[0].ItemURL, "newest first")

	one, err := store.List(ctx, "https://github.com/o/r/issues/1", 0)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, types.OutcomeDone, one[0].Outcome)
	require.NotNil(t, one[0].CompletedAt)
}

func TestResumable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	url := "https://github.com/o/r/issues/3"

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record(t, store, url, types.OutcomeFailed, "", base)
	record(t, store, url, types.OutcomeLimit, "sess-99", base.Add(time.Hour))

	a, err := store.Resumable(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "sess-99", a.SessionToken)

	none, err := store.Resumable(ctx, "https://github.com/o/r/issues/4")
	require.NoError(t, err)
	assert.Nil(t, none)
}
