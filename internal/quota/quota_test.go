package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/storage"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) { return "", errors.New("boom") }
func (failingStore) Set(context.Context, string, string) error { return errors.New("boom") }
func (failingStore) Remove(context.Context, string) error { return errors.New("boom") }
func (failingStore) Close() error { return nil }

func TestConsumeUntilExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	tr := New(storage.NewMemory(), 2, WithClock(func() time.Time { return now }))

	assert.Equal(t, 2, tr.Remaining(ctx))
	require.NoError(t, tr.Consume(ctx))
	require.NoError(t, tr.Consume(ctx))
	assert.False(t, tr.Allow(ctx))
	assert.Equal(t, 0, tr.Remaining(ctx))

	err := tr.Consume(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, ai.CodeQuotaExhausted, ai.CodeOf(err))
	assert.Equal(t, 2, tr.Used(ctx))
}

func TestCounterResetsNextDay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2025, 5, 2, 23, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	tr := New(store, 1, WithClock(func() time.Time { return now }))
	require.NoError(t, tr.Consume(ctx))
	assert.False(t, tr.Allow(ctx))

	now = now.Add(2 * time.Hour)
	assert.True(t, tr.Allow(ctx))
	assert.Equal(t, 0, tr.Used(ctx))
}

func TestCounterPersistsAcrossTrackers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	require.NoError(t, New(store, 5, WithKey("q")).Consume(ctx))
	require.NoError(t, New(store, 5, WithKey("q")).Consume(ctx))

	assert.Equal(t, 3, New(store, 5, WithKey("q")).Remaining(ctx))
	assert.Equal(t, 5, New(store, 5).Remaining(ctx))
}

func TestUnlimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tr := New(storage.NewMemory(), 0)
	for range 10 {
		require.NoError(t, tr.Consume(ctx))
	}
	assert.Equal(t, -1, tr.Remaining(ctx))
	assert.True(t, tr.Allow(ctx))

	var nilTracker *Tracker
	assert.NoError(t, nilTracker.Consume(ctx))
	assert.True(t, nilTracker.Allow(ctx))
	assert.Equal(t, 0, nilTracker.Limit())
}

func TestCorruptedCounterResets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	require.NoError(t, store.Set(ctx, DefaultKey, "not json"))

	core, logs := observer.New(zap.WarnLevel)
	tr := New(store, 3, WithLogger(zap.New(core)))
	assert.Equal(t, 3, tr.Remaining(ctx))
	assert.Equal(t, 1, logs.FilterMessage("discarding corrupted ai quota").Len())
}

func TestStoreFailuresKeepCountingInMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	core, logs := observer.New(zap.WarnLevel)
	tr := New(failingStore{}, 2, WithLogger(zap.New(core)))

	require.NoError(t, tr.Consume(ctx))
	require.NoError(t, tr.Consume(ctx))
	assert.ErrorIs(t, tr.Consume(ctx), ErrExhausted)
	assert.Positive(t, logs.Len())
}
