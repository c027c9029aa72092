package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-intake/internal/models"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSessionStore(client, 30*time.Minute), mr
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, models.SessionStateIdle, created.State)

	loaded, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "Jane Doe", loaded.UserInfo.Name)
	assert.Equal(t, "CLM-1042", loaded.UserInfo.ClaimID)
}

func TestSessionStoreGetUnknown(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStoreExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042"})
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)

	_, err = store.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmissionLockSingleFlight(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AcquireSubmission(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireSubmission(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ReleaseSubmission(ctx, "session-1"))

	ok, err = store.AcquireSubmission(ctx, "session-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
