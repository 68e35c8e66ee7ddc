package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return &Store{rdb: rdb}, mr
}

func TestAcquireIngestLockConflict(t *testing.T) {
	st, _ := newLockStore(t)
	ctx := context.Background()

	require.NoError(t, st.AcquireIngestLock(ctx, "docs.example.com", "job-a"))
	assert.ErrorIs(t, st.AcquireIngestLock(ctx, "docs.example.com", "job-b"), ErrSourceLocked)
}

func TestReleaseIngestLockOwnerOnly(t *testing.T) {
	st, mr := newLockStore(t)
	ctx := context.Background()

	require.NoError(t, st.AcquireIngestLock(ctx, "docs.example.com", "job-a"))

	// a non-owner release is a no-op
	require.NoError(t, st.ReleaseIngestLock(ctx, "docs.example.com", "job-b"))
	assert.True(t, mr.Exists(ingestLockKey("docs.example.com")))

	require.NoError(t, st.ReleaseIngestLock(ctx, "docs.example.com", "job-a"))
	assert.False(t, mr.Exists(ingestLockKey("docs.example.com")))
}

func TestReleaseIngestLockStaleHolderAfterExpiry(t *testing.T) {
	st, mr := newLockStore(t)
	ctx := context.Background()

	require.NoError(t, st.AcquireIngestLock(ctx, "docs.example.com", "job-a"))

	// TTL expiry hands the lock to a new job; the stale holder's release
	// must leave the new holder's lock in place
	mr.FastForward(ingestLockTTL + time.Second)
	require.NoError(t, st.AcquireIngestLock(ctx, "docs.example.com", "job-b"))
	require.NoError(t, st.ReleaseIngestLock(ctx, "docs.example.com", "job-a"))

	held, err := mr.Get(ingestLockKey("docs.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "job-b", held)
}

func TestReleaseIngestLockMissingKey(t *testing.T) {
	st, _ := newLockStore(t)
	assert.NoError(t, st.ReleaseIngestLock(context.Background(), "docs.example.com", "job-a"))
}
