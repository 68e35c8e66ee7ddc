package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSourceLocked means another ingestion already holds the per-source
// lock.
var ErrSourceLocked = errors.New("source ingestion already in progress")

const ingestLockTTL = 2 * time.Hour

func ingestLockKey(sourceID string) string {
	return "ingest:lock:" + sourceID
}

// AcquireIngestLock takes the per-source ingestion lock. The token
// identifies the holder so only the owning job can release it. The TTL
// guards against a worker dying mid-job.
func (s *Store) AcquireIngestLock(ctx context.Context, sourceID, token string) error {
	ok, err := s.rdb.SetNX(ctx, ingestLockKey(sourceID), token, ingestLockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return ErrSourceLocked
	}
	return nil
}

// releaseLockScript deletes the lock only while the token still owns it.
// The compare and the delete must be one step: after a TTL expiry and
// reacquisition, a stale holder must not drop the new holder's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// ReleaseIngestLock drops the lock if the token still owns it.
func (s *Store) ReleaseIngestLock(ctx context.Context, sourceID, token string) error {
	err := releaseLockScript.Run(ctx, s.rdb, []string{ingestLockKey(sourceID)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release ingest lock: %w", err)
	}
	return nil
}
