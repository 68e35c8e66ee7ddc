// Package ingest runs the crawl, chunk, embed and persist pipeline for a
// single knowledge source, reporting progress as it goes.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"knowledge-base-service/internal/logger"
	"knowledge-base-service/models"
)

func jobStateKey(jobID string) string  { return "job:" + jobID + ":state" }
func jobEventsKey(jobID string) string { return "job:" + jobID + ":events" }
func jobCancelKey(jobID string) string { return "job:" + jobID + ":cancel" }

// Reporter publishes progress events for one job. Events go to a redis
// pub/sub channel for live streams and to a state key so late
// subscribers can replay the latest snapshot. Percentages never move
// backwards.
type Reporter struct {
	rdb       *redis.Client
	jobID     string
	retention time.Duration

	mu      sync.Mutex
	lastPct int
}

func NewReporter(rdb *redis.Client, jobID string, retention time.Duration) *Reporter {
	return &Reporter{rdb: rdb, jobID: jobID, retention: retention}
}

// Report emits a progress event. Events are serialized and the
// percentage is clamped so observers always see a monotonic sequence.
func (r *Reporter) Report(ctx context.Context, ev models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Percentage < r.lastPct {
		ev.Percentage = r.lastPct
	}
	r.lastPct = ev.Percentage
	ev.JobID = r.jobID

	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal progress event", "job_id", r.jobID, "error", err)
		return
	}

	// non-terminal state gets a generous TTL so a crashed worker cannot
	// leave job keys behind forever
	ttl := 24 * time.Hour
	if ev.Terminal() {
		ttl = r.retention
	}
	if err := r.rdb.Set(ctx, jobStateKey(r.jobID), payload, ttl).Err(); err != nil {
		logger.Warn("persist progress state", "job_id", r.jobID, "error", err)
	}
	if err := r.rdb.Publish(ctx, jobEventsKey(r.jobID), payload).Err(); err != nil {
		logger.Warn("publish progress event", "job_id", r.jobID, "error", err)
	}
}

// Cancelled reports whether a stop has been requested for this job.
// Errors are treated as not-cancelled so a redis blip does not abort an
// otherwise healthy run.
func (r *Reporter) Cancelled(ctx context.Context) bool {
	n, err := r.rdb.Exists(ctx, jobCancelKey(r.jobID)).Result()
	if err != nil {
		logger.Warn("check cancel flag", "job_id", r.jobID, "error", err)
		return false
	}
	return n > 0
}

// RequestCancel flags a running job for cancellation. The flag expires
// with the rest of the job state.
func RequestCancel(ctx context.Context, rdb *redis.Client, jobID string, retention time.Duration) error {
	if err := rdb.Set(ctx, jobCancelKey(jobID), "1", retention).Err(); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// JobState returns the latest snapshot for a job, or ok=false when the
// job is unknown or expired.
func JobState(ctx context.Context, rdb *redis.Client, jobID string) (models.ProgressEvent, bool, error) {
	raw, err := rdb.Get(ctx, jobStateKey(jobID)).Bytes()
	if err == redis.Nil {
		return models.ProgressEvent{}, false, nil
	}
	if err != nil {
		return models.ProgressEvent{}, false, fmt.Errorf("load job state: %w", err)
	}
	var ev models.ProgressEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.ProgressEvent{}, false, fmt.Errorf("decode job state: %w", err)
	}
	return ev, true, nil
}

// SubscribeJob attaches to a job's live event stream. The current
// snapshot, when present, is delivered first so subscribers never miss
// the state they attached after. The channel closes when ctx ends or a
// terminal event arrives.
func SubscribeJob(ctx context.Context, rdb *redis.Client, jobID string) (<-chan models.ProgressEvent, error) {
	sub := rdb.Subscribe(ctx, jobEventsKey(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe job events: %w", err)
	}

	out := make(chan models.ProgressEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		if snapshot, ok, err := JobState(ctx, rdb, jobID); err == nil && ok {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
			if snapshot.Terminal() {
				return
			}
		}

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("decode progress event", "job_id", jobID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}
