// Package queue defines the asynq tasks the API enqueues and the worker
// consumes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-base-service/internal/ingest"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/models"
)

const TaskIngest = "knowledge:ingest"

// Queue names. Ingestions are long-running and get their own queue so a
// pile of refresh jobs cannot starve interactive ones.
const (
	QueueIngest  = "ingest"
	QueueRefresh = "refresh"
)

// NewIngestTask wraps a job in an asynq task. Retries stay at zero, the
// coordinator owns retrying inside a run and a re-run would collide with
// the per-source lock.
func NewIngestTask(job models.IngestJob, queueName string) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal ingest job: %w", err)
	}
	return asynq.NewTask(
		TaskIngest,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue(queueName),
		asynq.TaskID(job.JobID),
	), nil
}

// TaskProcessor holds the handler side dependencies.
type TaskProcessor struct {
	coordinator *ingest.Coordinator
	reporters   ReporterFactory
}

// ReporterFactory builds the progress sink for a job id.
type ReporterFactory func(jobID string) ingest.ProgressSink

func NewTaskProcessor(coordinator *ingest.Coordinator, reporters ReporterFactory) *TaskProcessor {
	return &TaskProcessor{coordinator: coordinator, reporters: reporters}
}

// HandleIngest runs one ingestion job to completion. Job-level failures
// are already published on the progress stream, so they are not retried.
func (p *TaskProcessor) HandleIngest(ctx context.Context, t *asynq.Task) error {
	var job models.IngestJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("unmarshal ingest job: %w", asynq.SkipRetry)
	}

	logger.Info("ingestion started", "job_id", job.JobID,
		"url", job.Request.URL, "file", job.Request.FileName)

	if err := p.coordinator.Run(ctx, job, p.reporters(job.JobID)); err != nil {
		return fmt.Errorf("job %s: %v: %w", job.JobID, err, asynq.SkipRetry)
	}
	return nil
}
