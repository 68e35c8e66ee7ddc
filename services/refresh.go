package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/queue"
	"knowledge-base-service/models"
)

// StaleSourceLister is the store surface the refresher needs.
type StaleSourceLister interface {
	ListSourcesRefreshedBefore(ctx context.Context, cutoff time.Time) ([]models.Source, error)
	LoadRagSettings(ctx context.Context) (models.RagSettings, error)
}

// RefreshService re-ingests URL sources that have not been crawled for a
// while, so long-lived knowledge bases track their upstream docs.
type RefreshService struct {
	cfg       *config.Config
	store     StaleSourceLister
	client    *asynq.Client
	scheduler *gocron.Scheduler
}

func NewRefreshService(cfg *config.Config, store StaleSourceLister, client *asynq.Client) *RefreshService {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &RefreshService{cfg: cfg, store: store, client: client, scheduler: s}
}

// Start schedules the periodic scan and returns immediately.
func (r *RefreshService) Start() error {
	_, err := r.scheduler.Every(r.cfg.RefreshInterval).Tag("source-refresh").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.scan(ctx)
	})
	if err != nil {
		return err
	}
	r.scheduler.StartAsync()
	logger.Info("source refresh scheduler started",
		"interval", r.cfg.RefreshInterval.String(), "stale_after", r.cfg.RefreshAfter.String())
	return nil
}

func (r *RefreshService) Stop() {
	r.scheduler.Stop()
}

// scan enqueues one refresh job per stale source. Sources whose previous
// refresh is still running lose the race on the per-source ingest lock
// and simply fail that round.
func (r *RefreshService) scan(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.RefreshAfter)
	stale, err := r.store.ListSourcesRefreshedBefore(ctx, cutoff)
	if err != nil {
		logger.Error("refresh scan failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	settings, err := r.store.LoadRagSettings(ctx)
	if err != nil {
		logger.Warn("refresh using default settings", "error", err)
		settings = models.DefaultRagSettings()
	}

	for _, src := range stale {
		if src.SeedURL == "" {
			continue
		}
		job := models.IngestJob{
			JobID: uuid.New().String(),
			Request: models.IngestRequest{
				URL:        src.SeedURL,
				SourceType: models.SourceTypeURL,
				Tags:       src.Tags,
			},
			Settings:  settings,
			StartedAt: time.Now(),
		}
		task, err := queue.NewIngestTask(job, queue.QueueRefresh)
		if err != nil {
			logger.Error("build refresh task", "source_id", src.SourceID, "error", err)
			continue
		}
		if _, err := r.client.EnqueueContext(ctx, task); err != nil {
			logger.Error("enqueue refresh", "source_id", src.SourceID, "error", err)
			continue
		}
		logger.Info("refresh enqueued", "source_id", src.SourceID, "job_id", job.JobID)
	}
}
