package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/crawler"
	"knowledge-base-service/internal/ingest"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/queue"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	aiClient, err := ai.NewClient(cfg)
	if err != nil {
		log.Fatal("Failed to initialize AI client:", err)
	}
	defer aiClient.Close()

	st := store.New(cfg, mongoClient, rdb)

	fetcher := &crawler.Fetcher{
		Timeout:       cfg.CrawlTimeout,
		MaxBytes:      cfg.MaxContentBytes,
		MaxConcurrent: cfg.CrawlMaxConcurrent,
	}
	var renderer crawler.Renderer
	if cfg.RenderJS {
		renderer = &crawler.ChromeRenderer{Timeout: cfg.RenderTimeout}
	}
	controller := crawler.NewController(fetcher, renderer)
	extractor := services.NewFileExtractor(cfg)

	coordinator := ingest.NewCoordinator(cfg, controller, aiClient, aiClient, aiClient, extractor, st)
	processor := queue.NewTaskProcessor(coordinator, func(jobID string) ingest.ProgressSink {
		return ingest.NewReporter(rdb, jobID, cfg.JobRetention)
	})

	if cfg.RefreshEnabled {
		asynqClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
		defer asynqClient.Close()
		refresher := services.NewRefreshService(cfg, st, asynqClient)
		if err := refresher.Start(); err != nil {
			log.Fatal("Failed to start refresh scheduler:", err)
		}
		defer refresher.Stop()
	}

	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			// Ingestions are rate limited by the embedding provider, not
			// the CPU, so a small pool is enough.
			Concurrency: 4,
			Queues: map[string]int{
				queue.QueueIngest:  3,
				queue.QueueRefresh: 1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngest, processor.HandleIngest)

	logger.Info("worker starting", "concurrency", 4,
		"queues", queue.QueueIngest+","+queue.QueueRefresh)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
