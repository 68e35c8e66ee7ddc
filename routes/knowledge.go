// Package routes wires the HTTP API: ingestion, job progress, search and
// settings.
package routes

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/ingest"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/queue"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/models"
	"knowledge-base-service/utils"
)

var supportedUploadExts = map[string]bool{
	".pdf": true, ".md": true, ".markdown": true, ".txt": true,
	".xlsx": true, ".xlsm": true,
}

func SetupKnowledgeRoutes(router *gin.Engine, cfg *config.Config, st *store.Store, rdb *redis.Client, client *asynq.Client) {
	api := router.Group("/api/knowledge")

	api.POST("/crawl", func(c *gin.Context) {
		var req models.CrawlIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid crawl request", err.Error())
			return
		}

		job, err := enqueueJob(c, cfg, st, rdb, client, models.IngestRequest{
			URL:        req.URL,
			SourceType: models.SourceTypeURL,
			Tags:       req.Tags,
			MaxDepth:   req.MaxDepth,
			ChunkSize:  req.ChunkSize,
		})
		if err != nil {
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.JobID})
	})

	api.POST("/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "missing file field", err.Error())
			return
		}
		if file.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"file_too_large", "uploaded file exceeds the size limit",
				gin.H{"max_bytes": cfg.MaxFileSize})
			return
		}
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !supportedUploadExts[ext] {
			utils.RespondWithBadRequest(c, "unsupported file type", gin.H{"extension": ext})
			return
		}

		chunkSize := 0
		if raw := c.PostForm("chunk_size"); raw != "" {
			chunkSize, err = strconv.Atoi(raw)
			if err != nil || chunkSize < 500 || chunkSize > 20000 {
				utils.RespondWithBadRequest(c, "chunk_size must be between 500 and 20000", gin.H{"chunk_size": raw})
				return
			}
		}

		if err := os.MkdirAll(cfg.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "could not store upload", nil)
			return
		}
		storedPath := filepath.Join(cfg.FileStorageDir, uuid.New().String()+ext)
		if err := c.SaveUploadedFile(file, storedPath); err != nil {
			logger.Error("save upload", "error", err)
			utils.RespondWithInternalError(c, "could not store upload", nil)
			return
		}

		tags := c.PostFormArray("tags")
		job, err := enqueueJob(c, cfg, st, rdb, client, models.IngestRequest{
			FilePath:   storedPath,
			FileName:   filepath.Base(file.Filename),
			SourceType: models.SourceTypeFile,
			Tags:       tags,
			ChunkSize:  chunkSize,
		})
		if err != nil {
			os.Remove(storedPath)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.JobID})
	})

	api.GET("/sources", func(c *gin.Context) {
		sources, err := st.ListSources(c.Request.Context())
		if err != nil {
			logger.Error("list sources", "error", err)
			utils.RespondWithInternalError(c, "could not list sources", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources, "total": len(sources)})
	})

	api.GET("/sources/:id", func(c *gin.Context) {
		source, err := st.GetSource(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "source not found")
			return
		}
		if err != nil {
			logger.Error("get source", "error", err)
			utils.RespondWithInternalError(c, "could not load source", nil)
			return
		}
		c.JSON(http.StatusOK, source)
	})

	api.DELETE("/sources/:id", func(c *gin.Context) {
		err := st.DeleteSource(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "source not found")
			return
		}
		if err != nil {
			logger.Error("delete source", "error", err)
			utils.RespondWithInternalError(c, "could not delete source", nil)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// enqueueJob snapshots the current settings into a job, seeds its
// progress state so polls see it before a worker picks it up, and puts
// it on the ingest queue. Responds with the error itself on failure.
func enqueueJob(c *gin.Context, cfg *config.Config, st *store.Store, rdb *redis.Client,
	client *asynq.Client, req models.IngestRequest) (*models.IngestJob, error) {
	ctx := c.Request.Context()

	settings, err := st.LoadRagSettings(ctx)
	if err != nil {
		logger.Error("load settings for job", "error", err)
		utils.RespondWithInternalError(c, "could not load settings", nil)
		return nil, err
	}

	job := models.IngestJob{
		JobID:     uuid.New().String(),
		Request:   req,
		Settings:  settings,
		StartedAt: time.Now(),
	}

	task, err := queue.NewIngestTask(job, queue.QueueIngest)
	if err != nil {
		utils.RespondWithInternalError(c, "could not build ingestion task", nil)
		return nil, err
	}

	reporter := ingest.NewReporter(rdb, job.JobID, cfg.JobRetention)
	reporter.Report(ctx, models.ProgressEvent{
		Phase:   models.PhaseAnalyzing,
		Message: "queued",
	})

	if _, err := client.EnqueueContext(ctx, task); err != nil {
		logger.Error("enqueue ingestion", "job_id", job.JobID, "error", err)
		utils.RespondWithInternalError(c, "could not enqueue ingestion", nil)
		return nil, err
	}

	logger.Info("ingestion queued", "job_id", job.JobID, "url", req.URL, "file", req.FileName)
	return &job, nil
}
