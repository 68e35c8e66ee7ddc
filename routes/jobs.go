package routes

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/ingest"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/utils"
)

func SetupJobRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client) {
	api := router.Group("/api/jobs")

	api.GET("/:id", func(c *gin.Context) {
		state, ok, err := ingest.JobState(c.Request.Context(), rdb, c.Param("id"))
		if err != nil {
			logger.Error("load job state", "error", err)
			utils.RespondWithInternalError(c, "could not load job state", nil)
			return
		}
		if !ok {
			utils.RespondWithNotFound(c, "job not found or expired")
			return
		}
		c.JSON(http.StatusOK, state)
	})

	// Server-sent events. The current snapshot replays first so a client
	// that attaches late still sees where the job stands.
	api.GET("/:id/stream", func(c *gin.Context) {
		jobID := c.Param("id")

		_, ok, err := ingest.JobState(c.Request.Context(), rdb, jobID)
		if err != nil {
			utils.RespondWithInternalError(c, "could not load job state", nil)
			return
		}
		if !ok {
			utils.RespondWithNotFound(c, "job not found or expired")
			return
		}

		events, err := ingest.SubscribeJob(c.Request.Context(), rdb, jobID)
		if err != nil {
			logger.Error("subscribe job events", "job_id", jobID, "error", err)
			utils.RespondWithInternalError(c, "could not subscribe to job events", nil)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			ev, open := <-events
			if !open {
				return false
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				return false
			}
			c.SSEvent("progress", string(payload))
			return !ev.Terminal()
		})
	})

	api.POST("/:id/stop", func(c *gin.Context) {
		jobID := c.Param("id")

		state, ok, err := ingest.JobState(c.Request.Context(), rdb, jobID)
		if err != nil {
			utils.RespondWithInternalError(c, "could not load job state", nil)
			return
		}
		if !ok {
			utils.RespondWithNotFound(c, "job not found or expired")
			return
		}
		if state.Terminal() {
			utils.RespondWithConflict(c, "job already finished")
			return
		}

		if err := ingest.RequestCancel(c.Request.Context(), rdb, jobID, cfg.JobRetention); err != nil {
			logger.Error("request cancel", "job_id", jobID, "error", err)
			utils.RespondWithInternalError(c, "could not stop job", nil)
			return
		}
		logger.Info("job stop requested", "job_id", jobID)
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "stopping": true})
	})
}
