package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/search"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/models"
	"knowledge-base-service/utils"
)

type queryFunc func(ctx context.Context, req models.SearchRequest, settings models.RagSettings) (*models.SearchResponse, error)

func SetupSearchRoutes(router *gin.Engine, st *store.Store, engine *search.Engine) {
	api := router.Group("/api")

	api.POST("/search", func(c *gin.Context) {
		handleSearch(c, st, engine.Query)
	})

	api.POST("/search/code", func(c *gin.Context) {
		handleSearch(c, st, engine.QueryCodeExamples)
	})
}

func handleSearch(c *gin.Context, st *store.Store, query queryFunc) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "invalid search request", err.Error())
		return
	}

	ctx := c.Request.Context()
	settings, err := st.LoadRagSettings(ctx)
	if err != nil {
		logger.Error("load settings for query", "error", err)
		utils.RespondWithInternalError(c, "could not load settings", nil)
		return
	}

	resp, err := query(ctx, req, settings)
	if err != nil {
		if errors.Is(err, ai.ErrEmbeddingUnavailable) {
			utils.RespondWithUnavailable(c, "embedding provider unavailable, try again later")
			return
		}
		logger.Error("search failed", "query", req.Query, "error", err)
		utils.RespondWithInternalError(c, "search failed", nil)
		return
	}
	c.JSON(http.StatusOK, resp)
}
