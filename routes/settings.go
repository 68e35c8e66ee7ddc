package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/models"
	"knowledge-base-service/utils"
)

// Settings changes apply to future jobs and queries only; anything
// already running keeps the snapshot it started with.
func SetupSettingsRoutes(router *gin.Engine, st *store.Store) {
	api := router.Group("/api/settings")

	api.GET("", func(c *gin.Context) {
		settings, err := st.LoadRagSettings(c.Request.Context())
		if err != nil {
			logger.Error("load settings", "error", err)
			utils.RespondWithInternalError(c, "could not load settings", nil)
			return
		}
		c.JSON(http.StatusOK, settings)
	})

	api.PUT("", func(c *gin.Context) {
		var settings models.RagSettings
		if err := c.ShouldBindJSON(&settings); err != nil {
			utils.RespondWithBadRequest(c, "invalid settings", err.Error())
			return
		}
		if err := st.SaveRagSettings(c.Request.Context(), settings); err != nil {
			logger.Error("save settings", "error", err)
			utils.RespondWithInternalError(c, "could not save settings", nil)
			return
		}
		logger.Info("settings updated",
			"contextual", settings.UseContextualEmbeddings,
			"hybrid", settings.UseHybridSearch,
			"rerank", settings.UseReranking,
			"code_examples", settings.ExtractCodeExamples)
		c.JSON(http.StatusOK, settings)
	})
}
