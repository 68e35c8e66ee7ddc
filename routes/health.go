package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupHealthRoutes(router *gin.Engine, mongoClient *mongo.Client, rdb *redis.Client) {
	router.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		status := http.StatusOK
		checks := gin.H{"mongo": "ok", "redis": "ok"}

		if err := mongoClient.Ping(ctx, nil); err != nil {
			checks["mongo"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status": overall,
			"time":   time.Now().UTC().Format(time.RFC3339),
			"checks": checks,
		})
	})
}
