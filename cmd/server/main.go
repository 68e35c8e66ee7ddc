package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"knowledge-base-service/internal/ai"
	"knowledge-base-service/internal/config"
	"knowledge-base-service/internal/logger"
	"knowledge-base-service/internal/search"
	"knowledge-base-service/internal/store"
	"knowledge-base-service/internal/telemetry"
	"knowledge-base-service/middleware"
	"knowledge-base-service/routes"
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

	asynqClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer asynqClient.Close()

	st := store.New(cfg, mongoClient, rdb)
	engine := search.NewEngine(cfg, aiClient, aiClient, st)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("knowledge-base-service", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer shutdown()
		}
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.Tracing(), middleware.EnrichTrace())
	}
	router.Use(middleware.RateLimit(rdb, cfg))
	router.MaxMultipartMemory = cfg.MaxFileSize

	routes.SetupHealthRoutes(router, mongoClient, rdb)
	routes.SetupKnowledgeRoutes(router, cfg, st, rdb, asynqClient)
	routes.SetupJobRoutes(router, cfg, rdb)
	routes.SetupSearchRoutes(router, st, engine)
	routes.SetupSettingsRoutes(router, st)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	logger.Info("server exited")
}
