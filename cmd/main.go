package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendforge/internal/clients"
	"trendforge/internal/config"
	"trendforge/internal/handlers"
	"trendforge/internal/logging"
	"trendforge/internal/metrics"
	"trendforge/internal/middleware"
	"trendforge/internal/repository"
	"trendforge/internal/service"
	"trendforge/internal/worker"
	"trendforge/pkg/database"
	redispkg "trendforge/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.App.LogLevel)
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}
	logger.Info("trendforge starting", "db_driver", cfg.DB.Driver, "debug", cfg.App.Debug)

	db, err := database.Connect(database.Config{
		Driver:   cfg.DB.Driver,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.DBName,
		SSLMode:  cfg.DB.SSLMode,
		Debug:    cfg.App.Debug,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("failed to get database handle", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := database.Migrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Redis backs the route cache and the ingest lock. Both degrade gracefully.
	var (
		redisClient *redis.Client
		cacheRepo   repository.CacheRepository
	)
	redisClient, err = redispkg.Connect(redispkg.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn("redis unavailable, running without route cache and ingest lock", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient)
	}

	itemRepo := repository.NewItemRepository(db)
	runRepo := repository.NewIngestRunRepository(db)

	feedClient := clients.NewFeedClient(cfg.Feed.BaseURL, cfg.Feed.Timeout)
	completionClient := clients.NewCompletionClient(clients.CompletionConfig{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.Generation.CompletionTimeout,
	})

	renderer, err := service.NewPromptRenderer(cfg.LLM.SystemPrompt, cfg.LLM.Templates)
	if err != nil {
		logger.Error("invalid prompt templates", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheus(registry, "trendforge")

	ingestService := service.NewIngestService(itemRepo, runRepo, cacheRepo, feedClient, collector, logger, service.IngestConfig{
		DefaultSources: cfg.Feed.Sources,
		Concurrency:    cfg.Feed.Concurrency,
		FetchTimeout:   cfg.Feed.Timeout,
		Retry: service.RetryPolicy{
			MaxRetries: cfg.Feed.MaxRetries,
			Base:       cfg.Feed.RetryBase,
			Max:        cfg.Feed.RetryMax,
		},
		RoutesCacheTTL: cfg.Feed.RoutesCacheTTL,
		LockTTL:        cfg.Workers.IngestInterval / 2,
		Location:       cfg.Location(),
		RunRetention:   cfg.Feed.RunRetention,
	})
	generationService := service.NewGenerationService(itemRepo, completionClient, renderer, collector, logger, service.GenerationConfig{
		CompletionTimeout: cfg.Generation.CompletionTimeout,
		Retry: service.RetryPolicy{
			MaxRetries: cfg.Generation.MaxRetries,
			Base:       cfg.Generation.RetryBase,
			Max:        cfg.Generation.RetryMax,
		},
		MaxAttempts:         cfg.Generation.MaxAttempts,
		ClaimLease:          cfg.Generation.ClaimLease,
		IntegrityQuarantine: cfg.Generation.IntegrityQuarantine,
	})
	curationService := service.NewCurationService(itemRepo, logger)
	exportService := service.NewExportService(itemRepo, cfg.Export.OutputDir, logger)

	// Work still running past the stop timeout is aborted and handed back to
	// the queue.
	scheduler := worker.NewScheduler(logger, cfg.Workers.StopTimeout)
	if cfg.Workers.IngestEnabled {
		scheduler.AddWorker(worker.NewIngestWorker(ingestService, cfg.Workers.IngestInterval, logger))
		logger.Info("ingest worker enabled", "interval", cfg.Workers.IngestInterval.String())
	}
	if cfg.Workers.GenerationEnabled {
		scheduler.AddWorker(worker.NewGenerationWorker(generationService, cfg.Workers.PollInterval, logger))
		logger.Info("generation worker enabled", "poll_interval", cfg.Workers.PollInterval.String())
	}
	scheduler.Start()

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if !cfg.App.Debug {
		limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		r.Use(middleware.RateLimitMiddleware(limiter, logger, "/api/v1/health", "/api/v1/metrics"))
		logger.Info("rate limiting enabled", "rps", cfg.RateLimit.RequestsPerSecond, "burst", cfg.RateLimit.Burst)
	}

	handlers.RegisterRoutes(r.Group("/api/v1"), handlers.Handlers{
		Items:  handlers.NewItemHandler(curationService),
		Ingest: handlers.NewIngestHandler(ingestService),
		Export: handlers.NewExportHandler(exportService),
		System: handlers.NewSystemHandler(curationService, ingestService, sqlDB, redisClient, registry, map[string]bool{
			"ingest_enabled":     cfg.Workers.IngestEnabled,
			"generation_enabled": cfg.Workers.GenerationEnabled,
		}),
	}, cfg.App.Debug)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", "addr", "http://localhost:"+cfg.App.Port+"/api/v1")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Workers finish or release their in-flight item before the store is closed.
	if !scheduler.Stop() {
		logger.Warn("workers were aborted during shutdown")
	}
	logger.Info("server exited properly")
}
