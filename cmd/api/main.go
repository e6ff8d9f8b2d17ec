package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/memedex/internal/analyzer"
	"github.com/timmy/memedex/internal/api"
	"github.com/timmy/memedex/internal/api/middleware"
	"github.com/timmy/memedex/internal/config"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/pipeline"
	"github.com/timmy/memedex/internal/progress"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/source"
	"github.com/timmy/memedex/internal/source/discord"
	"github.com/timmy/memedex/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		LogFile:     cfg.Log.File,
		ServiceName: "memedex-api",
	})
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	memeRepo := repository.NewMemeRepository(db)

	// Initialize content store (local disk or S3-compatible bucket)
	store, err := storage.NewContentStore(&cfg.Storage)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3Store, ok := store.(*storage.S3Store); ok {
		if err := s3Store.EnsureBucket(context.Background()); err != nil {
			appLog.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize vision client and downloader
	visionClient := analyzer.NewClient(&analyzer.Config{
		Model:   cfg.Vision.Model,
		APIKey:  cfg.Vision.APIKey,
		BaseURL: cfg.Vision.BaseURL,
		Timeout: time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
	})
	downloader := source.NewDownloader(time.Duration(cfg.Pipeline.DownloadTimeoutSecs) * time.Second)

	// Initialize progress tracker and pipeline
	tracker := progress.NewTracker()
	pipe := pipeline.New(memeRepo, store, visionClient, downloader, tracker, appLog, pipeline.Config{
		MaxRetryAttempts: cfg.Pipeline.MaxRetryAttempts,
		AnalyzeWorkers:   cfg.Pipeline.AnalyzeWorkers,
	})

	// Initialize data sources from configured channel URLs
	sources, err := buildSources(cfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize sources")
	}

	// Start the scheduler
	sched := pipeline.NewScheduler(pipe, sources, appLog, pipeline.SchedulerConfig{
		FetchInterval:  time.Duration(cfg.Pipeline.FetchIntervalMinutes) * time.Minute,
		RetryInterval:  time.Duration(cfg.Pipeline.RetryIntervalMinutes) * time.Minute,
		FetchOnStartup: cfg.Pipeline.FetchOnStartup,
	})
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}

	// Setup router
	router := api.SetupRouter(memeRepo, store, pipe, tracker, sources, appLog, api.RouterConfig{
		Mode:     cfg.Server.Mode,
		AdminKey: cfg.Server.AdminKey,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")
	sched.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}

// buildSources creates one discord adapter per configured channel URL.
func buildSources(cfg *config.Config, log *logger.Logger) ([]source.Source, error) {
	discordCfg := &discord.Config{
		BotToken:    cfg.Discord.BotToken,
		APIBase:     cfg.Discord.APIBase,
		MaxMessages: cfg.Discord.MaxMessages,
	}

	var sources []source.Source
	for _, url := range cfg.Discord.ChannelURLs {
		adapter, err := discord.NewAdapter(discordCfg, url)
		if err != nil {
			return nil, err
		}
		sources = append(sources, adapter)
	}

	if len(sources) > 0 && cfg.Discord.BotToken == "" {
		log.Warn("Discord channels configured without a bot token; fetch runs will fail")
	}
	return sources, nil
}
