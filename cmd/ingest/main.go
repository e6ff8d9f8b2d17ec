package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/memedex/internal/analyzer"
	"github.com/timmy/memedex/internal/config"
	"github.com/timmy/memedex/internal/logger"
	"github.com/timmy/memedex/internal/pipeline"
	"github.com/timmy/memedex/internal/progress"
	"github.com/timmy/memedex/internal/repository"
	"github.com/timmy/memedex/internal/source"
	"github.com/timmy/memedex/internal/source/discord"
	"github.com/timmy/memedex/internal/source/remote"
	"github.com/timmy/memedex/internal/storage"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "memedex-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	run := flag.String("run", "fetch", "Run kind: fetch, retry, or remote")
	urls := flag.String("urls", "", "Comma-separated image URLs (run=remote)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	appLogger.WithField(logger.FieldRunKind, *run).Info("Starting one-shot run")

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	memeRepo := repository.NewMemeRepository(db)

	// Initialize content store
	store, err := storage.NewContentStore(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s3Store, ok := store.(*storage.S3Store); ok {
		if err := s3Store.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Build the pipeline
	visionClient := analyzer.NewClient(&analyzer.Config{
		Model:   cfg.Vision.Model,
		APIKey:  cfg.Vision.APIKey,
		BaseURL: cfg.Vision.BaseURL,
		Timeout: time.Duration(cfg.Vision.TimeoutSeconds) * time.Second,
	})
	downloader := source.NewDownloader(time.Duration(cfg.Pipeline.DownloadTimeoutSecs) * time.Second)
	pipe := pipeline.New(memeRepo, store, visionClient, downloader, progress.NewTracker(), appLogger, pipeline.Config{
		MaxRetryAttempts: cfg.Pipeline.MaxRetryAttempts,
		AnalyzeWorkers:   cfg.Pipeline.AnalyzeWorkers,
	})

	// Cancel the run on SIGINT/SIGTERM; the current item finishes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Info("Signal received, stopping run")
		cancel()
	}()

	var stats *pipeline.RunStats
	switch *run {
	case "fetch":
		var sources []source.Source
		discordCfg := &discord.Config{
			BotToken:    cfg.Discord.BotToken,
			APIBase:     cfg.Discord.APIBase,
			MaxMessages: cfg.Discord.MaxMessages,
		}
		for _, url := range cfg.Discord.ChannelURLs {
			adapter, err := discord.NewAdapter(discordCfg, url)
			if err != nil {
				appLogger.WithError(err).Fatal("Invalid channel URL")
			}
			sources = append(sources, adapter)
		}
		if len(sources) == 0 {
			appLogger.Fatal("No discord channel URLs configured")
		}
		stats, err = pipe.RunFetch(ctx, sources)

	case "retry":
		stats, err = pipe.RunRetry(ctx)

	case "remote":
		list := strings.Split(*urls, ",")
		adapter := remote.NewAdapter(list)
		if adapter.Len() == 0 {
			appLogger.Fatal("No valid http(s) URLs given, use -urls")
		}
		stats, err = pipe.RunRemoteFetch(ctx, adapter)

	default:
		appLogger.WithField(logger.FieldRunKind, *run).Fatal("Unknown run kind")
	}

	if err != nil {
		appLogger.WithError(err).Fatal("Run failed")
	}

	appLogger.WithFields(logger.Fields{
		"discovered": stats.Discovered,
		"new":        stats.NewRecords,
		"duplicates": stats.Duplicates,
		"analyzed":   stats.Analyzed,
		"failed":     stats.Failed,
		"skipped":    stats.Skipped,
		"duration":   stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Run completed")
	logger.Sync()
}
