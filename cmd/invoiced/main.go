package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/anchit2000/invoice-parsing-llms/internal/async"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/export"
	"github.com/anchit2000/invoice-parsing-llms/internal/llm"
	"github.com/anchit2000/invoice-parsing-llms/internal/pipeline"
	"github.com/anchit2000/invoice-parsing-llms/internal/render"
	"github.com/anchit2000/invoice-parsing-llms/internal/repository"
	"github.com/anchit2000/invoice-parsing-llms/internal/server"
	"github.com/anchit2000/invoice-parsing-llms/internal/validation"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, db, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health failed", "error", err)
		os.Exit(1)
	}
	if err := repository.Bootstrap(ctx, db, logger); err != nil {
		logger.Error("database bootstrap failed", "error", err)
		os.Exit(1)
	}

	schemasRepo := repository.NewSchemaRepository(db, cfg.Database.Driver, logger)
	documentsRepo := repository.NewDocumentRepository(db, cfg.Database.Driver, logger)
	resultsRepo := repository.NewResultRepository(db, cfg.Database.Driver, logger)

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Kind:        llm.ProviderKind(cfg.LLM.Provider),
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		logger.Error("provider init failed", "error", err)
		os.Exit(1)
	}

	extractor := llm.NewExtractor(provider, logger,
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithBackoffBase(cfg.LLM.BackoffBase),
	)
	renderer := render.NewRenderer(render.Config{
		Pdftoppm:  cfg.Render.Pdftoppm,
		DPI:       cfg.Render.DPI,
		MaxBytes:  cfg.Render.MaxBytes,
		MaxPages:  cfg.Render.MaxPages,
		ImagesDir: cfg.Render.ImagesDir,
		Enhance:   true,
	}, logger)
	validator := validation.NewValidator(time.Second, logger)

	orchestrator := pipeline.NewOrchestrator(
		renderer, extractor, validator, documentsRepo, resultsRepo, logger)

	queue := async.NewMemoryQueue(orchestrator, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithJobTimeout(cfg.Queue.JobTimeout),
		async.WithStallTimeout(cfg.Queue.StallTimeout),
	)
	queue.On(async.EventStalled, func(st async.Status) {
		logger.Warn("job stalled", "job_id", st.ID, "progress", st.Progress)
	})

	exporter := export.NewService(resultsRepo, logger)
	srv := server.New(cfg.Server, cfg.Render.MaxBytes, db, queue,
		schemasRepo, documentsRepo, resultsRepo, exporter, logger)

	go func() {
		if err := srv.Listen(); err != nil {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
