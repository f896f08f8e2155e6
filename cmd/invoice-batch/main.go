// invoice-batch processes a directory of PDF invoices against a schema file
// in one shot and writes the results to an XLSX workbook. With -inmem it
// needs no running database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/anchit2000/invoice-parsing-llms/internal/async"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
	"github.com/anchit2000/invoice-parsing-llms/internal/export"
	"github.com/anchit2000/invoice-parsing-llms/internal/llm"
	"github.com/anchit2000/invoice-parsing-llms/internal/pipeline"
	"github.com/anchit2000/invoice-parsing-llms/internal/render"
	"github.com/anchit2000/invoice-parsing-llms/internal/repository"
	"github.com/anchit2000/invoice-parsing-llms/internal/validation"
)

func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem      = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir        = flag.String("dir", "", "directory of PDF invoices to process (required)")
		schemaPath = flag.String("schema", "", "path to a JSON schema definition file (required)")
		out        = flag.String("out", "", "output XLSX file path (defaults to <dir>/../results.xlsx)")
	)
	flag.Parse()

	if *dir == "" || *schemaPath == "" {
		printError("Error: --dir and --schema are required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "results.xlsx")
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.Driver = repository.DriverSQLite
		cfg.Database.DSN = "file::memory:?cache=shared"
	}

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)
	if err := repository.Bootstrap(ctx, db, logger); err != nil {
		logger.Error("database bootstrap failed", "error", err)
		os.Exit(1)
	}

	schemasRepo := repository.NewSchemaRepository(db, cfg.Database.Driver, logger)
	documentsRepo := repository.NewDocumentRepository(db, cfg.Database.Driver, logger)
	resultsRepo := repository.NewResultRepository(db, cfg.Database.Driver, logger)

	schema, err := loadSchema(*schemaPath)
	if err != nil {
		logger.Error("schema load failed", "path", *schemaPath, "error", err)
		os.Exit(1)
	}
	userID := uuid.New()
	schema.UserID = userID
	schema, err = schemasRepo.Create(ctx, schema)
	if err != nil {
		logger.Error("schema create failed", "error", err)
		os.Exit(1)
	}
	logger.Info("using schema", "id", schema.ID, "name", schema.Name, "fields", len(schema.Fields))

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

	entries, err := os.ReadDir(*dir)
	if err != nil {
		logger.Error("read directory failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	processed, failures := 0, 0
	noProgress := func(int) {}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(*dir, e.Name())
		info, err := e.Info()
		if err != nil {
			logger.Error("stat failed", "file", path, "error", err)
			failures++
			continue
		}
		job := async.Job{
			ID:          uuid.New(),
			UserID:      userID,
			Schema:      schema,
			FilePath:    path,
			FileName:    e.Name(),
			FileSize:    info.Size(),
			SubmittedAt: time.Now().UTC(),
		}
		logger.Info("processing file", "file", e.Name())
		if _, err := orchestrator.Process(ctx, job, noProgress); err != nil {
			logger.Error("processing failed", "file", e.Name(), "error", err)
			failures++
			continue
		}
		processed++
	}

	exporter := export.NewService(resultsRepo, logger)
	xlsxBytes, err := exporter.ExportResultsXLSX(ctx, userID)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("write output failed", "error", err)
		os.Exit(1)
	}

	logger.Info("batch complete",
		"processed", processed, "failures", failures, "output_file", *out)
	fmt.Printf("Batch complete!\n")
	fmt.Printf("- Processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

// loadSchema reads a schema definition of the shape
// {"name": "...", "fields": [{"name": ..., "type": ..., ...}]}.
func loadSchema(path string) (*entity.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s entity.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
