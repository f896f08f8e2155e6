// Package pipeline coordinates the document flow from stored upload to
// persisted extraction result: render, extract, validate, persist.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/async"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
	"github.com/anchit2000/invoice-parsing-llms/internal/llm"
	"github.com/anchit2000/invoice-parsing-llms/internal/render"
	"github.com/anchit2000/invoice-parsing-llms/internal/repository"
	"github.com/anchit2000/invoice-parsing-llms/internal/validation"
)

// PageRenderer converts PDF bytes into page image artifacts.
type PageRenderer interface {
	Render(ctx context.Context, file []byte) (render.Result, error)
	Cleanup(hashHex string) error
}

// FieldValidator evaluates the per-field validation batch.
type FieldValidator interface {
	ValidateAll(extracted map[string]any, schema *entity.Schema) validation.BatchResult
}

// Outcome is what a completed job reports back through the queue status.
type Outcome struct {
	DocumentID uuid.UUID `json:"document_id"`
	ResultID   uuid.UUID `json:"result_id"`
	Confidence float32   `json:"confidence"`
	AllValid   bool      `json:"all_valid"`
	PageCount  int       `json:"page_count"`
	// Reused marks a byte-identical document that was already processed;
	// the existing result is returned without re-running extraction.
	Reused bool `json:"reused,omitempty"`
}

// Progress checkpoints reported while a job moves through the pipeline.
const (
	progressRead      = 10
	progressRendered  = 30
	progressRecorded  = 40
	progressExtracted = 70
	progressValidated = 85
	progressDone      = 100
)

// Orchestrator implements async.Processor over the pipeline stages.
type Orchestrator struct {
	renderer  PageRenderer
	extractor llm.FieldExtractor
	validator FieldValidator
	documents repository.DocumentRepository
	results   repository.ResultRepository
	logger    *slog.Logger
}

func NewOrchestrator(
	renderer PageRenderer,
	extractor llm.FieldExtractor,
	validator FieldValidator,
	documents repository.DocumentRepository,
	results repository.ResultRepository,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		renderer:  renderer,
		extractor: extractor,
		validator: validator,
		documents: documents,
		results:   results,
		logger:    logger,
	}
}

var _ async.Processor = (*Orchestrator)(nil)

// Process runs one job end to end. The returned value lands in the queue
// status as the job result.
func (o *Orchestrator) Process(ctx context.Context, job async.Job, report async.ProgressFunc) (any, error) {
	log := o.logger.With("job_id", job.ID, "file", job.FileName)
	log.Info("pipeline.job.start", "schema_id", job.Schema.ID, "size", job.FileSize)

	file, err := os.ReadFile(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read stored upload: %w", err)
	}
	report(progressRead)

	hash := sha256.Sum256(file)
	if out, ok := o.reuseExisting(ctx, hash[:], log); ok {
		report(progressDone)
		return out, nil
	}

	res, err := o.renderer.Render(ctx, file)
	if err != nil {
		log.Error("pipeline.render.failed", "error", err)
		return nil, err
	}
	defer func() {
		if cerr := o.renderer.Cleanup(res.HashHex); cerr != nil {
			log.Warn("pipeline.cleanup.failed", "error", cerr)
		}
	}()
	report(progressRendered)

	doc, err := o.documents.Create(ctx, &entity.Document{
		UserID:      job.UserID,
		SchemaID:    job.Schema.ID,
		FileName:    job.FileName,
		FileSize:    job.FileSize,
		ContentHash: res.ContentHash,
		StoragePath: job.FilePath,
		PageCount:   res.PageCount,
		Status:      constants.DocStatusProcessing,
	})
	if err != nil {
		return nil, err
	}
	report(progressRecorded)
	log = log.With("document_id", doc.ID)

	outcome, err := o.processDocument(ctx, job, doc, res, report, log)
	if err != nil {
		o.markFailed(ctx, doc.ID, log)
		return nil, err
	}
	report(progressDone)
	return outcome, nil
}

func (o *Orchestrator) processDocument(
	ctx context.Context,
	job async.Job,
	doc *entity.Document,
	res render.Result,
	report async.ProgressFunc,
	log *slog.Logger,
) (*Outcome, error) {
	paths := make([]string, len(res.Pages))
	for i, p := range res.Pages {
		paths[i] = p.Path
	}

	extraction, err := o.extractor.Extract(ctx, job.Schema, paths)
	if err != nil {
		log.Error("pipeline.extract.failed", "error", err)
		return nil, err
	}
	report(progressExtracted)

	batch := o.validator.ValidateAll(extraction.FieldValues, job.Schema)
	report(progressValidated)
	log.Info("pipeline.validate.done",
		"valid", batch.ValidCount, "total", batch.TotalCount, "all_valid", batch.AllValid)

	extractedJSON, err := json.Marshal(extraction.FieldValues)
	if err != nil {
		return nil, fmt.Errorf("encode extracted data: %w", err)
	}
	summaryJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode validation summary: %w", err)
	}

	result, err := o.results.CreateResult(ctx, &entity.ExtractionResult{
		DocumentID:        doc.ID,
		ExtractedData:     extractedJSON,
		ValidationSummary: summaryJSON,
		Model:             extraction.Model,
		PromptTokens:      extraction.Usage.PromptTokens,
		CompletionTokens:  extraction.Usage.CompletionTokens,
		Confidence:        extraction.Confidence,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*entity.ValidationLogEntry, len(batch.Results))
	for i, fr := range batch.Results {
		entries[i] = &entity.ValidationLogEntry{
			ExtractionResultID: result.ID,
			FieldName:          fr.FieldName,
			Expression:         fr.Expression,
			IsValid:            fr.IsValid,
			Message:            fr.Message,
		}
	}
	if err := o.results.CreateValidationLogEntries(ctx, entries); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := o.documents.UpdateStatus(ctx, doc.ID, constants.DocStatusCompleted, &now); err != nil {
		return nil, err
	}

	log.Info("pipeline.job.done",
		"result_id", result.ID, "confidence", extraction.Confidence, "pages", res.PageCount)
	return &Outcome{
		DocumentID: doc.ID,
		ResultID:   result.ID,
		Confidence: extraction.Confidence,
		AllValid:   batch.AllValid,
		PageCount:  res.PageCount,
	}, nil
}

// reuseExisting checks the content-hash index for a document already
// processed to completion. Byte-identical uploads short-circuit to the
// stored result instead of paying for another model round trip.
func (o *Orchestrator) reuseExisting(ctx context.Context, hash []byte, log *slog.Logger) (*Outcome, bool) {
	existing, err := o.documents.GetByContentHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			log.Warn("pipeline.dedup.lookup_failed", "error", err)
		}
		return nil, false
	}
	if existing.Status != constants.DocStatusCompleted {
		return nil, false
	}
	result, err := o.results.GetByDocumentID(ctx, existing.ID)
	if err != nil {
		return nil, false
	}

	var summary validation.BatchResult
	_ = json.Unmarshal(result.ValidationSummary, &summary)

	log.Info("pipeline.dedup.hit",
		"document_id", existing.ID, "content_hash", hex.EncodeToString(hash))
	return &Outcome{
		DocumentID: existing.ID,
		ResultID:   result.ID,
		Confidence: result.Confidence,
		AllValid:   summary.AllValid,
		PageCount:  existing.PageCount,
		Reused:     true,
	}, true
}

func (o *Orchestrator) markFailed(ctx context.Context, id uuid.UUID, log *slog.Logger) {
	now := time.Now().UTC()
	if err := o.documents.UpdateStatus(ctx, id, constants.DocStatusFailed, &now); err != nil {
		log.Warn("pipeline.mark_failed.error", "document_id", id, "error", err)
	}
}
