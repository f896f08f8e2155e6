package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// SleepFunc suspends for d or until ctx is done. Injectable so tests never
// sleep for real.
type SleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Extractor drives one full extraction: prompt build, provider call, parse,
// confidence. Each attempt is a fresh full call; no partial credit across
// attempts.
type Extractor struct {
	provider    Provider
	logger      *slog.Logger
	maxRetries  int
	backoffBase time.Duration
	sleep       SleepFunc
}

type Option func(*Extractor)

func WithMaxRetries(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.backoffBase = d
		}
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(e *Extractor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func NewExtractor(provider Provider, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		provider:    provider,
		logger:      logger,
		maxRetries:  3,
		backoffBase: 2 * time.Second,
		sleep:       realSleep,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ FieldExtractor = (*Extractor)(nil)

// Extract runs up to maxRetries attempts with exponential backoff (base
// doubling each attempt) on any failure: network, provider, or parse.
// Exhausting the budget returns ExtractionExhaustedError with the last cause.
func (e *Extractor) Extract(ctx context.Context, schema *entity.Schema, imagePaths []string) (Extraction, error) {
	prompt := BuildExtractionPrompt(schema)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		e.logger.Info("llm.extract.attempt",
			"attempt", attempt, "max", e.maxRetries,
			"model", e.provider.Name(), "pages", len(imagePaths), "fields", len(schema.Fields))

		out, err := e.extractOnce(ctx, prompt, schema, imagePaths)
		if err == nil {
			e.logger.Info("llm.extract.ok",
				"attempt", attempt, "model", out.Model, "confidence", out.Confidence,
				"prompt_tokens", out.Usage.PromptTokens, "completion_tokens", out.Usage.CompletionTokens)
			return out, nil
		}

		lastErr = err
		e.logger.Warn("llm.extract.attempt_failed", "attempt", attempt, "error", err)

		if attempt < e.maxRetries {
			wait := e.backoffBase << (attempt - 1)
			if serr := e.sleep(ctx, wait); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	return Extraction{}, &common.ExtractionExhaustedError{Attempts: e.maxRetries, Last: lastErr}
}

func (e *Extractor) extractOnce(ctx context.Context, prompt string, schema *entity.Schema, imagePaths []string) (Extraction, error) {
	text, usage, err := e.provider.Generate(ctx, prompt, imagePaths)
	if err != nil {
		return Extraction{}, err
	}

	values, err := ParseFields(text, schema)
	if err != nil {
		return Extraction{}, err
	}

	return Extraction{
		FieldValues: values,
		Model:       e.provider.Name(),
		Usage:       usage,
		Confidence:  Confidence(values),
	}, nil
}
