package llm

import (
	"context"

	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// Usage carries provider token accounting for one generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider is the single capability this package needs from a model backend:
// it accepts a text instruction plus an ordered list of page images and
// returns generated text. Provider-specific request shapes stay behind this
// boundary.
type Provider interface {
	// Name returns the model identifier recorded alongside results.
	Name() string
	Generate(ctx context.Context, prompt string, imagePaths []string) (string, Usage, error)
}

// Extraction is the normalized outcome of one successful extraction.
type Extraction struct {
	// FieldValues maps every schema field name to its extracted value.
	// Fields the model omitted or returned as null are present with a nil value.
	FieldValues map[string]any
	Model       string
	Usage       Usage
	// Confidence is the fraction of non-null, non-empty field values.
	// A heuristic signal, not a probability.
	Confidence float32
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	Extract(ctx context.Context, schema *entity.Schema, imagePaths []string) (Extraction, error)
}
