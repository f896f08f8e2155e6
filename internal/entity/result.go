package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExtractionResult is the one durable record per successfully extracted
// Document: the raw field map, a validation summary, and model accounting.
type ExtractionResult struct {
	ID                uuid.UUID       `json:"id"`
	DocumentID        uuid.UUID       `json:"document_id"`
	ExtractedData     json.RawMessage `json:"extracted_data"`
	ValidationSummary json.RawMessage `json:"validation_summary,omitempty"`
	Model             string          `json:"model"`
	PromptTokens      int             `json:"prompt_tokens"`
	CompletionTokens  int             `json:"completion_tokens"`
	Confidence        float32         `json:"confidence"` // heuristic in [0,1], not a probability
	CreatedAt         time.Time       `json:"created_at"`
}

// ValidationLogEntry is an immutable audit record for one field validation.
// Rows are append-only and never mutated after creation.
type ValidationLogEntry struct {
	ID                 uuid.UUID `json:"id"`
	ExtractionResultID uuid.UUID `json:"extraction_result_id"`
	FieldName          string    `json:"field_name"`
	Expression         string    `json:"expression"`
	IsValid            bool      `json:"is_valid"`
	Message            string    `json:"message"`
	CreatedAt          time.Time `json:"created_at"`
}
