package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

// Document represents one uploaded invoice file for data transfer between layers.
type Document struct {
	ID          uuid.UUID           `json:"id"`
	UserID      uuid.UUID           `json:"user_id"`
	SchemaID    uuid.UUID           `json:"schema_id"`
	FileName    string              `json:"file_name"`
	FileSize    int64               `json:"file_size"`
	ContentHash []byte              `json:"content_hash"`
	StoragePath string              `json:"storage_path"`
	PageCount   int                 `json:"page_count"`
	Status      constants.DocStatus `json:"status"`
	UploadedAt  time.Time           `json:"uploaded_at"`
	ProcessedAt *time.Time          `json:"processed_at,omitempty"`
}
