package repository

import (
	"context"
	"database/sql"
	"log/slog"
)

// Bootstrap DDL, portable across postgres and sqlite. Production postgres
// deployments run the external migration tooling instead; this exists for
// sqlite/local modes and tests.
var bootstrapStatements = []string{
	`CREATE TABLE IF NOT EXISTS schemas (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fields TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schemas_user ON schemas (user_id)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		schema_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_size BIGINT NOT NULL,
		content_hash TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		page_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		uploaded_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,
	// Failed attempts may accumulate per hash; only one completed document
	// exists for any given content.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_hash ON documents (content_hash) WHERE status = 'COMPLETED'`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, uploaded_at)`,
	`CREATE TABLE IF NOT EXISTS extraction_results (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		extracted_data TEXT NOT NULL,
		validation_summary TEXT,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		confidence REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_document ON extraction_results (document_id)`,
	`CREATE TABLE IF NOT EXISTS validation_log_entries (
		id TEXT PRIMARY KEY,
		extraction_result_id TEXT NOT NULL,
		field_name TEXT NOT NULL,
		expression TEXT,
		is_valid BOOLEAN NOT NULL,
		message TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vlog_result ON validation_log_entries (extraction_result_id)`,
}

// Bootstrap creates the tables if they do not exist yet.
func Bootstrap(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, stmt := range bootstrapStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("bootstrap statement failed", "error", err)
			return err
		}
	}
	logger.Info("database bootstrap complete", "statements", len(bootstrapStatements))
	return nil
}
