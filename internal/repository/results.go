package repository

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// ResultRow is an extraction result joined with its document, the shape the
// listing and export surfaces need.
type ResultRow struct {
	Result   *entity.ExtractionResult
	Document *entity.Document
}

type ResultRepository interface {
	CreateResult(ctx context.Context, res *entity.ExtractionResult) (*entity.ExtractionResult, error)
	CreateValidationLogEntries(ctx context.Context, entries []*entity.ValidationLogEntry) error
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionResult, error)
	ListValidationLog(ctx context.Context, resultID uuid.UUID) ([]*entity.ValidationLogEntry, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ResultRow, error)
}

type resultRepo struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

func NewResultRepository(db *sql.DB, driver string, log *slog.Logger) ResultRepository {
	if log == nil {
		log = slog.Default()
	}
	return &resultRepo{db: db, driver: driver, log: log}
}

const resultColumns = `id, document_id, extracted_data, validation_summary, model, prompt_tokens, completion_tokens, confidence, created_at`

func (r *resultRepo) CreateResult(ctx context.Context, res *entity.ExtractionResult) (*entity.ExtractionResult, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO extraction_results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, rebind(r.driver, q),
		res.ID.String(), res.DocumentID.String(),
		string(res.ExtractedData), string(res.ValidationSummary),
		res.Model, res.PromptTokens, res.CompletionTokens, res.Confidence, res.CreatedAt)
	if err != nil {
		r.log.Error("result create failed", "document_id", res.DocumentID, "error", err)
		return nil, &common.PersistenceError{Op: "insert extraction result", Cause: err}
	}
	r.log.Info("result created",
		"result_id", res.ID, "document_id", res.DocumentID, "confidence", res.Confidence)
	return res, nil
}

func (r *resultRepo) CreateValidationLogEntries(ctx context.Context, entries []*entity.ValidationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const q = `
		INSERT INTO validation_log_entries (id, extraction_result_id, field_name, expression, is_valid, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &common.PersistenceError{Op: "begin validation log tx", Cause: err}
	}
	defer tx.Rollback()

	stmt := rebind(r.driver, q)
	now := time.Now().UTC()
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, stmt,
			e.ID.String(), e.ExtractionResultID.String(),
			e.FieldName, e.Expression, e.IsValid, e.Message, e.CreatedAt); err != nil {
			return &common.PersistenceError{Op: "insert validation log entry", Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &common.PersistenceError{Op: "commit validation log", Cause: err}
	}
	r.log.Info("validation log persisted", "entries", len(entries))
	return nil
}

func (r *resultRepo) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*entity.ExtractionResult, error) {
	const q = `SELECT ` + resultColumns + ` FROM extraction_results WHERE document_id = $1`
	res, err := scanResult(r.db.QueryRowContext(ctx, rebind(r.driver, q), documentID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, &common.PersistenceError{Op: "select extraction result", Cause: err}
	}
	return res, nil
}

func (r *resultRepo) ListValidationLog(ctx context.Context, resultID uuid.UUID) ([]*entity.ValidationLogEntry, error) {
	const q = `
		SELECT id, extraction_result_id, field_name, expression, is_valid, message, created_at
		FROM validation_log_entries
		WHERE extraction_result_id = $1
		ORDER BY created_at, field_name
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, q), resultID.String())
	if err != nil {
		return nil, &common.PersistenceError{Op: "list validation log", Cause: err}
	}
	defer rows.Close()

	out := make([]*entity.ValidationLogEntry, 0)
	for rows.Next() {
		var (
			e      entity.ValidationLogEntry
			id, ri string
		)
		if err := rows.Scan(&id, &ri, &e.FieldName, &e.Expression, &e.IsValid, &e.Message, &e.CreatedAt); err != nil {
			return nil, &common.PersistenceError{Op: "scan validation log entry", Cause: err}
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if e.ExtractionResultID, err = uuid.Parse(ri); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.PersistenceError{Op: "list validation log", Cause: err}
	}
	return out, nil
}

func (r *resultRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ResultRow, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT r.id, r.document_id, r.extracted_data, r.validation_summary, r.model,
		       r.prompt_tokens, r.completion_tokens, r.confidence, r.created_at,
		       d.id, d.user_id, d.schema_id, d.file_name, d.file_size, d.content_hash,
		       d.storage_path, d.page_count, d.status, d.uploaded_at, d.processed_at
		FROM extraction_results r
		JOIN documents d ON d.id = r.document_id
		WHERE d.user_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, q), userID.String(), limit, offset)
	if err != nil {
		return nil, &common.PersistenceError{Op: "list results", Cause: err}
	}
	defer rows.Close()

	out := make([]*ResultRow, 0)
	for rows.Next() {
		row, err := scanResultRow(rows)
		if err != nil {
			return nil, &common.PersistenceError{Op: "scan result row", Cause: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.PersistenceError{Op: "list results", Cause: err}
	}
	return out, nil
}

func scanResult(row rowScanner) (*entity.ExtractionResult, error) {
	var (
		res           entity.ExtractionResult
		id, docID     string
		data, summary string
	)
	if err := row.Scan(&id, &docID, &data, &summary, &res.Model,
		&res.PromptTokens, &res.CompletionTokens, &res.Confidence, &res.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if res.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if res.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, err
	}
	res.ExtractedData = []byte(data)
	res.ValidationSummary = []byte(summary)
	return &res, nil
}

func scanResultRow(row rowScanner) (*ResultRow, error) {
	var (
		res                      entity.ExtractionResult
		doc                      entity.Document
		rid, rDoc, data, summary string
		did, dUser, dSchema      string
		hashHex, status          string
		processedAt              sql.NullTime
	)
	if err := row.Scan(&rid, &rDoc, &data, &summary, &res.Model,
		&res.PromptTokens, &res.CompletionTokens, &res.Confidence, &res.CreatedAt,
		&did, &dUser, &dSchema, &doc.FileName, &doc.FileSize, &hashHex,
		&doc.StoragePath, &doc.PageCount, &status, &doc.UploadedAt, &processedAt); err != nil {
		return nil, err
	}
	var err error
	if res.ID, err = uuid.Parse(rid); err != nil {
		return nil, err
	}
	if res.DocumentID, err = uuid.Parse(rDoc); err != nil {
		return nil, err
	}
	res.ExtractedData = []byte(data)
	res.ValidationSummary = []byte(summary)

	if doc.ID, err = uuid.Parse(did); err != nil {
		return nil, err
	}
	if doc.UserID, err = uuid.Parse(dUser); err != nil {
		return nil, err
	}
	if doc.SchemaID, err = uuid.Parse(dSchema); err != nil {
		return nil, err
	}
	if doc.ContentHash, err = hex.DecodeString(hashHex); err != nil {
		return nil, err
	}
	doc.Status = constants.DocStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		doc.ProcessedAt = &t
	}
	return &ResultRow{Result: &res, Document: &doc}, nil
}
