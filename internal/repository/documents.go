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

type DocumentRepository interface {
	Create(ctx context.Context, d *entity.Document) (*entity.Document, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	// GetByContentHash returns ErrNotFound when no document shares the hash.
	// When several attempts share it, a completed document wins.
	GetByContentHash(ctx context.Context, hash []byte) (*entity.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.DocStatus, processedAt *time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Document, error)
}

type documentRepo struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

func NewDocumentRepository(db *sql.DB, driver string, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{db: db, driver: driver, log: log}
}

const documentColumns = `id, user_id, schema_id, file_name, file_size, content_hash, storage_path, page_count, status, uploaded_at, processed_at`

func (r *documentRepo) Create(ctx context.Context, d *entity.Document) (*entity.Document, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = constants.DocStatusProcessing
	}

	const q = `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, rebind(r.driver, q),
		d.ID.String(), d.UserID.String(), d.SchemaID.String(),
		d.FileName, d.FileSize, hex.EncodeToString(d.ContentHash),
		d.StoragePath, d.PageCount, string(d.Status), d.UploadedAt, d.ProcessedAt)
	if err != nil {
		r.log.Error("document create failed", "document_id", d.ID, "error", err)
		return nil, &common.PersistenceError{Op: "insert document", Cause: err}
	}
	r.log.Info("document created",
		"document_id", d.ID, "file", d.FileName, "pages", d.PageCount, "status", d.Status)
	return d, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, rebind(r.driver, q), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, &common.PersistenceError{Op: "select document", Cause: err}
	}
	return d, nil
}

func (r *documentRepo) GetByContentHash(ctx context.Context, hash []byte) (*entity.Document, error) {
	// Failed attempts can share a hash; prefer the completed document, then
	// the most recent attempt.
	const q = `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1 ` +
		`ORDER BY CASE WHEN status = 'COMPLETED' THEN 0 ELSE 1 END, uploaded_at DESC LIMIT 1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, rebind(r.driver, q), hex.EncodeToString(hash)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, &common.PersistenceError{Op: "select document by hash", Cause: err}
	}
	return d, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status constants.DocStatus, processedAt *time.Time) error {
	const q = `UPDATE documents SET status = $1, processed_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, rebind(r.driver, q), string(status), processedAt, id.String())
	if err != nil {
		r.log.Error("document status update failed", "document_id", id, "status", status, "error", err)
		return &common.PersistenceError{Op: "update document status", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	r.log.Info("document status updated", "document_id", id, "status", status)
	return nil
}

func (r *documentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, q), userID.String(), limit, offset)
	if err != nil {
		return nil, &common.PersistenceError{Op: "list documents", Cause: err}
	}
	defer rows.Close()

	out := make([]*entity.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, &common.PersistenceError{Op: "scan document", Cause: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.PersistenceError{Op: "list documents", Cause: err}
	}
	return out, nil
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		d                  entity.Document
		id, user, schemaID string
		hashHex, status    string
		processedAt        sql.NullTime
	)
	if err := row.Scan(&id, &user, &schemaID, &d.FileName, &d.FileSize, &hashHex,
		&d.StoragePath, &d.PageCount, &status, &d.UploadedAt, &processedAt); err != nil {
		return nil, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if d.UserID, err = uuid.Parse(user); err != nil {
		return nil, err
	}
	if d.SchemaID, err = uuid.Parse(schemaID); err != nil {
		return nil, err
	}
	if d.ContentHash, err = hex.DecodeString(hashHex); err != nil {
		return nil, err
	}
	d.Status = constants.DocStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	return &d, nil
}
