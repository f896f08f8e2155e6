package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

type SchemaRepository interface {
	Create(ctx context.Context, s *entity.Schema) (*entity.Schema, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Schema, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entity.Schema, error)
	Update(ctx context.Context, s *entity.Schema) (*entity.Schema, error)
}

type schemaRepo struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

func NewSchemaRepository(db *sql.DB, driver string, log *slog.Logger) SchemaRepository {
	if log == nil {
		log = slog.Default()
	}
	return &schemaRepo{db: db, driver: driver, log: log}
}

func (r *schemaRepo) Create(ctx context.Context, s *entity.Schema) (*entity.Schema, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return nil, &common.PersistenceError{Op: "encode schema fields", Cause: err}
	}

	const q = `
		INSERT INTO schemas (id, user_id, name, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, rebind(r.driver, q),
		s.ID.String(), s.UserID.String(), s.Name, string(fields), s.CreatedAt, s.UpdatedAt); err != nil {
		r.log.Error("schema create failed", "schema_id", s.ID, "error", err)
		return nil, &common.PersistenceError{Op: "insert schema", Cause: err}
	}
	r.log.Info("schema created", "schema_id", s.ID, "name", s.Name, "fields", len(s.Fields))
	return s, nil
}

func (r *schemaRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Schema, error) {
	const q = `
		SELECT id, user_id, name, fields, created_at, updated_at
		FROM schemas
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, rebind(r.driver, q), id.String())
	s, err := scanSchema(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, &common.PersistenceError{Op: "select schema", Cause: err}
	}
	return s, nil
}

func (r *schemaRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entity.Schema, error) {
	const q = `
		SELECT id, user_id, name, fields, created_at, updated_at
		FROM schemas
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, q), userID.String())
	if err != nil {
		return nil, &common.PersistenceError{Op: "list schemas", Cause: err}
	}
	defer rows.Close()

	out := make([]*entity.Schema, 0)
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, &common.PersistenceError{Op: "scan schema", Cause: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &common.PersistenceError{Op: "list schemas", Cause: err}
	}
	return out, nil
}

func (r *schemaRepo) Update(ctx context.Context, s *entity.Schema) (*entity.Schema, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now().UTC()

	fields, err := json.Marshal(s.Fields)
	if err != nil {
		return nil, &common.PersistenceError{Op: "encode schema fields", Cause: err}
	}

	const q = `
		UPDATE schemas
		SET name = $1, fields = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5
	`
	res, err := r.db.ExecContext(ctx, rebind(r.driver, q),
		s.Name, string(fields), s.UpdatedAt, s.ID.String(), s.UserID.String())
	if err != nil {
		return nil, &common.PersistenceError{Op: "update schema", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, common.ErrNotFound
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchema(row rowScanner) (*entity.Schema, error) {
	var (
		s         entity.Schema
		id, user  string
		fieldJSON string
	)
	if err := row.Scan(&id, &user, &s.Name, &fieldJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if s.UserID, err = uuid.Parse(user); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldJSON), &s.Fields); err != nil {
		return nil, err
	}
	return &s, nil
}
