// Package server exposes the HTTP surface: invoice upload, job polling,
// schema management, results, and export.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/async"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
	"github.com/anchit2000/invoice-parsing-llms/internal/export"
	"github.com/anchit2000/invoice-parsing-llms/internal/repository"
)

// Server wires the HTTP handlers to the queue and repositories.
type Server struct {
	app       *fiber.App
	cfg       common.ServerConfig
	maxUpload int64
	db        *sql.DB
	queue     async.Queue
	schemas   repository.SchemaRepository
	documents repository.DocumentRepository
	results   repository.ResultRepository
	exporter  *export.Service
	logger    *slog.Logger
}

func New(
	cfg common.ServerConfig,
	maxUpload int64,
	db *sql.DB,
	queue async.Queue,
	schemas repository.SchemaRepository,
	documents repository.DocumentRepository,
	results repository.ResultRepository,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = constants.MaxUploadBytes
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
		BodyLimit:    int(maxUpload) + 1<<20, // headroom for multipart framing
	})
	s := &Server{
		app:       app,
		cfg:       cfg,
		maxUpload: maxUpload,
		db:        db,
		queue:     queue,
		schemas:   schemas,
		documents: documents,
		results:   results,
		exporter:  exporter,
		logger:    logger,
	}
	s.registerRoutes()

	// stored uploads live only while their job is in flight
	queue.On(async.EventCompleted, s.removeStoredUpload)
	queue.On(async.EventFailed, s.removeStoredUpload)
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	s.logger.Info("http.listen", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Use(RequestID())
	s.app.Use(RequestLogger(s.logger))

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	s.app.Post("/schemas", s.handleCreateSchema)
	s.app.Get("/schemas", s.handleListSchemas)
	s.app.Get("/schemas/:id", s.handleGetSchema)
	s.app.Put("/schemas/:id", s.handleUpdateSchema)

	s.app.Post("/invoices/upload", s.handleUpload)
	s.app.Get("/invoices/job/:id", s.handleJobStatus)
	s.app.Get("/invoices", s.handleListDocuments)

	s.app.Get("/results", s.handleListResults)
	s.app.Get("/results/export", s.handleExport)
	s.app.Get("/results/:documentId", s.handleGetResult)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
}

// --- schemas ---

type schemaRequest struct {
	Name   string         `json:"name"`
	Fields []entity.Field `json:"fields"`
}

func (s *Server) handleCreateSchema(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	var req schemaRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	sc := &entity.Schema{UserID: userID, Name: req.Name, Fields: req.Fields}
	if err := sc.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SCHEMA", err.Error())
	}
	created, err := s.schemas.Create(c.UserContext(), sc)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) handleListSchemas(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	list, err := s.schemas.ListByUser(c.UserContext(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(list)
}

func (s *Server) handleGetSchema(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	sc, err := s.schemas.GetByID(c.UserContext(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(sc)
}

func (s *Server) handleUpdateSchema(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	var req schemaRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	sc := &entity.Schema{ID: id, UserID: userID, Name: req.Name, Fields: req.Fields}
	if err := sc.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SCHEMA", err.Error())
	}
	updated, err := s.schemas.Update(c.UserContext(), sc)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(updated)
}

// --- invoices ---

// handleUpload accepts a multipart PDF, stores it, and enqueues a pipeline
// job bound to a snapshot of the chosen schema. The response carries the job
// id to poll.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	schemaID, err := uuid.Parse(c.FormValue("schema_id"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_SCHEMA_ID", "schema_id form field is required")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
	}
	if !constants.IsAllowedExt(filepath.Ext(fh.Filename)) {
		return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "only PDF files are accepted")
	}
	if fh.Size > s.maxUpload {
		return writeDomainError(c, &common.SizeError{Size: fh.Size, Limit: s.maxUpload})
	}

	schema, err := s.schemas.GetByID(c.UserContext(), schemaID)
	if err != nil {
		return writeDomainError(c, err)
	}
	if schema.UserID != userID {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "resource not found")
	}

	jobID := uuid.New()
	storedPath, err := s.storeUpload(fh, jobID)
	if err != nil {
		s.logger.Error("http.upload.store_failed", "error", err)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	job := async.Job{
		ID:          jobID,
		UserID:      userID,
		Schema:      schema,
		FilePath:    storedPath,
		FileName:    fh.Filename,
		FileSize:    fh.Size,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(c.UserContext(), job); err != nil {
		_ = os.Remove(storedPath)
		return writeDomainError(c, err)
	}

	s.logger.Info("http.upload.accepted",
		"job_id", jobID, "file", fh.Filename, "size", fh.Size, "schema_id", schemaID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": jobID,
		"state":  constants.JobStateWaiting,
	})
}

// storeUpload copies the multipart file into UploadDir under the job id so
// concurrent uploads of identically named files never collide.
func (s *Server) storeUpload(fh *multipart.FileHeader, jobID uuid.UUID) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dstPath := filepath.Join(s.cfg.UploadDir, jobID.String()+".pdf")
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create stored file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("write stored file: %w", err)
	}
	return dstPath, nil
}

// removeStoredUpload deletes the stored copy once its job finished, keeping
// UploadDir bounded by the number of in-flight jobs.
func (s *Server) removeStoredUpload(st async.Status) {
	path := filepath.Join(s.cfg.UploadDir, st.ID.String()+".pdf")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("http.upload.cleanup_failed", "job_id", st.ID, "error", err)
	}
}

func (s *Server) handleJobStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	status, ok := s.queue.Status(id)
	if !ok {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	return c.JSON(status)
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_PAGINATION", "invalid limit or offset")
	}
	docs, err := s.documents.ListByUser(c.UserContext(), userID, limit, offset)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(docs)
}

// --- results ---

func (s *Server) handleListResults(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_PAGINATION", "invalid limit or offset")
	}
	rows, err := s.results.ListByUser(c.UserContext(), userID, limit, offset)
	if err != nil {
		return writeDomainError(c, err)
	}

	out := make([]fiber.Map, len(rows))
	for i, r := range rows {
		out[i] = fiber.Map{
			"result":   r.Result,
			"document": r.Document,
		}
	}
	return c.JSON(out)
}

func (s *Server) handleGetResult(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("documentId"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	res, err := s.results.GetByDocumentID(c.UserContext(), docID)
	if err != nil {
		return writeDomainError(c, err)
	}
	log, err := s.results.ListValidationLog(c.UserContext(), res.ID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(fiber.Map{
		"result":         res,
		"validation_log": log,
	})
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	userID, err := userIDFromHeader(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_USER", "missing or invalid X-User-ID header")
	}
	data, err := s.exporter.ExportResultsXLSX(c.UserContext(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	name := fmt.Sprintf("results_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(data)
}

func pagination(c *fiber.Ctx) (limit, offset int, err error) {
	limit, err = strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return 0, 0, fmt.Errorf("invalid limit")
	}
	offset, err = strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("invalid offset")
	}
	return limit, offset, nil
}
