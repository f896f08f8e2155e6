package repository

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDocMockDB(t *testing.T) (*documentRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &documentRepo{db: db, driver: DriverPgx, log: discardLogger()}, mock
}

func docColumns() []string {
	return []string{"id", "user_id", "schema_id", "file_name", "file_size", "content_hash",
		"storage_path", "page_count", "status", "uploaded_at", "processed_at"}
}

func TestDocumentRepoCreateStoresHashAsHex(t *testing.T) {
	repo, mock := newDocMockDB(t)

	hash := []byte{0xde, 0xad, 0xbe, 0xef}
	d := &entity.Document{
		UserID:      uuid.New(),
		SchemaID:    uuid.New(),
		FileName:    "invoice.pdf",
		FileSize:    2048,
		ContentHash: hash,
		StoragePath: "/uploads/x.pdf",
		PageCount:   2,
	}
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), d.UserID.String(), d.SchemaID.String(),
			"invoice.pdf", int64(2048), "deadbeef",
			"/uploads/x.pdf", 2, string(constants.DocStatusProcessing),
			sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), d)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepoGetByContentHash(t *testing.T) {
	repo, mock := newDocMockDB(t)

	hash := []byte{0x01, 0x02}
	id := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(docColumns()).
		AddRow(id.String(), uuid.New().String(), uuid.New().String(), "a.pdf", int64(10),
			hex.EncodeToString(hash), "/uploads/a.pdf", 1, "COMPLETED", now, now)
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE content_hash").
		WithArgs("0102").
		WillReturnRows(rows)

	d, err := repo.GetByContentHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)
	assert.Equal(t, hash, d.ContentHash)
	assert.Equal(t, constants.DocStatusCompleted, d.Status)
	require.NotNil(t, d.ProcessedAt)
}

func TestDocumentRepoGetByContentHashNotFound(t *testing.T) {
	repo, mock := newDocMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE content_hash").
		WillReturnRows(sqlmock.NewRows(docColumns()))

	_, err := repo.GetByContentHash(context.Background(), []byte{0xaa})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDocumentRepoUpdateStatus(t *testing.T) {
	repo, mock := newDocMockDB(t)

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE documents SET status").
		WithArgs(string(constants.DocStatusCompleted), now, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), id, constants.DocStatusCompleted, &now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepoUpdateStatusMissingRow(t *testing.T) {
	repo, mock := newDocMockDB(t)

	mock.ExpectExec("UPDATE documents SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), uuid.New(), constants.DocStatusFailed, nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
