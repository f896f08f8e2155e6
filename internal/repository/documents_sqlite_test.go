package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

func newBootstrappedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, Bootstrap(context.Background(), db, discardLogger()))
	return db
}

func testDocument(userID, schemaID uuid.UUID, hash []byte, path string) *entity.Document {
	return &entity.Document{
		UserID:      userID,
		SchemaID:    schemaID,
		FileName:    "invoice.pdf",
		FileSize:    1024,
		ContentHash: hash,
		StoragePath: path,
		PageCount:   1,
	}
}

func TestDocumentRepoFailedAttemptReprocessable(t *testing.T) {
	db := newBootstrappedDB(t)
	repo := NewDocumentRepository(db, DriverSQLite, discardLogger())
	ctx := context.Background()

	userID, schemaID := uuid.New(), uuid.New()
	hash := sha256.Sum256([]byte("identical invoice bytes"))

	first, err := repo.Create(ctx, testDocument(userID, schemaID, hash[:], "/uploads/a.pdf"))
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, constants.DocStatusFailed, &now))

	// identical bytes submitted again after a failure insert cleanly
	second, err := repo.Create(ctx, testDocument(userID, schemaID, hash[:], "/uploads/b.pdf"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, second.ID, constants.DocStatusCompleted, &now))

	got, err := repo.GetByContentHash(ctx, hash[:])
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, constants.DocStatusCompleted, got.Status)
}

func TestDocumentRepoCompletedHashUnique(t *testing.T) {
	db := newBootstrappedDB(t)
	repo := NewDocumentRepository(db, DriverSQLite, discardLogger())
	ctx := context.Background()

	userID, schemaID := uuid.New(), uuid.New()
	hash := sha256.Sum256([]byte("some invoice"))
	now := time.Now().UTC()

	first, err := repo.Create(ctx, testDocument(userID, schemaID, hash[:], "/uploads/a.pdf"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, constants.DocStatusCompleted, &now))

	second, err := repo.Create(ctx, testDocument(userID, schemaID, hash[:], "/uploads/b.pdf"))
	require.NoError(t, err)
	err = repo.UpdateStatus(ctx, second.ID, constants.DocStatusCompleted, &now)
	require.Error(t, err, "two completed documents must not share a content hash")
}
