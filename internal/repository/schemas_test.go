package repository

import (
	"context"
	"encoding/json"
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

func newMockDB(t *testing.T) (*schemaRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &schemaRepo{db: db, driver: DriverPgx, log: discardLogger()}, mock
}

func validSchema() *entity.Schema {
	return &entity.Schema{
		UserID: uuid.New(),
		Name:   "invoice",
		Fields: []entity.Field{
			{Name: "invoice_number", Type: constants.FieldString, Required: true},
			{Name: "total", Type: constants.FieldCurrency, Validation: "value > 0", Required: true},
		},
	}
}

func TestSchemaRepoCreate(t *testing.T) {
	repo, mock := newMockDB(t)

	s := validSchema()
	mock.ExpectExec("INSERT INTO schemas").
		WithArgs(sqlmock.AnyArg(), s.UserID.String(), "invoice", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := repo.Create(context.Background(), s)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepoCreateRejectsInvalidSchema(t *testing.T) {
	repo, mock := newMockDB(t)

	_, err := repo.Create(context.Background(), &entity.Schema{Name: "empty"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet()) // no SQL was issued
}

func TestSchemaRepoGetByID(t *testing.T) {
	repo, mock := newMockDB(t)

	id := uuid.New()
	userID := uuid.New()
	fields, _ := json.Marshal([]entity.Field{{Name: "total", Type: constants.FieldCurrency}})
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "fields", "created_at", "updated_at"}).
		AddRow(id.String(), userID.String(), "invoice", string(fields), now, now)
	mock.ExpectQuery("SELECT id, user_id, name, fields, created_at, updated_at").
		WithArgs(id.String()).
		WillReturnRows(rows)

	s, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.Equal(t, userID, s.UserID)
	require.Len(t, s.Fields, 1)
	assert.Equal(t, constants.FieldCurrency, s.Fields[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockDB(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, user_id, name, fields, created_at, updated_at").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "fields", "created_at", "updated_at"}))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaRepoUpdateNotOwned(t *testing.T) {
	repo, mock := newMockDB(t)

	s := validSchema()
	s.ID = uuid.New()
	mock.ExpectExec("UPDATE schemas").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Update(context.Background(), s)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?", rebind(DriverSQLite, q))
	assert.Equal(t, q, rebind(DriverPgx, q))
}
