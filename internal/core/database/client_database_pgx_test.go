package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/askdoc/internal/config"
	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/models"
)

func newMockStore(t *testing.T) (*VectorStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewVectorStoreFromDB(sqlDB), mock
}

func testEntries() []models.IndexEntry {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []models.IndexEntry{
		{ID: "e0", DocumentID: "doc-1", Position: 0, Text: "first", Embedding: []float32{0.1, 0.2}, TokenCount: 2, CreatedAt: now},
		{ID: "e1", DocumentID: "doc-1", Position: 1, Text: "second", Embedding: []float32{0.3, 0.4}, TokenCount: 2, CreatedAt: now},
	}
}

func TestUpsertWritesAllEntriesInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	entries := testEntries()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO document_chunks")
	for _, e := range entries {
		prep.ExpectExec().
			WithArgs(e.ID, e.DocumentID, e.Position, e.Text, sqlmock.AnyArg(), e.TokenCount, e.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.Upsert(context.Background(), entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	entries := testEntries()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO document_chunks")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Upsert(context.Background(), entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert chunk 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertNothingIsNoop(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.Upsert(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryScansPassagesInOrder(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"document_id", "position", "text", "score"}).
		AddRow("doc-1", 3, "Paris is the capital of France.", 0.93).
		AddRow("doc-1", 0, "France is in Europe.", 0.41)
	mock.ExpectQuery("SELECT document_id, position, text").
		WithArgs("doc-1", sqlmock.AnyArg(), 2).
		WillReturnRows(rows)

	got, err := store.Query(context.Background(), "doc-1", []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.RetrievedPassage{DocumentID: "doc-1", Position: 3, Text: "Paris is the capital of France.", Score: 0.93}, got[0])
	assert.Equal(t, 0, got[1].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEmptyResultIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT document_id").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "position", "text", "score"}))

	got, err := store.Query(context.Background(), "doc-1", []float32{1}, 4)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT document_id").WillReturnError(errors.New("connection reset"))

	_, err := store.Query(context.Background(), "doc-1", []float32{1}, 4)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDeleteDocument(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	require.NoError(t, store.DeleteDocument(context.Background(), "doc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureBootstrappedRunsScriptOnFreshDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, EnsureBootstrapped(context.Background(), sqlDB))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureBootstrappedSkipsWhenVersionPresent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM askdoc_meta").
		WithArgs(schemaVersion).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, EnsureBootstrapped(context.Background(), sqlDB))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewVectorStoreRequiresURL(t *testing.T) {
	_, err := NewVectorStore(context.Background(), &config.Config{})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestDataSourceName(t *testing.T) {
	dsn, err := dataSourceName("postgres://u:p@localhost:5432/askdoc", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/askdoc", dsn)

	_, err = dataSourceName("postgres://localhost/askdoc", filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	cert := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	dsn, err = dataSourceName("postgres://localhost/askdoc", cert)
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-ca")
	assert.Contains(t, dsn, "sslrootcert=")
}
