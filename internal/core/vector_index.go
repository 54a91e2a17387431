package core

import (
	"context"

	"github.com/markdave123-py/askdoc/internal/models"
)

// VectorIndex stores chunk embeddings and answers nearest-neighbour queries
// scoped to one document. Implementations wrap Postgres/pgvector, Chroma or
// process memory so higher layers never depend on a specific store.
type VectorIndex interface {
	// Upsert writes all entries or none of them.
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	// Query returns at most k passages of documentID ordered by descending
	// similarity, ties broken by ascending position.
	Query(ctx context.Context, documentID string, vector []float32, k int) ([]models.RetrievedPassage, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Close() error
}

// ObjectClient archives uploaded originals in S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
}
