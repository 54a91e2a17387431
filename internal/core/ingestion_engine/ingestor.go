package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/askdoc/internal/models"
)

// Ingestor turns one uploaded document into vector index entries.
type Ingestor interface {
	Supports(contentType string) bool
	Ingest(ctx context.Context, doc *models.Document, data []byte) (int, error)
}
