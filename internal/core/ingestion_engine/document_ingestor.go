package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

// DocumentIngestor orchestrates extraction, chunking and indexing of a
// single document:
//
// extractor: pulls plain text out of the upload (docconv/unipdf).
// chunker:   splits the text into overlapping chunks.
// indexer:   embeds and persists the chunks.
type DocumentIngestor struct {
	extractor core.DocumentExtractor
	chunker   core.Chunker
	indexer   *Indexer
}

func NewDocumentIngestor(extractor core.DocumentExtractor, chunker core.Chunker, indexer *Indexer) *DocumentIngestor {
	return &DocumentIngestor{extractor: extractor, chunker: chunker, indexer: indexer}
}

func (i *DocumentIngestor) Supports(contentType string) bool {
	return i.extractor.Supports(contentType)
}

// Ingest extracts, chunks and indexes doc. On success doc.ChunkCount holds
// the number of entries written; on failure nothing is left in the index.
func (i *DocumentIngestor) Ingest(ctx context.Context, doc *models.Document, data []byte) (int, error) {
	log := logger.With(zap.String("document_id", doc.ID), zap.String("file_name", doc.FileName))
	started := time.Now()

	if !i.extractor.Supports(doc.ContentType) {
		return 0, fmt.Errorf("%w: %s", core.ErrUnsupportedDocument, doc.ContentType)
	}

	text, err := i.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		if !errors.Is(err, core.ErrExtraction) {
			err = core.Wrap(core.ErrExtraction, "extract "+doc.FileName, err)
		}
		return 0, err
	}

	chunks, err := i.chunker.Split(text)
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", doc.FileName, err)
	}
	log.Info("document chunked", zap.Int("characters", len([]rune(text))), zap.Int("chunks", len(chunks)))

	n, err := i.indexer.Index(ctx, doc.ID, chunks)
	if err != nil {
		return 0, err
	}

	doc.ChunkCount = n
	log.Info("document ingested", zap.Int("entries", n), zap.Duration("took", time.Since(started)))
	return n, nil
}
