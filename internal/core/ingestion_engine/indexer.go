package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

// Indexer embeds the chunks of one document and writes them to the vector
// index. It is all-or-nothing: entries are only written after every chunk
// was embedded.
type Indexer struct {
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	cfg      IngestConfig
}

func NewIndexer(emb core.EmbeddingProvider, index core.VectorIndex, cfg *IngestConfig) *Indexer {
	return &Indexer{embedder: emb, index: index, cfg: cfg.withDefaults()}
}

// Index embeds chunks in order and upserts one entry per chunk, returning the
// number of entries written.
func (ix *Indexer) Index(ctx context.Context, documentID string, chunks []string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	log := logger.With(zap.String("document_id", documentID))
	started := time.Now()

	vectors := make([][]float32, len(chunks))
	var (
		mu       sync.Mutex
		failures []core.ChunkFailure
	)
	fail := func(b batch, err error) {
		mu.Lock()
		defer mu.Unlock()
		for i := range b.texts {
			failures = append(failures, core.ChunkFailure{Position: b.start + i, Err: err})
		}
	}

	// Batches never return an error to the group so every failure is collected.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)
	for _, b := range ix.batches(chunks) {
		g.Go(func() error {
			vecs, err := ix.embedBatch(gctx, b)
			if err != nil {
				fail(b, err)
				return nil
			}
			copy(vectors[b.start:], vecs)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Position < failures[j].Position })
		log.Warn("indexing aborted before write", zap.Int("failed_chunks", len(failures)), zap.Int("chunks", len(chunks)))
		return 0, &core.IndexingError{DocumentID: documentID, Failures: failures}
	}

	now := time.Now().UTC()
	entries := make([]models.IndexEntry, len(chunks))
	for pos, text := range chunks {
		entries[pos] = models.IndexEntry{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Position:   pos,
			Text:       text,
			Embedding:  vectors[pos],
			TokenCount: approxTokens(text),
			CreatedAt:  now,
		}
	}

	if err := ix.index.Upsert(ctx, entries); err != nil {
		// stores without transactions may hold a partial write
		if derr := ix.index.DeleteDocument(context.WithoutCancel(ctx), documentID); derr != nil {
			log.Error("cleanup after failed upsert", zap.Error(derr))
		}
		return 0, &core.IndexingError{DocumentID: documentID, Err: fmt.Errorf("upsert: %w", err)}
	}

	log.Info("document indexed", zap.Int("entries", len(entries)), zap.Duration("took", time.Since(started)))
	return len(entries), nil
}

func (ix *Indexer) batches(chunks []string) []batch {
	out := make([]batch, 0, (len(chunks)+ix.cfg.BatchSize-1)/ix.cfg.BatchSize)
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := min(start+ix.cfg.BatchSize, len(chunks))
		out = append(out, batch{start: start, texts: chunks[start:end]})
	}
	return out
}

func (ix *Indexer) embedBatch(ctx context.Context, b batch) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
	defer cancel()

	op := fmt.Sprintf("embed chunks %d-%d", b.start, b.start+len(b.texts)-1)
	vecs, err := ix.embedder.EmbedTexts(ctx, b.texts)
	if err != nil {
		return nil, core.Wrap(core.ErrEmbedding, op, err)
	}
	if len(vecs) != len(b.texts) {
		return nil, core.Wrap(core.ErrEmbedding, op,
			fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(b.texts)))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, core.Wrap(core.ErrEmbedding, op, errors.New("provider returned an empty vector"))
		}
	}
	return vecs, nil
}
