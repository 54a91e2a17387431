package query_engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

// RetrieverConfig tunes nearest-neighbour lookups.
type RetrieverConfig struct {
	TopK     int
	MinScore float64
	Timeout  time.Duration
}

// Retriever embeds a query and returns the closest passages of one document.
type Retriever struct {
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	topK     int
	minScore float64
	timeout  time.Duration
}

func NewRetriever(emb core.EmbeddingProvider, index core.VectorIndex, cfg RetrieverConfig) *Retriever {
	r := &Retriever{embedder: emb, index: index, topK: cfg.TopK, minScore: cfg.MinScore, timeout: cfg.Timeout}
	if r.topK <= 0 {
		r.topK = 4
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}
	return r
}

// Retrieve returns at most k passages ordered by descending score, ties by
// position. k <= 0 uses the configured default. An empty index gives an
// empty slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, k int) ([]models.RetrievedPassage, error) {
	if k <= 0 {
		k = r.topK
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, core.Wrap(core.ErrRetrieval, "embed query", core.Wrap(core.ErrEmbedding, "embed texts", err))
	}
	if len(vecs) != 1 {
		err := fmt.Errorf("provider returned %d vectors for 1 query", len(vecs))
		return nil, core.Wrap(core.ErrRetrieval, "embed query", core.Wrap(core.ErrEmbedding, "embed texts", err))
	}

	passages, err := r.index.Query(ctx, documentID, vecs[0], k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("retrieval timed out", zap.String("document_id", documentID), zap.Duration("timeout", r.timeout))
		}
		return nil, core.Wrap(core.ErrRetrieval, "query index", err)
	}

	out := make([]models.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if r.minScore > 0 && p.Score < r.minScore {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > k {
		out = out[:k]
	}

	logger.Debug("retrieved passages",
		zap.String("document_id", documentID), zap.Int("k", k), zap.Int("returned", len(out)))
	return out, nil
}
