package memindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/models"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

var _ core.VectorIndex = (*Index)(nil)

// Index is an in-process vector index using brute-force cosine similarity.
// It is lost when the process exits.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []models.IndexEntry
	norms     []float64
}

func New() *Index { return &Index{} }

// Upsert validates every entry before storing any of them.
func (s *Index) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(entries[0].Embedding)
	}
	if dim == 0 {
		return errors.New("empty embedding")
	}
	norms := make([]float64, len(entries))
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return fmt.Errorf("%w: entry %d has %d, index has %d", ErrDimensionMismatch, e.Position, len(e.Embedding), dim)
		}
		norms[i] = norm(e.Embedding)
	}

	s.dimension = dim
	s.entries = append(s.entries, entries...)
	s.norms = append(s.norms, norms...)
	return nil
}

func (s *Index) Query(ctx context.Context, documentID string, vector []float32, k int) ([]models.RetrievedPassage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || k <= 0 {
		return []models.RetrievedPassage{}, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	qn := norm(vector)
	out := make([]models.RetrievedPassage, 0, k)
	for i, e := range s.entries {
		if e.DocumentID != documentID {
			continue
		}
		out = append(out, models.RetrievedPassage{
			DocumentID: e.DocumentID,
			Position:   e.Position,
			Text:       e.Text,
			Score:      cosine(e.Embedding, vector, s.norms[i], qn),
		})
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
	return out, nil
}

func (s *Index) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keptEntries := s.entries[:0]
	keptNorms := s.norms[:0]
	for i, e := range s.entries {
		if e.DocumentID == documentID {
			continue
		}
		keptEntries = append(keptEntries, e)
		keptNorms = append(keptNorms, s.norms[i])
	}
	s.entries = keptEntries
	s.norms = keptNorms
	if len(s.entries) == 0 {
		s.dimension = 0
	}
	return nil
}

// Len reports how many entries are stored.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Index) Close() error { return nil }

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
