package chromaindex

import (
	"context"
	"fmt"
	"sort"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

const (
	attrDocumentID = "document_id"
	attrPosition   = "position"
	attrTokens     = "token_count"
)

var _ core.VectorIndex = (*Index)(nil)

// Index stores entries in a Chroma collection using cosine distance.
type Index struct {
	client     chromago.Client
	collection chromago.Collection
}

// Options configures the Chroma connection.
type Options struct {
	URL        string
	Collection string
	Token      string
}

func New(ctx context.Context, opts Options) (*Index, error) {
	if opts.URL == "" || opts.Collection == "" {
		var missing []string
		if opts.URL == "" {
			missing = append(missing, "CHROMA_URL")
		}
		if opts.Collection == "" {
			missing = append(missing, "CHROMA_COLLECTION")
		}
		return nil, &core.ConfigurationError{Missing: missing}
	}

	clientOpts := []chromago.ClientOption{chromago.WithBaseURL(opts.URL)}
	if opts.Token != "" {
		clientOpts = append(clientOpts, chromago.WithDefaultHeaders(map[string]string{
			"Authorization": "Bearer " + opts.Token,
		}))
	}
	client, err := chromago.NewHTTPClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		opts.Collection,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute("created_by", "askdoc"),
			),
		),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("chroma collection %q: %w", opts.Collection, err)
	}

	logger.Info("chroma collection ready", zap.String("collection", opts.Collection))
	return &Index{client: client, collection: collection}, nil
}

// Upsert sends every entry in one request.
func (s *Index) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	embs := make([]embeddings.Embedding, len(entries))
	metas := make([]chromago.DocumentMetadata, len(entries))
	for i, e := range entries {
		ids[i] = chromago.DocumentID(e.ID)
		texts[i] = e.Text
		embs[i] = embeddings.NewEmbeddingFromFloat32(e.Embedding)
		metas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(attrDocumentID, e.DocumentID),
			chromago.NewIntAttribute(attrPosition, int64(e.Position)),
			chromago.NewIntAttribute(attrTokens, int64(e.TokenCount)),
		)
	}

	if err := s.collection.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	); err != nil {
		return fmt.Errorf("chroma upsert: %w", err)
	}
	return nil
}

func (s *Index) Query(ctx context.Context, documentID string, vector []float32, k int) ([]models.RetrievedPassage, error) {
	out := []models.RetrievedPassage{}
	if k <= 0 {
		return out, nil
	}

	results, err := s.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
		chromago.WithWhereQuery(chromago.EqString(attrDocumentID, documentID)),
	)
	if err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	docGroups := results.GetDocumentsGroups()
	if len(docGroups) == 0 {
		return out, nil
	}
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()

	for i, doc := range docGroups[0] {
		p := models.RetrievedPassage{DocumentID: documentID, Text: doc.ContentString()}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			if pos, ok := metaGroups[0][i].GetInt(attrPosition); ok {
				p.Position = int(pos)
			}
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			p.Score = 1 - float64(distGroups[0][i])
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *Index) DeleteDocument(ctx context.Context, documentID string) error {
	where := chromago.EqString(attrDocumentID, documentID)
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(where)); err != nil {
		return fmt.Errorf("chroma delete: %w", err)
	}
	return nil
}

func (s *Index) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
