// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	appMiddleware "github.com/markdave123-py/askdoc/internal/api/middlewares"
	"github.com/markdave123-py/askdoc/internal/config"
	"github.com/markdave123-py/askdoc/internal/core"
	chromaindex "github.com/markdave123-py/askdoc/internal/core/chroma-index"
	db "github.com/markdave123-py/askdoc/internal/core/database"
	"github.com/markdave123-py/askdoc/internal/core/ingestion_engine"
	"github.com/markdave123-py/askdoc/internal/core/llm"
	memindex "github.com/markdave123-py/askdoc/internal/core/memory-index"
	objectclient "github.com/markdave123-py/askdoc/internal/core/object-client"
	"github.com/markdave123-py/askdoc/internal/core/query_engine"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/services"
)

// Pipeline is the wired answering pipeline plus the clients it owns.
type Pipeline struct {
	*services.Pipeline
	closers []io.Closer
}

// NewPipeline validates cfg and builds every component. Nothing touches the
// network before validation passes.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{Pipeline: &services.Pipeline{}}
	if err := p.build(ctx, cfg); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, cfg *config.Config) error {
	initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	embedder, err := p.newEmbedder(initCtx, cfg)
	if err != nil {
		return fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	generator, err := p.newLLM(initCtx, cfg)
	if err != nil {
		return fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	index, err := p.newIndex(initCtx, cfg)
	if err != nil {
		return fmt.Errorf("couldn't initialize the vector store: %w", err)
	}
	p.Index = index
	logger.Info("vector store ready", zap.String("store", cfg.VectorStore))

	if cfg.BucketName != "" {
		archive, err := objectclient.NewS3Client(initCtx, cfg)
		if err != nil {
			return fmt.Errorf("couldn't initialize the archive: %w", err)
		}
		p.Archive = archive
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		return err
	}
	chunker, err := newChunker(cfg)
	if err != nil {
		return err
	}

	indexer := ingestion_engine.NewIndexer(embedder, index, &ingestion_engine.IngestConfig{
		BatchSize:    cfg.BatchSize,
		Concurrency:  cfg.EmbedConcurrency,
		EmbedTimeout: cfg.EmbedTimeout,
	})
	p.Ingestor = ingestion_engine.NewDocumentIngestor(extractor, chunker, indexer)
	p.Retriever = query_engine.NewRetriever(embedder, index, query_engine.RetrieverConfig{
		TopK:     cfg.TopK,
		MinScore: cfg.MinScore,
		Timeout:  cfg.RetrieveTimeout,
	})
	p.Composer = query_engine.NewComposer(generator, cfg.GenerateTimeout)

	logger.Info("pipeline ready",
		zap.String("llm", cfg.LLMProvider),
		zap.String("embedder", cfg.EmbedProvider),
		zap.String("extractor", cfg.Extractor),
		zap.String("chunker", cfg.Chunker),
		zap.Bool("archive", p.Archive != nil))
	return nil
}

func (p *Pipeline) newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case config.ProviderGemini:
		emb, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, emb)
		return emb, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel)
	case config.ProviderHash:
		return llm.NewHashEmbedder(cfg.HashEmbedDim), nil
	}
	return nil, &core.ConfigurationError{Invalid: []string{"EMBED_PROVIDER " + cfg.EmbedProvider}}
}

func (p *Pipeline) newLLM(ctx context.Context, cfg *config.Config) (core.LLMProvider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		gen, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel, cfg.Temperature)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, gen)
		return gen, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GenModel, cfg.Temperature)
	}
	return nil, &core.ConfigurationError{Invalid: []string{"LLM_PROVIDER " + cfg.LLMProvider}}
}

func (p *Pipeline) newIndex(ctx context.Context, cfg *config.Config) (core.VectorIndex, error) {
	var (
		index core.VectorIndex
		err   error
	)
	switch cfg.VectorStore {
	case config.StorePgvector:
		index, err = db.NewVectorStore(ctx, cfg)
	case config.StoreChroma:
		index, err = chromaindex.New(ctx, chromaindex.Options{
			URL:        cfg.ChromaURL,
			Collection: cfg.ChromaCollection,
			Token:      cfg.ChromaToken,
		})
	case config.StoreMemory:
		index = memindex.New()
	default:
		err = &core.ConfigurationError{Invalid: []string{"VECTOR_STORE " + cfg.VectorStore}}
	}
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, index)
	return index, nil
}

var lookPath = exec.LookPath

func newExtractor(cfg *config.Config) (core.DocumentExtractor, error) {
	docconv := ingestion_engine.NewDocconvExtractor(false)
	if cfg.Extractor == config.ExtractorUnipdf {
		return ingestion_engine.NewPDFExtractor(cfg.UnidocLicenseKey, docconv)
	}

	if missing := missingTools(ingestion_engine.PDFTools); len(missing) > 0 {
		// PDF uploads are rejected as unsupported instead of failing extraction
		logger.Warn("pdf tools not found, PDF uploads disabled; install poppler-utils or set EXTRACTOR=unipdf",
			zap.Strings("missing", missing))
		docconv.DisablePDF()
	}
	return docconv, nil
}

func missingTools(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func newChunker(cfg *config.Config) (core.Chunker, error) {
	if cfg.Chunker == config.ChunkerRecursive {
		return ingestion_engine.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return ingestion_engine.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
}

// Close releases every client in reverse order of creation.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// App is the HTTP service: one shared pipeline and the live sessions.
type App struct {
	Pipeline *Pipeline
	Sessions *services.SessionStore
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}

	pipeline, err := NewPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sessions := services.NewSessionStore(pipeline.Pipeline, cfg.SessionTTL)
	tokens := appMiddleware.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL)
	server := NewServer(cfg, sessions, tokens)

	return &App{Pipeline: pipeline, Sessions: sessions, Server: server}, nil
}

// Run serves HTTP and reaps idle sessions until ctx is cancelled, then shuts
// the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	go a.Sessions.Run(ctx, time.Minute)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.CloseAll(context.Background())
	}
	if a.Pipeline != nil {
		if err := a.Pipeline.Close(); err != nil {
			logger.Warn("failed to close pipeline", zap.Error(err))
		}
	}
}
