package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/askdoc/internal/core/object-client"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

// State is the lifecycle position of a PipelineSession.
type State string

const (
	StateEmpty    State = "EMPTY"
	StateIndexing State = "INDEXING"
	StateReady    State = "READY"
)

var (
	ErrSessionNotReady    = errors.New("no document has been indexed in this session yet")
	ErrIndexingInProgress = errors.New("a document is already being indexed in this session")
	ErrSessionClosed      = errors.New("session is closed")
	ErrEmptyQuery         = errors.New("query must not be empty")
	ErrEmptyDocument      = errors.New("uploaded file is empty")
)

// Retriever finds the passages of a document closest to a query.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]models.RetrievedPassage, error)
}

// Composer produces an answer grounded in the retrieved passages.
type Composer interface {
	Answer(ctx context.Context, query string, passages []models.RetrievedPassage) (string, error)
}

// Pipeline holds the components shared by every session.
//
// Ingestor:  extracts, chunks and indexes uploads.
// Retriever: nearest-neighbour lookup for queries.
// Composer:  the single LLM call per query.
// Index:     used to drop a document's entries when it is replaced.
// Archive:   optional object storage for uploaded originals (nil disables).
type Pipeline struct {
	Ingestor  ingestion_engine.Ingestor
	Retriever Retriever
	Composer  Composer
	Index     core.VectorIndex
	Archive   core.ObjectClient
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID        string           `json:"session_id"`
	State     State            `json:"state"`
	Document  *models.Document `json:"document,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	LastUsed  time.Time        `json:"last_used"`
}

// PipelineSession is one user's conversation with one document.
// Uploads run one at a time; queries are answered only once a document is
// READY. The lock is not held while a document is being indexed.
type PipelineSession struct {
	id       string
	pipeline *Pipeline

	mu        sync.Mutex
	state     State
	doc       *models.Document
	lastErr   error
	closed    bool
	createdAt time.Time
	lastUsed  time.Time
}

func NewPipelineSession(p *Pipeline) *PipelineSession {
	now := time.Now()
	return &PipelineSession{
		id:        uuid.NewString(),
		pipeline:  p,
		state:     StateEmpty,
		createdAt: now,
		lastUsed:  now,
	}
}

func (s *PipelineSession) ID() string { return s.id }

func (s *PipelineSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Upload indexes data as the session's document. On failure the session
// returns to its previous state and keeps its previous document; on success
// the previous document's entries are removed.
func (s *PipelineSession) Upload(ctx context.Context, fileName, contentType string, data []byte) (*models.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state == StateIndexing {
		s.mu.Unlock()
		return nil, ErrIndexingInProgress
	}
	prevState := s.state
	s.state = StateIndexing
	s.lastUsed = time.Now()
	s.mu.Unlock()

	log := logger.With(zap.String("session_id", s.id), zap.String("file_name", fileName))

	doc, err := s.ingest(ctx, fileName, contentType, data)
	if err != nil {
		log.Warn("upload failed", zap.String("kind", core.KindOf(err)), zap.Error(err))
		s.mu.Lock()
		if s.closed {
			s.state = StateEmpty
		} else {
			s.state = prevState
		}
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.state = StateEmpty
		s.mu.Unlock()
		s.discard(ctx, doc)
		return nil, ErrSessionClosed
	}
	prevDoc := s.doc
	s.doc = doc
	s.state = StateReady
	s.lastErr = nil
	s.lastUsed = time.Now()
	s.mu.Unlock()

	if prevDoc != nil {
		log.Info("replacing previous document", zap.String("previous_document_id", prevDoc.ID))
		s.discard(ctx, prevDoc)
	}
	log.Info("document ready", zap.String("document_id", doc.ID), zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

func (s *PipelineSession) ingest(ctx context.Context, fileName, contentType string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	ct := ingestion_engine.DetectContentType(fileName, contentType, data)
	if !s.pipeline.Ingestor.Supports(ct) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedDocument, ct)
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		SessionID:   s.id,
		FileName:    filepath.Base(strings.TrimSpace(fileName)),
		ContentType: ct,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}

	if s.pipeline.Archive != nil {
		key := objectclient.ObjectKey(s.id, doc.ID, doc.FileName)
		url, err := s.pipeline.Archive.UploadFile(ctx, key, data, ct)
		if err != nil {
			// archiving is best effort; the answer path never reads it back
			logger.Warn("archive upload failed", zap.String("key", key), zap.Error(err))
		} else {
			doc.StorageURL = url
		}
	}

	if _, err := s.pipeline.Ingestor.Ingest(ctx, doc, data); err != nil {
		s.deleteArchived(ctx, doc)
		return nil, err
	}
	return doc, nil
}

// Ask answers query from the session's current document.
func (s *PipelineSession) Ask(ctx context.Context, query string) (*models.Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state != StateReady || s.doc == nil {
		s.mu.Unlock()
		return nil, ErrSessionNotReady
	}
	doc := s.doc
	s.lastUsed = time.Now()
	s.mu.Unlock()

	passages, err := s.pipeline.Retriever.Retrieve(ctx, doc.ID, query, 0)
	if err != nil {
		return nil, err
	}
	text, err := s.pipeline.Composer.Answer(ctx, query, passages)
	if err != nil {
		return nil, err
	}

	return &models.Answer{Query: query, Text: text, DocumentID: doc.ID, Passages: passages}, nil
}

func (s *PipelineSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{ID: s.id, State: s.state, CreatedAt: s.createdAt, LastUsed: s.lastUsed}
	if s.doc != nil {
		d := *s.doc
		snap.Document = &d
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
		snap.ErrorKind = core.KindOf(s.lastErr)
	}
	return snap
}

// idleSince reports the last use and whether the session may be reaped.
func (s *PipelineSession) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed, s.state != StateIndexing
}

// Close ends the session and removes its document. An upload still in
// flight discards its result when it finishes.
func (s *PipelineSession) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	doc := s.doc
	s.doc = nil
	if s.state != StateIndexing {
		s.state = StateEmpty
	}
	s.mu.Unlock()

	if doc != nil {
		s.discard(ctx, doc)
	}
}

func (s *PipelineSession) discard(ctx context.Context, doc *models.Document) {
	ctx = context.WithoutCancel(ctx)
	if err := s.pipeline.Index.DeleteDocument(ctx, doc.ID); err != nil {
		logger.Warn("failed to delete document entries",
			zap.String("session_id", s.id), zap.String("document_id", doc.ID), zap.Error(err))
	}
	s.deleteArchived(ctx, doc)
}

func (s *PipelineSession) deleteArchived(ctx context.Context, doc *models.Document) {
	if s.pipeline.Archive == nil || doc.StorageURL == "" {
		return
	}
	_, key := objectclient.KeyFromURL(doc.StorageURL)
	if err := s.pipeline.Archive.DeleteFile(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("failed to delete archived document", zap.String("key", key), zap.Error(err))
	}
}
