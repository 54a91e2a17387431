package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/markdave123-py/askdoc/internal/api/middlewares"
	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/core/ingestion_engine"
	"github.com/markdave123-py/askdoc/internal/core/llm"
	memindex "github.com/markdave123-py/askdoc/internal/core/memory-index"
	"github.com/markdave123-py/askdoc/internal/core/query_engine"
	"github.com/markdave123-py/askdoc/internal/models"
	"github.com/markdave123-py/askdoc/internal/services"
)

type stubLLM struct {
	err error
}

func (s stubLLM) Generate(_ context.Context, system, user string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "Based on the document: " + system[strings.Index(system, "Context: "):], nil
}

func newTestRouter(t *testing.T, gen core.LLMProvider, maxUpload int64) http.Handler {
	t.Helper()
	chunker, err := ingestion_engine.NewWindowChunker(120, 20)
	require.NoError(t, err)
	emb := llm.NewHashEmbedder(128)
	idx := memindex.New()

	store := services.NewSessionStore(&services.Pipeline{
		Ingestor: ingestion_engine.NewDocumentIngestor(
			ingestion_engine.NewDocconvExtractor(false), chunker, ingestion_engine.NewIndexer(emb, idx, nil)),
		Retriever: query_engine.NewRetriever(emb, idx, query_engine.RetrieverConfig{TopK: 2}),
		Composer:  query_engine.NewComposer(gen, time.Second),
		Index:     idx,
	}, time.Hour)
	tokens := appMiddleware.NewSessionTokens("test-secret", time.Hour)

	sessionHandler := NewSessionHandler(store, tokens)
	docHandler := NewDocumentHandler(maxUpload)
	chatHandler := NewChatHandler()

	r := chi.NewRouter()
	r.Post("/api/sessions", sessionHandler.CreateSession)
	r.Group(func(protected chi.Router) {
		protected.Use(appMiddleware.SessionMiddleware(tokens, store))
		protected.Get("/api/session", sessionHandler.GetSession)
		protected.Delete("/api/session", sessionHandler.EndSession)
		protected.Post("/api/documents/upload", docHandler.UploadDocument)
		protected.Post("/api/chat/query", chatHandler.QueryDocument)
	})
	return r
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body createSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, services.StateEmpty, body.State)
	assert.NotEmpty(t, body.SessionID)
	return body.Token
}

func uploadRequest(t *testing.T, token, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func queryRequest(token, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const doc = "Paris is the capital of France.\n\nThe Seine flows through Paris.\n\nLyon is known for its cuisine."

func TestUploadAndQueryFlow(t *testing.T) {
	h := newTestRouter(t, stubLLM{}, 1<<20)
	token := createSession(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{"query":"What is the capital?"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "state", decodeError(t, rec).Kind)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, token, "france.txt", []byte(doc)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var uploaded models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	assert.Equal(t, "france.txt", uploaded.FileName)
	assert.Positive(t, uploaded.ChunkCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{"query":"What is the capital of France?"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Contains(t, answer.Text, "Paris")
	assert.Equal(t, uploaded.ID, answer.DocumentID)
	assert.NotEmpty(t, answer.Passages)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap services.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, services.StateReady, snap.State)
	require.NotNil(t, snap.Document)
	assert.Equal(t, uploaded.ID, snap.Document.ID)
}

func TestUploadErrors(t *testing.T) {
	h := newTestRouter(t, stubLLM{}, 64)
	token := createSession(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, token, "image.png", []byte("\x89PNG\r\n\x1a\n\x00\x00")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "extraction", decodeError(t, rec).Kind)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, token, "big.txt", bytes.Repeat([]byte("a"), 100)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", strings.NewReader("not multipart"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "input", decodeError(t, rec).Kind)
}

func TestQueryErrors(t *testing.T) {
	h := newTestRouter(t, stubLLM{err: errors.New("model overloaded")}, 1<<20)
	token := createSession(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadRequest(t, token, "france.txt", []byte(doc)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{"query":"capital?"}`))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "generation", body.Kind)
	assert.Contains(t, body.Error, "model overloaded")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{"query":"   "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEndSession(t *testing.T) {
	h := newTestRouter(t, stubLLM{}, 1<<20)
	token := createSession(t, h)

	req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, queryRequest(token, `{"query":"anything"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{&core.ConfigurationError{Missing: []string{"GEMINI_API_KEY"}}, http.StatusInternalServerError, "configuration"},
		{core.Wrap(core.ErrExtraction, "docconv convert", errors.New("bad pdf")), http.StatusUnprocessableEntity, "extraction"},
		{fmt.Errorf("%w: image/png", core.ErrUnsupportedDocument), http.StatusUnsupportedMediaType, "extraction"},
		{&core.IndexingError{DocumentID: "d", Err: errors.New("db down")}, http.StatusBadGateway, "indexing"},
		{core.Wrap(core.ErrRetrieval, "query index", context.DeadlineExceeded), http.StatusGatewayTimeout, "retrieval"},
		{core.Wrap(core.ErrGeneration, "generate", errors.New("503")), http.StatusBadGateway, "generation"},
		{services.ErrIndexingInProgress, http.StatusConflict, "state"},
		{services.ErrSessionNotReady, http.StatusConflict, "state"},
		{services.ErrEmptyQuery, http.StatusBadRequest, "input"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, kind := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, kind, tc.err.Error())
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Error)
}
