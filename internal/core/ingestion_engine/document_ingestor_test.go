package ingestion_engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/core/llm"
	memindex "github.com/markdave123-py/askdoc/internal/core/memory-index"
	"github.com/markdave123-py/askdoc/internal/models"
)

type brokenExtractor struct{ err error }

func (b brokenExtractor) Supports(string) bool { return true }

func (b brokenExtractor) Extract(context.Context, []byte, string) (string, error) {
	return "", b.err
}

func newTestIngestor(t *testing.T, ex core.DocumentExtractor) (*DocumentIngestor, *memindex.Index) {
	t.Helper()
	chunker, err := NewWindowChunker(200, 40)
	require.NoError(t, err)
	idx := memindex.New()
	return NewDocumentIngestor(ex, chunker, NewIndexer(llm.NewHashEmbedder(64), idx, nil)), idx
}

func TestIngestPlainText(t *testing.T) {
	ing, idx := newTestIngestor(t, NewDocconvExtractor(false))
	doc := &models.Document{ID: "doc-1", FileName: "notes.txt", ContentType: MimePlain}

	n, err := ing.Ingest(context.Background(), doc, []byte(sampleText))
	require.NoError(t, err)
	assert.Greater(t, n, 1)
	assert.Equal(t, n, doc.ChunkCount)
	assert.Equal(t, n, idx.Len())
}

func TestIngestEmptyDocumentIndexesNothing(t *testing.T) {
	ing, idx := newTestIngestor(t, NewDocconvExtractor(false))
	doc := &models.Document{ID: "doc-1", FileName: "empty.txt", ContentType: MimePlain}

	n, err := ing.Ingest(context.Background(), doc, []byte("  \n\n "))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, idx.Len())
}

func TestIngestUnsupportedType(t *testing.T) {
	ing, _ := newTestIngestor(t, NewDocconvExtractor(false))
	assert.False(t, ing.Supports("image/png"))

	_, err := ing.Ingest(context.Background(), &models.Document{ID: "d", ContentType: "image/png"}, []byte{0x89})
	assert.ErrorIs(t, err, core.ErrUnsupportedDocument)
	assert.ErrorIs(t, err, core.ErrExtraction)
}

func TestIngestExtractionFailure(t *testing.T) {
	ing, idx := newTestIngestor(t, brokenExtractor{err: errors.New("corrupt xref table")})

	_, err := ing.Ingest(context.Background(), &models.Document{ID: "d", FileName: "x.pdf", ContentType: MimePDF}, []byte("%PDF"))
	require.ErrorIs(t, err, core.ErrExtraction)
	assert.ErrorContains(t, err, "corrupt xref table")
	assert.Equal(t, "extraction", core.KindOf(err))
	assert.Zero(t, idx.Len())
}

func TestIngestKeepsExtractionKind(t *testing.T) {
	inner := core.Wrap(core.ErrExtraction, "docconv convert", errors.New("bad"))
	ing, _ := newTestIngestor(t, brokenExtractor{err: inner})

	_, err := ing.Ingest(context.Background(), &models.Document{ID: "d", ContentType: MimePDF}, nil)
	assert.Equal(t, inner, err)
}

func TestDocconvExtractorPlainText(t *testing.T) {
	ex := NewDocconvExtractor(false)
	text, err := ex.Extract(context.Background(), []byte("\xef\xbb\xbfTitle  \r\n\r\n\r\n\r\nBody line\t\n"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nBody line", text)

	md, err := ex.Extract(context.Background(), []byte("# Heading\n\ntext"), MimeMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\ntext", md)
}

func TestDocconvExtractorSupports(t *testing.T) {
	ex := NewDocconvExtractor(false)
	for _, ct := range []string{MimePDF, MimePlain, "text/plain; charset=utf-8", MimeMarkdown, "text/html",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document"} {
		assert.True(t, ex.Supports(ct), ct)
	}
	for _, ct := range []string{"image/png", "application/zip", "", MimeOctet} {
		assert.False(t, ex.Supports(ct), ct)
	}
}

func TestDocconvExtractorWithoutPDFTools(t *testing.T) {
	ex := NewDocconvExtractor(false)
	ex.DisablePDF()
	assert.False(t, ex.Supports(MimePDF))
	assert.True(t, ex.Supports(MimePlain))
	assert.True(t, ex.Supports("text/html"))

	_, err := ex.Extract(context.Background(), []byte("%PDF-1.4"), MimePDF)
	assert.ErrorIs(t, err, core.ErrUnsupportedDocument)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, MimePDF, DetectContentType("report.bin", "application/pdf", nil))
	assert.Equal(t, MimeMarkdown, DetectContentType("README.md", "", []byte("# hi")))
	assert.Equal(t, MimeMarkdown, DetectContentType("README.md", MimeOctet, []byte("# hi")))
	assert.Equal(t, MimePDF, DetectContentType("upload", "", []byte("%PDF-1.7\n")))
	assert.Equal(t, MimePlain, DetectContentType("", "", []byte("just words")))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a\n\nb\nc", normalizeText("  a  \r\n\n\n\n\nb\rc\n\n"))
	assert.Equal(t, "", normalizeText(" \n "))
}
