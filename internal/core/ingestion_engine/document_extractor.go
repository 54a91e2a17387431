package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
)

const (
	MimePDF      = "application/pdf"
	MimePlain    = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeOctet    = "application/octet-stream"
)

var docconvTypes = map[string]bool{
	MimePDF:              true,
	"application/msword": true,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,

	"application/vnd.oasis.opendocument.text": true,

	"application/rtf": true,
	"text/rtf":        true,
	"text/html":       true,
	"text/xml":        true,
	"application/xml": true,
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Plain text and markdown are decoded directly.
type DocconvExtractor struct {
	useReadability bool
	noPDF          bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// PDFTools are the poppler binaries docconv runs to convert PDFs.
var PDFTools = []string{"pdftotext", "pdfinfo"}

// DisablePDF stops the extractor from accepting PDFs, for hosts without
// PDFTools installed.
func (e *DocconvExtractor) DisablePDF() {
	e.noPDF = true
}

func (e *DocconvExtractor) Supports(contentType string) bool {
	ct := baseType(contentType)
	return isPlainText(ct) || e.converts(ct)
}

func (e *DocconvExtractor) converts(ct string) bool {
	if ct == MimePDF && e.noPDF {
		return false
	}
	return docconvTypes[ct]
}

// Extract converts the document and normalises the resulting text.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	ct := baseType(contentType)
	if isPlainText(ct) {
		return normalizeText(decodeText(data)), nil
	}
	if !e.converts(ct) {
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedDocument, contentType)
	}

	type result struct {
		res *docconv.Response
		err error
	}
	done := make(chan result, 1)

	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), ct, e.useReadability)
		done <- result{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", core.Wrap(core.ErrExtraction, "docconv convert", ctx.Err())
	case r := <-done:
		if r.err != nil {
			logger.Warn("docconv: extraction failed",
				zap.String("content_type", ct), zap.Bool("readability", e.useReadability), zap.Error(r.err))
			return "", core.Wrap(core.ErrExtraction, "docconv convert", r.err)
		}
		text := normalizeText(r.res.Body)
		if text == "" {
			logger.Info("docconv: extracted empty text", zap.String("content_type", ct))
		}
		return text, nil
	}
}

// DetectContentType resolves the media type of an upload from the declared
// header, the file extension and finally the content itself.
func DetectContentType(fileName, declared string, data []byte) string {
	if ct := baseType(declared); ct != "" && ct != MimeOctet {
		return ct
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".md", ".markdown":
		return MimeMarkdown
	case "":
	default:
		if ct := baseType(docconv.MimeTypeByExtension(fileName)); ct != MimeOctet && ct != "" {
			return ct
		}
	}

	return baseType(http.DetectContentType(data))
}

func baseType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(contentType)
	}
	return mt
}

func isPlainText(ct string) bool {
	return ct == MimePlain || ct == MimeMarkdown
}

func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// normalizeText unifies line endings, strips trailing spaces and keeps at
// most one blank line between paragraphs.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
