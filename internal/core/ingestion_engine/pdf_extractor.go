package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
)

var _ core.DocumentExtractor = (*PDFExtractor)(nil)

// PDFExtractor reads PDFs page by page with UniPDF and hands every other
// type to a fallback extractor.
type PDFExtractor struct {
	fallback core.DocumentExtractor
}

func NewPDFExtractor(licenseKey string, fallback core.DocumentExtractor) (*PDFExtractor, error) {
	if err := license.SetMeteredKey(licenseKey); err != nil {
		return nil, fmt.Errorf("set unidoc license: %w", err)
	}
	return &PDFExtractor{fallback: fallback}, nil
}

func (e *PDFExtractor) Supports(contentType string) bool {
	if baseType(contentType) == MimePDF {
		return true
	}
	return e.fallback != nil && e.fallback.Supports(contentType)
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte, contentType string) (string, error) {
	if baseType(contentType) != MimePDF {
		if e.fallback == nil {
			return "", fmt.Errorf("%w: %s", core.ErrUnsupportedDocument, contentType)
		}
		return e.fallback.Extract(ctx, data, contentType)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", core.Wrap(core.ErrExtraction, "open pdf", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", core.Wrap(core.ErrExtraction, "count pages", err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", core.Wrap(core.ErrExtraction, "extract pages", err)
		}

		text, err := pageText(pdfReader, i)
		if err != nil {
			// a broken page contributes nothing
			logger.Warn("pdf: skipping unreadable page", zap.Int("page", i), zap.Error(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return normalizeText(strings.Join(pages, "\n\n")), nil
}

func pageText(r *model.PdfReader, num int) (string, error) {
	page, err := r.GetPage(num)
	if err != nil {
		return "", err
	}
	ex, err := extractor.New(page)
	if err != nil {
		return "", err
	}
	return ex.ExtractText()
}
