package core

import "context"

// DocumentExtractor pulls plain text out of an uploaded document.
type DocumentExtractor interface {
	// Supports reports whether contentType can be extracted at all.
	Supports(contentType string) bool
	// Extract returns the best-effort text of the document. Parts without
	// text contribute nothing; only an unparseable document is an error.
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

// Chunker splits extracted text into ordered, overlapping chunks.
type Chunker interface {
	Split(text string) ([]string, error)
}
