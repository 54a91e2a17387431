package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the pipeline matches at least one of
// these through errors.Is; a wrapped cause may add an inner kind, and KindOf
// reports the outermost.
var (
	ErrExtraction    = errors.New("extraction error")
	ErrConfiguration = errors.New("configuration error")
	ErrEmbedding     = errors.New("embedding error")
	ErrIndexing      = errors.New("indexing error")
	ErrRetrieval     = errors.New("retrieval error")
	ErrGeneration    = errors.New("generation error")
)

// ErrUnsupportedDocument is returned at the upload boundary for content types
// no extractor handles. It is also an ErrExtraction.
var ErrUnsupportedDocument = &PipelineError{Kind: ErrExtraction, Op: "detect type", Err: errors.New("unsupported document type")}

// PipelineError ties a failure to its kind and the operation that produced it.
type PipelineError struct {
	Kind error
	Op   string
	Err  error
}

// Wrap returns err tagged with kind. A nil err stays nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConfigurationError lists every missing or invalid setting found in one pass.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, "; "))
	}
	if len(parts) == 0 {
		return ErrConfiguration.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ChunkFailure records why one chunk could not be indexed.
type ChunkFailure struct {
	Position int
	Err      error
}

// IndexingError reports a failed indexing attempt. Either Failures lists the
// chunks that could not be embedded, or Err holds the index write failure.
type IndexingError struct {
	DocumentID string
	Failures   []ChunkFailure
	Err        error
}

func (e *IndexingError) Error() string {
	if len(e.Failures) > 0 {
		positions := make([]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			positions = append(positions, fmt.Sprint(f.Position))
		}
		return fmt.Sprintf("indexing error: document %s: %d chunk(s) failed [%s]: %v",
			e.DocumentID, len(e.Failures), strings.Join(positions, ","), e.Failures[0].Err)
	}
	return fmt.Sprintf("indexing error: document %s: %v", e.DocumentID, e.Err)
}

func (e *IndexingError) Is(target error) bool { return target == ErrIndexing }

func (e *IndexingError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// KindOf names the kind of err for transports and logs. The outermost kind
// wins, so a retrieval failure caused by the embedder reports "retrieval".
func KindOf(err error) string {
	var pe *PipelineError
	var ce *ConfigurationError
	var ie *IndexingError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &ie):
		return "indexing"
	case errors.As(err, &pe):
		return kindName(pe.Kind)
	}
	return "internal"
}

func kindName(kind error) string {
	switch kind {
	case ErrExtraction:
		return "extraction"
	case ErrConfiguration:
		return "configuration"
	case ErrEmbedding:
		return "embedding"
	case ErrIndexing:
		return "indexing"
	case ErrRetrieval:
		return "retrieval"
	case ErrGeneration:
		return "generation"
	}
	return "internal"
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
