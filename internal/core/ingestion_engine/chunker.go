package ingestion_engine

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/markdave123-py/askdoc/internal/core"
)

// ErrInvalidChunking is returned when size and overlap cannot produce progress.
var ErrInvalidChunking = errors.New("chunk size must be positive and greater than overlap")

var _ core.Chunker = (*WindowChunker)(nil)

// WindowChunker cuts text into windows of at most size runes, each sharing
// exactly overlap runes with its predecessor. Inside a window it prefers to
// end on a paragraph break, then a sentence end, then whitespace.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

func (c *WindowChunker) Split(text string) ([]string, error) {
	return splitWindows([]rune(text), c.size, c.overlap), nil
}

// SplitText is the one-shot form of WindowChunker.Split.
func SplitText(text string, size, overlap int) ([]string, error) {
	c, err := NewWindowChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text)
}

func splitWindows(runes []rune, size, overlap int) []string {
	n := len(runes)
	if n == 0 {
		return nil
	}

	var out []string
	cursor := 0
	for {
		limit := cursor + size
		if limit >= n {
			out = append(out, string(runes[cursor:]))
			return out
		}

		// end lies in (cursor+overlap, limit] so the next cursor always advances.
		end := boundary(runes, cursor+overlap, limit)
		out = append(out, string(runes[cursor:end]))
		cursor = end - overlap
	}
}

// boundary picks the cut position in (lo, hi]. A cut at e means the chunk
// ends just before runes[e].
func boundary(runes []rune, lo, hi int) int {
	for _, match := range []func(e int) bool{
		func(e int) bool { return e >= 2 && runes[e-2] == '\n' && runes[e-1] == '\n' },
		func(e int) bool { return e >= 2 && isSentenceEnd(runes[e-2]) && unicode.IsSpace(runes[e-1]) },
		func(e int) bool { return unicode.IsSpace(runes[e-1]) },
	} {
		for e := hi; e > lo; e-- {
			if match(e) {
				return e
			}
		}
	}
	return hi
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
