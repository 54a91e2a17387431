package query_engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/logger"
	"github.com/markdave123-py/askdoc/internal/models"
)

const (
	systemInstruction = "You are a helpful AI assistant. Answer the user's question based only on the provided context. " +
		"If the context does not contain the answer, say that you don't have enough information to answer."

	// NoContextMarker replaces the context block when retrieval found nothing.
	NoContextMarker = "[no context available]"

	// FallbackAnswer is returned when the model produced no text at all.
	FallbackAnswer = "I don't have enough information to answer that question from the uploaded document."
)

// Composer turns a question and its retrieved passages into one grounded
// LLM call.
type Composer struct {
	llm     core.LLMProvider
	timeout time.Duration
}

func NewComposer(llm core.LLMProvider, timeout time.Duration) *Composer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Composer{llm: llm, timeout: timeout}
}

// BuildSystemPrompt embeds the passages, in the given order, into the
// system turn.
func BuildSystemPrompt(passages []models.RetrievedPassage) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\nContext: ")
	if len(passages) == 0 {
		b.WriteString(NoContextMarker)
		return b.String()
	}
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// Answer asks the model once and returns its response verbatim.
func (c *Composer) Answer(ctx context.Context, query string, passages []models.RetrievedPassage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.llm.Generate(ctx, BuildSystemPrompt(passages), query)
	if err != nil {
		return "", core.Wrap(core.ErrGeneration, "generate", err)
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("model returned an empty answer", zap.Int("passages", len(passages)))
		return FallbackAnswer, nil
	}
	return text, nil
}
