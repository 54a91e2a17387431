package core

import "context"

// EmbeddingProvider turns texts into vectors. Identical text and configuration
// must yield identical vectors; the i-th vector belongs to the i-th text.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider performs one single-shot generation.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
