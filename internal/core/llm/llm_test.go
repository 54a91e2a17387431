package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/askdoc/internal/core"
)

func TestHashEmbedderIsDeterministicAndNormalised(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := h.EmbedTexts(ctx, []string{"Paris is the capital of France.", "Paris is the capital of France."})
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0], a[1])
	assert.Len(t, a[0], 64)

	var sum float64
	for _, v := range a[0] {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)

	empty, err := h.EmbedTexts(ctx, []string{"   "})
	require.NoError(t, err)
	assert.Len(t, empty[0], 64)
}

func TestHashEmbedderRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConstructorsRequireCredentials(t *testing.T) {
	ctx := context.Background()

	_, err := NewGeminiEmbedder(ctx, "", "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = NewGeminiLLM(ctx, "", "", 0.6)
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = NewOpenAIEmbedder("", "", "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
	_, err = NewOpenAILLM("", "", "", 0.6)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func newOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// answer out of order to check that indexes are honoured
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(i), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "echo: " + req.Messages[1].Content},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := newOpenAIServer(t)
	emb, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1/", "")
	require.NoError(t, err)

	vecs, err := emb.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)

	none, err := emb.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenAILLM(t *testing.T) {
	srv := newOpenAIServer(t)
	model, err := NewOpenAILLM("sk-test", srv.URL+"/v1", "gpt-4o-mini", 0.6)
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), "answer from context", "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "echo: What is the capital of France?", out)
}

func TestOpenAILLMSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	model, err := NewOpenAILLM("sk-bad", srv.URL, "", 0)
	require.NoError(t, err)
	_, err = model.Generate(context.Background(), "", "hi")
	assert.ErrorContains(t, err, "openai chat")
}
