package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedderKeepsInputOrder(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-MiniLM-L6-v2", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{
		BaseURL: srv.URL + "/v1/",
		APIKey:  "secret",
		Model:   "all-MiniLM-L6-v2",
	})
	vecs, err := emb.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "all-MiniLM-L6-v2", emb.Model())
}

func TestOpenAIEmbedderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	client := NewOpenAICompatibleClient()
	_, err := client.EmbedBatch(context.Background(), EmbeddingConfig{BaseURL: srv.URL}, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = client.EmbedBatch(context.Background(), EmbeddingConfig{BaseURL: srv.URL}, []string{"x", "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	emb := NewOpenAIEmbedder(NewOpenAICompatibleClient(), EmbeddingConfig{BaseURL: srv.URL})
	_, err := emb.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")

	vec, err := emb.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
}

func TestOpenAIGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "Freedonia")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" Lastonia. "}}]}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(NewOpenAICompatibleClient(), ChatConfig{BaseURL: srv.URL, Model: "m"})
	answer, err := gen.Generate(context.Background(), "What is the capital of Freedonia?")
	require.NoError(t, err)
	assert.Equal(t, " Lastonia. ", answer, "answers are returned verbatim")
	assert.Equal(t, "m", gen.Model())
}

func TestOpenAIGeneratorNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(NewOpenAICompatibleClient(), ChatConfig{BaseURL: srv.URL, Model: "m"})
	_, err := gen.Generate(context.Background(), "q")
	assert.Error(t, err)
}

func newGeminiTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The capital is Lastonia."}]}}]}`))
		case strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), strings.HasSuffix(r.URL.Path, ":embedContent"):
			_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.5,0.5]}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`))
		}
	}))
}

func TestGeminiGenerate(t *testing.T) {
	srv := newGeminiTestServer(t)
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Model:   "gemini-2.0-flash",
	})
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "What is the capital of Freedonia?")
	require.NoError(t, err)
	assert.Equal(t, "The capital is Lastonia.", answer)
}

func TestGeminiGenerateEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL, Model: "gemini-2.0-flash"})
	require.NoError(t, err)

	answer, err := client.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", answer)
}

func TestGeminiEmbedQuery(t *testing.T) {
	srv := newGeminiTestServer(t)
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:         "k",
		BaseURL:        srv.URL,
		EmbeddingModel: "text-embedding-004",
	})
	require.NoError(t, err)

	emb := NewGeminiEmbedder(client)
	vec, err := emb.EmbedQuery(context.Background(), "capital")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
	assert.Equal(t, "text-embedding-004", emb.Model())

	_, err = emb.EmbedDocuments(context.Background(), []string{""})
	assert.Error(t, err)
}

func TestGeminiSelectModelFallsBackWhenListingFails(t *testing.T) {
	srv := newGeminiTestServer(t)
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL, Model: "x"})
	require.NoError(t, err)

	model, err := client.SelectModel(context.Background(), []string{"gemini-2.5-pro"}, "gemini-2.0-flash")
	assert.Error(t, err)
	assert.Equal(t, "gemini-2.0-flash", model)
	assert.Equal(t, "gemini-2.0-flash", client.Model())
}
