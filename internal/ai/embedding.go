package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
// Pointing BaseURL at a self-hosted server lets a local sentence-transformer
// model such as all-MiniLM-L6-v2 back the index.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// EmbedBatch returns one embedding per input text, in input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
	}

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": texts,
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/embeddings", reqBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding batch %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}
	sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if len(parsed.Data[i].Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}

// OpenAIEmbedder embeds documents and queries with the same model and no task hint.
type OpenAIEmbedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewOpenAIEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, cfg: cfg}
}

func (e *OpenAIEmbedder) Model() string { return e.cfg.Model }

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, e.cfg, texts)
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.EmbedBatch(ctx, e.cfg, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
