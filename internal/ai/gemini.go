package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	geminiTaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	geminiTaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// GeminiConfig configures a GeminiClient. BaseURL is only set to reach a
// proxy or a test server.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// GeminiClient generates answers and embeddings through the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	gc, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return &GeminiClient{
		client:         gc,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// Model is the generation model currently in use.
func (c *GeminiClient) Model() string { return c.model }

// SelectModel switches generation to the first entry of preferred that the
// API lists with generateContent support. When listing fails or nothing
// matches, fallback is used. The chosen model is returned.
func (c *GeminiClient) SelectModel(ctx context.Context, preferred []string, fallback string) (string, error) {
	available, err := c.generationModels(ctx)
	if err != nil {
		c.model = fallback
		return fallback, err
	}
	for _, name := range preferred {
		if available[name] {
			c.model = name
			return name, nil
		}
	}
	c.model = fallback
	return fallback, nil
}

func (c *GeminiClient) generationModels(ctx context.Context) (map[string]bool, error) {
	page, err := c.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("list gemini models failed: %w", err)
	}
	available := make(map[string]bool)
	for {
		for _, m := range page.Items {
			if !strings.Contains(strings.ToLower(m.Name), "gemini") {
				continue
			}
			for _, action := range m.SupportedActions {
				if action == "generateContent" {
					available[strings.TrimPrefix(m.Name, "models/")] = true
					break
				}
			}
		}
		if page.NextPageToken == "" {
			return available, nil
		}
		page, err = page.Next(ctx)
		if errors.Is(err, genai.ErrPageDone) {
			return available, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list gemini models failed: %w", err)
		}
	}
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

// GeminiEmbedder adapts a GeminiClient to document/query embedding with the
// matching retrieval task types.
type GeminiEmbedder struct {
	client *GeminiClient
}

func NewGeminiEmbedder(client *GeminiClient) *GeminiEmbedder {
	return &GeminiEmbedder{client: client}
}

func (e *GeminiEmbedder) Model() string { return e.client.embeddingModel }

func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.embed(ctx, texts, geminiTaskRetrievalDocument)
}

func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.client.embed(ctx, []string{text}, geminiTaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *GeminiClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("embedding input %d is empty", i)
		}
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{
		TaskType: taskType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
