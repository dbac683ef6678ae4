package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, cfg.BaseURL, cfg.APIKey, "/chat/completions", reqBody, &parsed); err != nil {
		return "", fmt.Errorf("llm %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// postJSON sends body to baseURL+path and decodes a 2xx JSON response into out.
func (c *OpenAICompatibleClient) postJSON(ctx context.Context, baseURL, apiKey, path string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("response status %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response json failed: %w", err)
	}
	return nil
}

// OpenAIGenerator answers single-prompt requests through /chat/completions.
type OpenAIGenerator struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewOpenAIGenerator(client *OpenAICompatibleClient, cfg ChatConfig) *OpenAIGenerator {
	return &OpenAIGenerator{client: client, cfg: cfg}
}

func (g *OpenAIGenerator) Model() string { return g.cfg.Model }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Complete(ctx, g.cfg, []ChatMessage{{Role: "user", Content: prompt}})
}
