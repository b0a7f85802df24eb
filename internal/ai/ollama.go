package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaClient is the text-generation capability backed by an Ollama
// server. With an embedding model set it also satisfies
// embedding.Embedder for the duplicate guard.
type OllamaClient struct {
	client     *api.Client
	model      string
	embedModel string
}

// NewOllamaClient creates a client for the server at baseURL.
func NewOllamaClient(baseURL, model, embedModel string) (*OllamaClient, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &OllamaClient{
		client:     api.NewClient(parsedURL, http.DefaultClient),
		model:      model,
		embedModel: embedModel,
	}, nil
}

// Generate sends one non-streaming completion request.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": temperature,
		},
	}

	var fullResponse strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return fullResponse.String(), nil
}

// Embed returns one vector per input text.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.embedModel == "" {
		return nil, fmt.Errorf("no embedding model configured")
	}
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.embedModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Model returns the embedding model name.
func (c *OllamaClient) Model() string {
	return c.embedModel
}

// Ping checks that the server answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	if _, err := c.client.Version(ctx); err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	return nil
}
