// Package ollama implements an Embedder backed by a local or remote Ollama
// server's embeddings endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"
)

// Config configures the Ollama embedder client.
type Config struct {
	// BaseURL is the Ollama server address, defaults to http://localhost:11434.
	BaseURL string
	// Model is the embedding model name, defaults to nomic-embed-text.
	Model string
	// Dimensions is the vector size the model produces, defaults to 768.
	Dimensions int
	// HTTPClient overrides the default client (120 second timeout).
	HTTPClient *http.Client
}

// Client talks to the Ollama /api/embeddings endpoint.
type Client struct {
	client  *http.Client
	baseURL string
	model   string
	dims    int
}

// New creates an Ollama embedder client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 768
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{client: client, baseURL: baseURL, model: model, dims: dims}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, data)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding for model %s", c.model)
	}
	return out.Embedding, nil
}

func (c *Client) Dimensions() int { return c.dims }
