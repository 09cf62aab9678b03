// Package openai implements an Embedder backed by the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
)

// Config configures the OpenAI embedder client.
type Config struct {
	// APIKey is required.
	APIKey string
	// BaseURL overrides the official API endpoint, for proxies and
	// API-compatible providers.
	BaseURL string
	// Model defaults to text-embedding-ada-002.
	Model string
	// Dimensions defaults to 1536.
	Dimensions int
}

// Client wraps the go-openai embeddings client.
type Client struct {
	client *goopenai.Client
	model  goopenai.EmbeddingModel
	dims   int
}

// New creates an OpenAI embedder client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}
	config := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := goopenai.AdaEmbeddingV2
	if cfg.Model != "" {
		// EmbeddingModel is an enum; UnmarshalText maps the wire name
		// onto it and yields Unknown for names the API has no enum for.
		if err := model.UnmarshalText([]byte(cfg.Model)); err != nil {
			return nil, fmt.Errorf("openai embedder: parsing model %q: %w", cfg.Model, err)
		}
		if model == goopenai.Unknown {
			return nil, fmt.Errorf("openai embedder: unsupported embedding model %q", cfg.Model)
		}
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = 1536
	}

	return &Client{
		client: goopenai.NewClientWithConfig(config),
		model:  model,
		dims:   dims,
	}, nil
}

// Embed requests an embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedder: no data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) Dimensions() int { return c.dims }
