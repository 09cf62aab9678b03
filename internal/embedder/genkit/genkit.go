// Package genkit bridges a Firebase Genkit ai.Embedder (typically a Gemini
// embedding model) to the local Embedder interface.
package genkit

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

// Embedder adapts an ai.Embedder, requesting a fixed output dimensionality
// so stored vectors stay comparable across model revisions.
type Embedder struct {
	embedder ai.Embedder
	dims     int32
}

// New wraps a Genkit embedder. dims <= 0 selects 768.
func New(embedder ai.Embedder, dims int) *Embedder {
	if dims <= 0 {
		dims = 768
	}
	return &Embedder{embedder: embedder, dims: int32(dims)}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := e.dims
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("genkit embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("genkit embed: empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}

func (e *Embedder) Dimensions() int { return int(e.dims) }
