// Package embedder defines the text-embedding contract used by the memory
// store, plus composable decorators for caching and rate limiting.
//
// Implementations live in subpackages:
//   - ollama: local Ollama HTTP API
//   - openai: OpenAI embeddings API
//   - genkit: bridge from a Firebase Genkit ai.Embedder (Gemini)
//   - mock: deterministic hash-based embedder for tests and offline use
package embedder

import "context"

// Embedder converts text into dense vectors.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
