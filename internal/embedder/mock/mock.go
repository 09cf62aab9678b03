// Package mock provides a deterministic offline embedder. Identical texts
// map to identical vectors, so similarity search behaves consistently in
// tests and in environments without a running embedding provider.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates pseudo-random unit vectors seeded by the input text.
type Embedder struct {
	dims int
}

// New creates a mock embedder producing vectors of the given size.
// dims <= 0 selects 384.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dims)
	state := seed
	var norm float64
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		v := float32(int64(state>>33))/float32(1<<30) - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (e *Embedder) Dimensions() int { return e.dims }
