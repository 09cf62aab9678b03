package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockEmbedder is a controllable embedder for integration tests. Texts
// registered with SetVector return that exact vector; everything else
// gets a deterministic hash-derived one, so similarity outcomes are
// reproducible without a provider.
type MockEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
}

// NewMockEmbedder creates a mock producing vectors of the given size.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim, vectors: make(map[string][]float32)}
}

// SetVector pins the vector returned for an exact text.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	vec, ok := e.vectors[text]
	e.mu.Unlock()
	if ok {
		return vec, nil
	}
	return deterministicVector(text, e.dim), nil
}

func (e *MockEmbedder) Dimensions() int { return e.dim }

// deterministicVector derives a stable unit vector from content.
func deterministicVector(content string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(content))
	state := h.Sum64()

	vec := make([]float32, dim)
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
	return vec
}
