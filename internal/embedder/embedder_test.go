package embedder

import (
	"context"
	"errors"
	"testing"
)

// countingEmbedder records how many times Embed is invoked.
type countingEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func (c *countingEmbedder) Dimensions() int { return len(c.vec) }

func TestCachedSkipsRepeatCalls(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 0, 0}}
	cached, err := NewCached(inner, 0)
	if err != nil {
		t.Fatalf("NewCached() error = %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	// ristretto admits entries asynchronously, drain before the repeat call.
	cached.cache.Wait()

	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("provider down")}
	cached, err := NewCached(inner, 0)
	if err != nil {
		t.Fatalf("NewCached() error = %v", err)
	}
	defer cached.Close()

	ctx := context.Background()
	for range 2 {
		if _, err := cached.Embed(ctx, "hello"); err == nil {
			t.Fatal("Embed() error = nil, want provider error")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.calls)
	}
}

func TestRateLimitedRespectsContext(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	limited := NewRateLimited(inner, 0.001, 1)

	ctx := context.Background()
	if _, err := limited.Embed(ctx, "first"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := limited.Embed(canceled, "second"); err == nil {
		t.Fatal("Embed() with canceled context succeeded, want error")
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}

func TestRateLimitedDisabled(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	limited := NewRateLimited(inner, 0, 0)

	ctx := context.Background()
	for range 10 {
		if _, err := limited.Embed(ctx, "text"); err != nil {
			t.Fatalf("Embed() error = %v", err)
		}
	}
	if inner.calls != 10 {
		t.Fatalf("inner calls = %d, want 10", inner.calls)
	}
}
