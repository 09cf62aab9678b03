package embedder

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Embedder with a token-bucket limiter so that bulk
// ingestion cannot overrun provider quotas.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows at most rps requests per second with the given
// burst. rps <= 0 disables limiting.
func NewRateLimited(inner Embedder, rps float64, burst int) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimited) Dimensions() int { return r.inner.Dimensions() }
