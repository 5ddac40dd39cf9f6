package resource

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/types"
)

// rateLimitedAdapter wraps an adapter with a token-bucket limiter so
// operations against the same resource respect its configured rate while
// operations against different resources proceed independently.
type rateLimitedAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
}

// RateLimited wraps an adapter with a per-second rate limit. Burst equals
// the ceiling of the rate so short bursts are absorbed without queueing.
func RateLimited(inner Adapter, perSecond float64) Adapter {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (a *rateLimitedAdapter) Name() string { return a.inner.Name() }

func (a *rateLimitedAdapter) Descriptor() Descriptor { return a.inner.Descriptor() }

// Lookup waits for a rate token, honoring context cancellation, then
// delegates to the wrapped adapter.
func (a *rateLimitedAdapter) Lookup(
	ctx context.Context, batch []types.Identifier, target types.Ontology,
) (map[string]Result, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, errors.WrapTransient(err, "RateLimitedAdapter", "Lookup", "rate limit wait")
	}
	return a.inner.Lookup(ctx, batch, target)
}
