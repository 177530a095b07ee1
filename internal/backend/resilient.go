package backend

import (
	"context"

	"github.com/aristath/researcher/internal/resilience"
)

// Resilient wraps a Backend with a circuit breaker and retry. Each wrapped
// backend gets the breaker registered under its Name.
type Resilient struct {
	inner    Backend
	registry *resilience.Registry
	retry    resilience.RetryConfig
}

// NewResilient wraps inner. The registry is shared so breakers survive
// across wrappers of the same backend.
func NewResilient(inner Backend, registry *resilience.Registry, retry resilience.RetryConfig) *Resilient {
	return &Resilient{inner: inner, registry: registry, retry: retry}
}

func (r *Resilient) Name() string { return r.inner.Name() }

// Send forwards msg to the wrapped backend until it succeeds, the breaker
// opens or retries run out.
func (r *Resilient) Send(ctx context.Context, msg Message) (Response, error) {
	cb := r.registry.Get("backend:" + r.inner.Name())
	return resilience.Do(ctx, cb, r.retry, func(ctx context.Context) (Response, error) {
		return r.inner.Send(ctx, msg)
	})
}
