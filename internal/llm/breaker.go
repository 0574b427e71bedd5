package llm

import (
	"context"

	"tabula/pkg/circuitbreaker"
)

// BreakerClient wraps an LLM with a circuit breaker so a failing model
// endpoint fails fast instead of stalling every request.
type BreakerClient struct {
	inner   LLM
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps client with the given breaker.
func WithBreaker(client LLM, breaker *circuitbreaker.Breaker) *BreakerClient {
	return &BreakerClient{inner: client, breaker: breaker}
}

func (b *BreakerClient) Complete(ctx context.Context, system, user string) (string, error) {
	return b.execute(func() (string, error) {
		return b.inner.Complete(ctx, system, user)
	})
}

func (b *BreakerClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return b.execute(func() (string, error) {
		return b.inner.CompleteJSON(ctx, system, user)
	})
}

func (b *BreakerClient) execute(fn func() (string, error)) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

var _ LLM = (*BreakerClient)(nil)
