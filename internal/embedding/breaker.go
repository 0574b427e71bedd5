package embedding

import (
	"context"

	"tabula/pkg/circuitbreaker"
)

// BreakerModel wraps an Embedding provider with a circuit breaker.
type BreakerModel struct {
	inner   Embedding
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps model with the given breaker.
func WithBreaker(model Embedding, breaker *circuitbreaker.Breaker) *BreakerModel {
	return &BreakerModel{inner: model, breaker: breaker}
}

func (b *BreakerModel) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (b *BreakerModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

var _ Embedding = (*BreakerModel)(nil)
