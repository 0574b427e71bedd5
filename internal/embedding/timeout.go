package embedding

import (
	"context"
	"time"
)

// TimeoutModel bounds every embedding call with a deadline.
type TimeoutModel struct {
	inner   Embedding
	timeout time.Duration
}

// WithTimeout wraps model so every call runs under the given deadline.
// A non-positive timeout returns the model unchanged.
func WithTimeout(model Embedding, timeout time.Duration) Embedding {
	if timeout <= 0 {
		return model
	}
	return &TimeoutModel{inner: model, timeout: timeout}
}

func (t *TimeoutModel) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, text)
}

func (t *TimeoutModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.EmbedBatch(ctx, texts)
}

var _ Embedding = (*TimeoutModel)(nil)
