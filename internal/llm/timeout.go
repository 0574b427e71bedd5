package llm

import (
	"context"
	"time"
)

// TimeoutClient bounds every completion call with a deadline so one stalled
// model endpoint cannot hang a request indefinitely.
type TimeoutClient struct {
	inner   LLM
	timeout time.Duration
}

// WithTimeout wraps client so every call runs under the given deadline.
// A non-positive timeout returns the client unchanged.
func WithTimeout(client LLM, timeout time.Duration) LLM {
	if timeout <= 0 {
		return client
	}
	return &TimeoutClient{inner: client, timeout: timeout}
}

func (t *TimeoutClient) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Complete(ctx, system, user)
}

func (t *TimeoutClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.CompleteJSON(ctx, system, user)
}

var _ LLM = (*TimeoutClient)(nil)
