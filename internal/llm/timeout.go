package llm

import (
	"context"
	"time"
)

// timeoutClient bounds each call of the wrapped client.
type timeoutClient struct {
	inner Client
	d     time.Duration
}

// WithTimeout wraps a client so every Complete and Ping call carries a
// deadline. A non-positive duration returns the client unchanged.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{inner: c, d: d}
}

func (t *timeoutClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Complete(ctx, prompt, params)
}

func (t *timeoutClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Ping(ctx)
}
