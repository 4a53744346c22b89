package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is how many times a rate-limited request is retried.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the first delay when the provider gives no Retry-After.
	DefaultRetryDelay = time.Second
	// MaxRetryDelay caps a single wait, including provider Retry-After hints.
	MaxRetryDelay = 10 * time.Second

	retryAfterMultiplier = 1.5
	standardMultiplier   = 2.0
)

// RetryingClient retries rate-limited and overloaded requests with
// exponential backoff. The caller's context bounds the total time spent.
type RetryingClient struct {
	inner      Client
	maxRetries uint64
	logger     zerolog.Logger
}

// NewRetryingClient wraps inner. If inner implements Pinger, so does the result.
func NewRetryingClient(inner Client, maxRetries uint64, logger zerolog.Logger) Client {
	rc := &RetryingClient{
		inner:      inner,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "llm_retry").Logger(),
	}
	if p, ok := inner.(Pinger); ok {
		return &pingableRetryingClient{RetryingClient: rc, pinger: p}
	}
	return rc
}

// newBackOff starts from the provider's Retry-After hint when one is given.
func (c *RetryingClient) newBackOff(retryAfter *time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if retryAfter != nil && *retryAfter > 0 {
		eb.InitialInterval = min(*retryAfter, MaxRetryDelay)
		eb.Multiplier = retryAfterMultiplier
	} else {
		eb.InitialInterval = DefaultRetryDelay
		eb.Multiplier = standardMultiplier
	}
	eb.MaxInterval = MaxRetryDelay
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, c.maxRetries)
}

func (c *RetryingClient) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	var (
		b       backoff.BackOff
		attempt int
	)
	for {
		resp, err := c.inner.Synchronous(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !IsRateLimitError(err) && !hasType(err, ErrorTypeUnavailable) {
			return nil, err
		}
		if b == nil {
			b = c.newBackOff(ExtractRetryAfter(err))
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, err
		}
		attempt++
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", delay).Msg("LLM request throttled, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

type pingableRetryingClient struct {
	*RetryingClient
	pinger Pinger
}

func (c *pingableRetryingClient) Ping(ctx context.Context) error {
	return c.pinger.Ping(ctx)
}
