package llm

import (
	"context"
)

// Client provides a provider-neutral interface for making LLM API calls.
// Implementations should handle provider-specific details internally.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	Synchronous(ctx context.Context, req *Request) (*Response, error)
}

// Pinger reports whether a provider endpoint is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Middleware provides hooks for decorating Client calls.
// This allows adding cross-cutting concerns like logging, retry, rate limiting, etc.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to use the original error.
	OnError(ctx context.Context, req *Request, err error) error
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// If the wrapped client is also a Pinger, the result is too.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	wrapped := &clientWithMiddleware{
		client:     client,
		middleware: middleware,
	}
	if p, ok := client.(Pinger); ok {
		return &pingableClientWithMiddleware{clientWithMiddleware: wrapped, pinger: p}
	}
	return wrapped
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Synchronous implements Client.Synchronous with middleware support.
func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	// Apply BeforeRequest middleware
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.client.Synchronous(ctx, req)
	if err != nil {
		for _, mw := range c.middleware {
			if handled := mw.OnError(ctx, req, err); handled != nil {
				err = handled
			}
		}
		return nil, err
	}

	// Apply AfterResponse middleware in reverse order
	for i := len(c.middleware) - 1; i >= 0; i-- {
		var err error
		resp, err = c.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

type pingableClientWithMiddleware struct {
	*clientWithMiddleware
	pinger Pinger
}

func (c *pingableClientWithMiddleware) Ping(ctx context.Context) error {
	return c.pinger.Ping(ctx)
}

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)

var _ Pinger = (*pingableClientWithMiddleware)(nil)
