package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NewLoggingMiddleware logs each request's size, outcome and latency.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return &loggingMiddleware{logger: logger.With().Str("component", "llm").Logger()}
}

type loggingMiddleware struct {
	logger zerolog.Logger
	starts sync.Map // *Request -> time.Time
}

func (m *loggingMiddleware) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	m.starts.Store(req, time.Now())
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int64("max_tokens", req.MaxTokens).
		Msg("LLM request")
	return req, nil
}

func (m *loggingMiddleware) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	ev := m.logger.Debug().
		Str("model", req.Model).
		Str("stop_reason", resp.StopReason).
		Dur("latency", m.elapsed(req))
	if resp.Usage != nil {
		ev = ev.Int64("input_tokens", resp.Usage.InputTokens).Int64("output_tokens", resp.Usage.OutputTokens)
	}
	ev.Msg("LLM response")
	return resp, nil
}

func (m *loggingMiddleware) OnError(ctx context.Context, req *Request, err error) error {
	m.logger.Warn().Err(err).Str("model", req.Model).Dur("latency", m.elapsed(req)).Msg("LLM request failed")
	return nil
}

func (m *loggingMiddleware) elapsed(req *Request) time.Duration {
	v, ok := m.starts.LoadAndDelete(req)
	if !ok {
		return 0
	}
	return time.Since(v.(time.Time))
}
