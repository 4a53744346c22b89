package context

import (
	stdctx "context"
)

// traceCallbackKey is the context key for a trace callback.
// This is in a separate package to avoid circular dependencies.
type traceCallbackKey struct{}

type turnIDKey struct{}

// WithTraceCallback adds a trace callback to the context. Components report
// routing decisions through it (the CLI prints them with -trace).
func WithTraceCallback(ctx stdctx.Context, cb func(string)) stdctx.Context {
	return stdctx.WithValue(ctx, traceCallbackKey{}, cb)
}

// GetTraceCallback retrieves the trace callback from the context.
func GetTraceCallback(ctx stdctx.Context) (func(string), bool) {
	cb, ok := ctx.Value(traceCallbackKey{}).(func(string))
	return cb, ok
}

// Trace calls the context's trace callback if one is set.
func Trace(ctx stdctx.Context, msg string) {
	if cb, ok := GetTraceCallback(ctx); ok && cb != nil {
		cb(msg)
	}
}

// WithTurnID tags the context with the id of the conversational turn being handled.
func WithTurnID(ctx stdctx.Context, id uint64) stdctx.Context {
	return stdctx.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the turn id, or 0 if none is set.
func TurnID(ctx stdctx.Context) uint64 {
	id, _ := ctx.Value(turnIDKey{}).(uint64)
	return id
}
