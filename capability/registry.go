// Package capability maps stable module names to invocable capabilities and
// provides the built-in modules.
package capability

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	ctxpkg "github.com/aschepis/backscratcher/niblit/context"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DefaultTimeout bounds a single invocation.
const DefaultTimeout = 30 * time.Second

// Capability is a named unit of functionality reachable by the router.
type Capability interface {
	Invoke(ctx context.Context, action string) (string, error)
}

// Func adapts a function to Capability.
type Func func(ctx context.Context, action string) (string, error)

func (f Func) Invoke(ctx context.Context, action string) (string, error) {
	return f(ctx, action)
}

// Registry maps names to capabilities.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Capability
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry. A non-positive timeout uses DefaultTimeout.
func NewRegistry(timeout time.Duration, logger zerolog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		modules: make(map[string]Capability),
		timeout: timeout,
		logger:  logger.With().Str("component", "capability_registry").Logger(),
	}
}

// Register registers c under name, replacing any previous entry. A nil c
// registers a module without a public API.
func (r *Registry) Register(name string, c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Debug().Str("name", name).Bool("callable", c != nil).Msg("Registering capability")
	r.modules[name] = c
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, error) {
	r.mu.RLock()
	c, ok := r.modules[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &RoutingError{Module: name, Err: ErrModuleNotRegistered}
	}
	if c == nil {
		return nil, &RoutingError{Module: name, Err: ErrNoPublicAPI}
	}
	return c, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.modules)
	slices.Sort(names)
	return names
}

type result struct {
	out string
	err error
}

// Invoke runs the named capability under the registry timeout. Capability
// errors, panics and timeouts come back as *InvocationError; the registry
// never panics on behalf of a module.
func (r *Registry) Invoke(ctx context.Context, name, action string) (string, error) {
	c, err := r.Lookup(name)
	if err != nil {
		r.logger.Warn().Str("module", name).Err(err).Msg("Capability lookup failed")
		return "", err
	}

	ctxpkg.Trace(ctx, fmt.Sprintf("Invoking module %s", name))
	r.logger.Info().Str("module", name).Str("action", action).Msg("Invoking capability")

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := c.Invoke(callCtx, action)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Warn().Str("module", name).Err(res.err).Msg("Capability returned error")
			return "", &InvocationError{Module: name, Err: res.err}
		}
		return res.out, nil
	case <-callCtx.Done():
		r.logger.Warn().Str("module", name).Err(callCtx.Err()).Msg("Capability did not finish in time")
		return "", &InvocationError{Module: name, Err: callCtx.Err()}
	}
}
