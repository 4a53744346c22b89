package capability

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotRegistered means no capability is registered under the name.
	ErrModuleNotRegistered = errors.New("module not registered")

	// ErrNoPublicAPI means the name is registered but exposes no Capability.
	ErrNoPublicAPI = errors.New("module has no callable API")

	// ErrModuleInvocation matches every *InvocationError.
	ErrModuleInvocation = errors.New("module invocation failed")
)

// RoutingError reports a lookup failure for a named module.
type RoutingError struct {
	Module string
	Err    error // ErrModuleNotRegistered or ErrNoPublicAPI
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// InvocationError wraps a failure raised by a capability, including panics
// and timeouts.
type InvocationError struct {
	Module string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func (e *InvocationError) Is(target error) bool {
	return target == ErrModuleInvocation
}

// Describe renders a registry error as the user-visible response string.
func Describe(err error) string {
	var inv *InvocationError
	if errors.As(err, &inv) {
		return fmt.Sprintf("[MODULE ERROR] %v", inv.Err)
	}
	var route *RoutingError
	if errors.As(err, &route) {
		if errors.Is(route.Err, ErrNoPublicAPI) {
			return fmt.Sprintf("[MODULE %s] No callable API", route.Module)
		}
		return fmt.Sprintf("[MODULE ERROR] Module '%s' not registered.", route.Module)
	}
	return fmt.Sprintf("[MODULE ERROR] %v", err)
}
