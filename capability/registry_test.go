package capability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry(time.Second, zerolog.Nop())
	r.Register("echo", Func(func(_ context.Context, action string) (string, error) {
		return "echo: " + action, nil
	}))
	r.Register("broken", Func(func(context.Context, string) (string, error) {
		return "", errors.New("sensor offline")
	}))
	r.Register("panicky", Func(func(context.Context, string) (string, error) {
		panic("nil map write")
	}))
	r.Register("device_manager", nil)

	tests := []struct {
		name     string
		module   string
		want     string
		wantErr  error
		describe string
	}{
		{name: "success", module: "echo", want: "echo: hi"},
		{name: "not registered", module: "weather", wantErr: ErrModuleNotRegistered, describe: "[MODULE ERROR] Module 'weather' not registered."},
		{name: "no public api", module: "device_manager", wantErr: ErrNoPublicAPI, describe: "[MODULE device_manager] No callable API"},
		{name: "module error", module: "broken", wantErr: ErrModuleInvocation, describe: "[MODULE ERROR] sensor offline"},
		{name: "module panic", module: "panicky", wantErr: ErrModuleInvocation, describe: "[MODULE ERROR] panic: nil map write"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Invoke(context.Background(), tt.module, "hi")
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Invoke() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("Invoke() = %q, want %q", got, tt.want)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Invoke() error = %v, want %v", err, tt.wantErr)
			}
			if d := Describe(err); d != tt.describe {
				t.Errorf("Describe() = %q, want %q", d, tt.describe)
			}
		})
	}
}

func TestRegistryInvokeTimeout(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, zerolog.Nop())
	r.Register("slow", Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	}))

	_, err := r.Invoke(context.Background(), "slow", "")
	if !errors.Is(err, ErrModuleInvocation) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Invoke() error = %v, want invocation error wrapping deadline", err)
	}
	var inv *InvocationError
	if !errors.As(err, &inv) || inv.Module != "slow" {
		t.Errorf("InvocationError = %+v", inv)
	}
}

func TestRegistryLookupAndNames(t *testing.T) {
	r := NewRegistry(0, zerolog.Nop())
	r.Register("zeta", Analytics{})
	r.Register("alpha", nil)

	if got := strings.Join(r.Names(), ","); got != "alpha,zeta" {
		t.Errorf("Names() = %q", got)
	}
	if _, err := r.Lookup("zeta"); err != nil {
		t.Errorf("Lookup(zeta) error = %v", err)
	}
	if _, err := r.Lookup("alpha"); !errors.Is(err, ErrNoPublicAPI) {
		t.Errorf("Lookup(alpha) error = %v", err)
	}
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrModuleNotRegistered) {
		t.Errorf("Lookup(missing) error = %v", err)
	}
}

func TestDescribeUnknownError(t *testing.T) {
	if got := Describe(errors.New("odd")); got != "[MODULE ERROR] odd" {
		t.Errorf("Describe() = %q", got)
	}
}
