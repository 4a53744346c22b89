package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRequestTooLargeError(t *testing.T) {
	err := NewRequestTooLargeError("request too large", nil)
	if !IsRequestTooLargeError(err) {
		t.Error("Expected IsRequestTooLargeError to return true for request too large error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRequestTooLargeError(regularErr) {
		t.Error("Expected IsRequestTooLargeError to return false for non-request-too-large error")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net failure" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantTimeout     bool
		wantUnavailable bool
		wantType        ErrorType
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantTimeout: true, wantType: ErrorTypeTimeout},
		{name: "net timeout", err: fakeNetError{timeout: true}, wantTimeout: true, wantType: ErrorTypeTimeout},
		{name: "connection refused", err: fakeNetError{}, wantUnavailable: true, wantType: ErrorTypeNetwork},
		{name: "typed passes through", err: NewUnavailableError("down", nil), wantUnavailable: true, wantType: ErrorTypeUnavailable},
		{name: "anything else", err: errors.New("boom"), wantType: ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if IsTimeoutError(got) != tt.wantTimeout {
				t.Errorf("IsTimeoutError = %v, want %v", IsTimeoutError(got), tt.wantTimeout)
			}
			if IsUnavailableError(got) != tt.wantUnavailable {
				t.Errorf("IsUnavailableError = %v, want %v", IsUnavailableError(got), tt.wantUnavailable)
			}
			var llmErr *Error
			if !errors.As(got, &llmErr) {
				t.Fatalf("Classify returned %T, want *Error", got)
			}
			if llmErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", llmErr.Type, tt.wantType)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}
