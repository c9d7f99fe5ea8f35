package providers

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		msg  string
		want FailoverReason
	}{
		{"request timeout after 30s", FailoverTimeout},
		{"context deadline exceeded", FailoverTimeout},
		{"rate limit exceeded", FailoverRateLimit},
		{"got 429 too many requests", FailoverRateLimit},
		{"unauthorized: invalid api key", FailoverAuth},
		{"403 forbidden", FailoverAuth},
		{"billing account suspended", FailoverBilling},
		{"quota exceeded", FailoverBilling},
		{"model not found: gpt-9", FailoverModelUnavailable},
		{"internal server error", FailoverServerError},
		{"503 service unavailable", FailoverServerError},
		{"something unrecognized happened", FailoverUnknown},
	}
	for _, tc := range cases {
		got := ClassifyError(errors.New(tc.msg))
		if got != tc.want {
			t.Errorf("ClassifyError(%q) = %s, want %s", tc.msg, got, tc.want)
		}
	}
}

func TestClassifyStatusCode(t *testing.T) {
	cases := []struct {
		status int
		want   FailoverReason
	}{
		{401, FailoverAuth},
		{403, FailoverAuth},
		{402, FailoverBilling},
		{429, FailoverRateLimit},
		{400, FailoverInvalidRequest},
		{404, FailoverModelUnavailable},
		{500, FailoverServerError},
		{503, FailoverServerError},
		{200, FailoverUnknown},
	}
	for _, tc := range cases {
		got := classifyStatusCode(tc.status)
		if got != tc.want {
			t.Errorf("classifyStatusCode(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestFailoverReason_IsRetryable(t *testing.T) {
	retryable := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("%s should be retryable", r)
		}
	}
	notRetryable := []FailoverReason{FailoverBilling, FailoverAuth, FailoverInvalidRequest, FailoverModelUnavailable}
	for _, r := range notRetryable {
		if r.IsRetryable() {
			t.Errorf("%s should not be retryable", r)
		}
	}
}

func TestFailoverReason_ShouldFailover(t *testing.T) {
	shouldFailover := []FailoverReason{FailoverBilling, FailoverAuth, FailoverModelUnavailable}
	for _, r := range shouldFailover {
		if !r.ShouldFailover() {
			t.Errorf("%s should trigger failover", r)
		}
	}
	shouldNot := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range shouldNot {
		if r.ShouldFailover() {
			t.Errorf("%s should not trigger failover", r)
		}
	}
}

func TestNewProviderError_ClassifiesAndUnwraps(t *testing.T) {
	cause := errors.New("rate limit exceeded")
	err := NewProviderError("anthropic", "claude-3", cause)

	if err.Reason != FailoverRateLimit {
		t.Fatalf("expected FailoverRateLimit, got %s", err.Reason)
	}
	if errors.Unwrap(err) != cause {
		t.Fatal("expected ProviderError to unwrap to the original cause")
	}
	if !IsRetryable(err) {
		t.Fatal("expected a wrapped rate-limit ProviderError to be retryable")
	}
	wrapped := fmt.Errorf("request failed: %w", err)
	if IsRetryable(wrapped) != IsRetryable(err) {
		t.Fatal("expected IsRetryable to see through an extra wrapping layer via errors.As")
	}
}

func TestProviderError_WithStatus(t *testing.T) {
	err := NewProviderError("openai", "gpt-4", errors.New("boom")).WithStatus(429)
	if err.Reason != FailoverRateLimit {
		t.Fatalf("expected status 429 to reclassify as rate limit, got %s", err.Reason)
	}
	if err.Status != 429 {
		t.Fatalf("expected Status to be set, got %d", err.Status)
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Reason: FailoverAuth, Provider: "anthropic", Model: "claude-3", Status: 401, Message: "invalid key"}
	got := err.Error()
	want := "[auth] anthropic model=claude-3 status=401 invalid key"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
