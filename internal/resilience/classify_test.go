package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) HTTPStatus() int { return e.status }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  Category
		retryable bool
	}{
		{"rate limit by message", errors.New("429 Too Many Requests"), CategoryRateLimit, true},
		{"rate limit by status", &statusErr{429, "slow down"}, CategoryRateLimit, true},
		{"quota", errors.New("monthly quota exceeded"), CategoryRateLimit, true},
		{"not found", errors.New("404 Not Found"), CategoryNotFound, false},
		{"auth", errors.New("401 Unauthorized"), CategoryAuthentication, false},
		{"forbidden by status", &statusErr{403, "nope"}, CategoryAuthentication, false},
		{"timeout", errors.New("request timed out"), CategoryTimeout, true},
		{"deadline", context.DeadlineExceeded, CategoryTimeout, true},
		{"cancelled", context.Canceled, CategoryCancellation, false},
		{"wrapped cancel", fmt.Errorf("fetch: %w", context.Canceled), CategoryCancellation, false},
		{"transient", errors.New("connection reset by peer"), CategoryTransient, true},
		{"server", errors.New("502 Bad Gateway"), CategoryServerError, true},
		{"server by status", &statusErr{503, "maintenance"}, CategoryServerError, true},
		{"validation", errors.New("validation failed: title is required"), CategoryValidation, false},
		{"client", &statusErr{418, "teapot"}, CategoryClientError, false},
		{"unknown", errors.New("something odd happened"), CategoryUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.err)
			if c.Category != tt.category {
				t.Errorf("Classify(%q).Category = %s, want %s", tt.err, c.Category, tt.category)
			}
			if c.Retryable != tt.retryable {
				t.Errorf("Classify(%q).Retryable = %v, want %v", tt.err, c.Retryable, tt.retryable)
			}
			if c.Err != tt.err {
				t.Errorf("Classify(%q).Err not preserved", tt.err)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// Carries both a rate-limit and a timeout marker; rate-limit is
	// earlier in the table.
	c := Classify(errors.New("429 too many requests: upstream timeout"))
	if c.Category != CategoryRateLimit {
		t.Errorf("Category = %s, want %s", c.Category, CategoryRateLimit)
	}
	if c.RetryDelay <= 0 {
		t.Errorf("RetryDelay = %v, want > 0", c.RetryDelay)
	}
}

func TestClassifyRetryDelays(t *testing.T) {
	tests := []struct {
		err   error
		delay time.Duration
	}{
		{errors.New("rate limit exceeded"), 30 * time.Second},
		{errors.New("gateway timeout"), 2 * time.Second},
		{errors.New("connection refused"), 1 * time.Second},
		{errors.New("500 internal server error"), 5 * time.Second},
		{errors.New("mystery"), 1 * time.Second},
	}

	for _, tt := range tests {
		if got := Classify(tt.err).RetryDelay; got != tt.delay {
			t.Errorf("Classify(%q).RetryDelay = %v, want %v", tt.err, got, tt.delay)
		}
	}
}

func TestClassifyNeverLeaksRawText(t *testing.T) {
	raw := "pq: duplicate key value violates unique constraint sources_doi_key"
	c := Classify(errors.New(raw))
	if strings.Contains(c.UserMessage, "pq:") || strings.Contains(c.UserMessage, "sources_doi_key") {
		t.Errorf("UserMessage leaked raw error text: %q", c.UserMessage)
	}
}
