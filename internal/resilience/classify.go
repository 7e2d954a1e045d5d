// Package resilience provides the failure-handling primitives shared by the
// pipeline coordinators: an error classifier, a retry executor with
// exponential backoff, and a per-dependency circuit breaker.
package resilience

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Category is the failure taxonomy used across the pipeline.
type Category string

const (
	CategoryCancellation   Category = "CANCELLATION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryRateLimit      Category = "RATE_LIMIT"
	CategoryNotFound       Category = "NOT_FOUND"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryTransient      Category = "TRANSIENT"
	CategoryServerError    Category = "SERVER_ERROR"
	CategoryValidation     Category = "VALIDATION"
	CategoryClientError    Category = "CLIENT_ERROR"
	CategoryUnknown        Category = "UNKNOWN"
)

// Classification describes how a failure should be handled and reported.
// UserMessage is a fixed template per category; the raw error stays in Err.
type Classification struct {
	Category        Category
	Retryable       bool
	UserMessage     string
	SuggestedAction string
	RetryDelay      time.Duration
	Err             error
}

// errView is the normalized view a rule predicate evaluates: lowercased
// message, optional HTTP status, and the context sentinels.
type errView struct {
	msg      string
	status   int
	canceled bool
	deadline bool
}

type rule struct {
	match func(errView) bool
	class Classification
}

// rules is evaluated in order; first match wins. Keep cancellation first so
// an aborted call is never misread as a network failure.
var rules = []rule{
	{
		match: func(v errView) bool {
			return v.canceled || strings.Contains(v.msg, "cancel") || strings.Contains(v.msg, "abort")
		},
		class: Classification{
			Category:        CategoryCancellation,
			UserMessage:     "The operation was cancelled.",
			SuggestedAction: "No action needed.",
		},
	},
	{
		match: func(v errView) bool {
			return v.status == 401 || v.status == 403 ||
				strings.Contains(v.msg, "401") || strings.Contains(v.msg, "403") ||
				strings.Contains(v.msg, "unauthorized") || strings.Contains(v.msg, "forbidden") ||
				strings.Contains(v.msg, "authentication") || strings.Contains(v.msg, "api key")
		},
		class: Classification{
			Category:        CategoryAuthentication,
			UserMessage:     "Your session is no longer authorized.",
			SuggestedAction: "Sign in again and retry.",
		},
	},
	{
		match: func(v errView) bool {
			return v.status == 429 || strings.Contains(v.msg, "429") ||
				strings.Contains(v.msg, "too many requests") ||
				strings.Contains(v.msg, "rate limit") || strings.Contains(v.msg, "quota")
		},
		class: Classification{
			Category:        CategoryRateLimit,
			Retryable:       true,
			RetryDelay:      30 * time.Second,
			UserMessage:     "The service is receiving too many requests.",
			SuggestedAction: "Wait a moment before retrying.",
		},
	},
	{
		match: func(v errView) bool {
			return v.status == 404 || strings.Contains(v.msg, "404") || strings.Contains(v.msg, "not found")
		},
		class: Classification{
			Category:        CategoryNotFound,
			UserMessage:     "The requested record could not be found.",
			SuggestedAction: "Verify the record still exists.",
		},
	},
	{
		match: func(v errView) bool {
			return v.deadline || strings.Contains(v.msg, "timeout") ||
				strings.Contains(v.msg, "timed out") || strings.Contains(v.msg, "deadline")
		},
		class: Classification{
			Category:        CategoryTimeout,
			Retryable:       true,
			RetryDelay:      2 * time.Second,
			UserMessage:     "The service took too long to respond.",
			SuggestedAction: "Retry; the service may be under load.",
		},
	},
	{
		match: func(v errView) bool {
			return strings.Contains(v.msg, "connection refused") ||
				strings.Contains(v.msg, "connection reset") ||
				strings.Contains(v.msg, "no such host") ||
				strings.Contains(v.msg, "broken pipe") ||
				strings.Contains(v.msg, "unexpected eof") ||
				strings.Contains(v.msg, "network")
		},
		class: Classification{
			Category:        CategoryTransient,
			Retryable:       true,
			RetryDelay:      1 * time.Second,
			UserMessage:     "A temporary network problem interrupted the request.",
			SuggestedAction: "Check your connection; the request will be retried.",
		},
	},
	{
		match: func(v errView) bool {
			return (v.status >= 500 && v.status <= 599) ||
				strings.Contains(v.msg, "500") || strings.Contains(v.msg, "502") ||
				strings.Contains(v.msg, "503") || strings.Contains(v.msg, "504") ||
				strings.Contains(v.msg, "internal server error") ||
				strings.Contains(v.msg, "bad gateway") ||
				strings.Contains(v.msg, "service unavailable")
		},
		class: Classification{
			Category:        CategoryServerError,
			Retryable:       true,
			RetryDelay:      5 * time.Second,
			UserMessage:     "The service encountered an internal error.",
			SuggestedAction: "Retry; the service is usually back quickly.",
		},
	},
	{
		match: func(v errView) bool {
			return strings.Contains(v.msg, "validation") || strings.Contains(v.msg, "invalid") ||
				strings.Contains(v.msg, "required field") || strings.Contains(v.msg, "must be")
		},
		class: Classification{
			Category:        CategoryValidation,
			UserMessage:     "The request contained invalid data.",
			SuggestedAction: "Fix the highlighted records and retry.",
		},
	},
	{
		match: func(v errView) bool {
			return (v.status >= 400 && v.status <= 499) ||
				strings.Contains(v.msg, "400") || strings.Contains(v.msg, "bad request")
		},
		class: Classification{
			Category:        CategoryClientError,
			UserMessage:     "The request was rejected by the service.",
			SuggestedAction: "Contact support if this keeps happening.",
		},
	},
}

// unknownClass is the fallback when no rule matches. Conservatively
// retryable once: one wasted retry beats a false permanent failure.
var unknownClass = Classification{
	Category:        CategoryUnknown,
	Retryable:       true,
	RetryDelay:      1 * time.Second,
	UserMessage:     "An unexpected error occurred.",
	SuggestedAction: "Retry; contact support if it persists.",
}

// Classify maps an arbitrary failure into the taxonomy. Pure: no state is
// consulted or mutated, and the same error always classifies the same way.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown, Err: nil}
	}

	v := errView{msg: strings.ToLower(err.Error())}
	v.canceled = errors.Is(err, context.Canceled)
	v.deadline = errors.Is(err, context.DeadlineExceeded)

	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		v.status = sc.HTTPStatus()
	}

	for _, r := range rules {
		if r.match(v) {
			c := r.class
			c.Err = err
			return c
		}
	}

	c := unknownClass
	c.Err = err
	return c
}

// Retryable reports whether the error is worth another attempt.
func Retryable(err error) bool {
	return Classify(err).Retryable
}
