package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindAuthFailure         Kind = "auth_failure"
	KindNetworkFailure      Kind = "network_failure"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindMalformedResponse   Kind = "malformed_response"
	KindUnsupportedProvider Kind = "unsupported_provider"
)

// Error is the only error type a Backend returns.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Detail     string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "generation error", string(e.Kind))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		parts = append(parts, detail)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf reports the kind of err. Errors that did not come from a Backend
// are treated as transport failures.
func KindOf(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindNetworkFailure
}

func newError(kind Kind, provider, detail string) *Error {
	return &Error{Kind: kind, Provider: provider, Detail: detail}
}

func statusError(provider string, statusCode int, body string) *Error {
	kind := KindNetworkFailure

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuthFailure
	case http.StatusTooManyRequests:
		kind = KindQuotaExceeded
	}

	detail := fmt.Sprintf("provider returned status %d", statusCode)
	if body = truncate(strings.TrimSpace(body), maxErrorBodyChars); body != "" {
		detail = fmt.Sprintf("%s: %s", detail, body)
	}

	return &Error{
		Kind:       kind,
		Provider:   provider,
		StatusCode: statusCode,
		Detail:     detail,
	}
}

func transportError(provider string, err error) *Error {
	detail := "request failed"

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		detail = "request timed out"
	case errors.Is(err, context.Canceled):
		detail = "request canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		detail = "request timed out"
	}

	return &Error{
		Kind:     KindNetworkFailure,
		Provider: provider,
		Detail:   detail,
		Cause:    err,
	}
}

const maxErrorBodyChars = 400

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
