package serp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport covers timeouts, connection failures, 5xx and 429. Retryable.
	ErrTransport = errors.New("provider transport error")
	// ErrAuth means the credentials were rejected. Credentials are batch-wide,
	// so this aborts the whole run.
	ErrAuth = errors.New("provider authentication error")
	// ErrRequest is a non-retryable client-side rejection (bad query, 4xx).
	ErrRequest = errors.New("provider rejected request")
	// ErrBlocked means an HTML backend was served a captcha or block page.
	// Retryable.
	ErrBlocked = errors.New("provider blocked request")
)

// StatusError wraps one of the sentinel errors with the HTTP status and a
// provider message.
type StatusError struct {
	Kind    error
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// ClassifyStatus maps an HTTP status to the error taxonomy. It returns nil for
// 2xx.
func ClassifyStatus(status int, message string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &StatusError{Kind: ErrAuth, Status: status, Message: message}
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return &StatusError{Kind: ErrTransport, Status: status, Message: message}
	default:
		return &StatusError{Kind: ErrRequest, Status: status, Message: message}
	}
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrBlocked)
}

// Kind names err for reports and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrRequest):
		return "request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "unknown"
}
