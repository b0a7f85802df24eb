package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// ErrUnknownPlatform is returned for names with no registered adapter.
var ErrUnknownPlatform = errors.New("unknown platform")

// Kind classifies a publish or metrics failure.
type Kind string

const (
	// KindCredentialMissing: no usable credential. Not retried; the tenant
	// must reconnect.
	KindCredentialMissing Kind = "credential_missing"
	// KindTransient: network, timeout, rate limit or server error.
	KindTransient Kind = "transient"
	// KindRejected: the platform refused the content.
	KindRejected Kind = "rejected"
)

// Error is the failure type every adapter returns.
type Error struct {
	Platform   string
	Kind       Kind
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Platform, e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(platform string, kind Kind, cause error) *Error {
	return &Error{Platform: platform, Kind: kind, Cause: cause}
}

// KindOf returns the kind of err, treating unclassified errors as transient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

func IsCredentialMissing(err error) bool { return err != nil && KindOf(err) == KindCredentialMissing }
func IsTransient(err error) bool         { return err != nil && KindOf(err) == KindTransient }
func IsRejected(err error) bool          { return err != nil && KindOf(err) == KindRejected }

// classifyStatus maps a non-2xx response to an error kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindCredentialMissing
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return KindTransient
	default:
		return KindRejected
	}
}

// classifyTransport maps an error from the HTTP round trip. Everything here
// is transient: timeouts, open circuits and network failures alike.
func classifyTransport(platform string, err error) *Error {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return newError(platform, KindTransient, fmt.Errorf("circuit open: %w", err))
	case errors.Is(err, context.DeadlineExceeded):
		return newError(platform, KindTransient, fmt.Errorf("timed out: %w", err))
	default:
		return newError(platform, KindTransient, err)
	}
}
