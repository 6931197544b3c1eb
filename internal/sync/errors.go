package sync

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors for the remote failure taxonomy. Clients wrap these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrTransient    = errors.New("transient network error")
)

// FailureKind classifies a failed remote call.
type FailureKind string

const (
	FailureUnauthorized FailureKind = "unauthorized"
	FailureForbidden    FailureKind = "forbidden"
	FailureNotFound     FailureKind = "not_found"
	FailureRateLimited  FailureKind = "rate_limited"
	FailureTransient    FailureKind = "transient"
	FailureUnknown      FailureKind = "unknown"
)

// Classify maps an error from a remote call onto the failure taxonomy.
// Timeouts and network errors are transient.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, ErrForbidden):
		return FailureForbidden
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	return FailureUnknown
}
