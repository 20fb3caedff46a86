package apperrors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Sentinel errors for the failure classes the client core distinguishes.
// Anything that doesn't match one of these is reported with a generic message.
var (
	ErrNotFound           = errors.New("document not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts, try again later")
	ErrUnavailable        = errors.New("backend unavailable")
)

// Kind is the user-facing classification of an error.
type Kind string

const (
	KindNotFound    Kind = "not-found"
	KindPermission  Kind = "permission"
	KindCredentials Kind = "credentials"
	KindRateLimited Kind = "rate-limited"
	KindNetwork     Kind = "network"
	KindUnknown     Kind = "unknown"
)

// Classify maps an error onto the taxonomy. Wrapped sentinels are matched
// first, then network-ish errors by type and message.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrInvalidCredentials):
		return KindCredentials
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case IsNetwork(err):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// IsNetwork reports whether the error looks like a connectivity failure
// rather than a rejection by the backend.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no reachable servers") ||
		strings.Contains(msg, "server selection error")
}
