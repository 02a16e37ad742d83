package client

import (
	"errors"
	"fmt"
)

// Kind classifies an execution failure. Terminal operations surface exactly
// one Kind per failed request so callers can branch without string matching.
type Kind int

const (
	// KindValidation marks caller misuse detected before any network I/O.
	KindValidation Kind = iota
	// KindNetwork marks transport-level failures (DNS, connection reset).
	KindNetwork
	// KindTimeout marks a request that exceeded its deadline.
	KindTimeout
	// KindCancelled marks a request aborted by the caller's context.
	KindCancelled
	// KindServer marks a non-2xx upstream response.
	KindServer
	// KindNotFound marks a Single() execution that matched zero rows.
	KindNotFound
	// KindMultipleRows marks a Single() execution that matched more than one row.
	KindMultipleRows
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindServer:
		return "server"
	case KindNotFound:
		return "not_found"
	case KindMultipleRows:
		return "multiple_rows"
	}
	return "unknown"
}

// Error is the single error type produced by this package.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // set for KindServer
	cause      error
}

func (e *Error) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("pgrest: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pgrest: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is matching against another *Error by Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel values for errors.Is checks.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrCancelled    = &Error{Kind: KindCancelled}
	ErrServer       = &Error{Kind: KindServer}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrMultipleRows = &Error{Kind: KindMultipleRows}
)

func validationErr(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func networkErr(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: cause.Error(), cause: cause}
}

func timeoutErr(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "request deadline exceeded", cause: cause}
}

func cancelledErr(cause error) *Error {
	return &Error{Kind: KindCancelled, Message: "request cancelled by caller", cause: cause}
}

func serverErr(statusCode int, message string) *Error {
	return &Error{Kind: KindServer, StatusCode: statusCode, Message: message}
}

func notFoundErr(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("no rows returned for %q", resource)}
}

func multipleRowsErr(resource string, n int) *Error {
	return &Error{Kind: KindMultipleRows, Message: fmt.Sprintf("expected a single row for %q, got %d", resource, n)}
}
