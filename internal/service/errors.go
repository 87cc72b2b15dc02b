package service

import (
	"errors"
	"fmt"
)

// Kind classifies every error this package surfaces. The set is closed;
// the HTTP boundary matches it exhaustively when mapping to a response.
type Kind int

const (
	// KindNotFound: the provider returned no records for a requested day.
	KindNotFound Kind = iota + 1
	// KindInvalidArgument: order value, date range, or limit is invalid.
	KindInvalidArgument
	// KindUpstreamUnavailable: the provider signaled a provider-side failure.
	KindUpstreamUnavailable
	// KindUpstreamProtocol: the provider response was malformed or unparseable.
	KindUpstreamProtocol
	// KindStore: an unexpected failure mutating a day bucket. Internal defect.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindUpstreamProtocol:
		return "upstream_protocol"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error carries a Kind, a message, and an optional cause.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from err, or 0 when err is not a service error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}
