package analyzer

import (
	"errors"
	"fmt"
)

// Kind classifies analysis failures. Every kind counts the same against the
// retry ceiling; the distinction exists for logging and for callers that want
// to know whether pushing harder could help.
type Kind string

const (
	// KindTransient covers unreachable service, timeouts, quota errors, and
	// 5xx responses. Retrying later may succeed.
	KindTransient Kind = "transient_network"

	// KindInvalidResponse covers responses the strict parser rejected:
	// non-JSON content, missing fields, empty choices.
	KindInvalidResponse Kind = "invalid_response"

	// KindRejected covers the service refusing the request itself (4xx other
	// than quota). Retrying the same bytes is unlikely to help, but the
	// record still follows the normal retry counting.
	KindRejected Kind = "request_rejected"
)

// Error is an analysis failure with a taxonomy kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind, defaulting to transient for plain errors
// (network-level failures from the HTTP client arrive unwrapped).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

// IsTransient reports whether the failure was a network-level problem.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsInvalidResponse reports whether the failure was an unparseable response.
func IsInvalidResponse(err error) bool {
	return KindOf(err) == KindInvalidResponse
}
