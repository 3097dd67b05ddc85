package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed network operation so callers can branch on the
// cause without inspecting error strings or HTTP internals.
type Kind int

const (
	// KindOther is any failure not covered by a more specific kind
	KindOther Kind = iota

	// KindUnauthorized means the server rejected the credentials, including
	// after the one automatic token refresh
	KindUnauthorized

	// KindTransport means the request never produced a usable response
	// (connection refused, timeout, broken connection)
	KindTransport

	// KindDecode means the response arrived but its body had an unexpected shape
	KindDecode
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "other"
	}
}

// Error is the failure result of a client operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the Kind from err, or KindOther for errors that did not
// originate in this package.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindOther
}

func unauthorizedErr(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func transportErr(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

func decodeErr(message string, err error) *Error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

func otherErr(message string) *Error {
	return &Error{Kind: KindOther, Message: message}
}
