// Package tuserr provides the typed error kinds used across the tus client.
package tuserr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which of the five failure classes an Error belongs to.
type Kind int

const (
	// KindUnknown is the zero value and should not be constructed directly.
	KindUnknown Kind = iota

	// KindIOFailure covers local filesystem failures: unreadable source
	// file, unwritable staging directory, unwritable cache file.
	KindIOFailure

	// KindTransport covers socket-level failures from the HTTP client.
	KindTransport

	// KindConflict covers a 409 response to a chunk PATCH.
	KindConflict

	// KindProtocol covers any other non-204 response to a chunk PATCH,
	// or a creation response missing a Location header.
	KindProtocol

	// KindPrecondition covers programming errors: wrong method passed to
	// a per-verb enqueue call, cancel() with no location assigned.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindIOFailure:
		return "IOFailure"
	case KindTransport:
		return "TransportError"
	case KindConflict:
		return "ConflictError"
	case KindProtocol:
		return "ProtocolError"
	case KindPrecondition:
		return "PreconditionError"
	default:
		return "UnknownError"
	}
}

// Error is a typed error carrying an HTTP status code where one applies.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
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

// NewIOFailure constructs a KindIOFailure error.
func NewIOFailure(message string, err error) error {
	return &Error{Kind: KindIOFailure, Message: message, StatusCode: http.StatusInternalServerError, Err: err}
}

// NewTransportError constructs a KindTransport error.
func NewTransportError(message string, err error) error {
	return &Error{Kind: KindTransport, Message: message, StatusCode: http.StatusServiceUnavailable, Err: err}
}

// NewConflictError constructs a KindConflict error.
func NewConflictError(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, StatusCode: http.StatusConflict, Err: err}
}

// NewProtocolError constructs a KindProtocol error.
func NewProtocolError(message string, err error) error {
	return &Error{Kind: KindProtocol, Message: message, StatusCode: http.StatusBadGateway, Err: err}
}

// NewPreconditionError constructs a KindPrecondition error.
func NewPreconditionError(message string, err error) error {
	return &Error{Kind: KindPrecondition, Message: message, StatusCode: http.StatusPreconditionFailed, Err: err}
}

func isKind(err error, k Kind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == k
	}
	return false
}

// IsIOFailure reports whether err is (or wraps) a KindIOFailure error.
func IsIOFailure(err error) bool { return isKind(err, KindIOFailure) }

// IsTransportError reports whether err is (or wraps) a KindTransport error.
func IsTransportError(err error) bool { return isKind(err, KindTransport) }

// IsConflictError reports whether err is (or wraps) a KindConflict error.
func IsConflictError(err error) bool { return isKind(err, KindConflict) }

// IsProtocolError reports whether err is (or wraps) a KindProtocol error.
func IsProtocolError(err error) bool { return isKind(err, KindProtocol) }

// IsPreconditionError reports whether err is (or wraps) a KindPrecondition error.
func IsPreconditionError(err error) bool { return isKind(err, KindPrecondition) }

// Wrap annotates err with message, preserving it for errors.Is/As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message, preserving it for errors.Is/As.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
