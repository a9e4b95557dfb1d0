// Package errs defines the error taxonomy shared by the fragment core.
//
// Every error returned by the fragment, store and convert packages is either
// an *Error or wraps one, so boundary layers can map failures to their own
// status codes with CodeOf:
//
//	data, err := frag.GetData(ctx)
//	if errs.Is(err, errs.ErrNotFound) {
//	    return http.StatusNotFound
//	}
//
// The core never logs or retries; errors travel upward unchanged.
package errs

import (
	"errors"
	"fmt"
)

// ErrorCode is the category of a fragment error.
type ErrorCode int

const (
	// ErrValidation indicates malformed or missing caller input.
	// Retrying the same input fails again.
	ErrValidation ErrorCode = iota + 1

	// ErrNotFound indicates no fragment exists for the owner/id pair.
	ErrNotFound

	// ErrUnsupportedMediaType indicates an unknown ingest type, an unknown
	// extension, or a missing conversion edge between two types.
	ErrUnsupportedMediaType

	// ErrConversionFailed indicates the conversion edge exists but the
	// payload could not be decoded or transformed.
	ErrConversionFailed

	// ErrStorage indicates an I/O failure in a backing store. It is opaque:
	// transient and permanent failures are not distinguished.
	ErrStorage
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrUnsupportedMediaType:
		return "unsupported_media_type"
	case ErrConversionFailed:
		return "conversion_failed"
	case ErrStorage:
		return "storage"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Error is a categorised error from a core operation.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Op names the failing operation (e.g. "fragment.SetData", "badger.WriteMetadata")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error with the given code and message.
func New(code ErrorCode, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Newf returns an error with a formatted message.
func Newf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap categorises err. If err already carries a code, that code is kept and
// only the operation context is added.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		code = existing.Code
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or 0 when err
// is nil or uncategorised.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Validation is shorthand for a formatted ErrValidation error.
func Validation(op, format string, args ...any) *Error {
	return Newf(ErrValidation, op, format, args...)
}

// NotFound is shorthand for a formatted ErrNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return Newf(ErrNotFound, op, format, args...)
}

// Storage wraps a backend failure as ErrStorage.
func Storage(op string, err error) error {
	return Wrap(ErrStorage, op, err)
}
