package dispatch

import (
	"errors"
	"fmt"

	"civic-dispatch/core/store"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Error carries a stable machine code and a human readable message next to
// one of the sentinel kinds above.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: kind}
}

func validationError(code, format string, args ...any) *Error {
	return newError(ErrValidation, code, format, args...)
}

func notFoundError(code, format string, args ...any) *Error {
	return newError(ErrNotFound, code, format, args...)
}

// Code returns the machine code of err, falling back to the kind name.
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	}
	return "internal"
}

// translateStoreError maps persistence sentinels onto service kinds. Errors
// already produced by this package pass through.
func translateStoreError(err error, notFoundCode, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: notFoundCode, Message: notFoundMsg, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
	case errors.Is(err, store.ErrConflict):
		return &Error{Code: "conflict", Message: "concurrent update, retry the request", Err: fmt.Errorf("%w: %w", ErrConflict, err)}
	}
	return err
}
