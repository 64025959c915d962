package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindInvalidState           Kind = "invalid_state"
	KindValidation             Kind = "validation_error"
	KindExternalServiceFailure Kind = "external_service_failure"
	KindConcurrencyConflict    Kind = "concurrency_conflict"
	KindInternal               Kind = "internal_error"
)

// Error is the typed error returned by every domain service.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error of the same kind. A target without a code
// matches every error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Retryable reports whether the whole operation may be attempted again.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == KindConcurrencyConflict
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Err = cause
	return &clone
}

// WithMessage returns a copy of e with a formatted message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrExternalServiceFailure = &Error{Kind: KindExternalServiceFailure}
	ErrConcurrencyConflict    = &Error{Kind: KindConcurrencyConflict}
)

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func InvalidState(code, message string) *Error {
	return &Error{Kind: KindInvalidState, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func ExternalServiceFailure(code, message string) *Error {
	return &Error{Kind: KindExternalServiceFailure, Code: code, Message: message}
}

func ConcurrencyConflict(code, message string) *Error {
	return &Error{Kind: KindConcurrencyConflict, Code: code, Message: message}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, falling back to its kind.
func CodeOf(err error) string {
	appErr, ok := As(err)
	if !ok {
		return string(KindInternal)
	}
	if appErr.Code != "" {
		return appErr.Code
	}
	return string(appErr.Kind)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

func IsExternalServiceFailure(err error) bool {
	return errors.Is(err, ErrExternalServiceFailure)
}
