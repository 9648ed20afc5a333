package core

import (
	"errors"
	"fmt"
)

// Error codes returned by the orchestration core. Callers match on these via
// errors.As with a *core.Error target (or CodeOf/HasCode) and inspecting
// Code, never on error string contents.
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeInvalidDefinition     = "INVALID_DEFINITION"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeUnresolvedPlaceholder = "UNRESOLVED_PLACEHOLDER"
	ErrCodeToolMissing           = "TOOL_MISSING"
	ErrCodeProviderError         = "PROVIDER_ERROR"
	ErrCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	ErrCodeCancelled             = "CANCELLED"
)

// Error is the canonical error envelope for the orchestration core: a stable
// code, a wrapped cause, and free-form contextual details.
type Error struct {
	Code    string
	Details map[string]any
	cause   error
}

func NewError(err error, code string, details map[string]any) *Error {
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Code: code, Details: details, cause: err}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.cause.Error())
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on Code so errors.Is(err, core.NewError(nil, core.ErrCodeNotFound, nil))
// style sentinels work without comparing details or cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// CodeOf extracts the Code of err if it is (or wraps) a *Error, with ok=false
// otherwise.
func CodeOf(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HasCode reports whether err is (or wraps) a *Error with the given code.
func HasCode(err error, code string) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
