// Package domainerrors defines coded errors shared by every service. Stores
// wrap low-level failures with %w; services translate them into coded errors;
// the transport layer maps codes to HTTP statuses and serializes the optional
// action hint for the client.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeValidation    Code = "validation"
	CodeBadRequest    Code = "bad_request"
	CodeNotFound      Code = "not_found"
	CodeUnauthorized  Code = "unauthorized"
	CodeForbidden     Code = "forbidden"
	CodeConflict      Code = "conflict"
	CodeQuotaExceeded Code = "quota_exceeded"
	CodeRateLimited   Code = "rate_limited"
	CodeUnavailable   Code = "unavailable"
	CodeInternal      Code = "internal"
)

// Action is a machine-readable hint telling the client what to do next after
// a rejected request.
type Action string

const (
	ActionSignupRequired  Action = "signup_required"
	ActionUpgradeRequired Action = "upgrade_required"
	ActionRateLimited     Action = "rate_limit_exceeded"
	ActionRetryRequired   Action = "retry_required"
)

// Error is a coded domain error. The zero Action means no hint.
type Error struct {
	code    Code
	message string
	action  Action
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.message }

// New builds a coded error with a human-readable message.
func New(code Code, message string) error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, message: message, cause: err}
}

// WithAction returns a copy of err carrying a next-step hint for the client.
// If err is not a domain error it is wrapped as CodeInternal first.
func WithAction(err error, action Action) error {
	if err == nil {
		return nil
	}
	var de *Error
	if !errors.As(err, &de) {
		return &Error{code: CodeInternal, message: err.Error(), action: action, cause: err}
	}
	return &Error{code: de.code, message: de.message, action: action, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.code == code
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var de *Error
	if !errors.As(err, &de) {
		return CodeInternal
	}
	return de.code
}

// ActionOf returns the action hint of the outermost domain error, if any.
func ActionOf(err error) Action {
	var de *Error
	if !errors.As(err, &de) {
		return ""
	}
	return de.action
}

// MessageOf returns the human-readable message of the outermost domain
// error, or err.Error() for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if !errors.As(err, &de) {
		return err.Error()
	}
	return de.message
}
