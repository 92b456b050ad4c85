// Package errs defines MFP's error taxonomy. These are kinds, not a
// single exception hierarchy: every component returns a *Error tagged
// with the Kind its caller needs to branch on (an ExecutionResult's
// error_type, a compile exit code, ...).
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an MFP error for handling and messaging.
type Kind string

const (
	ParseError       Kind = "parse"
	CompileError     Kind = "compile"
	LintError        Kind = "lint"
	ConfigError      Kind = "config"
	SecurityViolation Kind = "security"
	PolicyViolation  Kind = "policy"
	ExecutionTimeout Kind = "timeout"
	RuntimeError     Kind = "runtime"
	InternalError    Kind = "internal"
)

// Error is a structured error carrying a Kind plus an operator-safe
// message. Cause, when present, is available via Unwrap but is never
// included in Error() — callers that need the underlying detail must
// unwrap explicitly, keeping user-facing/logged text from accidentally
// leaking sandbox stdout or credential values.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind, recording cause for
// Unwrap without folding its text into Message.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error, kind Kind) (*Error, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	return e, e.Kind == kind
}
