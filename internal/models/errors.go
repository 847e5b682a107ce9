package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the transport can answer each one with its own status.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error" // malformed request, rejected before any process starts
	KindToolUnavailable ErrorKind = "tool_unavailable" // external binary missing (configuration problem)
	KindSynthesisFailed ErrorKind = "synthesis_failed" // non-zero exit or no output file
	KindCancelled       ErrorKind = "cancelled"        // process killed on request
	KindAccessDenied    ErrorKind = "access_denied"    // path escapes the permitted root
)

// Error is the single error type surfaced by the synthesis core.
// Detail carries tool diagnostics (captured stderr) verbatim when there are any.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewAccessDenied(message string, err error) *Error {
	return &Error{Kind: KindAccessDenied, Message: message, Err: err}
}

func NewToolUnavailable(tool string, err error) *Error {
	return &Error{
		Kind:    KindToolUnavailable,
		Message: fmt.Sprintf("'%s' not found. Ensure it is installed and on PATH", tool),
		Err:     err,
	}
}

func NewSynthesisFailed(message, detail string, err error) *Error {
	return &Error{Kind: KindSynthesisFailed, Message: message, Detail: detail, Err: err}
}

func NewCancelled(requestID string) *Error {
	return &Error{Kind: KindCancelled, Message: fmt.Sprintf("request %s was cancelled", requestID)}
}
