// Package errors defines the closed error taxonomy of the SRS client.
//
// Every failure that leaves a workflow carries one of the codes below, so the
// CLI can map it to an exit status without inspecting messages:
//
//   - ErrCodeAuth: login rejected or the API key was refused
//   - ErrCodeCreation: the remote runspace entered the Error state
//   - ErrCodeSubmission: a script was submitted against a runspace that is not Ready
//   - ErrCodeTimeout: a poll loop exceeded its bound
//   - ErrCodeDeletion: releasing a runspace failed (never fatal)
//   - ErrCodeTransport: network, status or decoding failure
//   - ErrCodeScriptFailed: a script execution finished in Error or Canceled
//
// Lower layers keep their own sentinel errors (runspace.ErrNotReady and
// friends) and wrap them in an *Error so both errors.Is from the standard
// library and Is from this package work on the same chain.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	ErrCodeAuth         Code = "AUTH_FAILED"
	ErrCodeCreation     Code = "RUNSPACE_CREATION_FAILED"
	ErrCodeSubmission   Code = "SUBMISSION_REJECTED"
	ErrCodeTimeout      Code = "POLL_TIMEOUT"
	ErrCodeDeletion     Code = "RUNSPACE_DELETION_FAILED"
	ErrCodeTransport    Code = "TRANSPORT_ERROR"
	ErrCodeScriptFailed Code = "SCRIPT_FAILED"

	ErrCodeConfigInvalid Code = "CONFIG_INVALID"
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
)

// Error is a coded error with optional structured details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Detail returns a detail value, or nil.
func (e *Error) Detail(key string) any {
	if e.Details == nil {
		return nil
	}
	return e.Details[key]
}

// New creates an *Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. A nil err yields a plain New.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether any *Error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
