package errors

import (
	"fmt"
	"time"
)

// AuthFailed reports a rejected login or API key.
func AuthFailed(err error) *Error {
	return Wrap(err, ErrCodeAuth, "authentication failed")
}

// CreationFailed reports a runspace that ended in the Error state.
// detail is the server-reported reason and is kept verbatim for the operator.
func CreationFailed(runspaceID, detail string) *Error {
	return New(ErrCodeCreation, fmt.Sprintf("runspace %s failed to start", runspaceID)).
		WithDetail("runspace_id", runspaceID).
		WithDetail("reason", detail)
}

// SubmissionRejected reports a local precondition violation when submitting a script.
func SubmissionRejected(err error, runspaceID string) *Error {
	return Wrap(err, ErrCodeSubmission, "script submission rejected").
		WithDetail("runspace_id", runspaceID)
}

// Timeout reports a poll loop that hit its bound before reaching a terminal state.
func Timeout(err error, what string, waited time.Duration, attempts int) *Error {
	return Wrap(err, ErrCodeTimeout, fmt.Sprintf("timed out waiting for %s", what)).
		WithDetail("waited", waited.Round(time.Millisecond)).
		WithDetail("attempts", attempts)
}

// DeletionFailed reports a runspace that could not be released.
func DeletionFailed(err error, runspaceID string) *Error {
	return Wrap(err, ErrCodeDeletion, "runspace deletion failed").
		WithDetail("runspace_id", runspaceID)
}

// Transport reports a failed request.
func Transport(err error, op string) *Error {
	return Wrap(err, ErrCodeTransport, op)
}

// ScriptFailed reports a script execution that ended in Error or Canceled.
func ScriptFailed(executionID, state, reason string) *Error {
	return New(ErrCodeScriptFailed, fmt.Sprintf("script execution %s", state)).
		WithDetail("execution_id", executionID).
		WithDetail("reason", reason)
}

// ConfigInvalid reports an invalid configuration value.
func ConfigInvalid(field, reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s: %s", field, reason)).
		WithDetail("field", field)
}

// InvalidInput reports bad caller input such as missing CLI arguments.
func InvalidInput(reason string) *Error {
	return New(ErrCodeInvalidInput, reason)
}

// Reason returns the "reason" detail of err's outermost *Error, or "".
func Reason(err error) string {
	e, ok := As(err)
	if !ok {
		return ""
	}
	if s, ok := e.Detail("reason").(string); ok {
		return s
	}
	return ""
}
