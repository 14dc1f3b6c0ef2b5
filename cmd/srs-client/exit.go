package main

import (
	"context"
	"errors"

	srserrors "github.com/smnsjas/go-srsclient/errors"
)

// Exit statuses.
const (
	exitOK          = 0
	exitUsage       = 2
	exitCreation    = 3
	exitScript      = 4
	exitTimeout     = 5
	exitAuth        = 6
	exitSubmission  = 7
	exitUnexpected  = 100
	exitInterrupted = 130
)

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}

	switch srserrors.CodeOf(err) {
	case srserrors.ErrCodeAuth:
		return exitAuth
	case srserrors.ErrCodeCreation:
		return exitCreation
	case srserrors.ErrCodeSubmission:
		return exitSubmission
	case srserrors.ErrCodeTimeout:
		return exitTimeout
	case srserrors.ErrCodeScriptFailed:
		return exitScript
	case srserrors.ErrCodeConfigInvalid, srserrors.ErrCodeInvalidInput:
		return exitUsage
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return exitTimeout
	}
	return exitUnexpected
}

// rendered reports whether err was already reported on stdout.
func rendered(err error) bool {
	return srserrors.Is(err, srserrors.ErrCodeCreation) || srserrors.Is(err, srserrors.ErrCodeScriptFailed)
}
