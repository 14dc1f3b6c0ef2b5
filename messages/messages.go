// Package messages defines the wire records of the SRS REST API.
//
// Every request and response body exchanged with the service is one of the
// JSON records below. They are plain data: no behaviour beyond state
// classification and parsing lives here.
//
// # Resources
//
//	/api/auth/login                                POST   (basic auth, returns X-SRS-API-KEY)
//	/api/auth/logout                               POST
//	/api/runspaces                                 POST   Runspace -> Runspace (202)
//	/api/runspaces                                 GET    -> []Runspace
//	/api/runspaces/{id}                            GET    -> Runspace
//	/api/runspaces/{id}                            DELETE
//	/api/script-executions                         POST   ScriptExecution -> ScriptExecution (202)
//	/api/script-executions                         GET    -> []ScriptExecution
//	/api/script-executions/{id}                    GET    -> ScriptExecution
//	/api/script-executions/{id}/cancel             POST
//	/api/script-executions/{id}/output             GET    -> []string
//	/api/script-executions/{id}/streams/{stream}   GET    -> []StreamRecord
//
// # Lifecycles
//
// A runspace is created in Creating and moves to Ready or Error. While it
// runs a script it reports Active:
//
//	Creating ──> Ready <──> Active
//	    └──────> Error
//
// A script execution starts Running and ends in exactly one of Success,
// Error or Canceled.
//
// Enumerations are transmitted as their string names. Timestamps are ISO 8601
// and may lack a zone designator; see Timestamp.
package messages

import (
	"fmt"
	"strings"
)

// APIKeyHeader carries the session token issued by the login endpoint.
const APIKeyHeader = "X-SRS-API-KEY"

// Resource paths.
const (
	PathLogin            = "/api/auth/login"
	PathLogout           = "/api/auth/logout"
	PathRunspaces        = "/api/runspaces"
	PathScriptExecutions = "/api/script-executions"
)

// RunspacePath returns the path of a single runspace.
func RunspacePath(id string) string {
	return PathRunspaces + "/" + id
}

// ScriptExecutionPath returns the path of a single script execution.
func ScriptExecutionPath(id string) string {
	return PathScriptExecutions + "/" + id
}

// OutputPath returns the path of a script execution's output objects.
func OutputPath(id string) string {
	return ScriptExecutionPath(id) + "/output"
}

// CancelPath returns the path that cancels a script execution.
func CancelPath(id string) string {
	return ScriptExecutionPath(id) + "/cancel"
}

// StreamPath returns the path of one data stream of a script execution.
func StreamPath(id string, stream StreamType) string {
	return ScriptExecutionPath(id) + "/streams/" + string(stream)
}

// RunspaceState is the server-side state of a runspace.
type RunspaceState string

const (
	RunspaceReady    RunspaceState = "Ready"
	RunspaceActive   RunspaceState = "Active"
	RunspaceCreating RunspaceState = "Creating"
	RunspaceError    RunspaceState = "Error"
)

// Pending reports whether the runspace is still being created.
func (s RunspaceState) Pending() bool {
	return s == RunspaceCreating
}

// Usable reports whether scripts can be submitted to the runspace.
func (s RunspaceState) Usable() bool {
	return s == RunspaceReady || s == RunspaceActive
}

// ScriptExecutionState is the server-side state of a script execution.
type ScriptExecutionState string

const (
	ScriptSuccess  ScriptExecutionState = "Success"
	ScriptError    ScriptExecutionState = "Error"
	ScriptRunning  ScriptExecutionState = "Running"
	ScriptCanceled ScriptExecutionState = "Canceled"
)

// Terminal reports whether the execution has finished.
func (s ScriptExecutionState) Terminal() bool {
	switch s {
	case ScriptSuccess, ScriptError, ScriptCanceled:
		return true
	}
	return false
}

// OutputObjectsFormat selects how the service renders output objects.
type OutputObjectsFormat string

const (
	OutputText OutputObjectsFormat = "Text"
	OutputJSON OutputObjectsFormat = "Json"
)

// ParseOutputObjectsFormat parses a format name case-insensitively.
// The empty string yields the empty format, which lets the server choose.
func ParseOutputObjectsFormat(s string) (OutputObjectsFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output objects format %q", s)
}

// StreamType names one of the PowerShell data streams kept per execution.
type StreamType string

const (
	StreamInformation StreamType = "information"
	StreamError       StreamType = "error"
	StreamWarning     StreamType = "warning"
	StreamDebug       StreamType = "debug"
	StreamVerbose     StreamType = "verbose"
)

// StreamTypes lists every stream in the order they are rendered.
var StreamTypes = []StreamType{StreamError, StreamWarning, StreamInformation, StreamVerbose, StreamDebug}

// ParseStreamType parses a stream name case-insensitively.
func ParseStreamType(s string) (StreamType, error) {
	st := StreamType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range StreamTypes {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stream type %q", s)
}

// ErrorDetails is the error body returned by the service for failed requests
// and attached to runspaces that failed to start.
type ErrorDetails struct {
	Code    int    `json:"code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

func (e *ErrorDetails) String() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Details != "":
		return e.Message + ": " + e.Details
	case e.Message != "":
		return e.Message
	}
	return e.Details
}

// Reason returns the details, or the message when there are none.
func (e *ErrorDetails) Reason() string {
	if e == nil {
		return ""
	}
	if e.Details != "" {
		return e.Details
	}
	return e.Message
}

// Runspace is both the create request and the resource representation.
type Runspace struct {
	ID                    string        `json:"id,omitempty"`
	Name                  string        `json:"name,omitempty"`
	State                 RunspaceState `json:"state,omitempty"`
	ErrorDetails          *ErrorDetails `json:"error_details,omitempty"`
	RunVCConnectionScript bool          `json:"run_vc_connection_script"`
	VCConnectionScriptID  string        `json:"vc_connection_script_id,omitempty"`
	CreationTime          *Timestamp    `json:"creation_time,omitempty"`
}

// ScriptParameter is a named script argument. Value is any JSON value; Script,
// when set, is a PowerShell expression evaluated server-side to produce it.
type ScriptParameter struct {
	Name   string `json:"name"`
	Value  any    `json:"value,omitempty"`
	Script string `json:"script,omitempty"`
}

// ScriptExecution is both the submit request and the resource representation.
type ScriptExecution struct {
	ID                  string               `json:"id,omitempty"`
	RunspaceID          string               `json:"runspace_id"`
	Name                string               `json:"name,omitempty"`
	Script              string               `json:"script"`
	ScriptParameters    []ScriptParameter    `json:"script_parameters,omitempty"`
	OutputObjectsFormat OutputObjectsFormat  `json:"output_objects_format,omitempty"`
	State               ScriptExecutionState `json:"state,omitempty"`
	Reason              string               `json:"reason,omitempty"`
	StartTime           *Timestamp           `json:"start_time,omitempty"`
	EndTime             *Timestamp           `json:"end_time,omitempty"`
}

// StreamRecord is one entry of a data stream.
type StreamRecord struct {
	Message string     `json:"message"`
	Time    *Timestamp `json:"time,omitempty"`
}
