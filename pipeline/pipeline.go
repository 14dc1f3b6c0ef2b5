package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smnsjas/go-srsclient/messages"
)

var (
	// ErrNotTerminal is returned when output is requested for an unfinished job.
	ErrNotTerminal = errors.New("job has not finished")
	// ErrEmptyScript is returned when submitting a blank script.
	ErrEmptyScript = errors.New("script is empty")
	// ErrNoJob is returned when a nil job is passed to the runner.
	ErrNoJob = errors.New("no job")
	// ErrProtocolViolation is returned when the service reports an unknown
	// state or moves a finished job backwards.
	ErrProtocolViolation = errors.New("protocol violation")
)

// DefaultScriptName is used when a Script has no name.
const DefaultScriptName = "MyScript"

// State represents the state of a Job.
type State int

const (
	// StateRunning indicates the script is executing.
	StateRunning State = iota
	// StateSuccess indicates the script completed.
	StateSuccess
	// StateError indicates the script failed. Job.Reason carries the cause.
	StateError
	// StateCancelled indicates the script was cancelled.
	StateCancelled
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateSuccess:
		return "Success"
	case StateError:
		return "Error"
	case StateCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s != StateRunning
}

func stateFromWire(s messages.ScriptExecutionState) (State, error) {
	switch s {
	case messages.ScriptRunning, "":
		return StateRunning, nil
	case messages.ScriptSuccess:
		return StateSuccess, nil
	case messages.ScriptError:
		return StateError, nil
	case messages.ScriptCanceled:
		return StateCancelled, nil
	}
	return 0, fmt.Errorf("%w: unknown script execution state %q", ErrProtocolViolation, s)
}

// Parameter is a named script argument.
type Parameter struct {
	Name  string
	Value any
	// Script is a PowerShell expression evaluated by the service to produce
	// the value. It takes precedence over Value.
	Script string
}

// ParseParameter parses "name=value". The value is passed as a string.
func ParseParameter(s string) (Parameter, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Parameter{}, fmt.Errorf("invalid parameter %q: want name=value", s)
	}
	return Parameter{Name: name, Value: value}, nil
}

// Script is a unit of work to submit.
type Script struct {
	// Name labels the execution. Empty uses DefaultScriptName.
	Name string
	// Text is the PowerShell script body.
	Text       string
	Parameters []Parameter
	// OutputFormat selects how output objects are rendered. Empty lets the
	// service decide.
	OutputFormat messages.OutputObjectsFormat
}

// Job is an immutable snapshot of a script execution. Every observation
// produces a new Job.
type Job struct {
	id         string
	runspaceID string
	name       string
	script     string
	format     messages.OutputObjectsFormat
	state      State
	reason     string
	startedAt  time.Time
	endedAt    time.Time
}

func newJob(rec *messages.ScriptExecution) (*Job, error) {
	state, err := stateFromWire(rec.State)
	if err != nil {
		return nil, err
	}
	return &Job{
		id:         rec.ID,
		runspaceID: rec.RunspaceID,
		name:       rec.Name,
		script:     rec.Script,
		format:     rec.OutputObjectsFormat,
		state:      state,
		reason:     rec.Reason,
		startedAt:  messages.TimeOf(rec.StartTime),
		endedAt:    messages.TimeOf(rec.EndTime),
	}, nil
}

// ID returns the server-assigned execution identifier.
func (j *Job) ID() string { return j.id }

// RunspaceID returns the runspace the job runs in.
func (j *Job) RunspaceID() string { return j.runspaceID }

// Name returns the execution name.
func (j *Job) Name() string { return j.name }

// Script returns the submitted script body.
func (j *Job) Script() string { return j.script }

// OutputFormat returns the output format hint.
func (j *Job) OutputFormat() messages.OutputObjectsFormat { return j.format }

// State returns the observed state.
func (j *Job) State() State { return j.state }

// Reason returns the failure reason for Error and Cancelled jobs.
func (j *Job) Reason() string { return j.reason }

// StartedAt returns the start time reported by the service.
func (j *Job) StartedAt() time.Time { return j.startedAt }

// EndedAt returns the end time reported by the service. Zero while running.
func (j *Job) EndedAt() time.Time { return j.endedAt }

// Duration returns the execution time once both timestamps are known.
func (j *Job) Duration() time.Duration {
	if j.startedAt.IsZero() || j.endedAt.IsZero() {
		return 0
	}
	return j.endedAt.Sub(j.startedAt)
}
