package runspace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smnsjas/go-srsclient/messages"
)

var (
	// ErrNotReady is returned when an operation requires a Ready session.
	ErrNotReady = errors.New("runspace not ready")
	// ErrProtocolViolation is returned when the service reports an unknown
	// state or moves a runspace backwards.
	ErrProtocolViolation = errors.New("protocol violation")
)

// State represents the client-side state of a Session.
type State int

const (
	// StateCreating indicates the service is still setting the runspace up.
	StateCreating State = iota
	// StateReady indicates scripts can be submitted.
	StateReady
	// StateError indicates setup failed.
	StateError
	// StateDeleting indicates Close is in progress.
	StateDeleting
	// StateDeleted indicates the runspace was released.
	StateDeleted
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreating:
		return "Creating"
	case StateReady:
		return "Ready"
	case StateError:
		return "Error"
	case StateDeleting:
		return "Deleting"
	case StateDeleted:
		return "Deleted"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// stateFromWire maps a service state onto a session state.
func stateFromWire(s messages.RunspaceState) (State, error) {
	switch s {
	case messages.RunspaceCreating:
		return StateCreating, nil
	case messages.RunspaceReady, messages.RunspaceActive:
		return StateReady, nil
	case messages.RunspaceError:
		return StateError, nil
	}
	return 0, fmt.Errorf("%w: unknown runspace state %q", ErrProtocolViolation, s)
}

// Session is one remote runspace owned by the caller.
type Session struct {
	mu sync.RWMutex

	id        string
	name      string
	state     State
	detail    string
	createdAt time.Time

	closeTimeout time.Duration
	closeOnce    sync.Once
}

// NewSession returns a session for a runspace that already exists on the
// service. Sessions created by Manager.Open start in StateCreating.
func NewSession(id, name string, state State) *Session {
	return &Session{id: id, name: name, state: state, closeTimeout: DefaultCloseTimeout}
}

func newSessionFromWire(rs *messages.Runspace, closeTimeout time.Duration) *Session {
	s := &Session{
		id:           rs.ID,
		name:         rs.Name,
		state:        StateCreating,
		createdAt:    messages.TimeOf(rs.CreationTime),
		closeTimeout: closeTimeout,
	}
	return s
}

// ID returns the server-assigned runspace identifier.
func (s *Session) ID() string {
	return s.id
}

// Name returns the runspace name.
func (s *Session) Name() string {
	return s.name
}

// CreatedAt returns the creation time reported by the service, if any.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ErrorDetail returns the server-reported reason for StateError.
func (s *Session) ErrorDetail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detail
}

// Ready reports whether scripts can be submitted.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// observe applies a polled runspace record. Only forward transitions out of
// Creating are accepted.
func (s *Session) observe(rs *messages.Runspace) error {
	next, err := stateFromWire(rs.State)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreating && next != s.state {
		return fmt.Errorf("%w: runspace %s moved from %s to %s", ErrProtocolViolation, s.id, s.state, next)
	}
	s.state = next
	if next == StateError {
		s.detail = rs.ErrorDetails.Reason()
	}
	if s.createdAt.IsZero() {
		s.createdAt = messages.TimeOf(rs.CreationTime)
	}
	return nil
}

// setState transitions to a new state.
func (s *Session) setState(newState State) {
	s.mu.Lock()
	s.state = newState
	s.mu.Unlock()
}
