package runspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/poll"
)

const (
	// DefaultName is the runspace name used when none is configured.
	DefaultName = "MyPSRunspace"
	// DefaultCreateTimeout bounds the wait for a runspace to leave Creating.
	DefaultCreateTimeout = 5 * time.Minute
	// DefaultCloseTimeout bounds the delete request issued by Close.
	DefaultCloseTimeout = 30 * time.Second
)

// API is the subset of the service client the manager needs.
type API interface {
	Authenticate(ctx context.Context, cred *objects.Credential) error
	CreateRunspace(ctx context.Context, req messages.Runspace) (*messages.Runspace, error)
	GetRunspace(ctx context.Context, id string) (*messages.Runspace, error)
	ListRunspaces(ctx context.Context) ([]messages.Runspace, error)
	DeleteRunspace(ctx context.Context, id string) error
}

// SessionConfig configures Open.
type SessionConfig struct {
	// Name is the runspace name. Empty uses DefaultName.
	Name string
	// RunVCConnectionScript asks the service to connect the runspace to
	// vCenter during setup.
	RunVCConnectionScript bool
	// Poll bounds the wait for the runspace to leave Creating.
	Poll poll.Policy
	// CloseTimeout bounds the delete request. Zero uses DefaultCloseTimeout.
	CloseTimeout time.Duration
}

// DefaultSessionConfig returns the configuration used by the CLI.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Name:                  DefaultName,
		RunVCConnectionScript: true,
		Poll:                  poll.Policy{Interval: poll.DefaultInterval, MaxWait: DefaultCreateTimeout},
		CloseTimeout:          DefaultCloseTimeout,
	}
}

// Manager opens and closes sessions.
type Manager struct {
	mu sync.RWMutex

	api              API
	logger           *zap.Logger
	securityCallback SecurityEventCallback
}

// NewManager creates a manager on top of api.
func NewManager(api API) *Manager {
	return &Manager{api: api, logger: zap.NewNop()}
}

// SetLogger sets the logger. A nil logger disables logging.
func (m *Manager) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

func (m *Manager) log() *zap.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Open authenticates, creates a runspace and waits until it leaves Creating.
//
// It makes exactly one authenticate call and one create call. A runspace
// that ends in Error is reported as RUNSPACE_CREATION_FAILED and no Session
// is returned.
func (m *Manager) Open(ctx context.Context, cred *objects.Credential, cfg SessionConfig) (*Session, error) {
	if err := cfg.Poll.Validate(); err != nil {
		return nil, srserrors.Wrap(err, srserrors.ErrCodeConfigInvalid, "runspace poll policy")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	logger := m.log()

	if err := m.api.Authenticate(ctx, cred); err != nil {
		if srserrors.Is(err, srserrors.ErrCodeAuth) {
			m.emitSecurityEvent("auth_failed", map[string]any{"user": credentialUser(cred)})
		}
		return nil, err
	}

	rs, err := m.api.CreateRunspace(ctx, messages.Runspace{
		Name:                  cfg.Name,
		RunVCConnectionScript: cfg.RunVCConnectionScript,
	})
	if err != nil {
		return nil, err
	}

	sess := newSessionFromWire(rs, cfg.CloseTimeout)
	logger = logger.With(zap.String("runspace_id", sess.ID()))
	logger.Info("runspace created", zap.String("name", sess.Name()))

	fetch := func(ctx context.Context) (*messages.Runspace, error) {
		got, err := m.api.GetRunspace(ctx, sess.ID())
		if err != nil {
			return nil, err
		}
		if err := sess.observe(got); err != nil {
			return nil, srserrors.Transport(err, "observe runspace")
		}
		logger.Debug("runspace polled", zap.String("state", string(got.State)))
		return got, nil
	}
	done := func(rs *messages.Runspace) bool { return !rs.State.Pending() }

	_, err = poll.Until(ctx, cfg.Poll, fetch, done)
	if err != nil {
		m.abandon(ctx, sess, logger)
		var timeout *poll.TimeoutError[*messages.Runspace]
		if errors.As(err, &timeout) {
			return nil, srserrors.Timeout(err, "runspace "+sess.ID(), timeout.Waited, timeout.Attempts)
		}
		return nil, err
	}

	if sess.State() == StateError {
		logger.Warn("runspace creation failed", zap.String("reason", sess.ErrorDetail()))
		return nil, srserrors.CreationFailed(sess.ID(), sess.ErrorDetail())
	}

	logger.Info("runspace ready")
	return sess, nil
}

// abandon deletes a runspace whose creation did not complete. The service has
// no other owner for it.
func (m *Manager) abandon(ctx context.Context, sess *Session, logger *zap.Logger) {
	logger.Warn("abandoning runspace that never became ready", zap.Stringer("state", sess.State()))
	if err := m.Close(ctx, sess); err != nil {
		logger.Debug("abandoned runspace not released", zap.Error(err))
	}
}

// Close deletes the session's runspace. Only the first call sends a request;
// later calls return nil.
//
// The delete runs on a context detached from ctx's cancellation and bounded by
// the session's close timeout, so cleanup still happens after the caller was
// cancelled. A failure is logged as a leaked runspace and returned as
// RUNSPACE_DELETION_FAILED.
func (m *Manager) Close(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}

	var err error
	sess.closeOnce.Do(func() {
		err = m.delete(ctx, sess)
	})
	return err
}

func (m *Manager) delete(ctx context.Context, sess *Session) error {
	logger := m.log().With(zap.String("runspace_id", sess.ID()))

	prev := sess.State()
	if prev == StateError || prev == StateDeleted {
		return nil
	}
	sess.setState(StateDeleting)

	timeout := sess.closeTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := m.api.DeleteRunspace(dctx, sess.ID()); err != nil {
		logger.Warn("runspace leaked: delete failed", zap.Error(err))
		m.emitSecurityEvent("runspace_leaked", map[string]any{
			"runspace_id": sess.ID(),
			"error":       err.Error(),
		})
		return srserrors.DeletionFailed(err, sess.ID())
	}

	sess.setState(StateDeleted)
	logger.Info("runspace deleted")
	return nil
}

// Use opens a session, runs fn and closes the session on every exit path,
// including a panic in fn. Deletion failures are logged and dropped; fn's
// result is returned unchanged.
func (m *Manager) Use(ctx context.Context, cred *objects.Credential, cfg SessionConfig, fn func(context.Context, *Session) error) error {
	sess, err := m.Open(ctx, cred, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = m.Close(ctx, sess)
	}()
	return fn(ctx, sess)
}

// List returns the runspaces visible to the authenticated caller.
func (m *Manager) List(ctx context.Context) ([]messages.Runspace, error) {
	return m.api.ListRunspaces(ctx)
}

func credentialUser(cred *objects.Credential) string {
	if cred == nil {
		return ""
	}
	if cred.IsToken() {
		return "<token>"
	}
	return cred.UserName
}
