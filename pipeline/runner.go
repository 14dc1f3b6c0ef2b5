package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"
	"go.uber.org/zap"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/poll"
	"github.com/smnsjas/go-srsclient/runspace"
)

// DefaultJobTimeout bounds the wait for a job to finish.
const DefaultJobTimeout = 30 * time.Minute

// API is the subset of the service client the runner needs.
type API interface {
	CreateScriptExecution(ctx context.Context, req messages.ScriptExecution) (*messages.ScriptExecution, error)
	GetScriptExecution(ctx context.Context, id string) (*messages.ScriptExecution, error)
	GetScriptExecutionOutput(ctx context.Context, id string) ([]string, error)
	GetScriptExecutionStream(ctx context.Context, id string, stream messages.StreamType) ([]messages.StreamRecord, error)
	CancelScriptExecution(ctx context.Context, id string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithStreams selects the streams FetchOutput retrieves. Duplicates are
// dropped. An empty list fetches no streams.
func WithStreams(streams ...messages.StreamType) Option {
	return func(r *Runner) {
		r.streams = slice.Unique(streams)
	}
}

// WithPollPolicy sets the policy used by Await.
func WithPollPolicy(p poll.Policy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner submits scripts and collects their results. It is safe for
// concurrent use by workflows that each own their session.
type Runner struct {
	api     API
	policy  poll.Policy
	streams []messages.StreamType
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]*Output
}

// NewRunner creates a runner. By default it polls every half second for up
// to DefaultJobTimeout and fetches only the error stream.
func NewRunner(api API, opts ...Option) *Runner {
	r := &Runner{
		api:     api,
		policy:  poll.Policy{Interval: poll.DefaultInterval, MaxWait: DefaultJobTimeout},
		streams: []messages.StreamType{messages.StreamError},
		logger:  zap.NewNop(),
		cache:   make(map[string]*Output),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Streams returns the streams FetchOutput retrieves.
func (r *Runner) Streams() []messages.StreamType {
	return append([]messages.StreamType(nil), r.streams...)
}

// Submit sends script to the session's runspace. The session must be Ready;
// otherwise Submit fails with SUBMISSION_REJECTED before any request.
func (r *Runner) Submit(ctx context.Context, sess *runspace.Session, script Script) (*Job, error) {
	if sess == nil {
		return nil, srserrors.SubmissionRejected(fmt.Errorf("%w: no session", runspace.ErrNotReady), "")
	}
	if state := sess.State(); state != runspace.StateReady {
		return nil, srserrors.SubmissionRejected(fmt.Errorf("%w: session is %s", runspace.ErrNotReady, state), sess.ID())
	}
	if strutil.IsBlank(script.Text) {
		return nil, srserrors.SubmissionRejected(ErrEmptyScript, sess.ID())
	}

	name := script.Name
	if name == "" {
		name = DefaultScriptName
	}

	req := messages.ScriptExecution{
		RunspaceID:          sess.ID(),
		Name:                name,
		Script:              script.Text,
		OutputObjectsFormat: script.OutputFormat,
		ScriptParameters: slice.Map(script.Parameters, func(_ int, p Parameter) messages.ScriptParameter {
			return messages.ScriptParameter{Name: p.Name, Value: p.Value, Script: p.Script}
		}),
	}

	rec, err := r.api.CreateScriptExecution(ctx, req)
	if err != nil {
		return nil, err
	}
	job, err := newJob(rec)
	if err != nil {
		return nil, srserrors.Transport(err, "observe script execution")
	}

	r.logger.Info("script submitted",
		zap.String("runspace_id", sess.ID()),
		zap.String("job_id", job.ID()),
		zap.String("name", name))
	return job, nil
}

// Await polls job until it leaves Running. Error and Cancelled jobs are
// returned without an error. An already terminal job is returned as is.
func (r *Runner) Await(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, srserrors.Wrap(ErrNoJob, srserrors.ErrCodeInvalidInput, "await")
	}
	if job.State().Terminal() {
		return job, nil
	}
	if err := r.policy.Validate(); err != nil {
		return nil, srserrors.Wrap(err, srserrors.ErrCodeConfigInvalid, "job poll policy")
	}

	logger := r.logger.With(zap.String("job_id", job.ID()))

	fetch := func(ctx context.Context) (*Job, error) {
		rec, err := r.api.GetScriptExecution(ctx, job.ID())
		if err != nil {
			return nil, err
		}
		next, err := newJob(rec)
		if err != nil {
			return nil, srserrors.Transport(err, "observe script execution")
		}
		logger.Debug("job polled", zap.Stringer("state", next.State()))
		return next, nil
	}
	done := func(j *Job) bool { return j.State().Terminal() }

	final, err := poll.Until(ctx, r.policy, fetch, done)
	if err != nil {
		var timeout *poll.TimeoutError[*Job]
		if errors.As(err, &timeout) {
			return nil, srserrors.Timeout(err, "script execution "+job.ID(), timeout.Waited, timeout.Attempts)
		}
		return nil, err
	}

	fields := []zap.Field{zap.Stringer("state", final.State()), zap.Duration("duration", final.Duration())}
	if final.State() == StateSuccess {
		logger.Info("job finished", fields...)
	} else {
		logger.Warn("job finished", append(fields, zap.String("reason", final.Reason()))...)
	}
	return final, nil
}

// FetchOutput retrieves the output of a terminal job. Unfinished jobs are
// rejected without a request. Results are cached per job and every call
// gets a private copy.
func (r *Runner) FetchOutput(ctx context.Context, job *Job) (*Output, error) {
	if job == nil {
		return nil, srserrors.Wrap(ErrNoJob, srserrors.ErrCodeInvalidInput, "fetch output")
	}
	if !job.State().Terminal() {
		return nil, srserrors.Wrap(
			fmt.Errorf("%w: job %s is %s", ErrNotTerminal, job.ID(), job.State()),
			srserrors.ErrCodeInvalidInput, "fetch output")
	}

	r.mu.Lock()
	cached, ok := r.cache[job.ID()]
	r.mu.Unlock()
	if ok {
		return cached.clone(), nil
	}

	lines, err := r.api.GetScriptExecutionOutput(ctx, job.ID())
	if err != nil {
		return nil, err
	}

	out := &Output{JobID: job.ID(), Lines: lines, Records: []Record{}}
	for _, st := range r.streams {
		recs, err := r.api.GetScriptExecutionStream(ctx, job.ID(), st)
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, toRecords(st, recs)...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[job.ID()]; ok {
		return cached.clone(), nil
	}
	r.cache[job.ID()] = out
	return out.clone(), nil
}

// Cancel asks the service to stop job. It is a no-op for terminal jobs.
func (r *Runner) Cancel(ctx context.Context, job *Job) error {
	if job == nil {
		return srserrors.Wrap(ErrNoJob, srserrors.ErrCodeInvalidInput, "cancel")
	}
	if job.State().Terminal() {
		return nil
	}
	r.logger.Info("cancelling job", zap.String("job_id", job.ID()))
	return r.api.CancelScriptExecution(ctx, job.ID())
}

// Run submits script, waits for it and fetches its output regardless of the
// final state. When the wait fails the submitted job is returned with the
// error so the caller can cancel it.
func (r *Runner) Run(ctx context.Context, sess *runspace.Session, script Script) (*Job, *Output, error) {
	job, err := r.Submit(ctx, sess, script)
	if err != nil {
		return nil, nil, err
	}
	final, err := r.Await(ctx, job)
	if err != nil {
		return job, nil, err
	}
	out, err := r.FetchOutput(ctx, final)
	if err != nil {
		return final, nil, err
	}
	return final, out, nil
}
