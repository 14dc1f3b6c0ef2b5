package srs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smnsjas/go-srsclient/client"
	"github.com/smnsjas/go-srsclient/config"
	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/host"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/pipeline"
	"github.com/smnsjas/go-srsclient/runspace"
)

// logoutTimeout bounds the best-effort logout after a run.
const logoutTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by every layer.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUI sets where results are rendered. The default discards them.
func WithUI(ui host.HostUI) Option {
	return func(c *Client) {
		if ui != nil {
			c.ui = ui
		}
	}
}

// WithSecurityEventCallback receives authentication failures and leaked
// runspaces.
func WithSecurityEventCallback(cb runspace.SecurityEventCallback) Option {
	return func(c *Client) {
		c.securityCallback = cb
	}
}

// Client runs scripts end to end.
type Client struct {
	cfg    *config.Config
	api    *client.Client
	logger *zap.Logger
	ui     host.HostUI

	securityCallback runspace.SecurityEventCallback

	manager *runspace.Manager
	runner  *pipeline.Runner
}

// Result describes a finished run.
type Result struct {
	RunID      string
	RunspaceID string
	Job        *pipeline.Job
	Output     *pipeline.Output
}

// New creates a client for the service at address. cfg must be valid; a nil
// cfg uses config.Default.
func New(address string, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	streams, err := cfg.StreamTypes()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: zap.NewNop(),
		ui:     host.NullHostUI{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.api, err = client.New(client.Config{
		BaseURL:            address,
		RequestTimeout:     cfg.Server.RequestTimeout,
		InsecureSkipVerify: cfg.Server.Insecure,
	}, client.WithLogger(c.logger.Named("http")))
	if err != nil {
		return nil, err
	}

	c.manager = runspace.NewManager(c.api)
	c.manager.SetLogger(c.logger.Named("runspace"))
	if c.securityCallback != nil {
		c.manager.SetSecurityEventCallback(c.securityCallback)
	}
	c.runner = pipeline.NewRunner(c.api,
		pipeline.WithStreams(streams...),
		pipeline.WithPollPolicy(cfg.JobPolicy()),
		pipeline.WithLogger(c.logger.Named("pipeline")),
	)
	return c, nil
}

// API returns the underlying HTTP client.
func (c *Client) API() *client.Client { return c.api }

// Manager returns the session manager.
func (c *Client) Manager() *runspace.Manager { return c.manager }

// Runner returns the job runner.
func (c *Client) Runner() *pipeline.Runner { return c.runner }

// Run executes script in a fresh runspace and renders the result.
//
// The credential is cleared once the runspace has been requested. A job that
// ends in Error or Cancelled yields the Result together with a SCRIPT_FAILED
// error. A runspace that fails to start is rendered and returned as
// RUNSPACE_CREATION_FAILED.
func (c *Client) Run(ctx context.Context, cred *objects.Credential, script pipeline.Script) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := c.logger.With(zap.String("run_id", res.RunID))
	logger.Info("run started", zap.String("server", c.api.BaseURL()))

	if script.Name == "" {
		script.Name = c.cfg.Script.Name
	}
	if script.OutputFormat == "" {
		script.OutputFormat = c.cfg.OutputFormat()
	}

	if c.cfg.Server.Logout {
		defer c.logout(ctx, logger)
	}

	err := c.manager.Use(ctx, cred, c.cfg.SessionConfig(), func(ctx context.Context, sess *runspace.Session) error {
		if cred != nil {
			cred.Clear()
		}
		res.RunspaceID = sess.ID()

		job, out, err := c.runner.Run(ctx, sess, script)
		res.Job, res.Output = job, out
		if err != nil {
			if job != nil && (ctx.Err() != nil || srserrors.Is(err, srserrors.ErrCodeTimeout)) {
				c.abandonJob(ctx, job, logger)
			}
			return err
		}

		if job.State() != pipeline.StateSuccess {
			host.RenderJobFailure(c.ui, job)
			return srserrors.ScriptFailed(job.ID(), job.State().String(), job.Reason())
		}
		host.RenderOutput(c.ui, out, c.runner.Streams())
		return nil
	})
	if cred != nil {
		cred.Clear()
	}

	if err != nil {
		if srserrors.Is(err, srserrors.ErrCodeCreation) {
			host.RenderCreationFailure(c.ui, srserrors.Reason(err))
		}
		logger.Warn("run failed", zap.String("code", string(srserrors.CodeOf(err))), zap.Error(err))
		return res, err
	}
	logger.Info("run finished", zap.String("job_id", res.Job.ID()))
	return res, nil
}

// abandonJob asks the service to stop a job the run stopped waiting for.
func (c *Client) abandonJob(ctx context.Context, job *pipeline.Job, logger *zap.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Runspace.CloseTimeout)
	defer cancel()
	if err := c.runner.Cancel(cctx, job); err != nil {
		logger.Warn("cancel failed", zap.String("job_id", job.ID()), zap.Error(err))
	}
}

func (c *Client) logout(ctx context.Context, logger *zap.Logger) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutTimeout)
	defer cancel()
	if err := c.api.Logout(lctx); err != nil {
		logger.Warn("logout failed", zap.Error(err))
	}
}

// Close releases the HTTP client.
func (c *Client) Close() error {
	return c.api.Close()
}
