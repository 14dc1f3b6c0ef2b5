// Package client is the HTTP capability of the SRS client.
//
// A Client authenticates once and then issues typed requests against the
// REST API. It is the only package that talks to the network; the session
// manager and job runner depend on small interfaces it satisfies.
//
// # Authentication
//
// Password credentials are exchanged for an API key at /api/auth/login using
// HTTP basic auth. The key arrives in the X-SRS-API-KEY response header and
// is attached to every later request. Token credentials skip the login call.
//
// # Errors
//
// Every failed request is returned as a coded error from package errors:
// 401 and 403 responses are AUTH_FAILED, everything else is TRANSPORT_ERROR.
// Both wrap a *StatusError when the server answered.
//
// Requests are not retried.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/objects"
)

// DefaultRequestTimeout bounds a single request.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the configuration for the HTTP client.
type Config struct {
	// BaseURL is the service root, e.g. "https://srs.example.com".
	// A bare host name is given the https scheme.
	BaseURL string

	// RequestTimeout bounds each request. Zero uses DefaultRequestTimeout.
	RequestTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is an authenticated SRS API client. It is safe for concurrent use.
type Client struct {
	baseURL  string
	timeout  time.Duration
	insecure bool
	agent    *fiber.Client
	logger   *zap.Logger

	mu     sync.RWMutex
	apiKey string

	closeOnce sync.Once
}

// New creates a client. It does not contact the server.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, srserrors.InvalidInput(err.Error())
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Client{
		baseURL:  base,
		timeout:  timeout,
		insecure: cfg.InsecureSkipVerify,
		agent:    fiber.AcquireClient(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL turns a server address into a base URL without a trailing slash.
func NormalizeBaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("server address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "https://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", addr)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticated reports whether an API key is held.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) setAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Authenticate obtains an API key for cred. A token credential is used as is.
// Login failures are AUTH_FAILED.
func (c *Client) Authenticate(ctx context.Context, cred *objects.Credential) error {
	if cred == nil {
		return srserrors.AuthFailed(fmt.Errorf("no credential"))
	}

	if cred.IsToken() {
		return cred.Token.Reveal(func(token string) error {
			if token == "" {
				return srserrors.AuthFailed(fmt.Errorf("empty api key"))
			}
			c.setAPIKey(token)
			return nil
		})
	}

	if cred.Password == nil {
		return srserrors.AuthFailed(fmt.Errorf("credential for %q has no password", cred.UserName))
	}

	return cred.Password.Reveal(func(password string) error {
		res, err := c.send(ctx, request{
			method: fiber.MethodPost,
			path:   messages.PathLogin,
			user:   cred.UserName,
			pass:   password,
			basic:  true,
			header: messages.APIKeyHeader,
		})
		if err != nil {
			return err
		}
		if res.header == "" {
			return srserrors.AuthFailed(fmt.Errorf("login response carried no %s header", messages.APIKeyHeader))
		}
		c.setAPIKey(res.header)
		c.logger.Debug("authenticated", zap.String("user", cred.UserName))
		return nil
	})
}

// Logout invalidates the API key on the server and forgets it locally.
// It is a no-op when not authenticated.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}
	err := c.Do(ctx, fiber.MethodPost, messages.PathLogout, nil, nil)
	c.setAPIKey("")
	return err
}

// Do sends a request with an optional JSON body and decodes a JSON response
// into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req := request{method: method, path: path}
	if body != nil {
		data, err := messages.Marshal(body)
		if err != nil {
			return srserrors.Transport(err, "encode "+method+" "+path)
		}
		req.body = data
	}

	res, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(res.body) == 0 {
		return nil
	}
	if err := messages.Unmarshal(res.body, out); err != nil {
		return srserrors.Transport(err, "decode "+method+" "+path)
	}
	return nil
}

type request struct {
	method string
	path   string
	body   []byte

	basic      bool
	user, pass string

	// header names a response header to capture.
	header string
}

type response struct {
	status int
	body   []byte
	header string
}

type outcome struct {
	res *response
	err error
}

// Close releases the underlying fiber client. The Client must not be used
// afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setAPIKey("")
		fiber.ReleaseClient(c.agent)
	})
	return nil
}

// send performs one request. The fiber agent has no context support, so the
// request runs in its own goroutine bounded by the request timeout and ctx
// only abandons the wait.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	op := req.method + " " + req.path
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		res, err := c.roundTrip(req)
		done <- outcome{res, err}
	}()

	var res *response
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			c.logger.Debug("request failed", zap.String("op", op), zap.Error(out.err))
			return nil, srserrors.Transport(out.err, op)
		}
		res = out.res
	}

	c.logger.Debug("request",
		zap.String("op", op),
		zap.Int("status", res.status),
		zap.Duration("elapsed", time.Since(start)))

	if res.status >= 200 && res.status < 300 {
		return res, nil
	}

	serr := &StatusError{Method: req.method, Path: req.path, Status: res.status}
	if len(res.body) > 0 {
		var details messages.ErrorDetails
		if messages.Unmarshal(res.body, &details) == nil && (details.Message != "" || details.Details != "") {
			serr.Details = &details
		}
	}
	if res.status == fiber.StatusUnauthorized || res.status == fiber.StatusForbidden {
		return nil, srserrors.AuthFailed(serr)
	}
	return nil, srserrors.Transport(serr, op)
}

func (c *Client) roundTrip(req request) (*response, error) {
	target := c.baseURL + req.path

	var agent *fiber.Agent
	switch req.method {
	case fiber.MethodGet:
		agent = c.agent.Get(target)
	case fiber.MethodPost:
		agent = c.agent.Post(target)
	case fiber.MethodDelete:
		agent = c.agent.Delete(target)
	case fiber.MethodPut:
		agent = c.agent.Put(target)
	default:
		return nil, fmt.Errorf("unsupported method %s", req.method)
	}

	agent.Timeout(c.timeout)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if c.insecure {
		agent.InsecureSkipVerify()
	}
	if req.basic {
		agent.BasicAuth(req.user, req.pass)
	} else if key := c.key(); key != "" {
		agent.Set(messages.APIKeyHeader, key)
	}
	if req.body != nil {
		agent.Body(req.body)
		agent.ContentType(fiber.MIMEApplicationJSON)
	}

	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)
	agent.SetResponse(resp)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	res := &response{status: status, body: body}
	if req.header != "" {
		res.header = string(resp.Header.Peek(req.header))
	}
	return res, nil
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Details *messages.ErrorDetails
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	if d := e.Details.String(); d != "" {
		msg += ": " + d
	}
	return msg
}
