// Package srstest runs an in-process fake of the SRS REST API for tests.
//
// The fake keeps runspaces and script executions in memory and replays
// scripted state sequences on every poll, so a test can describe exactly what
// the client will observe:
//
//	srv := srstest.New(t, srstest.Options{
//		RunspaceStates: []messages.RunspaceState{messages.RunspaceCreating, messages.RunspaceReady},
//		Script:         srstest.Behavior{States: []messages.ScriptExecutionState{messages.ScriptRunning, messages.ScriptSuccess}},
//	})
//
// The last state of a sequence repeats once reached. Every request is
// counted so tests can assert on call counts.
package srstest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/google/uuid"

	"github.com/smnsjas/go-srsclient/messages"
)

// Default credentials accepted by the fake.
const (
	DefaultUser     = "admin"
	DefaultPassword = "secret"
)

// Behavior scripts the life of one script execution.
type Behavior struct {
	// States is returned by successive GETs. Defaults to a single Success.
	States  []messages.ScriptExecutionState
	Reason  string
	Output  []string
	Streams map[messages.StreamType][]messages.StreamRecord
}

// Options configures the fake.
type Options struct {
	Username string
	Password string
	// APIKey is issued on login. Defaults to a random UUID.
	APIKey string

	// RunspaceStates is returned by successive runspace GETs. Defaults to Ready.
	RunspaceStates []messages.RunspaceState
	// RunspaceError is attached once a runspace reports Error.
	RunspaceError *messages.ErrorDetails

	// Script applies to every submitted script without an entry in Scripts.
	Script Behavior
	// Scripts overrides Script keyed by script text.
	Scripts map[string]Behavior

	// DeleteStatus, when non-zero, is returned by every runspace DELETE.
	DeleteStatus int
	// SubmitStatus, when non-zero, is returned by every script submission.
	SubmitStatus int
}

// Counters records how often each endpoint was called.
type Counters struct {
	Logins           int
	FailedLogins     int
	Logouts          int
	RunspaceCreates  int
	RunspaceGets     int
	RunspaceLists    int
	RunspaceDeletes  int
	ExecutionCreates int
	ExecutionGets    int
	ExecutionLists   int
	OutputGets       int
	StreamGets       int
	Cancels          int
	Unauthorized     int
}

type runspace struct {
	rec  messages.Runspace
	gets int
}

type execution struct {
	rec      messages.ScriptExecution
	behavior Behavior
	gets     int
	canceled bool
}

// Server is a running fake.
type Server struct {
	// URL is the base URL, e.g. http://127.0.0.1:41234.
	URL string

	app  *fiber.App
	opts Options

	mu         sync.Mutex
	counters   Counters
	runspaces  map[string]*runspace
	executions map[string]*execution
	submitted  []messages.ScriptExecution
	created    []messages.Runspace
}

// New starts a fake server and stops it when the test ends.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.Username == "" {
		opts.Username = DefaultUser
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.APIKey == "" {
		opts.APIKey = uuid.NewString()
	}
	if len(opts.RunspaceStates) == 0 {
		opts.RunspaceStates = []messages.RunspaceState{messages.RunspaceReady}
	}

	s := &Server{
		opts:       opts,
		runspaces:  make(map[string]*runspace),
		executions: make(map[string]*execution),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	s.routes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("srstest: listen: %v", err)
	}
	s.URL = "http://" + ln.Addr().String()

	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })

	return s
}

// Counters returns a snapshot of the call counters.
func (s *Server) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Submitted returns every script execution request received, in order.
func (s *Server) Submitted() []messages.ScriptExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.ScriptExecution(nil), s.submitted...)
}

// Created returns every runspace create request received, in order.
func (s *Server) Created() []messages.Runspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.Runspace(nil), s.created...)
}

// LiveRunspaces returns the number of runspaces not yet deleted.
func (s *Server) LiveRunspaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runspaces)
}

// APIKey returns the key issued on login.
func (s *Server) APIKey() string {
	return s.opts.APIKey
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Post("/auth/login", basicauth.New(basicauth.Config{
		Users: map[string]string{s.opts.Username: s.opts.Password},
		Unauthorized: func(c *fiber.Ctx) error {
			s.count(func(n *Counters) { n.FailedLogins++ })
			return fail(c, fiber.StatusUnauthorized, "invalid credentials")
		},
	}), s.login)

	secured := api.Group("", s.requireAPIKey)
	secured.Post("/auth/logout", s.logout)

	secured.Post("/runspaces", s.createRunspace)
	secured.Get("/runspaces", s.listRunspaces)
	secured.Get("/runspaces/:id", s.getRunspace)
	secured.Delete("/runspaces/:id", s.deleteRunspace)

	secured.Post("/script-executions", s.createExecution)
	secured.Get("/script-executions", s.listExecutions)
	secured.Get("/script-executions/:id", s.getExecution)
	secured.Post("/script-executions/:id/cancel", s.cancelExecution)
	secured.Get("/script-executions/:id/output", s.getOutput)
	secured.Get("/script-executions/:id/streams/:stream", s.getStream)
}

func (s *Server) count(fn func(*Counters)) {
	s.mu.Lock()
	fn(&s.counters)
	s.mu.Unlock()
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(messages.ErrorDetails{Code: status, Message: msg})
}

func (s *Server) requireAPIKey(c *fiber.Ctx) error {
	if c.Get(messages.APIKeyHeader) != s.opts.APIKey {
		s.count(func(n *Counters) { n.Unauthorized++ })
		return fail(c, fiber.StatusUnauthorized, "missing or invalid api key")
	}
	return c.Next()
}

func (s *Server) login(c *fiber.Ctx) error {
	s.count(func(n *Counters) { n.Logins++ })
	c.Set(messages.APIKeyHeader, s.opts.APIKey)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) logout(c *fiber.Ctx) error {
	s.count(func(n *Counters) { n.Logouts++ })
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) createRunspace(c *fiber.Ctx) error {
	var req messages.Runspace
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	rs := messages.Runspace{
		ID:                    uuid.NewString(),
		Name:                  req.Name,
		State:                 messages.RunspaceCreating,
		RunVCConnectionScript: req.RunVCConnectionScript,
		CreationTime:          messages.NewTimestamp(time.Now().UTC()),
	}

	s.mu.Lock()
	s.counters.RunspaceCreates++
	s.created = append(s.created, req)
	s.runspaces[rs.ID] = &runspace{rec: rs}
	s.mu.Unlock()

	return c.Status(fiber.StatusAccepted).JSON(rs)
}

// observe advances the runspace through its scripted states.
func (s *Server) observe(r *runspace) messages.Runspace {
	states := s.opts.RunspaceStates
	i := r.gets
	if i >= len(states) {
		i = len(states) - 1
	}
	r.gets++
	r.rec.State = states[i]
	if r.rec.State == messages.RunspaceError {
		r.rec.ErrorDetails = s.opts.RunspaceError
		if r.rec.ErrorDetails == nil {
			r.rec.ErrorDetails = &messages.ErrorDetails{Code: 500, Message: "runspace creation failed"}
		}
	}
	return r.rec
}

func (s *Server) getRunspace(c *fiber.Ctx) error {
	s.mu.Lock()
	s.counters.RunspaceGets++
	r, ok := s.runspaces[c.Params("id")]
	var rec messages.Runspace
	if ok {
		rec = s.observe(r)
	}
	s.mu.Unlock()

	if !ok {
		return fail(c, fiber.StatusNotFound, "runspace not found")
	}
	return c.JSON(rec)
}

func (s *Server) listRunspaces(c *fiber.Ctx) error {
	s.mu.Lock()
	s.counters.RunspaceLists++
	list := make([]messages.Runspace, 0, len(s.runspaces))
	for _, r := range s.runspaces {
		list = append(list, r.rec)
	}
	s.mu.Unlock()
	return c.JSON(list)
}

func (s *Server) deleteRunspace(c *fiber.Ctx) error {
	id := c.Params("id")

	s.mu.Lock()
	s.counters.RunspaceDeletes++
	_, ok := s.runspaces[id]
	if ok && s.opts.DeleteStatus == 0 {
		delete(s.runspaces, id)
	}
	s.mu.Unlock()

	if s.opts.DeleteStatus != 0 {
		return fail(c, s.opts.DeleteStatus, "runspace deletion failed")
	}
	if !ok {
		return fail(c, fiber.StatusNotFound, "runspace not found")
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) behavior(script string) Behavior {
	b, ok := s.opts.Scripts[script]
	if !ok {
		b = s.opts.Script
	}
	if len(b.States) == 0 {
		b.States = []messages.ScriptExecutionState{messages.ScriptSuccess}
	}
	return b
}

func (s *Server) createExecution(c *fiber.Ctx) error {
	var req messages.ScriptExecution
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters.ExecutionCreates++
	s.submitted = append(s.submitted, req)

	if s.opts.SubmitStatus != 0 {
		return fail(c, s.opts.SubmitStatus, "script execution rejected")
	}
	if _, ok := s.runspaces[req.RunspaceID]; !ok {
		return fail(c, fiber.StatusNotFound, "runspace not found")
	}

	rec := req
	rec.ID = uuid.NewString()
	rec.State = messages.ScriptRunning
	rec.StartTime = messages.NewTimestamp(time.Now().UTC())
	s.executions[rec.ID] = &execution{rec: rec, behavior: s.behavior(req.Script)}

	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// observe advances the execution through its scripted states.
func (e *execution) observe() messages.ScriptExecution {
	if e.canceled {
		e.rec.State = messages.ScriptCanceled
	} else {
		states := e.behavior.States
		i := e.gets
		if i >= len(states) {
			i = len(states) - 1
		}
		e.rec.State = states[i]
	}
	e.gets++

	if e.rec.State.Terminal() && e.rec.EndTime == nil {
		e.rec.EndTime = messages.NewTimestamp(time.Now().UTC())
	}
	switch e.rec.State {
	case messages.ScriptError:
		e.rec.Reason = e.behavior.Reason
	case messages.ScriptCanceled:
		e.rec.Reason = "Script execution was canceled"
	}
	return e.rec
}

func (s *Server) lookup(c *fiber.Ctx, bump func(*Counters)) (*execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bump(&s.counters)
	e, ok := s.executions[c.Params("id")]
	if !ok {
		return nil, fail(c, fiber.StatusNotFound, "script execution not found")
	}
	return e, nil
}

func (s *Server) getExecution(c *fiber.Ctx) error {
	e, err := s.lookup(c, func(n *Counters) { n.ExecutionGets++ })
	if e == nil {
		return err
	}
	s.mu.Lock()
	rec := e.observe()
	s.mu.Unlock()
	return c.JSON(rec)
}

func (s *Server) listExecutions(c *fiber.Ctx) error {
	s.mu.Lock()
	s.counters.ExecutionLists++
	list := make([]messages.ScriptExecution, 0, len(s.executions))
	for _, e := range s.executions {
		list = append(list, e.rec)
	}
	s.mu.Unlock()
	return c.JSON(list)
}

func (s *Server) cancelExecution(c *fiber.Ctx) error {
	e, err := s.lookup(c, func(n *Counters) { n.Cancels++ })
	if e == nil {
		return err
	}
	s.mu.Lock()
	if !e.rec.State.Terminal() {
		e.canceled = true
	}
	s.mu.Unlock()
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) getOutput(c *fiber.Ctx) error {
	e, err := s.lookup(c, func(n *Counters) { n.OutputGets++ })
	if e == nil {
		return err
	}
	out := e.behavior.Output
	if out == nil {
		out = []string{}
	}
	return c.JSON(out)
}

func (s *Server) getStream(c *fiber.Ctx) error {
	e, err := s.lookup(c, func(n *Counters) { n.StreamGets++ })
	if e == nil {
		return err
	}
	st, perr := messages.ParseStreamType(c.Params("stream"))
	if perr != nil {
		return fail(c, fiber.StatusBadRequest, perr.Error())
	}
	records := e.behavior.Streams[st]
	if records == nil {
		records = []messages.StreamRecord{}
	}
	return c.JSON(records)
}
