package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/srstest"
)

func newClient(t *testing.T, srv *srstest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *Client) {
	t.Helper()
	cred, err := objects.NewPasswordCredential(srstest.DefaultUser, srstest.DefaultPassword)
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background(), cred))
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"srs.example.com", "https://srs.example.com", false},
		{"srs.example.com:8443/", "https://srs.example.com:8443", false},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080", false},
		{" https://srs.example.com/ ", "https://srs.example.com", false},
		{"", "", true},
		{"ftp://srs.example.com", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New(Config{BaseURL: ""})
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeInvalidInput))
}

func TestAuthenticate(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)

	assert.False(t, c.Authenticated())
	login(t, c)
	assert.True(t, c.Authenticated())
	assert.Equal(t, srv.APIKey(), c.key())
	assert.Equal(t, 1, srv.Counters().Logins)
}

func TestAuthenticateBadPassword(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)

	cred, err := objects.NewPasswordCredential(srstest.DefaultUser, "wrong")
	require.NoError(t, err)

	err = c.Authenticate(context.Background(), cred)
	require.Error(t, err)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeAuth))

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 401, serr.Status)
	require.NotNil(t, serr.Details)
	assert.Equal(t, "invalid credentials", serr.Details.Message)
	assert.False(t, c.Authenticated())
	assert.Equal(t, 1, srv.Counters().FailedLogins)
}

func TestAuthenticateToken(t *testing.T) {
	srv := srstest.New(t, srstest.Options{APIKey: "pre-issued"})
	c := newClient(t, srv)

	cred, err := objects.NewTokenCredential("pre-issued")
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background(), cred))

	_, err = c.ListRunspaces(context.Background())
	require.NoError(t, err)
	assert.Zero(t, srv.Counters().Logins)
}

func TestAuthenticateClearedCredential(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)

	cred, err := objects.NewPasswordCredential(srstest.DefaultUser, srstest.DefaultPassword)
	require.NoError(t, err)
	cred.Clear()

	err = c.Authenticate(context.Background(), cred)
	assert.ErrorIs(t, err, objects.ErrCleared)
	assert.Zero(t, srv.Counters().Logins)
}

func TestUnauthenticatedRequest(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)

	_, err := c.GetRunspace(context.Background(), "rs-1")
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeAuth))
	assert.Equal(t, 1, srv.Counters().Unauthorized)
}

func TestRunspaceLifecycle(t *testing.T) {
	srv := srstest.New(t, srstest.Options{
		RunspaceStates: []messages.RunspaceState{messages.RunspaceCreating, messages.RunspaceReady},
	})
	c := newClient(t, srv)
	login(t, c)
	ctx := context.Background()

	rs, err := c.CreateRunspace(ctx, messages.Runspace{Name: "MyPSRunspace", RunVCConnectionScript: true})
	require.NoError(t, err)
	assert.NotEmpty(t, rs.ID)
	assert.Equal(t, messages.RunspaceCreating, rs.State)
	assert.Equal(t, "MyPSRunspace", rs.Name)
	assert.NotNil(t, rs.CreationTime)

	got, err := c.GetRunspace(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, messages.RunspaceCreating, got.State)

	got, err = c.GetRunspace(ctx, rs.ID)
	require.NoError(t, err)
	assert.Equal(t, messages.RunspaceReady, got.State)

	list, err := c.ListRunspaces(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.DeleteRunspace(ctx, rs.ID))
	assert.Zero(t, srv.LiveRunspaces())

	created := srv.Created()
	require.Len(t, created, 1)
	assert.True(t, created[0].RunVCConnectionScript)
}

func TestNotFoundIsTransportError(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)
	login(t, c)

	err := c.DeleteRunspace(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeTransport))

	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 404, serr.Status)
	assert.Contains(t, err.Error(), "runspace not found")
}

func TestScriptExecutionLifecycle(t *testing.T) {
	srv := srstest.New(t, srstest.Options{
		Script: srstest.Behavior{
			States: []messages.ScriptExecutionState{messages.ScriptRunning, messages.ScriptSuccess},
			Output: []string{"line 1", "line 2"},
			Streams: map[messages.StreamType][]messages.StreamRecord{
				messages.StreamWarning: {{Message: "careful"}},
			},
		},
	})
	c := newClient(t, srv)
	login(t, c)
	ctx := context.Background()

	rs, err := c.CreateRunspace(ctx, messages.Runspace{Name: "rs"})
	require.NoError(t, err)

	se, err := c.CreateScriptExecution(ctx, messages.ScriptExecution{
		RunspaceID:       rs.ID,
		Name:             "MyScript",
		Script:           "Get-VM -Name $name",
		ScriptParameters: []messages.ScriptParameter{{Name: "name", Value: "vm-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, messages.ScriptRunning, se.State)

	got, err := c.GetScriptExecution(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, messages.ScriptRunning, got.State)

	got, err = c.GetScriptExecution(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, messages.ScriptSuccess, got.State)
	assert.NotNil(t, got.EndTime)

	out, err := c.GetScriptExecutionOutput(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 1", "line 2"}, out)

	warnings, err := c.GetScriptExecutionStream(ctx, se.ID, messages.StreamWarning)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "careful", warnings[0].Message)

	errs, err := c.GetScriptExecutionStream(ctx, se.ID, messages.StreamError)
	require.NoError(t, err)
	assert.NotNil(t, errs)
	assert.Empty(t, errs)

	list, err := c.ListScriptExecutions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	submitted := srv.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "Get-VM -Name $name", submitted[0].Script)
	require.Len(t, submitted[0].ScriptParameters, 1)
	assert.Equal(t, "vm-1", submitted[0].ScriptParameters[0].Value)
}

func TestCancelScriptExecution(t *testing.T) {
	srv := srstest.New(t, srstest.Options{
		Script: srstest.Behavior{States: []messages.ScriptExecutionState{messages.ScriptRunning}},
	})
	c := newClient(t, srv)
	login(t, c)
	ctx := context.Background()

	rs, err := c.CreateRunspace(ctx, messages.Runspace{})
	require.NoError(t, err)
	se, err := c.CreateScriptExecution(ctx, messages.ScriptExecution{RunspaceID: rs.ID, Script: "Start-Sleep 100"})
	require.NoError(t, err)

	require.NoError(t, c.CancelScriptExecution(ctx, se.ID))

	got, err := c.GetScriptExecution(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, messages.ScriptCanceled, got.State)
	assert.NotEmpty(t, got.Reason)
	assert.Equal(t, 1, srv.Counters().Cancels)
}

func TestLogout(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)

	require.NoError(t, c.Logout(context.Background()))
	assert.Zero(t, srv.Counters().Logouts)

	login(t, c)
	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, c.Authenticated())
	assert.Equal(t, 1, srv.Counters().Logouts)
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv)
	login(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListRunspaces(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, srv.Counters().RunspaceLists)
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.ListRunspaces(context.Background())
	require.Error(t, err)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeTransport))
}

func TestRequestsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := srstest.New(t, srstest.Options{})
	c := newClient(t, srv, WithLogger(zap.New(core)))
	login(t, c)

	_, err := c.ListRunspaces(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("request").FilterField(zap.String("op", "GET /api/runspaces")).All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 200, entries[0].ContextMap()["status"])
}
