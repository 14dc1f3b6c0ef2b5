package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/smnsjas/go-srsclient/client"
	srserrors "github.com/smnsjas/go-srsclient/errors"
	"github.com/smnsjas/go-srsclient/messages"
	"github.com/smnsjas/go-srsclient/objects"
	"github.com/smnsjas/go-srsclient/poll"
	"github.com/smnsjas/go-srsclient/runspace"
	"github.com/smnsjas/go-srsclient/srstest"
)

// mockAPI replays a fixed sequence of execution states and counts calls.
type mockAPI struct {
	mu sync.Mutex

	states  []messages.ScriptExecutionState
	reason  string
	lines   []string
	streams map[messages.StreamType][]messages.StreamRecord
	getErr  error

	submitted   []messages.ScriptExecution
	streamCalls []messages.StreamType
	gets        int
	outputs     int
	cancels     int
}

func (m *mockAPI) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted) + m.gets + m.outputs + m.cancels + len(m.streamCalls)
}

func (m *mockAPI) CreateScriptExecution(ctx context.Context, req messages.ScriptExecution) (*messages.ScriptExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, req)
	rec := req
	rec.ID = "se-1"
	rec.State = messages.ScriptRunning
	return &rec, nil
}

func (m *mockAPI) GetScriptExecution(ctx context.Context, id string) (*messages.ScriptExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	i := m.gets - 1
	if i >= len(m.states) {
		i = len(m.states) - 1
	}
	rec := &messages.ScriptExecution{ID: id, RunspaceID: "rs-1", State: m.states[i]}
	if rec.State == messages.ScriptError || rec.State == messages.ScriptCanceled {
		rec.Reason = m.reason
	}
	return rec, nil
}

func (m *mockAPI) GetScriptExecutionOutput(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs++
	return m.lines, nil
}

func (m *mockAPI) GetScriptExecutionStream(ctx context.Context, id string, st messages.StreamType) ([]messages.StreamRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamCalls = append(m.streamCalls, st)
	return m.streams[st], nil
}

func (m *mockAPI) CancelScriptExecution(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return nil
}

func fastPolicy() poll.Policy {
	return poll.Policy{Interval: time.Millisecond, MaxAttempts: 50}
}

func ready() *runspace.Session {
	return runspace.NewSession("rs-1", "test", runspace.StateReady)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Success", StateSuccess.String())
	assert.Equal(t, "Error", StateError.String())
	assert.Equal(t, "Cancelled", StateCancelled.String())
	assert.Equal(t, "Unknown(9)", State(9).String())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateCancelled.Terminal())
}

func TestParseParameter(t *testing.T) {
	p, err := ParseParameter("vmName=web-01")
	require.NoError(t, err)
	assert.Equal(t, Parameter{Name: "vmName", Value: "web-01"}, p)

	p, err = ParseParameter("filter=a=b")
	require.NoError(t, err)
	assert.Equal(t, "a=b", p.Value)

	p, err = ParseParameter("empty=")
	require.NoError(t, err)
	assert.Equal(t, "", p.Value)

	for _, bad := range []string{"novalue", "=x", ""} {
		_, err := ParseParameter(bad)
		assert.Error(t, err, bad)
	}
}

func TestSubmit(t *testing.T) {
	api := &mockAPI{}
	r := NewRunner(api)

	job, err := r.Submit(context.Background(), ready(), Script{
		Text:         "Get-VM -Name $name",
		Parameters:   []Parameter{{Name: "name", Value: "web-01"}},
		OutputFormat: messages.OutputJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "se-1", job.ID())
	assert.Equal(t, StateRunning, job.State())

	require.Len(t, api.submitted, 1)
	req := api.submitted[0]
	assert.Equal(t, "rs-1", req.RunspaceID)
	assert.Equal(t, DefaultScriptName, req.Name)
	assert.Equal(t, messages.OutputJSON, req.OutputObjectsFormat)
	assert.Equal(t, []messages.ScriptParameter{{Name: "name", Value: "web-01"}}, req.ScriptParameters)
}

func TestSubmitRequiresReadySession(t *testing.T) {
	for _, state := range []runspace.State{runspace.StateCreating, runspace.StateError, runspace.StateDeleting, runspace.StateDeleted} {
		t.Run(state.String(), func(t *testing.T) {
			api := &mockAPI{}
			_, err := NewRunner(api).Submit(context.Background(), runspace.NewSession("rs-1", "x", state), Script{Text: "Get-VM"})
			require.Error(t, err)
			assert.True(t, srserrors.Is(err, srserrors.ErrCodeSubmission))
			assert.ErrorIs(t, err, runspace.ErrNotReady)
			assert.Zero(t, api.calls(), "no request may be sent")
		})
	}

	api := &mockAPI{}
	_, err := NewRunner(api).Submit(context.Background(), nil, Script{Text: "Get-VM"})
	assert.ErrorIs(t, err, runspace.ErrNotReady)
	assert.Zero(t, api.calls())
}

func TestSubmitRejectsBlankScript(t *testing.T) {
	api := &mockAPI{}
	_, err := NewRunner(api).Submit(context.Background(), ready(), Script{Text: "  \n\t"})
	assert.ErrorIs(t, err, ErrEmptyScript)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeSubmission))
	assert.Zero(t, api.calls())
}

func TestAwait(t *testing.T) {
	tests := []struct {
		name   string
		states []messages.ScriptExecutionState
		want   State
		gets   int
	}{
		{"success", []messages.ScriptExecutionState{messages.ScriptRunning, messages.ScriptRunning, messages.ScriptSuccess}, StateSuccess, 3},
		{"error", []messages.ScriptExecutionState{messages.ScriptRunning, messages.ScriptError}, StateError, 2},
		{"cancelled", []messages.ScriptExecutionState{messages.ScriptCanceled}, StateCancelled, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{states: tt.states, reason: "boom"}
			r := NewRunner(api, WithPollPolicy(fastPolicy()))

			job, err := r.Submit(context.Background(), ready(), Script{Text: "x"})
			require.NoError(t, err)

			final, err := r.Await(context.Background(), job)
			require.NoError(t, err, "terminal outcomes are values, not errors")
			assert.Equal(t, tt.want, final.State())
			assert.Equal(t, tt.gets, api.gets)
			if tt.want != StateSuccess {
				assert.Equal(t, "boom", final.Reason())
			}
			assert.Equal(t, StateRunning, job.State(), "snapshots are immutable")
		})
	}
}

func TestAwaitTimeout(t *testing.T) {
	api := &mockAPI{states: []messages.ScriptExecutionState{messages.ScriptRunning}}
	r := NewRunner(api, WithPollPolicy(poll.Policy{Interval: time.Millisecond, MaxAttempts: 3}))

	job, err := r.Submit(context.Background(), ready(), Script{Text: "x"})
	require.NoError(t, err)

	_, err = r.Await(context.Background(), job)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeTimeout))
	assert.Equal(t, 3, api.gets)
}

func TestAwaitTerminalJobMakesNoCalls(t *testing.T) {
	api := &mockAPI{}
	job := &Job{id: "se-1", state: StateSuccess}
	got, err := NewRunner(api).Await(context.Background(), job)
	require.NoError(t, err)
	assert.Same(t, job, got)
	assert.Zero(t, api.calls())
}

func TestAwaitUnknownState(t *testing.T) {
	api := &mockAPI{states: []messages.ScriptExecutionState{"Paused"}}
	r := NewRunner(api, WithPollPolicy(fastPolicy()))
	_, err := r.Await(context.Background(), &Job{id: "se-1"})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, 1, api.gets)
}

func TestAwaitRejectsUnboundedPolicy(t *testing.T) {
	api := &mockAPI{}
	r := NewRunner(api, WithPollPolicy(poll.Policy{Interval: time.Second}))
	_, err := r.Await(context.Background(), &Job{id: "se-1"})
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeConfigInvalid))
	assert.Zero(t, api.calls())
}

func TestFetchOutputReturnsPrivateCopies(t *testing.T) {
	api := &mockAPI{
		lines:   []string{"Folder1", "Folder2"},
		streams: map[messages.StreamType][]messages.StreamRecord{messages.StreamError: {{Message: "e1"}}},
	}
	r := NewRunner(api)
	job := &Job{id: "se-1", state: StateSuccess}

	first, err := r.FetchOutput(context.Background(), job)
	require.NoError(t, err)
	first.Lines[0] = "changed"
	first.Records[0].Message = "changed"
	first.Records = append(first.Records, Record{Stream: messages.StreamError, Message: "extra"})

	second, err := r.FetchOutput(context.Background(), job)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"Folder1", "Folder2"}, second.Lines)
	assert.Equal(t, []string{"e1"}, second.Messages(messages.StreamError))
	assert.Equal(t, 1, api.outputs)
}

func TestNilJobIsRejected(t *testing.T) {
	api := &mockAPI{}
	r := NewRunner(api)

	_, err := r.Await(context.Background(), nil)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeInvalidInput))
	assert.ErrorIs(t, err, ErrNoJob)

	_, err = r.FetchOutput(context.Background(), nil)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeInvalidInput))

	err = r.Cancel(context.Background(), nil)
	assert.True(t, srserrors.Is(err, srserrors.ErrCodeInvalidInput))
	assert.Zero(t, api.calls())
}

func TestFetchOutputRequiresTerminalJob(t *testing.T) {
	api := &mockAPI{}
	_, err := NewRunner(api).FetchOutput(context.Background(), &Job{id: "se-1", state: StateRunning})
	assert.ErrorIs(t, err, ErrNotTerminal)
	assert.Zero(t, api.calls())
}

func TestFetchOutput(t *testing.T) {
	api := &mockAPI{
		lines: []string{"a", "b"},
		streams: map[messages.StreamType][]messages.StreamRecord{
			messages.StreamError:   {{Message: "e1"}, {Message: "e2"}},
			messages.StreamWarning: {{Message: "w1"}},
		},
	}
	r := NewRunner(api, WithStreams(messages.StreamError, messages.StreamWarning, messages.StreamError))
	assert.Equal(t, []messages.StreamType{messages.StreamError, messages.StreamWarning}, r.Streams())

	job := &Job{id: "se-1", state: StateError}
	out, err := r.FetchOutput(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Lines)
	assert.Equal(t, []string{"e1", "e2"}, out.Messages(messages.StreamError))
	assert.Equal(t, []string{"w1"}, out.Messages(messages.StreamWarning))
	assert.Empty(t, out.Messages(messages.StreamVerbose))
	assert.Equal(t, 1, api.outputs)
	assert.Equal(t, []messages.StreamType{messages.StreamError, messages.StreamWarning}, api.streamCalls)
}

func TestFetchOutputDefaultsToErrorStream(t *testing.T) {
	api := &mockAPI{}
	out, err := NewRunner(api).FetchOutput(context.Background(), &Job{id: "se-1", state: StateSuccess})
	require.NoError(t, err)
	assert.True(t, out.Empty())
	assert.Equal(t, []messages.StreamType{messages.StreamError}, api.streamCalls)
}

// TestProperty_FetchOutputIdempotent checks that any number of FetchOutput
// calls on a terminal job return identical content and hit the service once.
func TestProperty_FetchOutputIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.String()).Draw(t, "lines")
		msgs := rapid.SliceOf(rapid.String()).Draw(t, "errors")
		calls := rapid.IntRange(1, 5).Draw(t, "calls")

		records := make([]messages.StreamRecord, len(msgs))
		for i, m := range msgs {
			records[i] = messages.StreamRecord{Message: m}
		}
		api := &mockAPI{lines: lines, streams: map[messages.StreamType][]messages.StreamRecord{messages.StreamError: records}}
		r := NewRunner(api)
		job := &Job{id: "se-1", state: StateSuccess}

		first, err := r.FetchOutput(context.Background(), job)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		for i := 1; i < calls; i++ {
			again, err := r.FetchOutput(context.Background(), job)
			if err != nil {
				t.Fatalf("fetch %d: %v", i, err)
			}
			if !reflect.DeepEqual(again, first) {
				t.Fatalf("fetch %d returned different output", i)
			}
		}
		if api.outputs != 1 || len(api.streamCalls) != 1 {
			t.Fatalf("expected one output and one stream call, got %d and %d", api.outputs, len(api.streamCalls))
		}
		if len(first.Lines) != len(lines) || len(first.Messages(messages.StreamError)) != len(msgs) {
			t.Fatalf("content mismatch")
		}
	})
}

func TestCancel(t *testing.T) {
	api := &mockAPI{}
	r := NewRunner(api)

	require.NoError(t, r.Cancel(context.Background(), &Job{id: "se-1", state: StateSuccess}))
	assert.Zero(t, api.cancels)

	require.NoError(t, r.Cancel(context.Background(), &Job{id: "se-1", state: StateRunning}))
	assert.Equal(t, 1, api.cancels)
}

func TestRunFetchErrorIsFatal(t *testing.T) {
	api := &mockAPI{getErr: errors.New("reset")}
	job, out, err := NewRunner(api, WithPollPolicy(fastPolicy())).Run(context.Background(), ready(), Script{Text: "x"})
	assert.EqualError(t, err, "reset")
	assert.Equal(t, 1, api.gets)
	assert.Nil(t, out)
	require.NotNil(t, job)
	assert.Equal(t, StateRunning, job.State())
}

func TestJobDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	j := &Job{startedAt: start, endedAt: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, j.Duration())
	assert.Zero(t, (&Job{startedAt: start}).Duration())
}

func TestRunnerAgainstServer(t *testing.T) {
	srv := srstest.New(t, srstest.Options{
		RunspaceStates: []messages.RunspaceState{messages.RunspaceCreating, messages.RunspaceReady},
		Script: srstest.Behavior{
			States: []messages.ScriptExecutionState{messages.ScriptRunning, messages.ScriptRunning, messages.ScriptSuccess},
			Output: []string{"vm-01", "vm-02"},
		},
	})
	api, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	cred, err := objects.NewPasswordCredential(srstest.DefaultUser, srstest.DefaultPassword)
	require.NoError(t, err)

	cfg := runspace.DefaultSessionConfig()
	cfg.Poll = fastPolicy()
	runner := NewRunner(api, WithPollPolicy(fastPolicy()))

	err = runspace.NewManager(api).Use(context.Background(), cred, cfg, func(ctx context.Context, sess *runspace.Session) error {
		job, out, err := runner.Run(ctx, sess, Script{Text: "Get-VM | Select -Expand Name"})
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, job.State())
		assert.Equal(t, []string{"vm-01", "vm-02"}, out.Lines)
		assert.False(t, job.EndedAt().IsZero())
		return nil
	})
	require.NoError(t, err)

	n := srv.Counters()
	assert.Equal(t, 1, n.ExecutionCreates)
	assert.Equal(t, 3, n.ExecutionGets)
	assert.Equal(t, 1, n.OutputGets)
	assert.Equal(t, 1, n.StreamGets)
	assert.Equal(t, 1, n.RunspaceDeletes)
}
