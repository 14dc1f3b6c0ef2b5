package messages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "/api/runspaces/rs-1", RunspacePath("rs-1"))
	assert.Equal(t, "/api/script-executions/se-1", ScriptExecutionPath("se-1"))
	assert.Equal(t, "/api/script-executions/se-1/output", OutputPath("se-1"))
	assert.Equal(t, "/api/script-executions/se-1/cancel", CancelPath("se-1"))
	assert.Equal(t, "/api/script-executions/se-1/streams/warning", StreamPath("se-1", StreamWarning))
}

func TestRunspaceState(t *testing.T) {
	tests := []struct {
		state   RunspaceState
		pending bool
		usable  bool
	}{
		{RunspaceCreating, true, false},
		{RunspaceReady, false, true},
		{RunspaceActive, false, true},
		{RunspaceError, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.pending, tt.state.Pending())
			assert.Equal(t, tt.usable, tt.state.Usable())
		})
	}
}

func TestScriptExecutionStateTerminal(t *testing.T) {
	assert.False(t, ScriptRunning.Terminal())
	assert.True(t, ScriptSuccess.Terminal())
	assert.True(t, ScriptError.Terminal())
	assert.True(t, ScriptCanceled.Terminal())
	assert.False(t, ScriptExecutionState("Queued").Terminal())
}

func TestParseStreamType(t *testing.T) {
	for _, in := range []string{"error", "ERROR", " Warning ", "information", "debug", "verbose"} {
		_, err := ParseStreamType(in)
		assert.NoError(t, err, in)
	}
	st, err := ParseStreamType("Verbose")
	require.NoError(t, err)
	assert.Equal(t, StreamVerbose, st)

	_, err = ParseStreamType("progress")
	assert.Error(t, err)
}

func TestParseOutputObjectsFormat(t *testing.T) {
	f, err := ParseOutputObjectsFormat("json")
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, f)

	f, err = ParseOutputObjectsFormat("")
	require.NoError(t, err)
	assert.Empty(t, f)

	_, err = ParseOutputObjectsFormat("xml")
	assert.Error(t, err)
}

func TestErrorDetailsString(t *testing.T) {
	assert.Equal(t, "", (*ErrorDetails)(nil).String())
	assert.Equal(t, "boom", (&ErrorDetails{Message: "boom"}).String())
	assert.Equal(t, "trace", (&ErrorDetails{Details: "trace"}).String())
	assert.Equal(t, "boom: trace", (&ErrorDetails{Message: "boom", Details: "trace"}).String())

	assert.Equal(t, "", (*ErrorDetails)(nil).Reason())
	assert.Equal(t, "boom", (&ErrorDetails{Message: "boom"}).Reason())
	assert.Equal(t, "trace", (&ErrorDetails{Message: "boom", Details: "trace"}).Reason())
}

func TestDecodeRunspace(t *testing.T) {
	body := []byte(`{
		"id": "rs-1",
		"name": "MyPSRunspace",
		"state": "Error",
		"error_details": {"code": 2001, "error_message": "connect failed", "details": "vc unreachable"},
		"run_vc_connection_script": true,
		"creation_time": "2021-03-04T10:11:12.1234567"
	}`)

	rs, err := Decode[Runspace](body)
	require.NoError(t, err)
	assert.Equal(t, "rs-1", rs.ID)
	assert.Equal(t, RunspaceError, rs.State)
	require.NotNil(t, rs.ErrorDetails)
	assert.Equal(t, 2001, rs.ErrorDetails.Code)
	assert.Equal(t, "connect failed: vc unreachable", rs.ErrorDetails.String())
	assert.True(t, rs.RunVCConnectionScript)
	require.NotNil(t, rs.CreationTime)
	assert.Equal(t, time.Date(2021, 3, 4, 10, 11, 12, 123456700, time.UTC), rs.CreationTime.Time)
}

func TestEncodeScriptExecution(t *testing.T) {
	req := ScriptExecution{
		RunspaceID:          "rs-1",
		Name:                "MyScript",
		Script:              "Get-VM",
		ScriptParameters:    []ScriptParameter{{Name: "Count", Value: 3}},
		OutputObjectsFormat: OutputText,
	}

	data, err := Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"runspace_id": "rs-1",
		"name": "MyScript",
		"script": "Get-VM",
		"script_parameters": [{"name": "Count", "value": 3}],
		"output_objects_format": "Text"
	}`, string(data))
}

func TestDecodeStreamRecords(t *testing.T) {
	body := []byte(`[
		{"message": "first", "time": "2021-03-04T10:11:12Z"},
		{"message": "second", "time": null},
		{"message": "third"}
	]`)

	records, err := Decode[[]StreamRecord](body)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Message)
	assert.Equal(t, 2021, TimeOf(records[0].Time).Year())
	assert.True(t, TimeOf(records[1].Time).IsZero())
	assert.Nil(t, records[2].Time)
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2021-03-04T10:11:12Z", time.Date(2021, 3, 4, 10, 11, 12, 0, time.UTC)},
		{"2021-03-04T10:11:12+02:00", time.Date(2021, 3, 4, 8, 11, 12, 0, time.UTC)},
		{"2021-03-04T10:11:12.5", time.Date(2021, 3, 4, 10, 11, 12, 500000000, time.UTC)},
		{"2021-03-04T10:11:12", time.Date(2021, 3, 4, 10, 11, 12, 0, time.UTC)},
		{"2021-03-04 10:11:12", time.Date(2021, 3, 4, 10, 11, 12, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)

	var ts Timestamp
	assert.Error(t, ts.UnmarshalJSON([]byte(`12`)))
	require.NoError(t, ts.UnmarshalJSON([]byte(`""`)))
	assert.True(t, ts.IsZero())
}

func TestTimestampRoundTrip(t *testing.T) {
	in := NewTimestamp(time.Date(2022, 1, 2, 3, 4, 5, 6, time.UTC))
	data, err := Marshal(StreamRecord{Message: "m", Time: in})
	require.NoError(t, err)

	out, err := Decode[StreamRecord](data)
	require.NoError(t, err)
	require.NotNil(t, out.Time)
	assert.True(t, in.Equal(out.Time.Time))
}
