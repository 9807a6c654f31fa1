package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.RunStarted("run-a", "master", "abc")
	p.RunFinished("run-a", "master", "abc", "success", true)
	p.Close()
}

func TestRunEventPayloadShape(t *testing.T) {
	event := RunEvent{
		Type:     TypeRunFinished,
		RunID:    "run-a",
		Branch:   "master",
		Commit:   "abc123",
		Outcome:  "success",
		Deployed: true,
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "run.finished", decoded["type"])
	require.Equal(t, "run-a", decoded["run_id"])
	require.Equal(t, "master", decoded["branch"])
	require.Equal(t, "success", decoded["outcome"])
	require.Equal(t, true, decoded["deployed"])
}

func TestRunStartedOmitsOutcome(t *testing.T) {
	data, err := json.Marshal(RunEvent{Type: TypeRunStarted, RunID: "r", Branch: "b"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, hasOutcome := decoded["outcome"]
	require.False(t, hasOutcome)
}
