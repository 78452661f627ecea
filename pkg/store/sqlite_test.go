package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:       uuid.New().String(),
		Task:     "log in",
		URL:      "https://example.com",
		Language: "typescript",
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.EndedAt)

	require.NoError(t, s.FinishRun(ctx, run.ID, StatusCompleted, "", "// code", "test-example.spec.ts"))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "// code", got.Code)
	assert.Equal(t, "test-example.spec.ts", got.Filename)
	require.NotNil(t, got.EndedAt)
}

func TestFinishUnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishRun(context.Background(), "missing", StatusFailed, "boom", "", "")
	assert.Error(t, err)
}

func TestGetUnknownRun(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.Error(t, err)
}

func TestTraceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.New().String(), Task: "t", URL: "https://e.com", Language: "python"}
	require.NoError(t, s.CreateRun(ctx, run))

	frozen := &trace.ExecutionTrace{
		Task:     "t",
		StartURL: "https://e.com",
		Steps: []trace.Step{
			{
				Index:  0,
				Call:   trace.ToolCall{Kind: trace.KindNavigate, URL: "https://e.com"},
				Result: trace.StepResult{OK: true, Observation: "loaded", Elapsed: 120 * time.Millisecond},
				At:     time.Now().UTC(),
			},
			{
				Index:  1,
				Call:   trace.ToolCall{Kind: trace.KindClick, Selector: "#go"},
				Result: trace.StepResult{Reason: trace.ReasonElementNotFound, Error: "nope"},
				At:     time.Now().UTC(),
			},
		},
	}
	require.NoError(t, s.SaveTrace(ctx, run.ID, frozen))

	steps, err := s.GetTrace(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, trace.KindNavigate, steps[0].Call.Kind)
	assert.True(t, steps[0].Result.OK)
	assert.Equal(t, trace.ReasonElementNotFound, steps[1].Result.Reason)
}

func TestEventsPreserveOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &Run{ID: uuid.New().String(), Task: "t", URL: "https://e.com", Language: "typescript"}
	require.NoError(t, s.CreateRun(ctx, run))

	emitted := []*types.AgentEvent{
		types.NewLogEvent("step 1"),
		types.NewErrorEvent("boom"),
		types.NewCompleteEvent("done"),
	}
	for i, event := range emitted {
		require.NoError(t, s.SaveEvent(ctx, run.ID, i, event))
	}

	got, err := s.GetEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.EventTypeLog, got[0].Type)
	assert.Equal(t, types.EventTypeError, got[1].Type)
	assert.Equal(t, types.EventTypeComplete, got[2].Type)
}
