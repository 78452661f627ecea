package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewright/tracewright/pkg/types"
)

func drain(t *testing.T, e *Emitter) []*types.AgentEvent {
	t.Helper()
	var events []*types.AgentEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-e.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatal("emitter did not close")
		}
	}
}

func TestEmitterPreservesOrder(t *testing.T) {
	e := NewEmitter(16)
	e.Emit(types.NewLogEvent("one"))
	e.Emit(types.NewScreenshotEvent("img"))
	e.Emit(types.NewLogEvent("two"))
	e.Emit(types.NewCompleteEvent("done"))
	e.Close()

	events := drain(t, e)
	require.Len(t, events, 4)
	assert.Equal(t, "one", events[0].Message)
	assert.Equal(t, types.EventTypeScreenshot, events[1].Type)
	assert.Equal(t, "two", events[2].Message)
	assert.Equal(t, types.EventTypeComplete, events[3].Type)
}

func TestEmitterDropsLogsWhenFull(t *testing.T) {
	e := NewEmitter(4)
	for i := 0; i < 10; i++ {
		e.Emit(types.NewLogEvent("chatter"))
	}
	e.Close()

	events := drain(t, e)
	// The pump may hold one event in flight beyond the queue capacity.
	assert.LessOrEqual(t, len(events), 5)
	assert.Equal(t, 10, len(events)+e.Dropped(), "every event is either delivered or counted dropped")
}

func TestEmitterTerminalEvictsDroppable(t *testing.T) {
	e := NewEmitter(3)
	e.Emit(types.NewLogEvent("a"))
	e.Emit(types.NewLogEvent("b"))
	e.Emit(types.NewLogEvent("c"))
	// Queue is full; the terminal event must still get through.
	e.Emit(types.NewCompleteEvent("done"))
	e.Close()

	events := drain(t, e)
	require.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), 4)
	assert.Equal(t, types.EventTypeComplete, events[len(events)-1].Type)
}

func TestEmitterNeverBlocksProducer(t *testing.T) {
	e := NewEmitter(2)
	done := make(chan struct{})
	go func() {
		// No consumer at all.
		for i := 0; i < 1000; i++ {
			e.Emit(types.NewLogEvent("spam"))
		}
		e.Emit(types.NewErrorEvent("boom"))
		e.Emit(types.NewCompleteEvent("done"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked without a consumer")
	}

	e.Close()
	events := drain(t, e)
	last := events[len(events)-1]
	assert.Equal(t, types.EventTypeComplete, last.Type)
}

func TestEmitterEmitAfterCloseIsNoop(t *testing.T) {
	e := NewEmitter(4)
	e.Close()
	e.Emit(types.NewLogEvent("late"))
	events := drain(t, e)
	assert.Empty(t, events)
}
