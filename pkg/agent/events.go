package agent

import (
	"sync"

	"github.com/tracewright/tracewright/pkg/types"
)

// Emitter delivers AgentEvents to one consumer in emission order without
// ever blocking the producer. A bounded queue absorbs a slow consumer; when
// it fills, droppable events (log, screenshot) are discarded, and
// must-deliver events (code, error, complete) evict the oldest droppable
// entry instead, so the terminal signal always gets through.
type Emitter struct {
	mu       sync.Mutex
	queue    []*types.AgentEvent
	capacity int
	closed   bool
	dropped  int

	wake chan struct{}
	out  chan *types.AgentEvent
}

// NewEmitter creates an emitter with the given queue capacity and starts
// its delivery pump.
func NewEmitter(capacity int) *Emitter {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	e := &Emitter{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
		out:      make(chan *types.AgentEvent),
	}
	go e.pump()
	return e
}

// Events is the consumer side. The channel is closed after the queue drains
// following Close.
func (e *Emitter) Events() <-chan *types.AgentEvent {
	return e.out
}

// Emit enqueues an event. Never blocks.
func (e *Emitter) Emit(event *types.AgentEvent) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	if len(e.queue) >= e.capacity {
		if event.Droppable() {
			e.dropped++
			e.mu.Unlock()
			return
		}
		// Make room for a must-deliver event.
		for i, queued := range e.queue {
			if queued.Droppable() {
				e.queue = append(e.queue[:i], e.queue[i+1:]...)
				e.dropped++
				break
			}
		}
	}
	e.queue = append(e.queue, event)
	e.mu.Unlock()
	e.signal()
}

// Dropped reports how many events were discarded under backpressure.
func (e *Emitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops accepting events. Already-queued events are still delivered,
// then the consumer channel closes. Safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.signal()
}

func (e *Emitter) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Emitter) pump() {
	for {
		e.mu.Lock()
		var next *types.AgentEvent
		if len(e.queue) > 0 {
			next = e.queue[0]
			e.queue = e.queue[1:]
		}
		closed := e.closed
		e.mu.Unlock()

		if next != nil {
			e.out <- next
			continue
		}
		if closed {
			close(e.out)
			return
		}
		<-e.wake
	}
}
