package types

import "time"

// AgentEventType defines the type of event emitted by a run.
type AgentEventType string

const (
	EventTypeLog        AgentEventType = "log"        // EventTypeLog is a human-readable progress message.
	EventTypeScreenshot AgentEventType = "screenshot" // EventTypeScreenshot carries a base64-encoded page capture.
	EventTypeCode       AgentEventType = "code"       // EventTypeCode carries the synthesized test source.
	EventTypeError      AgentEventType = "error"      // EventTypeError reports a fatal run condition.
	EventTypeComplete   AgentEventType = "complete"   // EventTypeComplete is the terminal run summary.
)

// AgentEvent is an external-facing notification produced during a run. The
// stream a consumer observes is an ordered sequence of these records,
// exhausted once a terminal event (complete or error-followed-by-complete)
// has been seen.
type AgentEvent struct {
	Type       AgentEventType `json:"type"`
	Message    string         `json:"message,omitempty"`
	Screenshot string         `json:"screenshot,omitempty"`
	Code       string         `json:"code,omitempty"`
	Filename   string         `json:"filename,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewLogEvent creates a progress-message event.
func NewLogEvent(message string) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeLog,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewScreenshotEvent creates a screenshot event carrying base64 image data.
func NewScreenshotEvent(data string) *AgentEvent {
	return &AgentEvent{
		Type:       EventTypeScreenshot,
		Screenshot: data,
		Timestamp:  time.Now().UTC(),
	}
}

// NewCodeEvent creates an event carrying synthesized test source and its
// suggested filename.
func NewCodeEvent(code, filename string) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeCode,
		Code:      code,
		Filename:  filename,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent creates an error event with a human-readable message.
func NewErrorEvent(message string) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeError,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewCompleteEvent creates the terminal run-complete event.
func NewCompleteEvent(message string) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeComplete,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// IsTerminal reports whether this event ends the stream for its run.
func (e *AgentEvent) IsTerminal() bool {
	return e.Type == EventTypeComplete
}

// Droppable reports whether this event may be discarded under backpressure.
// Progress messages and screenshots are best-effort; code, error, and
// complete events must reach the consumer.
func (e *AgentEvent) Droppable() bool {
	return e.Type == EventTypeLog || e.Type == EventTypeScreenshot
}
