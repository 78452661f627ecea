// Package trace defines the durable record of a single agent run: the
// ordered, append-only sequence of executed browser actions and their
// observed outcomes. The frozen trace is the sole input to code synthesis,
// so its ordering and immutability guarantees are load-bearing.
package trace

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind identifies one action in the fixed tool vocabulary.
type Kind string

const (
	KindNavigate   Kind = "navigate"    // KindNavigate loads a URL in the session page.
	KindClick      Kind = "click"       // KindClick clicks an element by CSS selector.
	KindClickText  Kind = "click_text"  // KindClickText clicks an element by its visible text.
	KindFill       Kind = "fill"        // KindFill fills an input element with a value.
	KindPress      Kind = "press"       // KindPress presses a keyboard key, optionally on an element.
	KindSelect     Kind = "select"      // KindSelect selects an option in a <select> element.
	KindCheck      Kind = "check"       // KindCheck checks a checkbox or radio element.
	KindScroll     Kind = "scroll"      // KindScroll scrolls the page ("direction:pixels").
	KindWait       Kind = "wait"        // KindWait waits for a selector, or sleeps for N milliseconds.
	KindReadText   Kind = "read_text"   // KindReadText extracts text content from an element.
	KindScreenshot Kind = "screenshot"  // KindScreenshot captures the current viewport.
	KindFinish     Kind = "finish"      // KindFinish signals task completion; never touches the session.
)

// ToolCall is a single proposed browser action. It is produced by the model
// client, validated against the tool registry, and consumed exactly once by
// the executor.
type ToolCall struct {
	Kind     Kind   `json:"kind"`
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
}

// String renders the call in a compact human-readable form used in logs,
// progress events, and trace summaries.
func (c ToolCall) String() string {
	switch {
	case c.URL != "":
		return fmt.Sprintf("%s(%s)", c.Kind, c.URL)
	case c.Selector != "" && c.Value != "":
		return fmt.Sprintf("%s(%s, %q)", c.Kind, c.Selector, c.Value)
	case c.Selector != "":
		return fmt.Sprintf("%s(%s)", c.Kind, c.Selector)
	case c.Value != "":
		return fmt.Sprintf("%s(%q)", c.Kind, c.Value)
	default:
		return string(c.Kind)
	}
}

// FailureReason classifies why a tool call failed. Every executor failure
// carries exactly one of these; the loop's retry and termination decisions
// key off the classification, never the error text.
type FailureReason string

const (
	ReasonElementNotFound   FailureReason = "element_not_found"
	ReasonTimeout           FailureReason = "timeout"
	ReasonNavigationFailed  FailureReason = "navigation_failed"
	ReasonInvalidParameters FailureReason = "invalid_parameters"
	ReasonSessionClosed     FailureReason = "session_closed"
)

// StepResult is the outcome of executing one ToolCall. Immutable once created.
type StepResult struct {
	OK          bool          `json:"ok"`
	Observation string        `json:"observation,omitempty"`
	Reason      FailureReason `json:"reason,omitempty"`
	Error       string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	// Screenshot holds a base64-encoded JPEG captured after the action,
	// or "" when no screenshot was taken.
	Screenshot string `json:"screenshot,omitempty"`
}

// Step pairs one ToolCall with its StepResult at a fixed position in the
// trace. Indices are assigned by the Recorder and are strictly increasing
// with no gaps.
type Step struct {
	Index  int        `json:"index"`
	Call   ToolCall   `json:"call"`
	Result StepResult `json:"result"`
	At     time.Time  `json:"at"`
}

// ExecutionTrace is the frozen, ordered record of all Steps in one run.
// It is handed to the code synthesizer by reference and must never be
// mutated after the run's terminal event.
type ExecutionTrace struct {
	Task     string `json:"task"`
	StartURL string `json:"start_url"`
	Steps    []Step `json:"steps"`
}

// Len returns the number of recorded steps.
func (t *ExecutionTrace) Len() int {
	return len(t.Steps)
}

// ErrInvalidState is returned by Record after Freeze has been called. It
// indicates a sequencing defect in the orchestration loop and is always
// fatal to the run.
var ErrInvalidState = errors.New("trace is frozen")

// ErrBudgetExhausted is returned by Record when the step budget is already
// full, guarding the trace-length invariant independently of the loop.
var ErrBudgetExhausted = errors.New("step budget exhausted")

// Recorder accumulates the ordered trace for one run. Append-only: steps can
// be recorded until Freeze, after which every Record fails with
// ErrInvalidState. Freeze is idempotent and always returns the same trace.
type Recorder struct {
	mu       sync.Mutex
	task     string
	startURL string
	maxSteps int
	steps    []Step
	frozen   *ExecutionTrace
}

// NewRecorder creates a recorder for a run against the given task and start
// URL. maxSteps bounds the trace length; zero or negative means unbounded.
func NewRecorder(task, startURL string, maxSteps int) *Recorder {
	return &Recorder{
		task:     task,
		startURL: startURL,
		maxSteps: maxSteps,
	}
}

// Record appends a step pairing the call with its result, assigning the next
// sequence index. Returns the recorded step.
func (r *Recorder) Record(call ToolCall, result StepResult) (Step, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen != nil {
		return Step{}, fmt.Errorf("record step %d: %w", len(r.steps), ErrInvalidState)
	}
	if r.maxSteps > 0 && len(r.steps) >= r.maxSteps {
		return Step{}, fmt.Errorf("record step %d: %w", len(r.steps), ErrBudgetExhausted)
	}

	step := Step{
		Index:  len(r.steps),
		Call:   call,
		Result: result,
		At:     time.Now().UTC(),
	}
	r.steps = append(r.steps, step)
	return step, nil
}

// Len returns the number of steps recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Steps returns a copy of the steps recorded so far. Used to build trace
// summaries mid-run without exposing the backing slice.
func (r *Recorder) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Freeze seals the trace and returns it. Subsequent calls return the
// identical ExecutionTrace; subsequent Record calls fail with ErrInvalidState.
func (r *Recorder) Freeze() *ExecutionTrace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen == nil {
		steps := make([]Step, len(r.steps))
		copy(steps, r.steps)
		r.frozen = &ExecutionTrace{
			Task:     r.task,
			StartURL: r.startURL,
			Steps:    steps,
		}
	}
	return r.frozen
}
