package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/tracewright/tracewright/pkg/logging"
	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
)

// Executor runs validated tool calls against one browser session. Every
// outcome, success or failure, is reported as a StepResult; Execute never
// panics and never returns a Go error for an action failure.
type Executor struct {
	session     Session
	log         *logging.Logger
	stepTimeout time.Duration
	screenshots bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithStepTimeout bounds the wall-clock time of a single action. Zero
// disables the executor-level bound, leaving only the driver's own timeouts.
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.stepTimeout = d
	}
}

// WithScreenshots controls whether a screenshot is captured after every
// successful mutating action.
func WithScreenshots(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.screenshots = enabled
	}
}

// NewExecutor creates an executor bound to a session.
func NewExecutor(session Session, log *logging.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		session:     session,
		log:         log,
		screenshots: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call and reports the classified result. Invalid
// calls fail fast with the invalid-parameters reason before the session is
// touched. The finish kind is a pure signal: it succeeds without any
// session interaction.
func (e *Executor) Execute(ctx context.Context, call trace.ToolCall) trace.StepResult {
	start := time.Now()

	if err := tools.Validate(call); err != nil {
		e.log.Warnf("rejected call %s: %v", call, err)
		return trace.StepResult{
			Reason:  trace.ReasonInvalidParameters,
			Error:   err.Error(),
			Elapsed: time.Since(start),
		}
	}

	if call.Kind == trace.KindFinish {
		return trace.StepResult{
			OK:          true,
			Observation: call.Value,
			Elapsed:     time.Since(start),
		}
	}

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return trace.StepResult{
			Reason:  trace.ReasonSessionClosed,
			Error:   "run cancelled before action started",
			Elapsed: time.Since(start),
		}
	}

	observation, cat, err := e.dispatch(ctx, call)
	elapsed := time.Since(start)

	if err != nil {
		reason := classify(err, cat)
		e.log.Warnf("step %s failed (%s): %v", call, reason, err)
		return trace.StepResult{
			Reason:  reason,
			Error:   err.Error(),
			Elapsed: elapsed,
		}
	}

	result := trace.StepResult{
		OK:          true,
		Observation: observation,
		Elapsed:     elapsed,
	}
	if call.Kind == trace.KindScreenshot {
		// The capture is the payload, not the observation.
		result.Screenshot = observation
		result.Observation = "captured screenshot"
		return result
	}
	if e.screenshots && call.Kind != trace.KindReadText {
		if shot, err := e.session.Screenshot(); err == nil {
			result.Screenshot = base64.StdEncoding.EncodeToString(shot)
		} else {
			e.log.Debugf("post-action screenshot failed: %v", err)
		}
	}
	e.log.Debugf("step %s ok in %s", call, elapsed)
	return result
}

// dispatch runs one call in a goroutine so the context bound holds even when
// the driver blocks past its own timeout.
func (e *Executor) dispatch(ctx context.Context, call trace.ToolCall) (string, opCategory, error) {
	type outcome struct {
		observation string
		err         error
	}
	cat := category(call.Kind)
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("driver panic: %v", r)}
			}
		}()
		obs, err := e.run(call)
		done <- outcome{observation: obs, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", cat, fmt.Errorf("action %s: %w", call.Kind, ctx.Err())
	case out := <-done:
		return out.observation, cat, out.err
	}
}

func (e *Executor) run(call trace.ToolCall) (string, error) {
	switch call.Kind {
	case trace.KindNavigate:
		if err := e.session.Navigate(call.URL); err != nil {
			return "", err
		}
		title, _ := e.session.Title()
		return fmt.Sprintf("loaded %s (%s)", e.session.URL(), title), nil

	case trace.KindClick:
		return fmt.Sprintf("clicked %s", call.Selector), e.session.Click(call.Selector)

	case trace.KindClickText:
		return fmt.Sprintf("clicked element with text %q", call.Value), e.session.ClickText(call.Value)

	case trace.KindFill:
		return fmt.Sprintf("filled %s", call.Selector), e.session.Fill(call.Selector, call.Value)

	case trace.KindPress:
		return fmt.Sprintf("pressed %s", call.Value), e.session.Press(call.Selector, call.Value)

	case trace.KindSelect:
		return fmt.Sprintf("selected %q in %s", call.Value, call.Selector), e.session.SelectOption(call.Selector, call.Value)

	case trace.KindCheck:
		return fmt.Sprintf("checked %s", call.Selector), e.session.Check(call.Selector)

	case trace.KindScroll:
		direction, pixels := "down", 500
		if call.Value != "" {
			direction, pixels, _ = tools.ParseScroll(call.Value)
		}
		return fmt.Sprintf("scrolled %s %dpx", direction, pixels), e.session.Scroll(direction, pixels)

	case trace.KindWait:
		if call.Selector != "" {
			return fmt.Sprintf("%s is visible", call.Selector), e.session.WaitFor(call.Selector)
		}
		ms, _ := strconv.Atoi(call.Value)
		Sleep(time.Duration(ms) * time.Millisecond)
		return fmt.Sprintf("waited %dms", ms), nil

	case trace.KindReadText:
		text, err := e.session.ReadText(call.Selector)
		if err != nil {
			return "", err
		}
		return text, nil

	case trace.KindScreenshot:
		shot, err := e.session.Screenshot()
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString(shot), nil

	default:
		return "", fmt.Errorf("unhandled action kind %s", call.Kind)
	}
}

func category(kind trace.Kind) opCategory {
	switch kind {
	case trace.KindNavigate:
		return opNavigation
	case trace.KindClick, trace.KindClickText, trace.KindFill, trace.KindPress,
		trace.KindSelect, trace.KindCheck, trace.KindWait, trace.KindReadText:
		return opElement
	default:
		return opPage
	}
}
