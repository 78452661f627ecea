// Package agent drives the plan, act, observe, verify cycle for one run:
// it asks the model for the next browser action, executes it, records the
// outcome in the trace, and emits the external event stream. Exactly one
// loop runs per invocation; the loop is strictly sequential.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/logging"
	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/tools/browser"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

// State names one position in the run's state machine.
type State string

const (
	StatePlanning   State = "planning"
	StateActing     State = "acting"
	StateObserving  State = "observing"
	StateVerifying  State = "verifying"
	StateCompleting State = "completing"
	StateFailing    State = "failing"
	StateCancelling State = "cancelling"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateCompleting || s == StateFailing || s == StateCancelled
}

// Stuck-detection bounds: after stuckHintAfter identical proposals the
// planner gets a corrective hint, after stuckFailAfter the run fails. The
// same bounds govern consecutive no-action (prose-only) turns.
const (
	stuckHintAfter = 2
	stuckFailAfter = 3
	verifyRetries  = 2
)

// ActionExecutor executes one validated tool call. Implemented by
// browser.Executor; tests substitute fakes.
type ActionExecutor interface {
	Execute(ctx context.Context, call trace.ToolCall) trace.StepResult
}

// Synthesizer renders a frozen trace into test source. Implemented by
// codegen.Generator.
type Synthesizer interface {
	Generate(t *trace.ExecutionTrace, language string) (code string, filename string, err error)
}

// Result is the outcome of one run.
type Result struct {
	State State
	Trace *trace.ExecutionTrace

	// Err is set for failing terminations.
	Err error
}

// Agent owns one run: config, provider, executor, session, recorder, and
// the event emitter.
type Agent struct {
	config   RunConfig
	provider llm.Provider
	executor ActionExecutor
	session  browser.Session
	synth    Synthesizer
	emitter  *Emitter
	recorder *trace.Recorder
	log      *logging.Logger

	// guard, when set, vets navigation targets before the session is touched.
	guard func(url string) error

	closeOnce sync.Once
}

// Option configures an Agent.
type Option func(*Agent)

// WithExecutor overrides the action executor.
func WithExecutor(executor ActionExecutor) Option {
	return func(a *Agent) {
		a.executor = executor
	}
}

// WithSession attaches the browser session the agent must tear down.
func WithSession(session browser.Session) Option {
	return func(a *Agent) {
		a.session = session
	}
}

// WithSynthesizer sets the code synthesizer invoked at termination.
func WithSynthesizer(synth Synthesizer) Option {
	return func(a *Agent) {
		a.synth = synth
	}
}

// WithNavigationGuard vets every navigate target before execution. A guard
// error fails the step with invalid parameters without touching the session.
func WithNavigationGuard(guard func(url string) error) Option {
	return func(a *Agent) {
		a.guard = guard
	}
}

// New creates an agent for one run. The provider must already carry its
// retry decoration.
func New(config RunConfig, provider llm.Provider, opts ...Option) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	config = config.withDefaults()

	log, _ := logging.NewLogger("agent")
	a := &Agent{
		config:   config,
		provider: provider,
		emitter:  NewEmitter(config.BufferSize),
		recorder: trace.NewRecorder(config.Task, config.URL, config.MaxSteps),
		log:      log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Events is the run's ordered event stream. The channel closes after the
// terminal event.
func (a *Agent) Events() <-chan *types.AgentEvent {
	return a.emitter.Events()
}

// Run executes the loop to a terminal state. The session is closed exactly
// once on every exit path, the trace is always frozen, and exactly one
// complete event (preceded by one error event on fatal terminations) is
// emitted before the event stream closes.
func (a *Agent) Run(ctx context.Context) *Result {
	defer a.teardown()

	runCtx, cancel := context.WithTimeout(ctx, a.config.RunTimeout)
	defer cancel()

	task := a.config.Task
	if a.config.EnhancePrompt {
		task = llm.EnhanceTask(runCtx, a.provider, task)
		if task != a.config.Task {
			a.emitter.Emit(types.NewLogEvent("Refined task: " + task))
		}
	}

	result := a.loop(runCtx, ctx, task)

	switch result.State {
	case StateCompleting:
		a.synthesize(result.Trace)
		a.emitter.Emit(types.NewCompleteEvent(completionSummary(result.Trace)))
	case StateFailing:
		a.emitter.Emit(types.NewErrorEvent(result.Err.Error()))
		if result.Trace.Len() >= a.config.MinStepsForCode {
			a.synthesize(result.Trace)
		}
		a.emitter.Emit(types.NewCompleteEvent(fmt.Sprintf("Run failed after %d steps: %v", result.Trace.Len(), result.Err)))
	case StateCancelled:
		a.emitter.Emit(types.NewCompleteEvent(fmt.Sprintf("Run cancelled after %d steps.", result.Trace.Len())))
	}
	return result
}

// loop walks the state machine until a terminal state. parentCtx
// distinguishes external cancellation from run-timeout expiry.
func (a *Agent) loop(ctx, parentCtx context.Context, task string) *Result {
	var (
		lastKey       string
		stuckCount    int
		noActionCount int
		verifyCount   int
		hint          string
	)

	for {
		if result := a.checkInterrupt(ctx, parentCtx); result != nil {
			return result
		}

		// Planning.
		summary := llm.SummarizeSteps(a.recorder.Steps(), llm.DefaultSummaryTokens)
		proposal, err := a.provider.Propose(ctx, planningMessages(task, summary, a.currentURL(), hint), tools.Registry())
		hint = ""
		if err != nil {
			if result := a.checkInterrupt(ctx, parentCtx); result != nil {
				return result
			}
			return a.fail(fmt.Errorf("model failure: %w", err))
		}

		if proposal.ToolCall == nil {
			if strings.Contains(proposal.Message, "TASK_COMPLETE") {
				return a.complete()
			}
			noActionCount++
			a.log.Debugf("no-action reply (%d): %s", noActionCount, proposal.Message)
			if noActionCount >= stuckFailAfter {
				return a.fail(errors.New("model stopped proposing actions"))
			}
			hint = "You replied in prose. Call exactly one function instead."
			continue
		}
		noActionCount = 0

		call := *proposal.ToolCall
		if key := call.String(); key == lastKey {
			stuckCount++
			if stuckCount >= stuckFailAfter {
				return a.fail(fmt.Errorf("stuck repeating %s", key))
			}
			if stuckCount >= stuckHintAfter {
				hint = fmt.Sprintf("You already tried %s. Take a different approach.", key)
			}
		} else {
			lastKey, stuckCount = key, 0
		}

		if proposal.Message != "" {
			a.emitter.Emit(types.NewLogEvent(proposal.Message))
		}

		if call.Kind == trace.KindFinish {
			if _, err := a.recorder.Record(call, trace.StepResult{OK: true, Observation: call.Value}); err != nil {
				return a.fail(err)
			}
			return a.complete()
		}

		// Acting.
		result := a.act(ctx, call)

		// Observing.
		step, err := a.recorder.Record(call, result)
		if err != nil {
			if errors.Is(err, trace.ErrBudgetExhausted) {
				return a.fail(fmt.Errorf("step budget of %d exhausted: %w", a.config.MaxSteps, err))
			}
			return a.fail(err)
		}
		a.emitStepEvents(step)

		// Cancellation observed after the in-flight action settled: the
		// step is recorded, nothing further is.
		if r := a.checkInterrupt(ctx, parentCtx); r != nil {
			return r
		}

		if !result.OK {
			return a.fail(fmt.Errorf("step %d %s failed (%s): %s", step.Index, call, result.Reason, result.Error))
		}
		if a.recorder.Len() >= a.config.MaxSteps {
			return a.fail(fmt.Errorf("step budget of %d exhausted: %w", a.config.MaxSteps, trace.ErrBudgetExhausted))
		}

		// Verifying.
		if !a.config.StepVerification {
			continue
		}
		reply, err := a.provider.Complete(ctx, verificationMessages(task, step))
		if err != nil {
			a.log.Warnf("verification turn failed, continuing: %v", err)
			continue
		}
		switch verdict, verifyHint := parseVerdict(reply.Content); verdict {
		case "DONE":
			return a.complete()
		case "RETRY":
			verifyCount++
			if verifyCount > verifyRetries {
				return a.fail(fmt.Errorf("step verification failed %d times: %s", verifyCount, verifyHint))
			}
			hint = verifyHint
			if hint == "" {
				hint = "The last action did not achieve its purpose. Try a different approach."
			}
		default:
			verifyCount = 0
		}
	}
}

// act runs one call, retrying retryable tool failures within the configured
// budget. Only the final attempt's result is recorded so the trace never
// carries half-finished retries.
func (a *Agent) act(ctx context.Context, call trace.ToolCall) trace.StepResult {
	if call.Kind == trace.KindNavigate && a.guard != nil {
		if err := a.guard(call.URL); err != nil {
			return trace.StepResult{
				Reason: trace.ReasonInvalidParameters,
				Error:  err.Error(),
			}
		}
	}

	var result trace.StepResult
	for attempt := 0; attempt <= a.config.ToolRetries; attempt++ {
		if attempt > 0 {
			a.emitter.Emit(types.NewLogEvent(fmt.Sprintf("Retrying %s (attempt %d)", call, attempt+1)))
		}
		result = a.executor.Execute(ctx, call)
		if result.OK || !retryableReason(result.Reason) || ctx.Err() != nil {
			return result
		}
	}
	return result
}

func retryableReason(reason trace.FailureReason) bool {
	return reason == trace.ReasonElementNotFound || reason == trace.ReasonTimeout
}

// checkInterrupt maps context expiry to the right terminal state: parent
// cancellation is a cooperative cancel, run-timeout expiry is a budget
// failure.
func (a *Agent) checkInterrupt(ctx, parentCtx context.Context) *Result {
	if parentCtx.Err() != nil {
		a.log.Infof("run cancelled externally")
		return &Result{State: StateCancelled, Trace: a.recorder.Freeze()}
	}
	if ctx.Err() != nil {
		return a.fail(fmt.Errorf("run timeout of %s exhausted", a.config.RunTimeout))
	}
	return nil
}

func (a *Agent) complete() *Result {
	return &Result{State: StateCompleting, Trace: a.recorder.Freeze()}
}

func (a *Agent) fail(err error) *Result {
	a.log.Errorf("run failing: %v", err)
	return &Result{State: StateFailing, Trace: a.recorder.Freeze(), Err: err}
}

func (a *Agent) emitStepEvents(step trace.Step) {
	if step.Result.OK {
		a.emitter.Emit(types.NewLogEvent(fmt.Sprintf("Step %d: %s — %s", step.Index+1, step.Call, step.Result.Observation)))
	} else {
		a.emitter.Emit(types.NewLogEvent(fmt.Sprintf("Step %d: %s failed (%s)", step.Index+1, step.Call, step.Result.Reason)))
	}
	if step.Result.Screenshot != "" {
		a.emitter.Emit(types.NewScreenshotEvent(step.Result.Screenshot))
	}
}

// synthesize renders the frozen trace and emits the code event. Synthesis
// failures are logged, not fatal: the run outcome is already decided.
func (a *Agent) synthesize(frozen *trace.ExecutionTrace) {
	if a.synth == nil {
		return
	}
	code, filename, err := a.synth.Generate(frozen, a.config.Language)
	if err != nil {
		a.log.Errorf("code synthesis failed: %v", err)
		a.emitter.Emit(types.NewLogEvent(fmt.Sprintf("Code generation failed: %v", err)))
		return
	}
	a.emitter.Emit(types.NewCodeEvent(code, filename))
}

func (a *Agent) currentURL() string {
	if a.session == nil {
		return ""
	}
	return a.session.URL()
}

// teardown closes the session exactly once and seals the event stream.
func (a *Agent) teardown() {
	a.closeOnce.Do(func() {
		if a.session != nil {
			if err := a.session.Close(); err != nil {
				a.log.Warnf("session close: %v", err)
			}
		}
	})
	a.emitter.Close()
	a.log.Close()
}

func completionSummary(frozen *trace.ExecutionTrace) string {
	if frozen.Len() == 0 {
		return "Task complete. No browser actions were required."
	}
	last := frozen.Steps[frozen.Len()-1]
	if last.Call.Kind == trace.KindFinish && last.Result.Observation != "" {
		return fmt.Sprintf("Task complete after %d steps: %s", frozen.Len(), last.Result.Observation)
	}
	return fmt.Sprintf("Task complete after %d steps.", frozen.Len())
}
