package agent

import (
	"fmt"
	"time"
)

// Defaults for run budgets.
const (
	DefaultMaxSteps    = 25
	DefaultStepTimeout = 30 * time.Second
	DefaultRunTimeout  = 5 * time.Minute
	DefaultToolRetries = 2
	DefaultBufferSize  = 256
)

// RunConfig is the immutable input to a run. Created once per run and never
// mutated; budgets and flags are fixed before the loop starts.
type RunConfig struct {
	// Task is the natural-language task description.
	Task string

	// URL is the page the run starts on.
	URL string

	// Username and Password, when set, are applied as HTTP basic-auth
	// credentials on the browser context.
	Username string
	Password string

	// Language selects the synthesized test language: typescript,
	// javascript, or python.
	Language string

	// Headless controls browser visibility.
	Headless bool

	// EnhancePrompt enables the one-shot pre-loop task rewrite.
	EnhancePrompt bool

	// StepVerification enables the verifying state after each observation.
	StepVerification bool

	// MaxSteps bounds the trace length.
	MaxSteps int

	// StepTimeout bounds one tool call.
	StepTimeout time.Duration

	// RunTimeout bounds the whole run's wall clock.
	RunTimeout time.Duration

	// ToolRetries is how many extra attempts a retryable tool failure gets
	// before it is treated as final.
	ToolRetries int

	// MinStepsForCode is the minimum trace length required before the
	// synthesizer is invoked on a failed run. Zero means always invoke.
	MinStepsForCode int

	// BufferSize bounds the event queue.
	BufferSize int
}

// withDefaults returns a copy with zero-valued budgets filled in.
func (c RunConfig) withDefaults() RunConfig {
	if c.Language == "" {
		c.Language = "typescript"
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	// Zero means unset; pass a negative value to disable tool retries.
	switch {
	case c.ToolRetries == 0:
		c.ToolRetries = DefaultToolRetries
	case c.ToolRetries < 0:
		c.ToolRetries = 0
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// Validate rejects configs that cannot start a run.
func (c RunConfig) Validate() error {
	if c.Task == "" {
		return fmt.Errorf("task is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	switch c.Language {
	case "", "typescript", "javascript", "python":
	default:
		return fmt.Errorf("unsupported language %q", c.Language)
	}
	return nil
}
