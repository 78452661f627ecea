// Package tools defines the fixed, versioned vocabulary of browser actions
// the agent may take. The registry is the single source of truth for which
// action kinds exist and what parameters they require: LLM providers derive
// their function declarations from it, and the executor validates every
// proposed call against it before touching the session.
package tools

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tracewright/tracewright/pkg/trace"
)

// Version identifies the tool vocabulary revision. Bump when kinds or
// parameter schemas change incompatibly.
const Version = "v1"

// ParamSpec documents one parameter of an action kind.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Spec describes one registered action kind.
type Spec struct {
	Kind        trace.Kind
	Description string
	Params      []ParamSpec

	// Terminal marks the kind that ends the run without touching the session.
	Terminal bool

	// Observational kinds read page state without mutating it; they are
	// excluded from synthesized test code.
	Observational bool
}

var registry = []Spec{
	{
		Kind:        trace.KindNavigate,
		Description: "Navigate the page to a URL. The URL must include the protocol, e.g. https://example.com.",
		Params: []ParamSpec{
			{Name: "url", Type: "string", Description: "Absolute http(s) URL to load", Required: true},
		},
	},
	{
		Kind:        trace.KindClick,
		Description: "Click the first element matching a CSS selector.",
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "CSS selector of the element to click", Required: true},
		},
	},
	{
		Kind:        trace.KindClickText,
		Description: "Click an element by its visible text. More reliable than CSS selectors for buttons and links.",
		Params: []ParamSpec{
			{Name: "value", Type: "string", Description: "Visible text of the element to click", Required: true},
		},
	},
	{
		Kind:        trace.KindFill,
		Description: "Fill an input or textarea with a value, replacing its current content.",
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "CSS selector of the input", Required: true},
			{Name: "value", Type: "string", Description: "Text to fill in", Required: true},
		},
	},
	{
		Kind:        trace.KindPress,
		Description: "Press a keyboard key such as Enter or Tab, optionally focused on an element first.",
		Params: []ParamSpec{
			{Name: "value", Type: "string", Description: "Key to press, e.g. Enter", Required: true},
			{Name: "selector", Type: "string", Description: "Optional element to focus before pressing"},
		},
	},
	{
		Kind:        trace.KindSelect,
		Description: "Select an option in a <select> element by value or label.",
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "CSS selector of the select element", Required: true},
			{Name: "value", Type: "string", Description: "Option value or label to select", Required: true},
		},
	},
	{
		Kind:        trace.KindCheck,
		Description: "Check a checkbox or radio input.",
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "CSS selector of the checkbox", Required: true},
		},
	},
	{
		Kind:        trace.KindScroll,
		Description: "Scroll the page. Value is 'direction:pixels', e.g. 'down:500'. Defaults to down:500.",
		Params: []ParamSpec{
			{Name: "value", Type: "string", Description: "direction:pixels, direction is up or down"},
		},
	},
	{
		Kind:        trace.KindWait,
		Description: "Wait for an element to become visible, or sleep for a fixed number of milliseconds.",
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "Selector to wait for (preferred)"},
			{Name: "value", Type: "string", Description: "Milliseconds to sleep when no selector is given"},
		},
	},
	{
		Kind:          trace.KindReadText,
		Description:   "Read the text content of the first element matching a selector.",
		Observational: true,
		Params: []ParamSpec{
			{Name: "selector", Type: "string", Description: "CSS selector of the element to read", Required: true},
		},
	},
	{
		Kind:          trace.KindScreenshot,
		Description:   "Capture a screenshot of the current viewport.",
		Observational: true,
	},
	{
		Kind:        trace.KindFinish,
		Description: "Signal that the task is complete. Use ONLY after the goal has been achieved and verified.",
		Terminal:    true,
		Params: []ParamSpec{
			{Name: "value", Type: "string", Description: "Short summary of what was accomplished"},
		},
	},
}

// Registry returns the full action vocabulary in a stable order.
func Registry() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the spec for a kind.
func Lookup(kind trace.Kind) (Spec, bool) {
	for _, spec := range registry {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return Spec{}, false
}

// ValidationError reports a call that does not conform to the registry. The
// executor maps it to the invalid-parameters failure reason without touching
// the browser session.
type ValidationError struct {
	Kind   trace.Kind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s call: %s", e.Kind, e.Detail)
}

// Validate checks a proposed call against the registry. A nil return means
// the call's kind is registered and its parameters satisfy the kind's schema.
func Validate(call trace.ToolCall) error {
	spec, ok := Lookup(call.Kind)
	if !ok {
		return &ValidationError{Kind: call.Kind, Detail: "unknown action kind"}
	}

	switch spec.Kind {
	case trace.KindNavigate:
		if call.URL == "" {
			return &ValidationError{Kind: call.Kind, Detail: "url is required"}
		}
		parsed, err := url.Parse(call.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return &ValidationError{Kind: call.Kind, Detail: fmt.Sprintf("url %q must be absolute http(s)", call.URL)}
		}
	case trace.KindClick, trace.KindCheck, trace.KindReadText:
		if call.Selector == "" {
			return &ValidationError{Kind: call.Kind, Detail: "selector is required"}
		}
	case trace.KindClickText:
		if call.Value == "" {
			return &ValidationError{Kind: call.Kind, Detail: "value (visible text) is required"}
		}
	case trace.KindFill, trace.KindSelect:
		if call.Selector == "" {
			return &ValidationError{Kind: call.Kind, Detail: "selector is required"}
		}
		if call.Value == "" {
			return &ValidationError{Kind: call.Kind, Detail: "value is required"}
		}
	case trace.KindPress:
		if call.Value == "" {
			return &ValidationError{Kind: call.Kind, Detail: "value (key name) is required"}
		}
	case trace.KindScroll:
		if call.Value != "" {
			if _, _, err := ParseScroll(call.Value); err != nil {
				return &ValidationError{Kind: call.Kind, Detail: err.Error()}
			}
		}
	case trace.KindWait:
		if call.Selector == "" {
			if call.Value == "" {
				return &ValidationError{Kind: call.Kind, Detail: "selector or value (milliseconds) is required"}
			}
			if _, err := strconv.Atoi(call.Value); err != nil {
				return &ValidationError{Kind: call.Kind, Detail: fmt.Sprintf("value %q is not a millisecond count", call.Value)}
			}
		}
	}
	return nil
}

// ParseScroll parses a scroll value of the form "direction:pixels".
func ParseScroll(value string) (direction string, pixels int, err error) {
	parts := strings.SplitN(value, ":", 2)
	direction = parts[0]
	if direction != "up" && direction != "down" {
		return "", 0, fmt.Errorf("scroll direction %q must be up or down", direction)
	}
	pixels = 500
	if len(parts) == 2 {
		pixels, err = strconv.Atoi(parts[1])
		if err != nil || pixels <= 0 {
			return "", 0, fmt.Errorf("scroll amount %q must be a positive pixel count", parts[1])
		}
	}
	return direction, pixels, nil
}

// Schema returns the JSON-schema object for a spec's parameters, in the
// shape LLM function-calling APIs expect.
func Schema(spec Spec) map[string]interface{} {
	properties := make(map[string]interface{}, len(spec.Params))
	var required []string
	for _, p := range spec.Params {
		properties[p.Name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
