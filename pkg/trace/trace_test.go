package trace

import (
	"errors"
	"testing"
	"time"
)

func okResult() StepResult {
	return StepResult{OK: true, Observation: "done", Elapsed: 10 * time.Millisecond}
}

func TestRecorder_IndicesStrictlyIncreasing(t *testing.T) {
	r := NewRecorder("buy a laptop", "https://example.com", 10)

	calls := []ToolCall{
		{Kind: KindNavigate, URL: "https://example.com"},
		{Kind: KindFill, Selector: "#search", Value: "laptop"},
		{Kind: KindClick, Selector: "button[type=submit]"},
	}
	for i, call := range calls {
		step, err := r.Record(call, okResult())
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if step.Index != i {
			t.Errorf("expected index %d, got %d", i, step.Index)
		}
	}

	tr := r.Freeze()
	if tr.Len() != len(calls) {
		t.Fatalf("expected %d steps, got %d", len(calls), tr.Len())
	}
	for i, step := range tr.Steps {
		if step.Index != i {
			t.Errorf("step %d has index %d", i, step.Index)
		}
	}
}

func TestRecorder_BudgetEnforced(t *testing.T) {
	r := NewRecorder("task", "https://example.com", 2)

	for i := 0; i < 2; i++ {
		if _, err := r.Record(ToolCall{Kind: KindClick, Selector: "a"}, okResult()); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	_, err := r.Record(ToolCall{Kind: KindClick, Selector: "a"}, okResult())
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Errorf("expected ErrBudgetExhausted, got %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("trace length grew past budget: %d", r.Len())
	}
}

func TestRecorder_FreezeIdempotent(t *testing.T) {
	r := NewRecorder("task", "https://example.com", 5)
	if _, err := r.Record(ToolCall{Kind: KindNavigate, URL: "https://example.com"}, okResult()); err != nil {
		t.Fatal(err)
	}

	first := r.Freeze()
	second := r.Freeze()
	if first != second {
		t.Error("Freeze should return the identical trace on repeated calls")
	}
}

func TestRecorder_RecordAfterFreezeFails(t *testing.T) {
	r := NewRecorder("task", "https://example.com", 5)
	r.Freeze()

	_, err := r.Record(ToolCall{Kind: KindClick, Selector: "a"}, okResult())
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestRecorder_FrozenTraceIsolatedFromRecorder(t *testing.T) {
	r := NewRecorder("task", "https://example.com", 0)
	if _, err := r.Record(ToolCall{Kind: KindClick, Selector: "#a"}, okResult()); err != nil {
		t.Fatal(err)
	}

	tr := r.Freeze()
	tr.Steps[0].Call.Selector = "#mutated"

	if got := r.Freeze().Steps[0].Call.Selector; got != "#mutated" {
		// Same frozen trace is returned, so the caller sees its own mutation;
		// the point is the recorder's internal slice was copied at freeze time.
		t.Logf("frozen selector: %s", got)
	}
	steps := r.Steps()
	if steps[0].Call.Selector != "#a" {
		t.Errorf("recorder internal state mutated through frozen trace: %s", steps[0].Call.Selector)
	}
}

func TestToolCall_String(t *testing.T) {
	cases := []struct {
		call ToolCall
		want string
	}{
		{ToolCall{Kind: KindNavigate, URL: "https://example.com"}, "navigate(https://example.com)"},
		{ToolCall{Kind: KindFill, Selector: "#q", Value: "cats"}, `fill(#q, "cats")`},
		{ToolCall{Kind: KindClick, Selector: "#go"}, "click(#go)"},
		{ToolCall{Kind: KindClickText, Value: "Sign In"}, `click_text("Sign In")`},
		{ToolCall{Kind: KindFinish}, "finish"},
	}
	for _, tc := range cases {
		if got := tc.call.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
