package llm

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tracewright/tracewright/pkg/trace"
)

// DefaultSummaryTokens bounds the trace summary injected into each planning
// turn so long runs cannot crowd the task out of the context window.
const DefaultSummaryTokens = 1500

const summaryEncoding = "cl100k_base"

// SummarizeSteps renders the executed steps as a compact history for the
// planner, newest last. When the rendering exceeds maxTokens, the oldest
// lines are elided first; the most recent steps always survive.
func SummarizeSteps(steps []trace.Step, maxTokens int) string {
	if len(steps) == 0 {
		return "No actions executed yet."
	}
	if maxTokens <= 0 {
		maxTokens = DefaultSummaryTokens
	}

	lines := make([]string, len(steps))
	for i, step := range steps {
		lines[i] = renderStep(step)
	}

	enc, err := tiktoken.GetEncoding(summaryEncoding)
	if err != nil {
		// Without an encoder fall back to a crude 4-chars-per-token bound.
		return truncateByChars(lines, maxTokens*4)
	}

	for start := 0; start < len(lines); start++ {
		candidate := join(lines[start:], start)
		if len(enc.Encode(candidate, nil, nil)) <= maxTokens {
			return candidate
		}
	}
	return lines[len(lines)-1]
}

func renderStep(step trace.Step) string {
	if step.Result.OK {
		obs := step.Result.Observation
		// Truncate on a rune boundary so multi-byte text stays valid UTF-8.
		if r := []rune(obs); len(r) > 200 {
			obs = string(r[:200]) + "..."
		}
		return fmt.Sprintf("%d. %s -> ok: %s", step.Index+1, step.Call, obs)
	}
	return fmt.Sprintf("%d. %s -> failed (%s): %s", step.Index+1, step.Call, step.Result.Reason, step.Result.Error)
}

func join(lines []string, omitted int) string {
	var b strings.Builder
	if omitted > 0 {
		fmt.Fprintf(&b, "(%d earlier steps omitted)\n", omitted)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

func truncateByChars(lines []string, maxChars int) string {
	for start := 0; start < len(lines); start++ {
		candidate := join(lines[start:], start)
		if len(candidate) <= maxChars {
			return candidate
		}
	}
	return lines[len(lines)-1]
}
