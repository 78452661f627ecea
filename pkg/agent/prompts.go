package agent

import (
	"fmt"
	"strings"

	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

const plannerSystemPrompt = `You are a browser automation agent. You control a real browser and work toward the user's goal one action at a time.

Rules:
- Call exactly one function per turn. Never describe an action in prose instead of calling it.
- Prefer click_text for buttons and links with visible labels; use CSS selectors for inputs.
- After a failed action, try a different selector or approach instead of repeating the same call.
- Dismiss cookie banners or modal dialogs that block the page before continuing.
- When the goal is achieved and visible on the page, call finish with a short summary.
- If the goal is impossible, call finish and explain why in the summary.`

const verifierSystemPrompt = `You check whether a browser action moved a task toward its goal.

Reply with exactly one line:
- DONE — the whole task's goal is now satisfied.
- CONTINUE — the action helped; keep going.
- RETRY: <hint> — the action did not achieve its purpose; <hint> says what to try instead.`

// planningMessages builds the stateless planning turn: the system prompt
// plus one user message carrying the task, the bounded action history, the
// current page, and any pending corrective hint.
func planningMessages(task, summary, currentURL, hint string) []*types.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	fmt.Fprintf(&b, "Actions so far:\n%s\n\n", summary)
	if currentURL != "" {
		fmt.Fprintf(&b, "Current page: %s\n", currentURL)
	}
	if hint != "" {
		fmt.Fprintf(&b, "\nIMPORTANT: %s\n", hint)
	}
	b.WriteString("\nChoose the next action.")

	return []*types.Message{
		types.NewSystemMessage(plannerSystemPrompt),
		types.NewUserMessage(b.String()),
	}
}

// verificationMessages builds the verifying turn for the latest step.
func verificationMessages(task string, step trace.Step) []*types.Message {
	body := fmt.Sprintf("Task: %s\n\nLatest action: %s\nObservation: %s",
		task, step.Call, step.Result.Observation)
	return []*types.Message{
		types.NewSystemMessage(verifierSystemPrompt),
		types.NewUserMessage(body),
	}
}

// parseVerdict reads the verifier's reply. Unrecognized replies count as
// CONTINUE so a chatty model cannot stall the run.
func parseVerdict(reply string) (verdict string, hint string) {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "DONE"):
		return "DONE", ""
	case strings.HasPrefix(upper, "RETRY"):
		hint = strings.TrimSpace(strings.TrimPrefix(line[5:], ":"))
		return "RETRY", hint
	default:
		return "CONTINUE", ""
	}
}
