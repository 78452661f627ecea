package llm

import (
	"context"
	"strings"

	"github.com/tracewright/tracewright/pkg/types"
)

const enhanceSystemPrompt = `You rewrite browser automation task descriptions to make them precise and actionable.

Rewrite the user's task so that:
- The goal is stated in one sentence.
- Ambiguous references ("the button", "the form") name the likely element.
- Implicit sub-steps (dismissing cookie banners, waiting for page loads) are made explicit.
- Success criteria are stated so completion can be verified from the page.

Respond with ONLY the rewritten task description. No preamble, no markdown.`

// EnhanceTask asks the model to rewrite a raw task description into a
// precise one before the run starts. Enhancement is strictly best-effort:
// any failure or empty reply returns the original task unchanged.
func EnhanceTask(ctx context.Context, provider Provider, task string) string {
	messages := []*types.Message{
		types.NewSystemMessage(enhanceSystemPrompt),
		types.NewUserMessage(task),
	}

	reply, err := provider.Complete(ctx, messages)
	if err != nil {
		return task
	}
	enhanced := strings.TrimSpace(reply.Content)
	if enhanced == "" {
		return task
	}
	return enhanced
}
