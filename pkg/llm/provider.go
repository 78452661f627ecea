// Package llm provides abstractions for LLM provider integration.
//
// Providers translate between the planner's message history and a concrete
// model API, returning either a proposed browser action or a plain text
// reply. This design keeps providers focused on API communication without
// coupling them to the orchestration loop.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	proposal, err := provider.Propose(ctx, messages, tools.Registry())
//	if err != nil {
//	    return err
//	}
//	if proposal.ToolCall != nil {
//	    result := executor.Execute(ctx, *proposal.ToolCall)
//	    // ...
//	}
package llm

import (
	"context"

	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

// Proposal is one model turn: either a proposed tool call or a plain text
// message, never both. A nil ToolCall means the model answered in prose.
type Proposal struct {
	ToolCall *trace.ToolCall

	// Message is the model's text reply, or its reasoning accompanying a
	// tool call when the API provides one.
	Message string
}

// Provider defines the interface for LLM integrations.
//
// Propose is the planning turn: the provider exposes the action vocabulary
// as native function declarations and translates the model's choice into a
// validated-shape ToolCall. Complete is a plain text completion used for
// task enhancement and verification turns.
//
// Implementations classify every failure with this package's Error type so
// the retry decorator and the loop can tell transient conditions from fatal
// ones without parsing error text.
type Provider interface {
	Propose(ctx context.Context, messages []*types.Message, vocabulary []tools.Spec) (*Proposal, error)
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}
