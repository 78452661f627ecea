// Package openai provides an OpenAI-compatible LLM provider implementation.
//
// The provider speaks the chat-completions API over raw HTTP, which keeps it
// compatible with Azure OpenAI, local models, and other OpenAI-compatible
// services that deviate slightly from the reference API. Browser actions are
// exposed to the model as native function declarations.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	goopenai "github.com/openai/openai-go"

	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs. This
// enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new OpenAI provider with the given API key.
//
// If apiKey is empty, it falls back to the OPENAI_API_KEY environment
// variable. If no base URL is set via WithBaseURL, OPENAI_BASE_URL is
// consulted before the default.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      DefaultModel,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}
	return p, nil
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

// toolArguments is the wire shape of every declared function's arguments.
type toolArguments struct {
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
}

// responseBody is the subset of the chat-completions response we consume.
type responseBody struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Propose sends a planning turn with the action vocabulary declared as
// functions and translates the model's choice into a tool call.
func (p *Provider) Propose(ctx context.Context, messages []*types.Message, vocabulary []tools.Spec) (*llm.Proposal, error) {
	reqBody := map[string]interface{}{
		"model":       p.model,
		"messages":    convertMessages(messages),
		"tools":       declareFunctions(vocabulary),
		"tool_choice": "auto",
	}

	var body responseBody
	if err := p.post(ctx, reqBody, &body); err != nil {
		return nil, err
	}
	if len(body.Choices) == 0 {
		return nil, llm.Malformed(fmt.Errorf("response has no choices"))
	}

	message := body.Choices[0].Message
	if len(message.ToolCalls) == 0 {
		if message.Content == "" {
			return nil, llm.Malformed(fmt.Errorf("response has neither tool call nor content"))
		}
		return &llm.Proposal{Message: message.Content}, nil
	}

	fn := message.ToolCalls[0].Function
	kind := trace.Kind(fn.Name)
	if _, ok := tools.Lookup(kind); !ok {
		return nil, llm.Malformed(fmt.Errorf("model called unknown function %q", fn.Name))
	}

	var args toolArguments
	if fn.Arguments != "" {
		if err := json.Unmarshal([]byte(fn.Arguments), &args); err != nil {
			return nil, llm.Malformed(fmt.Errorf("cannot parse arguments for %s: %w", fn.Name, err))
		}
	}

	return &llm.Proposal{
		ToolCall: &trace.ToolCall{
			Kind:     kind,
			Selector: args.Selector,
			Value:    args.Value,
			URL:      args.URL,
		},
		Message: message.Content,
	}, nil
}

// Complete sends messages and returns the model's full text reply.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	reqBody := map[string]interface{}{
		"model":    p.model,
		"messages": convertMessages(messages),
	}

	var body responseBody
	if err := p.post(ctx, reqBody, &body); err != nil {
		return nil, err
	}
	if len(body.Choices) == 0 {
		return nil, llm.Malformed(fmt.Errorf("response has no choices"))
	}
	return types.NewAssistantMessage(body.Choices[0].Message.Content), nil
}

func (p *Provider) post(ctx context.Context, reqBody map[string]interface{}, out interface{}) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Fatal(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return llm.Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return llm.Transient(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return llm.FromStatus(resp.StatusCode, fmt.Errorf("API request failed with status %d (failed to read error body: %w)", resp.StatusCode, readErr))
		}
		return llm.FromStatus(resp.StatusCode, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return llm.Malformed(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// declareFunctions converts the action vocabulary into chat-completions
// function declarations.
func declareFunctions(vocabulary []tools.Spec) []map[string]interface{} {
	declarations := make([]map[string]interface{}, 0, len(vocabulary))
	for _, spec := range vocabulary {
		declarations = append(declarations, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        string(spec.Kind),
				"description": spec.Description,
				"parameters":  tools.Schema(spec),
			},
		})
	}
	return declarations
}

// convertMessages converts our Message format to OpenAI's
// ChatCompletionMessageParamUnion format.
func convertMessages(messages []*types.Message) []goopenai.ChatCompletionMessageParamUnion {
	converted := make([]goopenai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			converted = append(converted, goopenai.SystemMessage(msg.Content))
		case types.RoleUser:
			converted = append(converted, goopenai.UserMessage(msg.Content))
		case types.RoleAssistant:
			converted = append(converted, goopenai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, goopenai.UserMessage(msg.Content))
		}
	}
	return converted
}
