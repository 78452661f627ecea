// Package gemini provides a Google Gemini LLM provider implementation.
//
// The provider speaks the generateContent REST API directly. Browser actions
// are exposed to the model as function declarations; Gemini's functionCall
// parts are translated back into tool calls at this boundary.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

const (
	// DefaultBaseURL is the Gemini REST API base URL.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.0-flash"
)

// Provider implements llm.Provider for the Gemini API.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// NewProvider creates a Gemini provider. An empty apiKey falls back to the
// GEMINI_API_KEY environment variable.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (provide via parameter or GEMINI_API_KEY environment variable)")
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
	return p, nil
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// argString coerces a function-call argument to its string form. Gemini is
// not strict about argument types and may emit a bare number where the
// declaration asks for a string (wait milliseconds, scroll pixels).
func argString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

type responseBody struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Propose sends a planning turn with the action vocabulary declared as
// Gemini functions and translates the model's functionCall into a tool call.
func (p *Provider) Propose(ctx context.Context, messages []*types.Message, vocabulary []tools.Spec) (*llm.Proposal, error) {
	system, contents := convertMessages(messages)
	reqBody := map[string]interface{}{
		"contents": contents,
		"tools": []map[string]interface{}{
			{"functionDeclarations": declareFunctions(vocabulary)},
		},
	}
	if system != "" {
		reqBody["systemInstruction"] = content{Parts: []part{{Text: system}}}
	}

	var body responseBody
	if err := p.post(ctx, reqBody, &body); err != nil {
		return nil, err
	}
	if len(body.Candidates) == 0 {
		return nil, llm.Malformed(fmt.Errorf("response has no candidates"))
	}

	proposal := &llm.Proposal{}
	for _, pt := range body.Candidates[0].Content.Parts {
		if pt.FunctionCall != nil && proposal.ToolCall == nil {
			kind := trace.Kind(pt.FunctionCall.Name)
			if _, ok := tools.Lookup(kind); !ok {
				return nil, llm.Malformed(fmt.Errorf("model called unknown function %q", pt.FunctionCall.Name))
			}
			proposal.ToolCall = &trace.ToolCall{
				Kind:     kind,
				Selector: argString(pt.FunctionCall.Args["selector"]),
				Value:    argString(pt.FunctionCall.Args["value"]),
				URL:      argString(pt.FunctionCall.Args["url"]),
			}
		}
		if pt.Text != "" {
			proposal.Message += pt.Text
		}
	}
	if proposal.ToolCall == nil && proposal.Message == "" {
		return nil, llm.Malformed(fmt.Errorf("response has neither function call nor text"))
	}
	return proposal, nil
}

// Complete sends messages and returns the model's full text reply.
func (p *Provider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	system, contents := convertMessages(messages)
	reqBody := map[string]interface{}{
		"contents": contents,
	}
	if system != "" {
		reqBody["systemInstruction"] = content{Parts: []part{{Text: system}}}
	}

	var body responseBody
	if err := p.post(ctx, reqBody, &body); err != nil {
		return nil, err
	}
	if len(body.Candidates) == 0 {
		return nil, llm.Malformed(fmt.Errorf("response has no candidates"))
	}

	var text string
	for _, pt := range body.Candidates[0].Content.Parts {
		text += pt.Text
	}
	return types.NewAssistantMessage(text), nil
}

func (p *Provider) post(ctx context.Context, reqBody map[string]interface{}, out interface{}) error {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Fatal(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return llm.Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

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

// declareFunctions converts the action vocabulary into Gemini function
// declarations. Gemini rejects empty properties objects, so parameterless
// actions omit the parameters field entirely.
func declareFunctions(vocabulary []tools.Spec) []map[string]interface{} {
	declarations := make([]map[string]interface{}, 0, len(vocabulary))
	for _, spec := range vocabulary {
		decl := map[string]interface{}{
			"name":        string(spec.Kind),
			"description": spec.Description,
		}
		if len(spec.Params) > 0 {
			decl["parameters"] = tools.Schema(spec)
		}
		declarations = append(declarations, decl)
	}
	return declarations
}

// convertMessages splits the history into a system instruction and Gemini
// role-tagged contents. Gemini uses "model" where we use "assistant".
func convertMessages(messages []*types.Message) (system string, contents []content) {
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case types.RoleAssistant:
			contents = append(contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	return system, contents
}
