package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewright/tracewright/pkg/llm"
	"github.com/tracewright/tracewright/pkg/tools"
	"github.com/tracewright/tracewright/pkg/trace"
	"github.com/tracewright/tracewright/pkg/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)
	return p
}

func TestProposeTranslatesFunctionCall(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/"+DefaultModel+":generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "tools")
		assert.Contains(t, body, "systemInstruction")

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[
			{"text":"Clicking the login button."},
			{"functionCall":{"name":"click_text","args":{"value":"Log in"}}}
		]}}]}`))
	})

	proposal, err := p.Propose(context.Background(), []*types.Message{
		types.NewSystemMessage("you drive a browser"),
		types.NewUserMessage("log in"),
	}, tools.Registry())
	require.NoError(t, err)

	require.NotNil(t, proposal.ToolCall)
	assert.Equal(t, trace.KindClickText, proposal.ToolCall.Kind)
	assert.Equal(t, "Log in", proposal.ToolCall.Value)
	assert.Equal(t, "Clicking the login button.", proposal.Message)
}

func TestProposeCoercesNonStringArguments(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"functionCall":{"name":"wait","args":{"value":1500}}}
		]}}]}`))
	})

	proposal, err := p.Propose(context.Background(), nil, tools.Registry())
	require.NoError(t, err)

	require.NotNil(t, proposal.ToolCall)
	assert.Equal(t, trace.KindWait, proposal.ToolCall.Kind)
	assert.Equal(t, "1500", proposal.ToolCall.Value)
}

func TestProposeUnknownFunctionIsMalformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"fly","args":{}}}]}}]}`))
	})

	_, err := p.Propose(context.Background(), nil, tools.Registry())
	require.Error(t, err)
	assert.Equal(t, llm.ClassMalformed, llm.Classify(err))
}

func TestCompleteJoinsParts(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"YES, "},{"text":"the cart shows 2 items."}]}}]}`))
	})

	msg, err := p.Complete(context.Background(), []*types.Message{types.NewUserMessage("done?")})
	require.NoError(t, err)
	assert.Equal(t, "YES, the cart shows 2 items.", msg.Content)
}

func TestServerErrorsAreTransient(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := p.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, llm.ClassTransient, llm.Classify(err))
}
