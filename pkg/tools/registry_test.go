package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracewright/tracewright/pkg/trace"
)

func TestRegistryContainsAllKinds(t *testing.T) {
	kinds := []trace.Kind{
		trace.KindNavigate, trace.KindClick, trace.KindClickText, trace.KindFill,
		trace.KindPress, trace.KindSelect, trace.KindCheck, trace.KindScroll,
		trace.KindWait, trace.KindReadText, trace.KindScreenshot, trace.KindFinish,
	}
	require.Len(t, Registry(), len(kinds))

	for _, kind := range kinds {
		spec, ok := Lookup(kind)
		require.True(t, ok, "kind %s missing from registry", kind)
		assert.NotEmpty(t, spec.Description)
	}
}

func TestRegistryFlags(t *testing.T) {
	finish, _ := Lookup(trace.KindFinish)
	assert.True(t, finish.Terminal)

	for _, kind := range []trace.Kind{trace.KindReadText, trace.KindScreenshot} {
		spec, _ := Lookup(kind)
		assert.True(t, spec.Observational, "%s should be observational", kind)
	}
	click, _ := Lookup(trace.KindClick)
	assert.False(t, click.Observational)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		call    trace.ToolCall
		wantErr bool
	}{
		{"valid navigate", trace.ToolCall{Kind: trace.KindNavigate, URL: "https://example.com"}, false},
		{"navigate without url", trace.ToolCall{Kind: trace.KindNavigate}, true},
		{"navigate relative url", trace.ToolCall{Kind: trace.KindNavigate, URL: "/login"}, true},
		{"navigate bad scheme", trace.ToolCall{Kind: trace.KindNavigate, URL: "file:///etc/passwd"}, true},
		{"valid click", trace.ToolCall{Kind: trace.KindClick, Selector: "#btn"}, false},
		{"click without selector", trace.ToolCall{Kind: trace.KindClick}, true},
		{"valid click_text", trace.ToolCall{Kind: trace.KindClickText, Value: "Sign in"}, false},
		{"click_text without value", trace.ToolCall{Kind: trace.KindClickText}, true},
		{"valid fill", trace.ToolCall{Kind: trace.KindFill, Selector: "#q", Value: "go"}, false},
		{"fill without value", trace.ToolCall{Kind: trace.KindFill, Selector: "#q"}, true},
		{"valid press without selector", trace.ToolCall{Kind: trace.KindPress, Value: "Enter"}, false},
		{"press without key", trace.ToolCall{Kind: trace.KindPress}, true},
		{"valid scroll default", trace.ToolCall{Kind: trace.KindScroll}, false},
		{"valid scroll with amount", trace.ToolCall{Kind: trace.KindScroll, Value: "down:800"}, false},
		{"scroll bad direction", trace.ToolCall{Kind: trace.KindScroll, Value: "sideways:10"}, true},
		{"scroll bad amount", trace.ToolCall{Kind: trace.KindScroll, Value: "down:lots"}, true},
		{"valid wait for selector", trace.ToolCall{Kind: trace.KindWait, Selector: ".spinner"}, false},
		{"valid wait sleep", trace.ToolCall{Kind: trace.KindWait, Value: "500"}, false},
		{"wait with nothing", trace.ToolCall{Kind: trace.KindWait}, true},
		{"wait with bad sleep", trace.ToolCall{Kind: trace.KindWait, Value: "soon"}, true},
		{"valid screenshot", trace.ToolCall{Kind: trace.KindScreenshot}, false},
		{"valid finish", trace.ToolCall{Kind: trace.KindFinish, Value: "done"}, false},
		{"unknown kind", trace.ToolCall{Kind: "teleport"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.call)
			if tt.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseScroll(t *testing.T) {
	direction, pixels, err := ParseScroll("up:250")
	require.NoError(t, err)
	assert.Equal(t, "up", direction)
	assert.Equal(t, 250, pixels)

	direction, pixels, err = ParseScroll("down")
	require.NoError(t, err)
	assert.Equal(t, "down", direction)
	assert.Equal(t, 500, pixels, "amount defaults to 500")
}

func TestSchemaShape(t *testing.T) {
	spec, _ := Lookup(trace.KindFill)
	schema := Schema(spec)

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "selector")
	assert.Contains(t, props, "value")
	assert.ElementsMatch(t, []string{"selector", "value"}, schema["required"])
}
