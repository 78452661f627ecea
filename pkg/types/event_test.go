package types

import (
	"encoding/json"
	"testing"
)

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name      string
		event     *AgentEvent
		wantType  AgentEventType
		terminal  bool
		droppable bool
	}{
		{"log", NewLogEvent("navigating"), EventTypeLog, false, true},
		{"screenshot", NewScreenshotEvent("aGVsbG8="), EventTypeScreenshot, false, true},
		{"code", NewCodeEvent("code", "test-example.spec.ts"), EventTypeCode, false, false},
		{"error", NewErrorEvent("boom"), EventTypeError, false, false},
		{"complete", NewCompleteEvent("done"), EventTypeComplete, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Type != tt.wantType {
				t.Errorf("type = %s, want %s", tt.event.Type, tt.wantType)
			}
			if tt.event.IsTerminal() != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", tt.event.IsTerminal(), tt.terminal)
			}
			if tt.event.Droppable() != tt.droppable {
				t.Errorf("Droppable() = %v, want %v", tt.event.Droppable(), tt.droppable)
			}
			if tt.event.Timestamp.IsZero() {
				t.Error("timestamp should be set")
			}
		})
	}
}

func TestEventWireShape(t *testing.T) {
	data, err := json.Marshal(NewCodeEvent("await page.goto('x');", "test-x.spec.ts"))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "code" {
		t.Errorf("type field = %v", decoded["type"])
	}
	if _, ok := decoded["message"]; ok {
		t.Error("empty message should be omitted from wire shape")
	}
	if decoded["code"] == "" {
		t.Error("code payload missing")
	}
}
