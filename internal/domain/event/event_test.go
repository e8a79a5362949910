package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"workflow created", TypeWorkflowCreated, true},
		{"workflow started", TypeWorkflowStarted, true},
		{"workflow paused", TypeWorkflowPaused, true},
		{"workflow resumed", TypeWorkflowResumed, true},
		{"workflow completed", TypeWorkflowCompleted, true},
		{"workflow failed", TypeWorkflowFailed, true},
		{"workflow cancelled", TypeWorkflowCancelled, true},
		{"step completed", TypeStepCompleted, true},
		{"step failed", TypeStepFailed, true},
		{"unknown type", Type("instance.approved"), false},
		{"empty string", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsTerminal(t *testing.T) {
	terminal := map[Type]bool{
		TypeWorkflowCompleted: true,
		TypeWorkflowFailed:    true,
		TypeWorkflowCancelled: true,
	}
	for _, typ := range []Type{TypeWorkflowCreated, TypeWorkflowStarted, TypeWorkflowPaused, TypeWorkflowResumed,
		TypeWorkflowCompleted, TypeWorkflowFailed, TypeWorkflowCancelled, TypeStepCompleted, TypeStepFailed} {
		if got := typ.IsTerminal(); got != terminal[typ] {
			t.Errorf("%s.IsTerminal() = %v, want %v", typ, got, terminal[typ])
		}
	}
}

func TestNewEvent(t *testing.T) {
	event := NewEvent(TypeWorkflowStarted, "wf-123", map[string]interface{}{"status": "RUNNING"})

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}
	if event.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if event.Type != TypeWorkflowStarted {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeWorkflowStarted)
	}
	if event.WorkflowID != "wf-123" {
		t.Errorf("Event WorkflowID = %v, want %v", event.WorkflowID, "wf-123")
	}
	if event.CorrelationID != "wf-123" {
		t.Errorf("Event CorrelationID = %v, want workflow id", event.CorrelationID)
	}
	if event.Payload["status"] != "RUNNING" {
		t.Errorf("Event Payload[status] = %v, want %v", event.Payload["status"], "RUNNING")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	event := NewEvent(TypeWorkflowCreated, "wf-1", nil)
	if event.Payload == nil {
		t.Fatal("Payload should be initialized")
	}
	if NewEvent(TypeWorkflowCreated, "wf-1", nil).ID == event.ID {
		t.Error("event IDs should be unique")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	event := NewEventWithCorrelation(TypeStepFailed, "wf-9", nil, "request-42")

	if event.CorrelationID != "request-42" {
		t.Errorf("Event CorrelationID = %v, want %v", event.CorrelationID, "request-42")
	}
	if event.WorkflowID != "wf-9" {
		t.Errorf("Event WorkflowID = %v, want %v", event.WorkflowID, "wf-9")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeStepCompleted, "wf-1", map[string]interface{}{"step_id": "analyze"})

	modified := original.WithPayload("duration_ms", 120)

	if _, exists := original.Payload["duration_ms"]; exists {
		t.Error("Original event should not be modified")
	}
	if modified.Payload["step_id"] != "analyze" {
		t.Error("Modified event should retain original payload")
	}
	if modified.GetPayloadInt("duration_ms") != 120 {
		t.Error("Modified event should have new payload")
	}
	if modified.ID != original.ID || modified.WorkflowID != original.WorkflowID {
		t.Error("Modified event should keep identity fields")
	}
}

func TestEvent_PayloadAccessors(t *testing.T) {
	event := NewEvent(TypeStepFailed, "wf-1", map[string]interface{}{
		"error":    "timeout",
		"index":    float64(2),
		"attempts": int64(3),
		"flag":     true,
	})

	if got := event.GetPayloadString("error"); got != "timeout" {
		t.Errorf("GetPayloadString(error) = %q", got)
	}
	if got := event.GetPayloadString("flag"); got != "" {
		t.Errorf("GetPayloadString(flag) = %q, want empty", got)
	}
	if got := event.GetPayloadInt("index"); got != 2 {
		t.Errorf("GetPayloadInt(index) = %d", got)
	}
	if got := event.GetPayloadInt("attempts"); got != 3 {
		t.Errorf("GetPayloadInt(attempts) = %d", got)
	}
	if got := event.GetPayloadInt("missing"); got != 0 {
		t.Errorf("GetPayloadInt(missing) = %d", got)
	}
}
