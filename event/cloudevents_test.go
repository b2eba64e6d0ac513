package event

import (
	"encoding/json"
	"testing"

	"github.com/agentmesh/amcp/identity"
)

func TestCloudEventRoundTripTaskRequest(t *testing.T) {
	sender := identity.NewWithID("default", "abc", "orchestrator")
	original := New("orchestrator.task.request", TaskRequest{
		Capability: "weather.get",
		Parameters: map[string]any{"location": "Paris"},
		UserContext: UserContext{
			UserID:    "u1",
			SessionID: "s1",
		},
		Priority:  5,
		TimeoutMs: 15000,
		Timestamp: "2026-07-31T00:00:00Z",
	},
		WithSender(sender),
		WithCorrelationID("c1"),
		WithTraceID("t1"),
		WithMetadata("region", "eu-west-1"),
	)

	wire, err := ToCloudEvent(original)
	if err != nil {
		t.Fatalf("ToCloudEvent: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal(wire, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope["specversion"] != SpecVersion {
		t.Fatalf("specversion = %v", envelope["specversion"])
	}
	if envelope["type"] != original.Topic() {
		t.Fatalf("type = %v, want %v", envelope["type"], original.Topic())
	}
	if envelope["source"] != sender.String() {
		t.Fatalf("source = %v, want %v", envelope["source"], sender.String())
	}

	roundTripped, err := FromCloudEvent(wire)
	if err != nil {
		t.Fatalf("FromCloudEvent: %v", err)
	}
	if !roundTripped.Equal(original) {
		t.Fatal("round trip lost the event ID")
	}
	if roundTripped.CorrelationID() != "c1" {
		t.Fatalf("correlation id = %q", roundTripped.CorrelationID())
	}
	if roundTripped.TraceID() != "t1" {
		t.Fatalf("trace id = %q", roundTripped.TraceID())
	}
	if roundTripped.Metadata()["region"] != "eu-west-1" {
		t.Fatalf("metadata = %v", roundTripped.Metadata())
	}

	req, err := As[TaskRequest](roundTripped.Payload())
	if err != nil {
		t.Fatalf("As[TaskRequest]: %v", err)
	}
	if req.Capability != "weather.get" {
		t.Fatalf("capability = %q", req.Capability)
	}
	if req.Parameters["location"] != "Paris" {
		t.Fatalf("parameters = %v", req.Parameters)
	}
}

func TestCloudEventRoundTripRawPayload(t *testing.T) {
	original := New("weather.request", Raw{Value: map[string]any{"loc": "Paris"}})

	wire, err := ToCloudEvent(original)
	if err != nil {
		t.Fatalf("ToCloudEvent: %v", err)
	}
	roundTripped, err := FromCloudEvent(wire)
	if err != nil {
		t.Fatalf("FromCloudEvent: %v", err)
	}

	raw, err := As[Raw](roundTripped.Payload())
	if err != nil {
		t.Fatalf("As[Raw]: %v", err)
	}
	m, ok := raw.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", raw.Value)
	}
	if m["loc"] != "Paris" {
		t.Fatalf("loc = %v", m["loc"])
	}
}

func TestValidateExtensionNamesRejectsReserved(t *testing.T) {
	if err := ValidateExtensionNames("amcptraceid", "custom"); err != nil {
		t.Fatalf("unexpected error for non-reserved names: %v", err)
	}
	for _, reserved := range []string{"id", "type", "source", "data", "time"} {
		if err := ValidateExtensionNames(reserved); err == nil {
			t.Fatalf("expected error for reserved name %q", reserved)
		}
	}
}

func TestFromCloudEventRejectsBadSpecVersion(t *testing.T) {
	bad := []byte(`{"specversion":"0.3","id":"x","type":"a.b","source":"s","time":"2026-07-31T00:00:00Z"}`)
	if _, err := FromCloudEvent(bad); err == nil {
		t.Fatal("expected error for unsupported specversion")
	}
}
