package event

import "testing"

func TestAsReturnsTypedPayload(t *testing.T) {
	var p Payload = TaskRequest{Capability: "weather.get"}
	req, err := As[TaskRequest](p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Capability != "weather.get" {
		t.Fatalf("got capability %q", req.Capability)
	}
}

func TestAsReturnsErrPayloadTypeOnMismatch(t *testing.T) {
	var p Payload = Heartbeat{AgentID: "a1"}
	_, err := As[TaskResponse](p)
	if err == nil {
		t.Fatal("expected error asserting Heartbeat as TaskResponse")
	}
	var typeErr *ErrPayloadType
	if _, ok := err.(*ErrPayloadType); !ok {
		t.Fatalf("expected *ErrPayloadType, got %T", err)
	}
	_ = typeErr
}

func TestRawPayloadRoundTrip(t *testing.T) {
	var p Payload = Raw{Value: map[string]any{"loc": "Paris"}}
	raw, err := As[Raw](p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := raw.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", raw.Value)
	}
	if m["loc"] != "Paris" {
		t.Fatalf("got %v", m["loc"])
	}
}
