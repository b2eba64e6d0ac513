package event

import (
	"testing"

	"github.com/agentmesh/amcp/identity"
)

func TestNewGeneratesIDAndDefaults(t *testing.T) {
	e := New("weather.request", Raw{Value: map[string]any{"loc": "Paris"}})
	if e.ID() == "" {
		t.Fatal("expected generated ID")
	}
	if e.DataContentType() != DefaultDataContentType {
		t.Fatalf("got content type %q", e.DataContentType())
	}
	if e.DeliveryOptions().Mode != AtLeastOnce {
		t.Fatalf("expected default AT_LEAST_ONCE, got %v", e.DeliveryOptions().Mode)
	}
	if e.Timestamp().IsZero() {
		t.Fatal("expected non-zero timestamp")
	}
}

func TestNewValidatedRejectsBadTopic(t *testing.T) {
	if _, err := NewValidated("weather.*", Raw{}); err == nil {
		t.Fatal("expected error for wildcard topic")
	}
	if _, err := NewValidated("", Raw{}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestOptionsApply(t *testing.T) {
	sender := identity.NewWithID("default", "abc", "weather")
	e := New("weather.request", Raw{},
		WithSender(sender),
		WithCorrelationID("c1"),
		WithTraceID("t1"),
		WithMetadata("region", "eu-west-1"),
		WithDataSchema("https://schemas.example/weather.json"),
	)

	if !e.Sender().Equal(sender) {
		t.Fatalf("sender not applied: %+v", e.Sender())
	}
	if e.CorrelationID() != "c1" {
		t.Fatalf("correlation id not applied: %q", e.CorrelationID())
	}
	if e.TraceID() != "t1" {
		t.Fatalf("trace id not applied: %q", e.TraceID())
	}
	if e.Metadata()["region"] != "eu-west-1" {
		t.Fatalf("metadata not applied: %v", e.Metadata())
	}
	if e.DataSchema() != "https://schemas.example/weather.json" {
		t.Fatalf("schema not applied: %q", e.DataSchema())
	}
}

func TestMetadataIsDefensiveCopy(t *testing.T) {
	e := New("weather.request", Raw{}, WithMetadata("k", "v"))
	m := e.Metadata()
	m["k"] = "mutated"
	if e.Metadata()["k"] != "v" {
		t.Fatal("mutating the returned metadata map affected the event")
	}
}

func TestWithPayloadPreservesID(t *testing.T) {
	original := New("weather.request", Raw{Value: "original"})
	replaced := original.WithPayload(Raw{Value: "error-annotated"})

	if !original.Equal(replaced) {
		t.Fatal("expected WithPayload to preserve event ID")
	}
	if replaced.Payload().(Raw).Value != "error-annotated" {
		t.Fatal("expected WithPayload to change the payload")
	}
}

func TestEqualityByIDAlone(t *testing.T) {
	a := New("weather.request", Raw{Value: 1}, WithID("fixed-id"))
	b := New("weather.request", Raw{Value: 2}, WithID("fixed-id"))
	if !a.Equal(b) {
		t.Fatal("events sharing an ID should be equal regardless of payload")
	}
}
