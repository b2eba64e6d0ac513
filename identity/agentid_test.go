package identity

import "testing"

func TestEqualComparesIDAndNamespaceOnly(t *testing.T) {
	a := NewWithID("default", "abc", "weather")
	b := NewWithID("default", "abc", "other-name")
	if !a.Equal(b) {
		t.Fatalf("expected %v to equal %v (name differs, id+namespace match)", a, b)
	}

	c := NewWithID("other", "abc", "weather")
	if a.Equal(c) {
		t.Fatalf("expected %v to NOT equal %v (namespace differs)", a, c)
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := []AgentID{
		NewWithID(DefaultNamespace, "abc123", ""),
		NewWithID(DefaultNamespace, "abc123", "weather"),
		NewWithID("tenant-42", "abc123", ""),
		NewWithID("tenant-42", "abc123", "weather"),
	}

	for _, original := range cases {
		s := original.String()
		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if !parsed.Equal(original) {
			t.Fatalf("round trip broke for %+v: String()=%q Parse()=%+v", original, s, parsed)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "noseparator", "@id", "name@", ":id", "ns:"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) should have failed", s)
		}
	}
}

func TestControlTopic(t *testing.T) {
	a := NewWithID("default", "abc123", "weather")
	want := "agent.default:abc123.control"
	if got := a.ControlTopic(); got != want {
		t.Fatalf("ControlTopic() = %q, want %q", got, want)
	}
}

func TestWithMetadataDoesNotMutateOriginal(t *testing.T) {
	a := NewWithID("default", "abc123", "weather")
	b := a.WithMetadata("region", "eu-west-1")

	if _, ok := a.Metadata()["region"]; ok {
		t.Fatalf("original AgentID was mutated by WithMetadata")
	}
	if got := b.Metadata()["region"]; got != "eu-west-1" {
		t.Fatalf("WithMetadata did not apply: got %q", got)
	}
}
