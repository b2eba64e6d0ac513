package event

import "testing"

func TestPatternMatchSingleWildcard(t *testing.T) {
	p := MustCompilePattern("weather.*")
	if !p.Match("weather.request") {
		t.Fatal("weather.* should match weather.request")
	}
	if p.Match("weather.request.new") {
		t.Fatal("weather.* should not match weather.request.new")
	}
	if p.Match("weather") {
		t.Fatal("weather.* should not match weather (zero segments)")
	}
}

func TestPatternMatchTrailingWildcard(t *testing.T) {
	p := MustCompilePattern("weather.**")
	if !p.Match("weather.request") {
		t.Fatal("weather.** should match weather.request")
	}
	if !p.Match("weather.request.new") {
		t.Fatal("weather.** should match weather.request.new")
	}
	if p.Match("weather") {
		t.Fatal("weather.** should require at least one trailing segment")
	}
}

func TestPatternMatchExact(t *testing.T) {
	p := MustCompilePattern("travel.request")
	if !p.Match("travel.request") {
		t.Fatal("exact pattern should match itself")
	}
	if p.Match("travel.request.new") {
		t.Fatal("exact pattern should not match a longer topic")
	}
	if p.Match("travel") {
		t.Fatal("exact pattern should not match a shorter topic")
	}
}

func TestPatternMatchMixed(t *testing.T) {
	p := MustCompilePattern("orchestrator.*.response")
	if !p.Match("orchestrator.task-1.response") {
		t.Fatal("expected middle wildcard to match one segment")
	}
	if p.Match("orchestrator.task-1.extra.response") {
		t.Fatal("middle wildcard should not match multiple segments")
	}
}

func TestCompilePatternRejectsEmbeddedWildcard(t *testing.T) {
	if _, err := CompilePattern("travel.re*quest"); err == nil {
		t.Fatal("expected error for embedded wildcard")
	}
}

func TestCompilePatternRejectsMisplacedTrailingWildcard(t *testing.T) {
	if _, err := CompilePattern("travel.**.request"); err == nil {
		t.Fatal("expected error for ** not in final position")
	}
}

func TestCompilePatternRejectsEmptySegments(t *testing.T) {
	for _, p := range []string{"", "travel..request", ".travel"} {
		if _, err := CompilePattern(p); err == nil {
			t.Fatalf("expected error compiling %q", p)
		}
	}
}

func TestMatchMonotonicUnderMoreSpecificPattern(t *testing.T) {
	// If pattern P matches topic T, a more specific pattern P' that also
	// matches T keeps matching regardless of event metadata: matching is
	// purely a function of (pattern, topic).
	broad := MustCompilePattern("travel.**")
	specific := MustCompilePattern("travel.request")
	topic := "travel.request"

	if !broad.Match(topic) || !specific.Match(topic) {
		t.Fatal("both patterns should match travel.request")
	}
}

func TestValidateTopic(t *testing.T) {
	if err := ValidateTopic("weather.request"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "weather.*", "weather..request"} {
		if err := ValidateTopic(bad); err == nil {
			t.Fatalf("expected error validating %q", bad)
		}
	}
}
