package event

import (
	"fmt"
	"strings"
)

// segmentWildcard matches exactly one non-empty topic segment.
const segmentWildcard = "*"

// trailingWildcard matches one or more trailing topic segments.
const trailingWildcard = "**"

// Pattern is a compiled topic-matching pattern. Patterns are dot-separated
// sequences of literal segments, "*" (exactly one segment), or "**" (one or
// more trailing segments, valid only as the final segment).
type Pattern struct {
	raw      string
	segments []string
}

// CompilePattern validates and compiles a topic pattern. It rejects empty
// patterns, empty segments, "**" anywhere but the last segment, and "*"
// embedded inside a segment (e.g. "travel.re*quest").
func CompilePattern(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, fmt.Errorf("event: topic pattern must not be empty")
	}
	segments := strings.Split(pattern, ".")
	for i, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("event: topic pattern %q has an empty segment", pattern)
		}
		if seg == trailingWildcard && i != len(segments)-1 {
			return Pattern{}, fmt.Errorf("event: topic pattern %q: %q is only valid as the final segment", pattern, trailingWildcard)
		}
		if seg != segmentWildcard && seg != trailingWildcard && strings.Contains(seg, "*") {
			return Pattern{}, fmt.Errorf("event: topic pattern %q: %q must not contain embedded wildcards", pattern, seg)
		}
	}
	return Pattern{raw: pattern, segments: segments}, nil
}

// MustCompilePattern is like CompilePattern but panics on error. Intended
// for package-level pattern constants, not for patterns derived from
// external input.
func MustCompilePattern(pattern string) Pattern {
	p, err := CompilePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// ValidateTopic reports whether topic is a well-formed, non-empty,
// dot-separated topic (no wildcards, no empty segments).
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("event: topic must not be empty")
	}
	for _, seg := range strings.Split(topic, ".") {
		if seg == "" {
			return fmt.Errorf("event: topic %q has an empty segment", topic)
		}
		if strings.Contains(seg, "*") {
			return fmt.Errorf("event: topic %q must not contain wildcards", topic)
		}
	}
	return nil
}

// Match reports whether topic satisfies the pattern. Matching is
// segment-based, never a regular expression: "*" consumes exactly one
// segment, "**" consumes one or more trailing segments, and a literal
// segment must equal the corresponding topic segment exactly.
func (p Pattern) Match(topic string) bool {
	topicSegments := strings.Split(topic, ".")
	return matchSegments(p.segments, topicSegments)
}

func matchSegments(pattern, topic []string) bool {
	for i, seg := range pattern {
		if seg == trailingWildcard {
			// "**" must match at least one remaining segment.
			return len(topic) > i
		}
		if i >= len(topic) {
			return false
		}
		if seg == segmentWildcard {
			continue
		}
		if seg != topic[i] {
			return false
		}
	}
	// Every pattern segment matched positionally; topic must have no
	// leftover segments (no trailing wildcard consumed them).
	return len(topic) == len(pattern)
}
