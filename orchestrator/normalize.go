package orchestrator

import (
	"strconv"
	"strings"
)

// NormalizeInput lowercases keys, trims string values, and coerces
// common scalar types (numeric and boolean strings), per spec.md §4.7
// step 2. It returns a new map; input is not mutated.
func NormalizeInput(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[strings.ToLower(strings.TrimSpace(k))] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
