package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	sectionExamples = "### Examples"
	sectionContext  = "### Context"
	sectionQuery    = "### Query"
	sectionFormat   = "### Output Format"
)

// jsonEnforcementMarker appears verbatim in every JSON-output prompt so
// Validate can detect whether format enforcement survived truncation or
// a careless hand-built prompt.
const jsonEnforcementMarker = "Respond with a single JSON object matching exactly this shape"

// Engine builds model-specific prompts and tracks how well they perform.
type Engine struct {
	mu    sync.Mutex
	stats map[statKey]*Stats
}

type statKey struct {
	ptype Type
	model string
}

// Stats is the running performance record for one (prompt type, model) pair.
type Stats struct {
	Calls          int
	Successes      int
	TotalLatencyMs int64
}

// SuccessRate returns Successes/Calls, or 0 when no calls were recorded.
func (s Stats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Calls)
}

// AverageLatencyMs returns the mean recorded latency, or 0 with no calls.
func (s Stats) AverageLatencyMs() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(s.Calls)
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{stats: make(map[statKey]*Stats)}
}

func (e *Engine) assemble(model string, t Type, instruction, context, query, outputShape string) (string, error) {
	profile, err := ProfileFor(model)
	if err != nil {
		return "", err
	}
	fewShot, err := fewShotFor(t, profile.MaxFewShotExamples)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(profile.SystemPrefix)
	b.WriteString("\n\n")

	if len(fewShot) > 0 {
		b.WriteString(sectionExamples)
		b.WriteString("\n")
		for _, ex := range fewShot {
			fmt.Fprintf(&b, "Query: %s\nOutput: %s\n\n", ex.Query, ex.Output)
		}
	}

	b.WriteString(instruction)
	b.WriteString("\n\n")

	b.WriteString(sectionContext)
	b.WriteString("\n")
	if context == "" {
		context = "(none)"
	}
	b.WriteString(context)
	b.WriteString("\n\n")

	b.WriteString(sectionQuery)
	b.WriteString("\n")
	b.WriteString(query)
	b.WriteString("\n\n")

	if t.isJSON() {
		b.WriteString(sectionFormat)
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s:\n%s\n", jsonEnforcementMarker, outputShape)
		if profile.StrictJSONMode {
			b.WriteString("No markdown fences, no commentary, JSON only.\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(profile.SystemSuffix)
	return b.String(), nil
}

// BuildTaskPlanningPrompt asks the model to decompose query into an
// ordered task plan drawing from availableAgents.
func (e *Engine) BuildTaskPlanningPrompt(query string, availableAgents []AgentSummary, model string) (string, error) {
	instruction := "Decompose the user's request into an ordered list of tasks. Each task must name a capability and, when known, a target agent. Record dependencies by task id."

	var ctx strings.Builder
	for _, a := range availableAgents {
		fmt.Fprintf(&ctx, "- %s (%s): capabilities=%s — %s\n", a.AgentID, a.AgentType, strings.Join(a.Capabilities, ", "), a.Description)
	}

	shape := `{"tasks":[{"id":"...","capability":"...","agent":"...","parameters":{},"priority":1,"dependencies":[]}],"confidence":0.0}`
	return e.assemble(model, TaskPlanning, instruction, ctx.String(), query, shape)
}

// BuildCapabilityDetectionPrompt asks the model to classify query against
// capabilityMap (capability -> agent IDs offering it).
func (e *Engine) BuildCapabilityDetectionPrompt(query string, capabilityMap map[string][]string, model string) (string, error) {
	instruction := "Identify the single capability this request needs and which agent should handle it."

	var ctx strings.Builder
	for capability, agents := range capabilityMap {
		fmt.Fprintf(&ctx, "- %s -> %s\n", capability, strings.Join(agents, ", "))
	}

	shape := `{"intent":"...","capability":"...","targetAgent":"...","confidence":0.0,"parameters":{}}`
	return e.assemble(model, CapabilityDetection, instruction, ctx.String(), query, shape)
}

// BuildParameterExtractionPrompt asks the model to pull the expected
// parameter names out of query.
func (e *Engine) BuildParameterExtractionPrompt(query string, expected []string, model string) (string, error) {
	instruction := "Extract the following parameters from the request. Use null for any parameter not present."

	ctx := "Expected parameters: " + strings.Join(expected, ", ")

	shape := `{"parameters":{},"confidence":0.0}`
	return e.assemble(model, ParameterExtraction, instruction, ctx, query, shape)
}

// BuildResponseSynthesisPrompt asks the model to compose a final
// natural-language answer from the collected task results.
func (e *Engine) BuildResponseSynthesisPrompt(query string, responses []TaskResult, model string) (string, error) {
	instruction := "Compose a single, direct natural-language answer to the original request using the task results below. If any task failed, acknowledge what is missing instead of guessing."

	var ctx strings.Builder
	for _, r := range responses {
		if r.Success {
			resultJSON, _ := json.Marshal(r.Result)
			fmt.Fprintf(&ctx, "- %s (%s): ok — %s\n", r.TaskID, r.Capability, resultJSON)
		} else {
			fmt.Fprintf(&ctx, "- %s (%s): failed — %s\n", r.TaskID, r.Capability, r.Error)
		}
	}

	return e.assemble(model, ResponseSynthesis, instruction, ctx.String(), query, "")
}

// Validate scores a built prompt's structural health. Score starts at
// 100 and accumulates deductions for length, missing examples, missing
// JSON enforcement, and missing required sections.
func (e *Engine) Validate(promptText string, t Type) (int, []string) {
	score := 100
	var issues []string

	n := len(promptText)
	if n < 100 {
		score -= 20
		issues = append(issues, "prompt is suspiciously short (<100 chars)")
	} else if n > 8000 {
		score -= 15
		issues = append(issues, "prompt exceeds 8000 chars")
	}

	if !strings.Contains(promptText, sectionExamples) {
		score -= 25
		issues = append(issues, "missing few-shot examples section")
	}

	if t.isJSON() {
		if !strings.Contains(promptText, jsonEnforcementMarker) {
			score -= 30
			issues = append(issues, "missing JSON-format enforcement")
		}
	}

	for _, req := range requiredSections(t) {
		if !strings.Contains(promptText, req.marker) {
			score -= req.penalty
			issues = append(issues, "missing required section: "+req.marker)
		}
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

type requiredSection struct {
	marker  string
	penalty int
}

func requiredSections(t Type) []requiredSection {
	switch t {
	case TaskPlanning:
		return []requiredSection{{sectionContext, 15}, {sectionQuery, 15}}
	case CapabilityDetection:
		return []requiredSection{{sectionContext, 15}, {sectionQuery, 15}}
	case ParameterExtraction:
		return []requiredSection{{sectionContext, 20}, {sectionQuery, 15}}
	case ResponseSynthesis:
		return []requiredSection{{sectionContext, 25}, {sectionQuery, 15}}
	default:
		return nil
	}
}

// RecordPerformance accumulates a completion outcome for (ptype, model)
// for later inspection via Stats.
func (e *Engine) RecordPerformance(t Type, model string, success bool, latencyMillis int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := statKey{ptype: t, model: model}
	s, ok := e.stats[key]
	if !ok {
		s = &Stats{}
		e.stats[key] = s
	}
	s.Calls++
	if success {
		s.Successes++
	}
	s.TotalLatencyMs += latencyMillis
}

// StatsFor returns the recorded performance for (t, model).
func (e *Engine) StatsFor(t Type, model string) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.stats[statKey{ptype: t, model: model}]; ok {
		return *s
	}
	return Stats{}
}
