package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmesh/amcp/llm"
	"github.com/agentmesh/amcp/prompt"
)

// DefaultMaxRepairAttempts is how many times Plan retries a malformed or
// invalid LLM response with a repair prompt before giving up and
// returning a degenerate fallback plan.
const DefaultMaxRepairAttempts = 2

// Planner turns a query into a TaskPlan by prompting an LLM and
// validating its structured response. Planner holds no per-call state;
// it is safe for concurrent use.
type Planner struct {
	engine            *prompt.Engine
	llmClient         llm.Client
	logger            *slog.Logger
	maxRepairAttempts int
}

// Option configures a Planner at construction.
type Option func(*Planner)

// WithMaxRepairAttempts overrides DefaultMaxRepairAttempts.
func WithMaxRepairAttempts(n int) Option {
	return func(p *Planner) { p.maxRepairAttempts = n }
}

// New constructs a Planner. logger may be nil, in which case slog.Default is used.
func New(engine *prompt.Engine, llmClient llm.Client, logger *slog.Logger, opts ...Option) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Planner{
		engine:            engine,
		llmClient:         llmClient,
		logger:            logger,
		maxRepairAttempts: DefaultMaxRepairAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// wireTask mirrors the task-planning JSON output contract's per-task shape.
type wireTask struct {
	ID           string         `json:"id"`
	Capability   string         `json:"capability"`
	Agent        string         `json:"agent"`
	Parameters   map[string]any `json:"parameters"`
	Priority     int            `json:"priority"`
	Dependencies []string       `json:"dependencies"`
}

type wirePlan struct {
	Tasks      []wireTask `json:"tasks"`
	Confidence float64    `json:"confidence"`
}

// Plan decomposes query into a TaskPlan, retrying malformed or invalid
// LLM output up to maxRepairAttempts times with a repair prompt before
// falling back to a single-task plan tagged FallbackCapability.
func (p *Planner) Plan(ctx context.Context, query string, availableAgents []prompt.AgentSummary, model, correlationID string) (TaskPlan, error) {
	promptText, err := p.engine.BuildTaskPlanningPrompt(query, availableAgents, model)
	if err != nil {
		return TaskPlan{}, fmt.Errorf("planner: build prompt: %w", err)
	}

	var lastBad string
	var lastErr error

	for attempt := 0; attempt <= p.maxRepairAttempts; attempt++ {
		currentPrompt := promptText
		if attempt > 0 {
			currentPrompt = repairPrompt(promptText, lastBad, lastErr)
		}

		resp, err := p.llmClient.Complete(ctx, llm.Request{Prompt: currentPrompt, Model: model})
		if err != nil {
			lastErr = fmt.Errorf("llm call failed: %w", err)
			p.logger.Warn("planner: llm call failed", "correlationId", correlationID, "attempt", attempt, "error", err)
			lastBad = ""
			continue
		}

		plan, err := parseAndValidate(resp.Text)
		if err == nil {
			p.logger.Debug("planner: produced plan", "correlationId", correlationID, "attempt", attempt, "tasks", len(plan.Tasks))
			return plan, nil
		}

		lastErr = err
		lastBad = resp.Text
		p.logger.Warn("planner: invalid plan output, will repair", "correlationId", correlationID, "attempt", attempt, "error", err)
	}

	p.logger.Error("planner: exhausted repair attempts, returning fallback plan", "correlationId", correlationID, "error", lastErr)
	return fallbackPlan(query), nil
}

func parseAndValidate(raw string) (TaskPlan, error) {
	raw = extractJSONObject(raw)

	var wp wirePlan
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		return TaskPlan{}, fmt.Errorf("decode plan JSON: %w", err)
	}
	if err := prompt.ValidateOutput(prompt.TaskPlanning, []byte(raw)); err != nil {
		return TaskPlan{}, err
	}

	tasks := make([]TaskDefinition, 0, len(wp.Tasks))
	for _, wt := range wp.Tasks {
		tasks = append(tasks, TaskDefinition{
			TaskID:       wt.ID,
			Capability:   wt.Capability,
			TargetAgent:  wt.Agent,
			Parameters:   wt.Parameters,
			Priority:     wt.Priority,
			Dependencies: wt.Dependencies,
		})
	}

	if err := validateDAG(tasks); err != nil {
		return TaskPlan{}, err
	}

	return TaskPlan{Tasks: tasks, Confidence: wp.Confidence}, nil
}

// extractJSONObject trims any leading/trailing prose a non-strict model
// might wrap around the JSON object, returning the substring from the
// first '{' to the last '}'.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func repairPrompt(original, badOutput string, cause error) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\n### Repair\n")
	b.WriteString("Your previous response was rejected")
	if cause != nil {
		fmt.Fprintf(&b, " (%s)", cause.Error())
	}
	b.WriteString(". It was:\n")
	b.WriteString(badOutput)
	b.WriteString("\nProduce a corrected response matching the required JSON shape exactly.")
	return b.String()
}

func fallbackPlan(query string) TaskPlan {
	return TaskPlan{
		Tasks: []TaskDefinition{
			{
				TaskID:       "fallback-1",
				Capability:   FallbackCapability,
				Parameters:   map[string]any{"query": query},
				Priority:     5,
				Dependencies: nil,
			},
		},
		Confidence: 0,
	}
}

// DispatchLevels groups plan.Tasks into ordered levels for topological
// dispatch: level 0 has no unmet dependencies, subsequent levels depend
// only on earlier levels.
func DispatchLevels(plan TaskPlan) ([][]TaskDefinition, error) {
	return topologicalLevels(plan.Tasks)
}
