package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agentmesh/amcp/llm"
	"github.com/agentmesh/amcp/prompt"
)

func TestPlanHappyPath(t *testing.T) {
	engine := prompt.NewEngine()
	mock := llm.NewMock(`{"tasks":[{"id":"t1","capability":"weather.get","agent":"WeatherAgent","parameters":{"location":"Paris"},"priority":1,"dependencies":[]}],"confidence":0.95}`)
	p := New(engine, mock, nil)

	plan, err := p.Plan(context.Background(), "what's the weather in Paris?", nil, "gpt-4", "c1")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(plan.Tasks))
	}
	task := plan.Tasks[0]
	if task.Capability != "weather.get" {
		t.Errorf("capability = %q, want weather.get", task.Capability)
	}
	if task.Parameters["location"] != "Paris" {
		t.Errorf("parameters.location = %v, want Paris", task.Parameters["location"])
	}
	if plan.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", plan.Confidence)
	}
	if mock.CallCount != 1 {
		t.Errorf("expected exactly 1 LLM call, got %d", mock.CallCount)
	}
}

func TestPlanRepairsMalformedOutputThenSucceeds(t *testing.T) {
	engine := prompt.NewEngine()
	calls := 0
	mock := llm.NewMockWithFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		calls++
		if calls == 1 {
			return llm.Response{Text: "not json at all"}, nil
		}
		if !strings.Contains(req.Prompt, "### Repair") {
			t.Error("expected repair prompt to quote the previous failure")
		}
		return llm.Response{Text: `{"tasks":[{"id":"t1","capability":"general.fallback","agent":"","parameters":{},"priority":1,"dependencies":[]}],"confidence":0.5}`}, nil
	})
	p := New(engine, mock, nil)

	plan, err := p.Plan(context.Background(), "do something", nil, "gpt-4", "c2")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 LLM calls (initial + repair), got %d", calls)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Capability != "general.fallback" {
		t.Fatalf("unexpected repaired plan: %+v", plan)
	}
}

func TestPlanFallsBackToDegeneratePlanAfterExhaustingRepairs(t *testing.T) {
	engine := prompt.NewEngine()
	mock := llm.NewMock("still not json")
	p := New(engine, mock, nil, WithMaxRepairAttempts(2))

	plan, err := p.Plan(context.Background(), "do the impossible thing", nil, "gpt-4", "c3")
	if err != nil {
		t.Fatalf("Plan should never return an error, got %v", err)
	}
	if mock.CallCount != 3 {
		t.Errorf("expected 1 initial + 2 repair attempts = 3 calls, got %d", mock.CallCount)
	}
	if len(plan.Tasks) != 1 || plan.Tasks[0].Capability != FallbackCapability {
		t.Fatalf("expected single-task fallback plan, got %+v", plan)
	}
	if plan.Confidence != 0 {
		t.Errorf("expected fallback plan confidence 0, got %v", plan.Confidence)
	}
}

func TestPlanRejectsUnresolvableDependencyThenFallsBack(t *testing.T) {
	engine := prompt.NewEngine()
	mock := llm.NewMock(`{"tasks":[{"id":"t1","capability":"weather.get","agent":"","parameters":{},"priority":1,"dependencies":["ghost"]}],"confidence":0.9}`)
	p := New(engine, mock, nil, WithMaxRepairAttempts(0))

	plan, err := p.Plan(context.Background(), "weather please", nil, "gpt-4", "c4")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Tasks[0].Capability != FallbackCapability {
		t.Fatalf("expected fallback after unresolvable dependency, got %+v", plan)
	}
}

func TestValidateDAGDetectsUnknownDependency(t *testing.T) {
	tasks := []TaskDefinition{
		{TaskID: "t1", Dependencies: []string{"t2"}},
	}
	err := validateDAG(tasks)
	var unknown *ErrUnknownDependency
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownDependency, got %T: %v", err, err)
	}
	if unknown.TaskID != "t1" || unknown.DependencyID != "t2" {
		t.Errorf("unexpected error fields: %+v", unknown)
	}
}

func TestValidateDAGDetectsCycle(t *testing.T) {
	tasks := []TaskDefinition{
		{TaskID: "a", Dependencies: []string{"b"}},
		{TaskID: "b", Dependencies: []string{"a"}},
	}
	err := validateDAG(tasks)
	var cycle *ErrCycle
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.As(err, &cycle) {
		t.Fatalf("expected ErrCycle, got %T: %v", err, err)
	}
	if len(cycle.Remaining) != 2 {
		t.Errorf("expected both tasks reported stuck, got %v", cycle.Remaining)
	}
}

func TestDispatchLevelsOrdersByDependency(t *testing.T) {
	plan := TaskPlan{Tasks: []TaskDefinition{
		{TaskID: "t1"},
		{TaskID: "t2", Dependencies: []string{"t1"}},
		{TaskID: "t3", Dependencies: []string{"t1"}},
		{TaskID: "t4", Dependencies: []string{"t2", "t3"}},
	}}

	levels, err := DispatchLevels(plan)
	if err != nil {
		t.Fatalf("DispatchLevels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 dispatch levels, got %d: %+v", len(levels), levels)
	}
	if len(levels[0]) != 1 || levels[0][0].TaskID != "t1" {
		t.Errorf("level 0 should be just t1, got %+v", levels[0])
	}
	if len(levels[1]) != 2 {
		t.Errorf("level 1 should have t2 and t3, got %+v", levels[1])
	}
	if len(levels[2]) != 1 || levels[2][0].TaskID != "t4" {
		t.Errorf("level 2 should be just t4, got %+v", levels[2])
	}
}
