package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/correlation"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/fallback"
	"github.com/agentmesh/amcp/identity"
	"github.com/agentmesh/amcp/llm"
	"github.com/agentmesh/amcp/planner"
	"github.com/agentmesh/amcp/prompt"
)

func newTestOrchestrator(t *testing.T, mockLLM *llm.Mock) (*Orchestrator, bus.Bus) {
	t.Helper()

	b := bus.NewInProcess(nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("bus Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})

	tracker := correlation.New(nil)
	if err := tracker.Start(context.Background()); err != nil {
		t.Fatalf("tracker Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tracker.Shutdown(ctx)
	})

	engine := prompt.NewEngine()
	pl := planner.New(engine, mockLLM, nil)
	fb := fallback.New(nil, fallback.WithMaxAttempts(2))

	cfg := DefaultConfig()
	cfg.TaskTimeoutMs = 2000
	cfg.LLMTimeoutMs = 2000

	orch := New(b, tracker, pl, engine, mockLLM, fb, nil, cfg)
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("orchestrator Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		orch.Shutdown(ctx)
	})

	return orch, b
}

// registerEchoAgent makes the bus respond to every orchestrator.task.request
// with a successful TaskResponse, simulating a single always-available agent.
func registerEchoAgent(t *testing.T, b bus.Bus) {
	t.Helper()
	_, err := b.Subscribe("test-agent", event.MustCompilePattern(TopicTaskRequest), func(ctx context.Context, evt event.Event) error {
		req, err := event.As[event.TaskRequest](evt.Payload())
		if err != nil {
			return err
		}
		resp := event.New(TopicTaskResponse, event.TaskResponse{
			Capability: req.Capability,
			Success:    true,
			Result:     map[string]any{"echo": req.Capability},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}, event.WithSender(identity.New("default", "test-agent")), event.WithCorrelationID(evt.CorrelationID()))
		return b.Publish(ctx, resp)
	})
	if err != nil {
		t.Fatalf("subscribe test-agent: %v", err)
	}
}

// registerFailingAgent always replies with a non-retryable failure.
func registerFailingAgent(t *testing.T, b bus.Bus, code string) {
	t.Helper()
	_, err := b.Subscribe("failing-agent", event.MustCompilePattern(TopicTaskRequest), func(ctx context.Context, evt event.Event) error {
		req, err := event.As[event.TaskRequest](evt.Payload())
		if err != nil {
			return err
		}
		resp := event.New(TopicTaskResponse, event.TaskResponse{
			Capability: req.Capability,
			Success:    false,
			Error:      &event.TaskError{Code: code, Message: "simulated failure"},
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		}, event.WithSender(identity.New("default", "failing-agent")), event.WithCorrelationID(evt.CorrelationID()))
		return b.Publish(ctx, resp)
	})
	if err != nil {
		t.Fatalf("subscribe failing-agent: %v", err)
	}
}

func planningAndSynthesisMock(planJSON string, synthesisText string) *llm.Mock {
	return llm.NewMockWithFunc(func(ctx context.Context, req llm.Request) (llm.Response, error) {
		if strings.Contains(req.Prompt, "Decompose the user's request") {
			return llm.Response{Text: planJSON}, nil
		}
		return llm.Response{Text: synthesisText}, nil
	})
}

func TestProcessRequestHappyPath(t *testing.T) {
	planJSON := `{"tasks":[{"id":"t1","capability":"weather.lookup","agent":"","parameters":{"city":"paris"},"priority":1,"dependencies":[]}],"confidence":0.9}`
	mockLLM := planningAndSynthesisMock(planJSON, "It is sunny in Paris.")

	orch, b := newTestOrchestrator(t, mockLLM)
	registerEchoAgent(t, b)

	resp, err := orch.ProcessRequest(context.Background(), Request{
		TaskDescription: "what's the weather in paris",
		InputData:       map[string]any{"City": " Paris "},
	})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if resp.Status != StatusSuccess {
		t.Errorf("status = %s, want SUCCESS", resp.Status)
	}
	if resp.ResponseText != "It is sunny in Paris." {
		t.Errorf("responseText = %q", resp.ResponseText)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if outcome := resp.Results["t1"]; !outcome.Success {
		t.Errorf("task t1 outcome not successful: %+v", outcome)
	}

	snap := orch.Metrics()
	if snap.Total != 1 || snap.Success != 1 {
		t.Errorf("metrics snapshot = %+v", snap)
	}
}

func TestProcessRequestPartialFailure(t *testing.T) {
	planJSON := `{"tasks":[` +
		`{"id":"t1","capability":"weather.lookup","agent":"","parameters":{},"priority":1,"dependencies":[]},` +
		`{"id":"t2","capability":"news.lookup","agent":"","parameters":{},"priority":1,"dependencies":[]}` +
		`],"confidence":0.8}`
	mockLLM := planningAndSynthesisMock(planJSON, "Here is the weather, but news lookup failed.")

	orch, b := newTestOrchestrator(t, mockLLM)

	// t1's capability succeeds via the mixed agent; t2 always fails
	// non-retryably, short-circuiting the fallback manager's retry loop.
	_, err := b.Subscribe("mixed-agent", event.MustCompilePattern(TopicTaskRequest), func(ctx context.Context, evt event.Event) error {
		req, err := event.As[event.TaskRequest](evt.Payload())
		if err != nil {
			return err
		}
		var resp event.Event
		if req.Capability == "news.lookup" {
			resp = event.New(TopicTaskResponse, event.TaskResponse{
				Capability: req.Capability,
				Success:    false,
				Error:      &event.TaskError{Code: event.ErrCodeInvalidParameters, Message: "bad params"},
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}, event.WithCorrelationID(evt.CorrelationID()))
		} else {
			resp = event.New(TopicTaskResponse, event.TaskResponse{
				Capability: req.Capability,
				Success:    true,
				Result:     map[string]any{"ok": true},
				Timestamp:  time.Now().UTC().Format(time.RFC3339),
			}, event.WithCorrelationID(evt.CorrelationID()))
		}
		return b.Publish(ctx, resp)
	})
	if err != nil {
		t.Fatalf("subscribe mixed-agent: %v", err)
	}

	resp, err := orch.ProcessRequest(context.Background(), Request{TaskDescription: "weather and news"})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if resp.Status != StatusPartialSuccess {
		t.Fatalf("status = %s, want PARTIAL_SUCCESS", resp.Status)
	}
	if resp.Results["t1"].Success == false {
		t.Errorf("t1 expected success")
	}
	if resp.Results["t2"].Success {
		t.Errorf("t2 expected failure")
	}
	if resp.Results["t2"].Error == nil || resp.Results["t2"].Error.Code != event.ErrCodeInvalidParameters {
		t.Errorf("t2 error = %+v, want code %s", resp.Results["t2"].Error, event.ErrCodeInvalidParameters)
	}
}

func TestProcessRequestDependencyFailurePropagates(t *testing.T) {
	planJSON := `{"tasks":[` +
		`{"id":"t1","capability":"a","agent":"","parameters":{},"priority":1,"dependencies":[]},` +
		`{"id":"t2","capability":"b","agent":"","parameters":{},"priority":1,"dependencies":["t1"]}` +
		`],"confidence":0.8}`
	mockLLM := planningAndSynthesisMock(planJSON, "partial results only")

	orch, b := newTestOrchestrator(t, mockLLM)
	registerFailingAgent(t, b, event.ErrCodeInvalidParameters)

	resp, err := orch.ProcessRequest(context.Background(), Request{TaskDescription: "chained tasks"})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if resp.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", resp.Status)
	}
	t2 := resp.Results["t2"]
	if t2.Success {
		t.Errorf("t2 should not have been dispatched given t1 failure")
	}
	if t2.Error == nil || !strings.Contains(t2.Error.Message, "dependency") {
		t.Errorf("t2 error = %+v, want a dependency-failed message", t2.Error)
	}
}

func TestProcessRequestNoAgentRespondsTimesOut(t *testing.T) {
	planJSON := `{"tasks":[{"id":"t1","capability":"nobody.home","agent":"","parameters":{},"priority":1,"dependencies":[]}],"confidence":0.5}`
	mockLLM := planningAndSynthesisMock(planJSON, "no one answered")

	orch, _ := newTestOrchestrator(t, mockLLM)
	// No agent subscribed to TopicTaskRequest: dispatchTask's AwaitResult
	// will time out against the orchestrator's short TaskTimeoutMs.

	resp, err := orch.ProcessRequest(context.Background(), Request{TaskDescription: "nothing answers"})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	if resp.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", resp.Status)
	}
	if resp.Results["t1"].Error == nil || resp.Results["t1"].Error.Code != event.ErrCodeTaskTimeout {
		t.Errorf("t1 error = %+v, want code %s", resp.Results["t1"].Error, event.ErrCodeTaskTimeout)
	}
}

func TestComputeStatus(t *testing.T) {
	cases := []struct {
		success, fail int
		want          Status
	}{
		{2, 0, StatusSuccess},
		{1, 1, StatusPartialSuccess},
		{0, 2, StatusFailed},
	}
	for _, c := range cases {
		if got := computeStatus(c.success, c.fail); got != c.want {
			t.Errorf("computeStatus(%d, %d) = %s, want %s", c.success, c.fail, got, c.want)
		}
	}
}
