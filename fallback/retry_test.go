package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/amcp/event"
)

func TestRetrySucceedsEventually(t *testing.T) {
	m := New(nil, WithMaxAttempts(3))

	calls := 0
	result, taskErr := m.Retry(context.Background(), "t1", func(ctx context.Context, attempt int) (any, *event.TaskError) {
		calls++
		if attempt < 2 {
			return nil, &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: "boom"}
		}
		return "ok", nil
	})

	if taskErr != nil {
		t.Fatalf("expected eventual success, got error: %+v", taskErr)
	}
	if result != "ok" {
		t.Fatalf("result = %v, want ok", result)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryNonRetryableShortCircuits(t *testing.T) {
	m := New(nil, WithMaxAttempts(5))

	calls := 0
	_, taskErr := m.Retry(context.Background(), "t1", func(ctx context.Context, attempt int) (any, *event.TaskError) {
		calls++
		return nil, &event.TaskError{Code: event.ErrCodeUnauthorized, Message: "nope"}
	})

	if taskErr == nil || taskErr.Code != event.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED error, got %+v", taskErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (non-retryable should short-circuit)", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	m := New(nil, WithMaxAttempts(2))

	calls := 0
	_, taskErr := m.Retry(context.Background(), "t1", func(ctx context.Context, attempt int) (any, *event.TaskError) {
		calls++
		return nil, &event.TaskError{Code: event.ErrCodeAgentUnavailable, Message: "down"}
	})

	if taskErr == nil || taskErr.Code != event.ErrCodeAgentUnavailable {
		t.Fatalf("expected AGENT_UNAVAILABLE error, got %+v", taskErr)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	m := New(nil, WithMaxAttempts(5))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, taskErr := m.Retry(ctx, "t1", func(ctx context.Context, attempt int) (any, *event.TaskError) {
		calls++
		if attempt == 0 {
			cancel()
		}
		return nil, &event.TaskError{Code: event.ErrCodeExecutionFailed}
	})

	if taskErr == nil || taskErr.Code != event.ErrCodeTaskTimeout {
		t.Fatalf("expected TASK_TIMEOUT from cancellation, got %+v", taskErr)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]bool{
		event.ErrCodeTaskTimeout:       true,
		event.ErrCodeAgentUnavailable:  true,
		event.ErrCodeExecutionFailed:   true,
		event.ErrCodeUnauthorized:      false,
		event.ErrCodeInvalidParameters: false,
		ErrCodeCapabilityUnknown:       false,
		"SOME_AGENT_SPECIFIC_CODE":     true,
	}
	for code, want := range cases {
		if got := IsRetryable(code); got != want {
			t.Errorf("IsRetryable(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestEmergencyMessage(t *testing.T) {
	m := New(nil)

	msg := m.EmergencyMessage(event.ErrCodeTaskTimeout, "weather lookup")
	if msg == "" {
		t.Fatal("expected non-empty emergency message")
	}

	generic := m.EmergencyMessage("NO_SUCH_CATEGORY", "weather lookup")
	if generic != m.EmergencyMessage("", "anything") {
		t.Errorf("unknown category should fall back to the generic message")
	}
}

func TestEmergencyMessageOverride(t *testing.T) {
	m := New(nil, WithEmergencyMessage(event.ErrCodeTaskTimeout, "custom: %s"))
	got := m.EmergencyMessage(event.ErrCodeTaskTimeout, "thing")
	if got != "custom: thing" {
		t.Errorf("got %q, want %q", got, "custom: thing")
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: backoff must be positive, got %s", attempt, d)
		}
		if d > backoffCap+backoffCap/2 {
			t.Fatalf("attempt %d: backoff %s exceeds cap+jitter bound", attempt, d)
		}
	}
}

func TestHealthMonitorAgentHealth(t *testing.T) {
	h := NewHealthMonitor(nil, WithStaleAfter(50*time.Millisecond))

	if got := h.AgentHealth("ghost"); got != Unknown {
		t.Fatalf("never-seen agent = %s, want UNKNOWN", got)
	}

	h.RecordHeartbeat("a1")
	if got := h.AgentHealth("a1"); got != Healthy {
		t.Fatalf("fresh heartbeat = %s, want HEALTHY", got)
	}

	time.Sleep(70 * time.Millisecond)
	if got := h.AgentHealth("a1"); got != Degraded {
		t.Fatalf("stale heartbeat = %s, want DEGRADED", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got := h.AgentHealth("a1"); got != Unhealthy {
		t.Fatalf("very stale heartbeat = %s, want UNHEALTHY", got)
	}
}

func TestHealthMonitorAlertsOnComponentDegradation(t *testing.T) {
	h := NewHealthMonitor(nil)

	var got []Alert
	h.AddAlertHandler(func(a Alert) { got = append(got, a) })

	h.SetComponentHealth("bus", Healthy)
	h.SetComponentHealth("bus", Degraded)
	h.SetComponentHealth("bus", Degraded) // no-op, unchanged

	if len(got) != 1 {
		t.Fatalf("got %d alerts, want 1", len(got))
	}
	if got[0].Component != "bus" || got[0].Level != Degraded {
		t.Errorf("alert = %+v", got[0])
	}
}

func TestHealthMonitorCountersAndGauges(t *testing.T) {
	h := NewHealthMonitor(nil)
	h.IncrCounter("tasks.total", 1)
	h.IncrCounter("tasks.total", 2)
	if h.Counter("tasks.total") != 3 {
		t.Fatalf("counter = %d, want 3", h.Counter("tasks.total"))
	}
	h.SetGauge("queue.depth", 42)
	if h.Gauge("queue.depth") != 42 {
		t.Fatalf("gauge = %v, want 42", h.Gauge("queue.depth"))
	}
}
