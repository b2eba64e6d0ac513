package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentmesh/amcp/event"
)

func newTestBus(t *testing.T) *InProcess {
	t.Helper()
	b := NewInProcess(nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		b.Shutdown(ctx)
	})
	return b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not satisfied within %s", timeout)
}

// S1 — simple routing.
func TestSimpleRoutingExactMatch(t *testing.T) {
	b := newTestBus(t)
	var calls int32
	_, err := b.Subscribe("A", event.MustCompilePattern("weather.*"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := event.New("weather.request", event.Raw{Value: map[string]any{"loc": "Paris"}})
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })

	deeper := event.New("weather.request.new", event.Raw{})
	if err := b.Publish(context.Background(), deeper); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected handler still called exactly once, got %d", got)
	}
}

// S2 — wildcard depth.
func TestTrailingWildcardInvokedForEachMatchingDepth(t *testing.T) {
	b := newTestBus(t)
	var calls int32
	_, err := b.Subscribe("B", event.MustCompilePattern("weather.**"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(context.Background(), event.New("weather.request", event.Raw{}))
	b.Publish(context.Background(), event.New("weather.request.new", event.Raw{}))

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 2 })
}

// S6 — dead-letter after exhausting retries.
func TestDeadLetterAfterRetriesExhausted(t *testing.T) {
	b := newTestBus(t)

	var invocations int32
	_, err := b.Subscribe("S", event.MustCompilePattern("jobs.run"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&invocations, 1)
		return errFailingHandler
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var deadLetters int32
	var mu sync.Mutex
	var lastDeadTopic string
	_, err = b.Subscribe("dlq", event.MustCompilePattern(DeadLetterPrefix+".**"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&deadLetters, 1)
		mu.Lock()
		lastDeadTopic = evt.Topic()
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe dlq: %v", err)
	}

	evt := event.New("jobs.run", event.Raw{Value: "payload"}, event.WithDeliveryOptions(event.DeliveryOptions{
		Mode:       event.AtLeastOnce,
		MaxRetries: 2,
	}))
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return atomic.LoadInt32(&deadLetters) == 1 })

	if got := atomic.LoadInt32(&invocations); got != 3 {
		t.Fatalf("expected 3 handler invocations (1 + 2 retries), got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if lastDeadTopic != DeadLetterTopic("jobs.run") {
		t.Fatalf("dead letter topic = %q, want %q", lastDeadTopic, DeadLetterTopic("jobs.run"))
	}
}

func TestExactlyOnceSuppressesDuplicateHandlerInvocation(t *testing.T) {
	b := newTestBus(t)
	var calls int32
	_, err := b.Subscribe("D", event.MustCompilePattern("dedup.test"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := event.New("dedup.test", event.Raw{}, event.WithID("fixed-id"), event.WithDeliveryOptions(event.DeliveryOptions{
		Mode: event.ExactlyOnce,
	}))
	for i := 0; i < 3; i++ {
		if err := b.Publish(context.Background(), evt); err != nil {
			t.Fatalf("Publish #%d: %v", i, err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one handler invocation under EXACTLY_ONCE, got %d", got)
	}
}

func TestPublishBeforeStartFails(t *testing.T) {
	b := NewInProcess(nil)
	err := b.Publish(context.Background(), event.New("a.b", event.Raw{}))
	if err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)
	var calls int32
	h, err := b.Subscribe("U", event.MustCompilePattern("unsub.test"), func(ctx context.Context, evt event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Unsubscribe(h); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	b.Publish(context.Background(), event.New("unsub.test", event.Raw{}))
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected no invocations after unsubscribe, got %d", got)
	}

	if err := b.Unsubscribe(h); err != ErrUnknownSubscription {
		t.Fatalf("expected ErrUnknownSubscription on second unsubscribe, got %v", err)
	}
}

type failingHandlerError struct{ msg string }

func (e *failingHandlerError) Error() string { return e.msg }

var errFailingHandler = &failingHandlerError{msg: "handler always fails"}
