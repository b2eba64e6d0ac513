package correlation

import (
	"context"
	"testing"
	"time"
)

func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	tr := New(nil, opts...)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { tr.Shutdown(context.Background()) })
	return tr
}

// S3 — correlation timeout and completion.
func TestCorrelationTimesOut(t *testing.T) {
	tr := newTestTracker(t, WithSweepInterval(50*time.Millisecond))
	if _, err := tr.CreateCorrelation("c1", "test", nil, 1); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	c, ok := tr.Get("c1")
	if !ok {
		t.Fatal("expected c1 to still be trackable within retention")
	}
	if c.State() != TimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", c.State())
	}
	if tr.GetActiveCount() != 0 {
		t.Fatalf("expected getActiveCount to exclude c1, got %d", tr.GetActiveCount())
	}
}

func TestCorrelationCompletes(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.CreateCorrelation("c2", "test", nil, 10); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}
	if err := tr.Complete("c2", map[string]any{"ok": true}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	c, ok := tr.Get("c2")
	if !ok {
		t.Fatal("expected c2 to be tracked")
	}
	if c.State() != Completed {
		t.Fatalf("expected COMPLETED, got %s", c.State())
	}
	result, err := c.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestFirstWriterWinsOnRace(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.CreateCorrelation("c3", "test", nil, 10); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}

	if err := tr.Complete("c3", "first"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := tr.Fail("c3", errSentinel); err != nil {
		t.Fatalf("Fail (should be a no-op, not an error): %v", err)
	}

	c, _ := tr.Get("c3")
	if c.State() != Completed {
		t.Fatalf("expected first resolution (COMPLETED) to win, got %s", c.State())
	}
	result, err := c.Result()
	if err != nil || result != "first" {
		t.Fatalf("expected result %q with no error, got %v / %v", "first", result, err)
	}
}

func TestAwaitResultReturnsOnCompletion(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.CreateCorrelation("c4", "test", nil, 10); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.Complete("c4", "done")
	}()

	result, err := tr.AwaitResult(context.Background(), "c4", 2*time.Second)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if result != "done" {
		t.Fatalf("expected %q, got %v", "done", result)
	}
}

func TestAwaitResultTimesOutIndependentlyOfTrackerTimeout(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.CreateCorrelation("c5", "test", nil, 30); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}

	_, err := tr.AwaitResult(context.Background(), "c5", 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected AwaitResult to time out")
	}
}

func TestCreateCorrelationRejectsDuplicateID(t *testing.T) {
	tr := newTestTracker(t)
	if _, err := tr.CreateCorrelation("dup", "test", nil, 10); err != nil {
		t.Fatalf("CreateCorrelation: %v", err)
	}
	if _, err := tr.CreateCorrelation("dup", "test", nil, 10); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

type sentinelError struct{}

func (sentinelError) Error() string { return "sentinel" }

var errSentinel = sentinelError{}
