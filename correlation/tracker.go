package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is a correlation context's position in its terminal-resolution
// state machine.
type State int32

const (
	Pending State = iota
	Completed
	Failed
	TimedOut
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case TimedOut:
		return "TIMED_OUT"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) isTerminal() bool { return s != Pending }

// Defaults for sweeper cadence and post-resolution retention.
const (
	DefaultSweepInterval  = time.Second
	DefaultRetainSeconds  = 60
)

// ErrTimeout is the error a timed-out context resolves with.
var ErrTimeout = errors.New("correlation: timed out waiting for result")

// ErrCancelled is the error a cancelled context resolves with.
var ErrCancelled = errors.New("correlation: cancelled")

// ErrDuplicateID is returned by CreateCorrelation when id is already
// tracked (active or within its retention window).
var ErrDuplicateID = errors.New("correlation: duplicate correlation id")

// ErrNotFound is returned when an operation addresses an unknown
// correlation ID.
var ErrNotFound = errors.New("correlation: not found")

// Context is one tracked request's correlation state. Exported fields are
// set once at creation and never mutated; resolution fields are read
// through the accessor methods, which synchronize with Complete/Fail/
// Cancel/the timeout sweeper.
type Context struct {
	ID             string
	RequestType    string
	InitialContext map[string]any
	TimeoutSeconds int
	CreatedAt      time.Time

	state atomic.Int32

	mu         sync.Mutex
	result     any
	err        error
	resolvedAt time.Time
	done       chan struct{}
}

func newContext(id, requestType string, initialContext map[string]any, timeoutSeconds int) *Context {
	return &Context{
		ID:             id,
		RequestType:    requestType,
		InitialContext: initialContext,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      time.Now().UTC(),
		done:           make(chan struct{}),
	}
}

// State returns the context's current state.
func (c *Context) State() State {
	return State(c.state.Load())
}

// Result returns the result value and error the context resolved with.
// Both are zero/nil while still PENDING.
func (c *Context) Result() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.err
}

// ResolvedAt returns when the context left PENDING. Zero while PENDING.
func (c *Context) ResolvedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolvedAt
}

// Done returns a channel closed exactly once, when the context resolves.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// resolve attempts the single PENDING -> to transition. First writer
// wins: subsequent calls (from a racing complete/fail/cancel/timeout) are
// no-ops and return false.
func (c *Context) resolve(to State, result any, err error) bool {
	if !c.state.CompareAndSwap(int32(Pending), int32(to)) {
		return false
	}
	c.mu.Lock()
	c.result = result
	c.err = err
	c.resolvedAt = time.Now().UTC()
	c.mu.Unlock()
	close(c.done)
	return true
}

// Tracker is the Correlation Tracker: creates, resolves, and retains
// correlation contexts, and sweeps PENDING ones past their deadline.
type Tracker struct {
	logger        *slog.Logger
	sweepInterval time.Duration
	retainPeriod  time.Duration

	mu       sync.RWMutex
	contexts map[string]*Context

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.sweepInterval = d
		}
	}
}

// WithRetainSeconds overrides DefaultRetainSeconds.
func WithRetainSeconds(seconds int) Option {
	return func(t *Tracker) {
		if seconds > 0 {
			t.retainPeriod = time.Duration(seconds) * time.Second
		}
	}
}

// New constructs a Tracker. logger may be nil.
func New(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:        logger,
		sweepInterval: DefaultSweepInterval,
		retainPeriod:  DefaultRetainSeconds * time.Second,
		contexts:      make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins the timeout sweeper.
func (t *Tracker) Start(ctx context.Context) error {
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.sweepLoop()
	return nil
}

// Shutdown stops the timeout sweeper.
func (t *Tracker) Shutdown(ctx context.Context) error {
	if t.stopCh == nil {
		return nil
	}
	close(t.stopCh)
	<-t.doneCh
	return nil
}

// CreateCorrelation starts tracking a new PENDING context.
func (t *Tracker) CreateCorrelation(id, requestType string, initialContext map[string]any, timeoutSeconds int) (*Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.contexts[id]; exists {
		return nil, ErrDuplicateID
	}
	c := newContext(id, requestType, initialContext, timeoutSeconds)
	t.contexts[id] = c
	return c, nil
}

// Complete resolves id to COMPLETED with result, if still PENDING.
func (t *Tracker) Complete(id string, result any) error {
	c, ok := t.Get(id)
	if !ok {
		return ErrNotFound
	}
	c.resolve(Completed, result, nil)
	return nil
}

// Fail resolves id to FAILED with cause, if still PENDING.
func (t *Tracker) Fail(id string, cause error) error {
	c, ok := t.Get(id)
	if !ok {
		return ErrNotFound
	}
	c.resolve(Failed, nil, cause)
	return nil
}

// Cancel resolves id to CANCELLED, if still PENDING.
func (t *Tracker) Cancel(id string) error {
	c, ok := t.Get(id)
	if !ok {
		return ErrNotFound
	}
	c.resolve(Cancelled, nil, ErrCancelled)
	return nil
}

// Get returns the tracked context for id, including contexts still within
// their post-resolution retention window.
func (t *Tracker) Get(id string) (*Context, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.contexts[id]
	return c, ok
}

// GetActiveCount returns the number of contexts still PENDING.
func (t *Tracker) GetActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, c := range t.contexts {
		if c.State() == Pending {
			n++
		}
	}
	return n
}

// AwaitResult blocks until id resolves or timeout elapses, whichever
// comes first. This is the single future/promise abstraction used
// throughout the mesh in place of ad hoc polling.
func (t *Tracker) AwaitResult(ctx context.Context, id string, timeout time.Duration) (any, error) {
	c, ok := t.Get(id)
	if !ok {
		return nil, ErrNotFound
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-c.Done():
		return c.Result()
	case <-timeoutCh:
		return nil, fmt.Errorf("correlation: await timed out after %s: %w", timeout, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Tracker) sweepLoop() {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweepOnce()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) sweepOnce() {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.contexts {
		if c.State() == Pending {
			deadline := c.CreatedAt.Add(time.Duration(c.TimeoutSeconds) * time.Second)
			if now.After(deadline) {
				c.resolve(TimedOut, nil, ErrTimeout)
			}
			continue
		}
		if !c.ResolvedAt().IsZero() && now.Sub(c.ResolvedAt()) > t.retainPeriod {
			delete(t.contexts, id)
		}
	}
}
