package fallback

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/agentmesh/amcp/event"
)

// ErrCodeCapabilityUnknown is a non-retryable failure code the
// orchestrator reports when a task plan names a capability no
// registered agent offers. It is not one of spec.md's five reserved
// TaskError codes but shares their short-circuit treatment.
const ErrCodeCapabilityUnknown = "CAPABILITY_UNKNOWN"

// Backoff constants for Retry, matching the bus's delivery-mode backoff
// (same shape: exponential, base 100ms, capped 5s, +/-20% jitter) rather
// than inventing a second schedule.
const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 5 * time.Second
	backoffJit  = 0.2
)

// DefaultMaxAttempts is how many times Retry tries a task before giving
// up, per spec.md's "up to N attempts (default 2)".
const DefaultMaxAttempts = 2

// nonRetryable is the set of TaskError codes that short-circuit Retry
// instead of being retried: capability unknown, unauthorized, invalid
// parameters.
var nonRetryable = map[string]bool{
	ErrCodeCapabilityUnknown:       true,
	event.ErrCodeUnauthorized:      true,
	event.ErrCodeInvalidParameters: true,
}

// IsRetryable reports whether a TaskError code should be retried. Unknown
// codes are treated as retryable (conservative: agent-specific codes
// default to transient).
func IsRetryable(code string) bool {
	return !nonRetryable[code]
}

// AttemptFunc performs one try at executing a task. attempt is 0-based.
// A nil *event.TaskError means success.
type AttemptFunc func(ctx context.Context, attempt int) (result any, taskErr *event.TaskError)

// Manager is the Fallback Manager: bounded retry plus the emergency
// message dictionary. It holds no per-task state and is safe for
// concurrent use.
type Manager struct {
	logger      *slog.Logger
	maxAttempts int
	emergency   map[string]string
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithEmergencyMessage overrides (or adds) the canned message template
// for category. The template may contain one "%s" verb, substituted with
// the failing task's description.
func WithEmergencyMessage(category, template string) Option {
	return func(m *Manager) { m.emergency[category] = template }
}

// New constructs a Manager. logger may be nil.
func New(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		emergency:   defaultEmergencyMessages(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Retry runs fn up to m.maxAttempts times, applying exponential backoff
// between attempts and resetting for each new attempt (callers are
// expected to create a fresh correlation context per attempt inside fn,
// per spec.md's "each attempt resets its correlation context"). A
// non-retryable TaskError or ctx cancellation stops retrying immediately.
func (m *Manager) Retry(ctx context.Context, taskID string, fn AttemptFunc) (any, *event.TaskError) {
	var lastErr *event.TaskError
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		result, taskErr := fn(ctx, attempt)
		if taskErr == nil {
			return result, nil
		}
		lastErr = taskErr
		m.logger.Warn("fallback: task attempt failed", "taskId", taskID, "attempt", attempt, "code", taskErr.Code, "message", taskErr.Message)

		if !IsRetryable(taskErr.Code) {
			m.logger.Info("fallback: non-retryable failure, short-circuiting", "taskId", taskID, "code", taskErr.Code)
			return nil, lastErr
		}
		if attempt == m.maxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoffDelay(attempt)):
		case <-ctx.Done():
			return nil, &event.TaskError{Code: event.ErrCodeTaskTimeout, Message: ctx.Err().Error()}
		}
	}
	return nil, lastErr
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d <= 0 || d > backoffCap {
		d = backoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJit
	return time.Duration(float64(d) * jitter)
}
