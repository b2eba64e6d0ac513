package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmesh/amcp/event"
)

// Default per-subscription tuning, used when a SubscribeOption does not
// override it.
const (
	DefaultConcurrency = 16
	DefaultQueueCap    = 10000
)

// DeadLetterPrefix namespaces the dead-letter topic for a failed delivery.
// The full topic is DeadLetterPrefix + "." + originalTopic.
const DeadLetterPrefix = "sys.deadletter"

var (
	// ErrNotStarted is returned by Publish before Start has been called.
	ErrNotStarted = errors.New("bus: not started")
	// ErrShuttingDown is returned by Publish and Subscribe once Shutdown
	// has begun.
	ErrShuttingDown = errors.New("bus: shutting down")
	// ErrOverloaded is returned when a subscription's queue stays full
	// past the publish deadline.
	ErrOverloaded = errors.New("bus: overloaded")
	// ErrUnknownSubscription is returned by Unsubscribe for a handle the
	// bus does not recognize.
	ErrUnknownSubscription = errors.New("bus: unknown subscription")
)

// Handler processes one delivered event. A returned error triggers the
// subscription's retry/dead-letter policy for AT_LEAST_ONCE and
// EXACTLY_ONCE deliveries; it is otherwise only logged.
type Handler func(ctx context.Context, evt event.Event) error

// Handle identifies one subscription, returned by Subscribe and consumed
// by Unsubscribe.
type Handle struct {
	id string
}

func (h Handle) String() string { return h.id }

// subscribeConfig holds the per-subscription tuning SubscribeOption
// values write into.
type subscribeConfig struct {
	ordered     bool
	concurrency int
	queueCap    int
}

// SubscribeOption configures a subscription's queue discipline.
type SubscribeOption func(*subscribeConfig)

// WithOrdered forces strict FIFO delivery for this subscription by
// serializing its handler onto a single worker. Defaults to false.
func WithOrdered(ordered bool) SubscribeOption {
	return func(c *subscribeConfig) { c.ordered = ordered }
}

// WithConcurrency bounds how many events this subscription's handler may
// process in parallel when not ordered. Ignored when ordered is true.
// Defaults to DefaultConcurrency.
func WithConcurrency(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithQueueCap bounds this subscription's pending-event queue. Publishes
// that would exceed it block up to the event's delivery timeout and then
// fail with ErrOverloaded. Defaults to DefaultQueueCap.
func WithQueueCap(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.queueCap = n
		}
	}
}

func newSubscribeConfig(opts ...SubscribeOption) subscribeConfig {
	c := subscribeConfig{
		ordered:     false,
		concurrency: DefaultConcurrency,
		queueCap:    DefaultQueueCap,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Bus is the event bus contract: publish routes an event to every
// subscription whose pattern matches its topic; subscribe/unsubscribe
// manage subscriptions; start/shutdown bound the bus's operating window.
type Bus interface {
	// Start begins accepting publishes; Subscribe may be called before
	// Start. Calling Start more than once is a no-op.
	Start(ctx context.Context) error
	// Publish routes evt to every matching subscription, applying each
	// subscription's backpressure policy. It returns once the event has
	// been accepted by every matching subscription's queue, or the first
	// error encountered (typically ErrOverloaded for one subscription).
	Publish(ctx context.Context, evt event.Event) error
	// Subscribe registers handler to receive events whose topic matches
	// pattern, publishing under subscriberID for observability and
	// capability-registry bookkeeping.
	Subscribe(subscriberID string, pattern event.Pattern, handler Handler, opts ...SubscribeOption) (Handle, error)
	// Unsubscribe removes a subscription. Events already queued for it
	// are dropped.
	Unsubscribe(h Handle) error
	// Shutdown stops accepting new publishes and subscriptions, drains
	// pending queues up to the grace period carried by ctx, then cancels
	// any handlers still running.
	Shutdown(ctx context.Context) error
}

// DeadLetterTopic derives the dead-letter topic for a failed delivery on
// originalTopic.
func DeadLetterTopic(originalTopic string) string {
	return fmt.Sprintf("%s.%s", DeadLetterPrefix, originalTopic)
}
