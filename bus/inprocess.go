package bus

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/internal/observability"
)

// Backoff constants for AT_LEAST_ONCE / EXACTLY_ONCE retry, per the
// documented delivery semantics: exponential with base 100ms, capped at
// 5s, jittered +/-20%.
const (
	backoffBase = 100 * time.Millisecond
	backoffCap  = 5 * time.Second
	backoffJit  = 0.2
)

// DefaultShutdownGrace bounds how long Shutdown waits for queues to
// drain before cancelling remaining handlers.
const DefaultShutdownGrace = 30 * time.Second

// InProcess is a Bus implementation that routes events entirely within
// the current process: no network hop, no persistence. It is the default
// bus; transport/grpc provides an optional networked alternative.
type InProcess struct {
	logger *slog.Logger

	tracer  *observability.TraceManager
	metrics *observability.MetricsManager

	deadletterEnabled bool

	mu         sync.RWMutex
	started    bool
	shutdown   bool
	subs       map[string]*subscription
	nextHandle uint64
	nextSeq    uint64
}

// Option configures an InProcess bus at construction.
type Option func(*InProcess)

// WithDeadLetter toggles whether exhausted AT_LEAST_ONCE/EXACTLY_ONCE
// retries are routed to a sys.deadletter.* topic. Defaults to true;
// disabling it just drops the event after logging the final failure.
func WithDeadLetter(enabled bool) Option {
	return func(b *InProcess) {
		b.deadletterEnabled = enabled
	}
}

// WithObservability attaches a tracer and metrics manager so every
// publish and handler delivery gets a span and counters, mirroring the
// teacher's wrapHandlerWithObservability. Either argument may be nil.
func WithObservability(tracer *observability.TraceManager, metrics *observability.MetricsManager) Option {
	return func(b *InProcess) {
		b.tracer = tracer
		b.metrics = metrics
	}
}

// NewInProcess constructs an in-process bus. logger may be nil, in which
// case slog.Default() is used.
func NewInProcess(logger *slog.Logger, opts ...Option) *InProcess {
	if logger == nil {
		logger = slog.Default()
	}
	b := &InProcess{
		logger:            logger,
		subs:              make(map[string]*subscription),
		deadletterEnabled: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *InProcess) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	return nil
}

func (b *InProcess) Subscribe(subscriberID string, pattern event.Pattern, handler Handler, opts ...SubscribeOption) (Handle, error) {
	cfg := newSubscribeConfig(opts...)

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return Handle{}, ErrShuttingDown
	}
	b.nextHandle++
	id := fmt.Sprintf("sub-%d", b.nextHandle)
	sub := newSubscription(id, subscriberID, pattern, handler, cfg)
	b.subs[id] = sub
	b.mu.Unlock()

	sub.start(b)
	return Handle{id: id}, nil
}

func (b *InProcess) Unsubscribe(h Handle) error {
	b.mu.Lock()
	sub, ok := b.subs[h.id]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownSubscription
	}
	delete(b.subs, h.id)
	b.mu.Unlock()

	sub.stop()
	return nil
}

func (b *InProcess) Publish(ctx context.Context, evt event.Event) error {
	b.mu.RLock()
	if !b.started {
		b.mu.RUnlock()
		return ErrNotStarted
	}
	if b.shutdown {
		b.mu.RUnlock()
		return ErrShuttingDown
	}
	matches := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.pattern.Match(evt.Topic()) {
			matches = append(matches, sub)
		}
	}
	b.mu.RUnlock()

	var span trace.Span
	publishStart := time.Now()
	if b.tracer != nil {
		ctx, span = b.tracer.StartPublishSpan(ctx, evt.Topic(), evt.Topic())
		defer span.End()
	}

	seq := atomic.AddUint64(&b.nextSeq, 1)
	deadline := time.Now().Add(evt.DeliveryOptions().Timeout())

	var firstErr error
	for _, sub := range matches {
		if err := sub.enqueue(ctx, &queuedEvent{evt: evt, seq: seq}, deadline); err != nil {
			b.logger.Warn("bus: enqueue failed", "subscription", sub.id, "topic", evt.Topic(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if b.metrics != nil {
		b.metrics.IncrementEventsPublished(ctx, evt.Topic(), evt.Topic())
		b.metrics.RecordBrokerPublishDuration(ctx, evt.Topic(), time.Since(publishStart))
		if firstErr != nil {
			b.metrics.IncrementBrokerConnectionErrors(ctx)
		}
	}
	if b.tracer != nil {
		if firstErr != nil {
			b.tracer.RecordError(span, firstErr)
		} else {
			b.tracer.SetSpanSuccess(span)
		}
	}
	return firstErr
}

func (b *InProcess) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return nil
	}
	b.shutdown = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	grace := DefaultShutdownGrace
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			grace = d
		}
	}
	deadline := time.Now().Add(grace)

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			s.drainAndStop(deadline)
		}(sub)
	}
	wg.Wait()
	return nil
}

// subscription owns one pattern-matched queue of pending deliveries and
// the worker pool draining it.
type subscription struct {
	id           string
	subscriberID string
	pattern      event.Pattern
	handler      Handler
	cfg          subscribeConfig

	mu     sync.Mutex
	queue  priorityQueue
	closed bool

	itemCh  chan struct{}
	spaceCh chan struct{}
	stopCh  chan struct{}

	dedupOnce sync.Once
	dedup     *dedupCache

	wg sync.WaitGroup
}

func newSubscription(id, subscriberID string, pattern event.Pattern, handler Handler, cfg subscribeConfig) *subscription {
	return &subscription{
		id:           id,
		subscriberID: subscriberID,
		pattern:      pattern,
		handler:      handler,
		cfg:          cfg,
		itemCh:       make(chan struct{}, 1),
		spaceCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

func (s *subscription) start(b *InProcess) {
	workers := 1
	if !s.cfg.ordered && s.cfg.concurrency > 1 {
		workers = s.cfg.concurrency
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.work(b)
	}
}

func notifyNonBlocking(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// enqueue blocks until there is room in the queue or deadline passes,
// then pushes qe. Blocking honors ctx cancellation as well as deadline.
func (s *subscription) enqueue(ctx context.Context, qe *queuedEvent, deadline time.Time) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrShuttingDown
		}
		if len(s.queue) < s.cfg.queueCap {
			heap.Push(&s.queue, qe)
			s.mu.Unlock()
			notifyNonBlocking(s.itemCh)
			return nil
		}
		s.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrOverloaded
		}
		timer := time.NewTimer(remaining)
		select {
		case <-s.spaceCh:
			timer.Stop()
		case <-timer.C:
			return ErrOverloaded
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.stopCh:
			timer.Stop()
			return ErrShuttingDown
		}
	}
}

func (s *subscription) work(b *InProcess) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			select {
			case <-s.itemCh:
			case <-s.stopCh:
				return
			}
			s.mu.Lock()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		item := heap.Pop(&s.queue).(*queuedEvent)
		s.mu.Unlock()
		notifyNonBlocking(s.spaceCh)

		s.deliver(b, item)
	}
}

func (s *subscription) deliver(b *InProcess, item *queuedEvent) {
	mode := item.evt.DeliveryOptions().Mode

	if mode == event.ExactlyOnce {
		s.dedupOnce.Do(func() {
			s.dedup = newDedupCache(DefaultDedupCacheSize, DefaultDedupTTL)
		})
		if s.dedup.SeenAndRecord(item.evt.ID(), time.Now()) {
			return
		}
	}

	maxRetries := 0
	if mode == event.AtLeastOnce || mode == event.ExactlyOnce {
		maxRetries = item.evt.DeliveryOptions().MaxRetries
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := ctx.Done()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-done:
		}
	}()
	deliverStart := time.Now()
	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.StartEventProcessingSpan(ctx, item.evt.ID(), item.evt.Topic(), item.evt.Sender().String(), s.subscriberID)
		b.tracer.AddComponentAttribute(span, s.subscriberID)
		defer span.End()
	}

	var err error
	stopped := false
retryLoop:
	for attempt := 0; ; attempt++ {
		item.attempt = attempt
		err = s.invoke(ctx, item.evt)
		if err == nil {
			break retryLoop
		}
		b.logger.Warn("bus: handler failed", "subscription", s.id, "topic", item.evt.Topic(), "attempt", attempt, "error", err)
		if b.metrics != nil {
			b.metrics.IncrementEventErrors(ctx, item.evt.Topic(), s.subscriberID, "handler_failed")
		}
		if mode == event.FireAndForget || mode == event.AtMostOnce {
			break retryLoop
		}
		if attempt >= maxRetries {
			break retryLoop
		}
		select {
		case <-time.After(backoffDelay(attempt)):
		case <-s.stopCh:
			stopped = true
			break retryLoop
		}
	}

	if stopped {
		if b.tracer != nil {
			b.tracer.RecordError(span, context.Canceled)
		}
		return
	}

	if b.metrics != nil {
		b.metrics.IncrementEventsProcessed(ctx, item.evt.Topic(), s.subscriberID, err == nil)
		b.metrics.RecordEventProcessingDuration(ctx, item.evt.Topic(), s.subscriberID, time.Since(deliverStart))
	}

	if err == nil {
		if b.tracer != nil {
			b.tracer.SetSpanSuccess(span)
		}
		return
	}
	if b.tracer != nil {
		b.tracer.RecordError(span, err)
	}

	if b.deadletterEnabled {
		s.routeToDeadLetter(b, item.evt, err)
	} else {
		b.logger.Error("bus: delivery exhausted, dead-lettering disabled", "subscription", s.id, "topic", item.evt.Topic(), "error", err)
	}
}

func (s *subscription) invoke(ctx context.Context, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bus: handler panicked: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (s *subscription) routeToDeadLetter(b *InProcess, evt event.Event, cause error) {
	deadPayload := event.Raw{Value: map[string]any{
		"originalTopic": evt.Topic(),
		"payload":       evt.Payload(),
		"error":         cause.Error(),
	}}
	dlTopic := DeadLetterTopic(evt.Topic())
	dl, err := event.NewValidated(dlTopic, deadPayload,
		event.WithCorrelationID(evt.CorrelationID()),
		event.WithTraceID(evt.TraceID()),
		event.WithMetadata("error", cause.Error()),
		event.WithDeliveryOptions(event.DeliveryOptions{Mode: event.FireAndForget}),
	)
	if err != nil {
		b.logger.Error("bus: failed to construct dead-letter event", "topic", dlTopic, "error", err)
		return
	}
	if err := b.Publish(context.Background(), dl); err != nil {
		b.logger.Error("bus: failed to publish dead-letter event", "topic", dlTopic, "error", err)
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopCh)
	s.wg.Wait()
}

// drainAndStop waits for the queue to empty up to deadline, then stops
// workers regardless of remaining backlog.
func (s *subscription) drainAndStop(deadline time.Time) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		empty := len(s.queue) == 0
		s.mu.Unlock()
		if empty || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(s.stopCh)
	s.wg.Wait()
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d <= 0 || d > backoffCap {
		d = backoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJit
	return time.Duration(float64(d) * jitter)
}
