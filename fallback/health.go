package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
)

// HealthLevel is a component or agent's coarse health classification.
type HealthLevel int

const (
	Unknown HealthLevel = iota
	Healthy
	Degraded
	Unhealthy
)

func (l HealthLevel) String() string {
	switch l {
	case Healthy:
		return "HEALTHY"
	case Degraded:
		return "DEGRADED"
	case Unhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// DefaultStaleAfter is how long an agent may go without a heartbeat
// before HealthMonitor considers it DEGRADED; twice that marks it
// UNHEALTHY. Mirrors registry.DefaultStaleSeconds.
const DefaultStaleAfter = 120 * time.Second

// Alert is emitted when a component or agent's health crosses a
// threshold.
type Alert struct {
	Component string
	Level     HealthLevel
	Message   string
	Timestamp time.Time
	Tags      map[string]string
}

// AlertHandler receives every Alert HealthMonitor emits. Handlers run
// synchronously on the goroutine that raised the alert: the sweeper for
// alerts found during a sweep, the caller for alerts raised by
// SetComponentHealth. Slow handlers delay the next sweep.
type AlertHandler func(Alert)

// HealthMonitor tracks per-agent heartbeat age, per-component health
// level, and simple numeric counters/gauges, and fires pluggable alert
// handlers on threshold breaches.
type HealthMonitor struct {
	logger     *slog.Logger
	staleAfter time.Duration
	bus        bus.Bus

	mu         sync.RWMutex
	heartbeats map[string]time.Time
	components map[string]HealthLevel
	counters   map[string]int64
	gauges     map[string]float64
	handlers   []AlertHandler

	stopCh chan struct{}
	doneCh chan struct{}
}

// MonitorOption configures a HealthMonitor.
type MonitorOption func(*HealthMonitor)

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) MonitorOption {
	return func(h *HealthMonitor) {
		if d > 0 {
			h.staleAfter = d
		}
	}
}

// WithAlertBus makes the monitor additionally publish every Alert on
// sys.alert.{component}, alongside any registered AlertHandlers.
func WithAlertBus(b bus.Bus) MonitorOption {
	return func(h *HealthMonitor) { h.bus = b }
}

// NewHealthMonitor constructs a HealthMonitor. logger may be nil.
func NewHealthMonitor(logger *slog.Logger, opts ...MonitorOption) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthMonitor{
		logger:     logger,
		staleAfter: DefaultStaleAfter,
		heartbeats: make(map[string]time.Time),
		components: make(map[string]HealthLevel),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddAlertHandler registers h to receive every future Alert.
func (h *HealthMonitor) AddAlertHandler(handler AlertHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// RecordHeartbeat timestamps the most recent liveness signal from
// agentID.
func (h *HealthMonitor) RecordHeartbeat(agentID string) {
	h.mu.Lock()
	h.heartbeats[agentID] = time.Now().UTC()
	h.mu.Unlock()
}

// AgentHealth classifies agentID from its heartbeat age: HEALTHY within
// staleAfter, DEGRADED within 2x staleAfter, UNHEALTHY beyond that,
// UNKNOWN if no heartbeat was ever recorded.
func (h *HealthMonitor) AgentHealth(agentID string) HealthLevel {
	h.mu.RLock()
	last, ok := h.heartbeats[agentID]
	h.mu.RUnlock()
	if !ok {
		return Unknown
	}
	age := time.Since(last)
	switch {
	case age <= h.staleAfter:
		return Healthy
	case age <= 2*h.staleAfter:
		return Degraded
	default:
		return Unhealthy
	}
}

// SetComponentHealth records component's health level, alerting if it
// breaches Degraded/Unhealthy.
func (h *HealthMonitor) SetComponentHealth(component string, level HealthLevel) {
	h.mu.Lock()
	prev := h.components[component]
	h.components[component] = level
	h.mu.Unlock()

	if level != prev && (level == Degraded || level == Unhealthy) {
		h.emit(Alert{
			Component: component,
			Level:     level,
			Message:   fmt.Sprintf("component %s health changed to %s", component, level),
			Timestamp: time.Now().UTC(),
		})
	}
}

// ComponentHealth returns the last recorded health level for component,
// or Unknown if never set.
func (h *HealthMonitor) ComponentHealth(component string) HealthLevel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.components[component]
}

// IncrCounter adds delta to the named counter.
func (h *HealthMonitor) IncrCounter(name string, delta int64) {
	h.mu.Lock()
	h.counters[name] += delta
	h.mu.Unlock()
}

// Counter returns the current value of the named counter.
func (h *HealthMonitor) Counter(name string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counters[name]
}

// SetGauge records the current value of the named gauge.
func (h *HealthMonitor) SetGauge(name string, value float64) {
	h.mu.Lock()
	h.gauges[name] = value
	h.mu.Unlock()
}

// Gauge returns the current value of the named gauge.
func (h *HealthMonitor) Gauge(name string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gauges[name]
}

// Start begins the heartbeat-staleness sweeper, which re-evaluates every
// known agent's health on each tick and alerts on degradation.
func (h *HealthMonitor) Start(ctx context.Context) error {
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	go h.sweepLoop()
	return nil
}

// Shutdown stops the sweeper.
func (h *HealthMonitor) Shutdown(ctx context.Context) error {
	if h.stopCh == nil {
		return nil
	}
	close(h.stopCh)
	<-h.doneCh
	return nil
}

func (h *HealthMonitor) sweepLoop() {
	defer close(h.doneCh)
	interval := h.staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweepOnce()
		case <-h.stopCh:
			return
		}
	}
}

func (h *HealthMonitor) sweepOnce() {
	h.mu.RLock()
	agents := make([]string, 0, len(h.heartbeats))
	for id := range h.heartbeats {
		agents = append(agents, id)
	}
	h.mu.RUnlock()

	for _, id := range agents {
		level := h.AgentHealth(id)
		if level == Degraded || level == Unhealthy {
			h.emit(Alert{
				Component: id,
				Level:     level,
				Message:   fmt.Sprintf("agent %s heartbeat is stale (%s)", id, level),
				Timestamp: time.Now().UTC(),
				Tags:      map[string]string{"kind": "agent"},
			})
		}
	}
}

func (h *HealthMonitor) emit(a Alert) {
	h.mu.RLock()
	handlers := make([]AlertHandler, len(h.handlers))
	copy(handlers, h.handlers)
	b := h.bus
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(a)
	}

	if b == nil {
		return
	}
	topic := fmt.Sprintf("sys.alert.%s", a.Component)
	evt, err := event.NewValidated(topic, event.Raw{Value: map[string]any{
		"component": a.Component,
		"level":     a.Level.String(),
		"message":   a.Message,
		"tags":      a.Tags,
	}}, event.WithSender(identity.System), event.WithDeliveryOptions(event.DeliveryOptions{Mode: event.FireAndForget}))
	if err != nil {
		h.logger.Warn("fallback: failed to construct alert event", "component", a.Component, "error", err)
		return
	}
	if err := b.Publish(context.Background(), evt); err != nil {
		h.logger.Warn("fallback: failed to publish alert", "component", a.Component, "error", err)
	}
}
