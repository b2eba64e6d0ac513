package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
)

// Well-known topics the registry subscribes to, per the agent-side
// registration protocol.
const (
	TopicRegister   = "agent.register.**"
	TopicUnregister = "agent.unregister.**"
	TopicHeartbeat  = "agent.heartbeat.**"
	TopicDiscover   = "agent.discover.**"

	// TopicDiscoverResponse is where discovery results are published in
	// reply to an agent.discover.* request.
	TopicDiscoverResponse = "orchestrator.capability.discover"
)

// DefaultStaleSeconds is how long a registered agent may go without a
// heartbeat before its record is marked stale.
const DefaultStaleSeconds = 120

// Record is a directory entry describing one registered agent.
type Record struct {
	AgentID      identity.AgentID
	AgentType    string
	Capabilities []string
	Description  string
	Endpoint     string
	RegisteredAt time.Time
	Metadata     map[string]string

	lastSeen      time.Time
	missedBeats   int
	stale         bool
}

// Stale reports whether this record has missed at least one heartbeat
// window.
func (r Record) Stale() bool { return r.stale }

func recordKey(id identity.AgentID) string {
	return id.Namespace() + ":" + id.ID()
}

// Registry is the capability directory. It is driven entirely by bus
// events once Start is called; RegisterAgent/UnregisterAgent are also
// exposed directly for callers that want to populate it without a round
// trip through the bus (e.g. tests, same-process agents).
type Registry struct {
	bus          bus.Bus
	logger       *slog.Logger
	staleSeconds int

	mu      sync.RWMutex
	records map[string]*Record
	subs    []bus.Handle

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithStaleSeconds overrides DefaultStaleSeconds.
func WithStaleSeconds(seconds int) Option {
	return func(r *Registry) {
		if seconds > 0 {
			r.staleSeconds = seconds
		}
	}
}

// New constructs a Registry backed by b. logger may be nil.
func New(b bus.Bus, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		bus:          b,
		logger:       logger,
		staleSeconds: DefaultStaleSeconds,
		records:      make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the well-known registration topics and begins the
// heartbeat staleness sweeper.
func (r *Registry) Start(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler bus.Handler
	}{
		{TopicRegister, r.onRegisterEvent},
		{TopicUnregister, r.onUnregisterEvent},
		{TopicHeartbeat, r.onHeartbeatEvent},
		{TopicDiscover, r.onDiscoverEvent},
	}
	for _, s := range subs {
		h, err := r.bus.Subscribe("capability-registry", event.MustCompilePattern(s.topic), s.handler)
		if err != nil {
			return fmt.Errorf("registry: subscribe %s: %w", s.topic, err)
		}
		r.subs = append(r.subs, h)
	}

	r.sweepStop = make(chan struct{})
	r.sweepDone = make(chan struct{})
	go r.sweepLoop()
	return nil
}

// Shutdown stops the sweeper and releases registry subscriptions. It does
// not shut down the underlying bus.
func (r *Registry) Shutdown(ctx context.Context) error {
	if r.sweepStop != nil {
		close(r.sweepStop)
		<-r.sweepDone
	}
	for _, h := range r.subs {
		if err := r.bus.Unsubscribe(h); err != nil && err != bus.ErrUnknownSubscription {
			r.logger.Warn("registry: unsubscribe failed", "error", err)
		}
	}
	return nil
}

// RegisterAgent adds or replaces the directory entry for record.AgentID.
func (r *Registry) RegisterAgent(record Record) {
	record.RegisteredAt = time.Now().UTC()
	record.lastSeen = record.RegisteredAt
	r.mu.Lock()
	r.records[recordKey(record.AgentID)] = &record
	r.mu.Unlock()
}

// UnregisterAgent removes the directory entry for id, if present.
func (r *Registry) UnregisterAgent(id identity.AgentID) {
	r.mu.Lock()
	delete(r.records, recordKey(id))
	r.mu.Unlock()
}

// FindByCapability returns every record whose capability set contains a
// case-insensitive substring match for capability.
func (r *Registry) FindByCapability(capability string) []Record {
	needle := strings.ToLower(capability)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		for _, c := range rec.Capabilities {
			if strings.Contains(strings.ToLower(c), needle) {
				out = append(out, *rec)
				break
			}
		}
	}
	return out
}

// FindByName returns every record whose agent name matches name exactly.
func (r *Registry) FindByName(name string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	for _, rec := range r.records {
		if rec.AgentID.Name() == name {
			out = append(out, *rec)
		}
	}
	return out
}

// ListAll returns every currently registered record.
func (r *Registry) ListAll() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

func (r *Registry) onRegisterEvent(ctx context.Context, evt event.Event) error {
	reg, err := event.As[event.CapabilityRegistration](evt.Payload())
	if err != nil {
		r.logger.Warn("registry: malformed registration event", "topic", evt.Topic(), "error", err)
		return nil
	}
	id, err := identity.Parse(reg.AgentID)
	if err != nil {
		r.logger.Warn("registry: malformed agent id in registration", "agentId", reg.AgentID, "error", err)
		return nil
	}
	r.RegisterAgent(Record{
		AgentID:      id,
		AgentType:    reg.AgentType,
		Capabilities: reg.Capabilities,
		Description:  reg.Description,
		Endpoint:     reg.Endpoint,
		Metadata:     reg.Metadata,
	})
	return nil
}

func (r *Registry) onUnregisterEvent(ctx context.Context, evt event.Event) error {
	raw, err := event.As[event.Raw](evt.Payload())
	if err != nil {
		return nil
	}
	m, ok := raw.Value.(map[string]any)
	if !ok {
		return nil
	}
	s, _ := m["agentId"].(string)
	if s == "" {
		return nil
	}
	id, err := identity.Parse(s)
	if err != nil {
		return nil
	}
	r.UnregisterAgent(id)
	return nil
}

func (r *Registry) onHeartbeatEvent(ctx context.Context, evt event.Event) error {
	hb, err := event.As[event.Heartbeat](evt.Payload())
	if err != nil {
		return nil
	}
	id, err := identity.Parse(hb.AgentID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	if rec, ok := r.records[recordKey(id)]; ok {
		rec.lastSeen = time.Now().UTC()
		rec.missedBeats = 0
		rec.stale = false
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) onDiscoverEvent(ctx context.Context, evt event.Event) error {
	var capability string
	if raw, err := event.As[event.Raw](evt.Payload()); err == nil {
		if m, ok := raw.Value.(map[string]any); ok {
			capability, _ = m["capability"].(string)
		}
	}

	var matches []Record
	if capability != "" {
		matches = r.FindByCapability(capability)
	} else {
		matches = r.ListAll()
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.AgentID.String())
	}

	resp := event.New(TopicDiscoverResponse, event.Raw{Value: map[string]any{
		"capability": capability,
		"agents":     names,
	}}, event.WithSender(identity.System), event.WithCorrelationID(evt.CorrelationID()))
	return r.bus.Publish(ctx, resp)
}

func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)
	interval := time.Duration(r.staleSeconds) * time.Second / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.sweepStop:
			return
		}
	}
}

func (r *Registry) sweepOnce() {
	staleAfter := time.Duration(r.staleSeconds) * time.Second
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rec := range r.records {
		if now.Sub(rec.lastSeen) <= staleAfter {
			continue
		}
		rec.missedBeats++
		rec.stale = true
		if rec.missedBeats >= 2 {
			delete(r.records, key)
			r.logger.Info("registry: unregistered agent after consecutive missed heartbeats", "agent", rec.AgentID.String())
			continue
		}
		// Rebaseline so the next miss is only counted after another full
		// staleAfter window with no heartbeat, giving the agent a second
		// full window before the second miss unregisters it.
		rec.lastSeen = now
	}
}
