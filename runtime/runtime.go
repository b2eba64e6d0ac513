package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
	"github.com/agentmesh/amcp/mobility"
)

// Control commands recognized on an agent's auto-subscribed control
// topic. Migration commands are out of scope (mobility ships a no-op
// manager) and are accepted but ignored.
const (
	CommandPing          = "PING"
	CommandStatusRequest = "STATUS_REQUEST"
	CommandShutdown      = "SHUTDOWN"
	CommandActivate      = "ACTIVATE"
	CommandDeactivate    = "DEACTIVATE"
)

// ErrAgentNotFound is returned by any operation addressing an unregistered
// agent ID.
var ErrAgentNotFound = fmt.Errorf("runtime: agent not found")

// ErrAlreadyRegistered is returned by RegisterAgent for an identity already
// known to this runtime.
var ErrAlreadyRegistered = fmt.Errorf("runtime: agent already registered")

type entry struct {
	mu      sync.Mutex
	agent   Agent
	state   event.LifecycleState
	subs    map[string]bus.Handle
	control bus.Handle
}

func entryKey(id identity.AgentID) string {
	return id.Namespace() + ":" + id.ID()
}

// Runtime owns every registered agent: it drives lifecycle transitions,
// wires subscriptions to the bus, and auto-subscribes each agent to its
// control topic. Named Runtime (not Context) to avoid colliding with
// context.Context.
type Runtime struct {
	bus      bus.Bus
	logger   *slog.Logger
	mobility mobility.Manager

	mu     sync.RWMutex
	agents map[string]*entry
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithMobility overrides the default mobility.NoOp manager. Only an agent
// that implements mobility itself would ever call it; the runtime holds
// it purely so a mobility-capable core (or a future migration control
// command) has somewhere to reach.
func WithMobility(m mobility.Manager) Option {
	return func(r *Runtime) {
		r.mobility = m
	}
}

// New constructs a Runtime backed by b. logger may be nil, in which case
// slog.Default() is used.
func New(b bus.Bus, logger *slog.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{bus: b, logger: logger, mobility: mobility.NoOp{}, agents: make(map[string]*entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mobility returns the runtime's mobility manager, defaulting to
// mobility.NoOp.
func (r *Runtime) Mobility() mobility.Manager {
	return r.mobility
}

// RegisterAgent adds agent to the runtime in the INACTIVE state and
// auto-subscribes it to its control topic. Call ActivateAgent to let it
// begin receiving events.
func (r *Runtime) RegisterAgent(ctx context.Context, agent Agent) error {
	key := entryKey(agent.Identity())

	r.mu.Lock()
	if _, exists := r.agents[key]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	e := &entry{agent: agent, state: event.Inactive, subs: make(map[string]bus.Handle)}
	r.agents[key] = e
	r.mu.Unlock()

	id := agent.Identity()
	h, err := r.bus.Subscribe(id.String(), event.MustCompilePattern(controlPatternFor(id)), func(ctx context.Context, evt event.Event) error {
		return r.handleControl(ctx, id, evt)
	}, bus.WithOrdered(true))
	if err != nil {
		r.mu.Lock()
		delete(r.agents, key)
		r.mu.Unlock()
		return fmt.Errorf("runtime: subscribe control topic: %w", err)
	}
	e.control = h
	return nil
}

// controlPatternFor turns an agent's exact control topic into a pattern
// the bus can match against.
func controlPatternFor(id identity.AgentID) string {
	return id.ControlTopic()
}

// UnregisterAgent transitions agent to TERMINATED, invokes OnDestroy, and
// releases every subscription and the entry itself.
func (r *Runtime) UnregisterAgent(ctx context.Context, id identity.AgentID) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	if err := r.setLifecycleState(ctx, e, event.Terminated); err != nil {
		return err
	}

	e.mu.Lock()
	subs := make([]bus.Handle, 0, len(e.subs)+1)
	for _, h := range e.subs {
		subs = append(subs, h)
	}
	subs = append(subs, e.control)
	e.subs = nil
	e.mu.Unlock()

	for _, h := range subs {
		if err := r.bus.Unsubscribe(h); err != nil && err != bus.ErrUnknownSubscription {
			r.logger.Warn("runtime: unsubscribe on unregister failed", "agent", id.String(), "error", err)
		}
	}

	r.mu.Lock()
	delete(r.agents, entryKey(id))
	r.mu.Unlock()
	return nil
}

// ActivateAgent transitions agent into ACTIVE, the only state in which it
// may receive events.
func (r *Runtime) ActivateAgent(ctx context.Context, id identity.AgentID) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	return r.setLifecycleState(ctx, e, event.Active)
}

// DeactivateAgent transitions agent into INACTIVE.
func (r *Runtime) DeactivateAgent(ctx context.Context, id identity.AgentID) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	return r.setLifecycleState(ctx, e, event.Inactive)
}

// setLifecycleState validates the transition, applies it, and fires the
// matching lifecycle callback outside the entry lock.
func (r *Runtime) setLifecycleState(ctx context.Context, e *entry, to event.LifecycleState) error {
	e.mu.Lock()
	from := e.state
	if from == to {
		e.mu.Unlock()
		return nil
	}
	if err := event.ValidateTransition(from, to); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = to
	agent := e.agent
	e.mu.Unlock()

	var err error
	switch to {
	case event.Active:
		err = agent.OnActivate(ctx)
	case event.Inactive:
		err = agent.OnDeactivate(ctx)
	case event.Terminated:
		err = agent.OnDestroy(ctx)
	case event.Migrating:
		err = agent.OnBeforeMigration(ctx)
	case event.Cloning:
		// Cloning has no dedicated callback; CLONING is preserved as a
		// declared state with no core behavior, per the mobility stub.
	}
	if err != nil {
		r.logger.Error("runtime: lifecycle callback failed", "agent", agent.Identity().String(), "to", to, "error", err)
	}
	return nil
}

// PublishEvent publishes evt on the underlying bus.
func (r *Runtime) PublishEvent(ctx context.Context, evt event.Event) error {
	return r.bus.Publish(ctx, evt)
}

// Subscribe registers agent to receive events matching pattern. Delivery
// only reaches the agent's HandleEvent while it is ACTIVE; events
// delivered to an agent in any other state are silently discarded.
func (r *Runtime) Subscribe(id identity.AgentID, pattern event.Pattern, opts ...bus.SubscribeOption) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	h, err := r.bus.Subscribe(id.String(), pattern, func(ctx context.Context, evt event.Event) error {
		e.mu.Lock()
		active := e.state == event.Active
		agent := e.agent
		e.mu.Unlock()
		if !active {
			return nil
		}
		return agent.HandleEvent(ctx, evt)
	}, opts...)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.subs[pattern.String()] = h
	e.mu.Unlock()
	return nil
}

// Unsubscribe removes a previously established subscription for agent.
func (r *Runtime) Unsubscribe(id identity.AgentID, pattern event.Pattern) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	h, ok := e.subs[pattern.String()]
	if ok {
		delete(e.subs, pattern.String())
	}
	e.mu.Unlock()
	if !ok {
		return bus.ErrUnknownSubscription
	}
	return r.bus.Unsubscribe(h)
}

// GetAgent returns the registered agent for id, if any.
func (r *Runtime) GetAgent(id identity.AgentID) (Agent, bool) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, true
}

// GetAgentState returns the current lifecycle state for id, if registered.
func (r *Runtime) GetAgentState(id identity.AgentID) (event.LifecycleState, bool) {
	e, err := r.lookup(id)
	if err != nil {
		return event.Inactive, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Shutdown unregisters every agent (moving each straight to TERMINATED,
// without a separate deactivation step), then shuts down the underlying
// bus.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]identity.AgentID, 0, len(r.agents))
	for _, e := range r.agents {
		e.mu.Lock()
		ids = append(ids, e.agent.Identity())
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.UnregisterAgent(ctx, id); err != nil {
			r.logger.Warn("runtime: unregister during shutdown failed", "agent", id.String(), "error", err)
		}
	}
	return r.bus.Shutdown(ctx)
}

func (r *Runtime) lookup(id identity.AgentID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.agents[entryKey(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrAgentNotFound
	}
	return e, nil
}

func (r *Runtime) handleControl(ctx context.Context, id identity.AgentID, evt event.Event) error {
	cmd := extractCommand(evt)
	switch cmd {
	case CommandPing:
		pong := event.New(id.PongTopic(), event.Raw{Value: map[string]any{
			"agentId": id.String(),
			"pong":    true,
		}}, event.WithSender(identity.System), event.WithCorrelationID(evt.CorrelationID()))
		return r.bus.Publish(ctx, pong)
	case CommandStatusRequest:
		state, _ := r.GetAgentState(id)
		status := event.New(fmt.Sprintf("agent.%s.status", id.ID()), event.Raw{Value: map[string]any{
			"agentId":   id.String(),
			"state":     state.String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}}, event.WithSender(identity.System), event.WithCorrelationID(evt.CorrelationID()))
		return r.bus.Publish(ctx, status)
	case CommandShutdown:
		// Unregistering unsubscribes this very control subscription, whose
		// worker is the goroutine currently running this handler; doing
		// that synchronously would deadlock waiting for itself to finish.
		// Run it detached once this delivery completes.
		go func() {
			if err := r.UnregisterAgent(context.Background(), id); err != nil {
				r.logger.Warn("runtime: unregister on SHUTDOWN command failed", "agent", id.String(), "error", err)
			}
		}()
		return nil
	case CommandActivate:
		return r.ActivateAgent(ctx, id)
	case CommandDeactivate:
		return r.DeactivateAgent(ctx, id)
	default:
		r.logger.Debug("runtime: ignoring unrecognized control command", "agent", id.String(), "command", cmd)
		return nil
	}
}

func extractCommand(evt event.Event) string {
	raw, err := event.As[event.Raw](evt.Payload())
	if err != nil {
		return ""
	}
	m, ok := raw.Value.(map[string]any)
	if !ok {
		return ""
	}
	cmd, _ := m["command"].(string)
	return cmd
}
