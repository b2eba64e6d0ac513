package runtime

import (
	"context"

	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
)

// Agent is the capability set every runtime-managed component exposes:
// identity, lifecycle callbacks, and an event handler. Implementations
// should treat the runtime reference they are given (if any) as a
// non-owning handle — the runtime owns the agent, not the reverse.
type Agent interface {
	Identity() identity.AgentID

	// OnActivate runs when the agent transitions into ACTIVE.
	OnActivate(ctx context.Context) error
	// OnDeactivate runs when the agent leaves ACTIVE for INACTIVE.
	OnDeactivate(ctx context.Context) error
	// OnDestroy runs once, when the agent is being unregistered or the
	// runtime is shutting down.
	OnDestroy(ctx context.Context) error
	// OnBeforeMigration and OnAfterMigration bracket a MIGRATING
	// transition. The core ships a no-op mobility manager, so these only
	// run if an agent implements mobility itself.
	OnBeforeMigration(ctx context.Context) error
	OnAfterMigration(ctx context.Context) error

	// HandleEvent processes one delivered event. It is only invoked while
	// the agent is ACTIVE; events delivered while any other state is in
	// effect are silently discarded by the runtime.
	HandleEvent(ctx context.Context, evt event.Event) error
}

// BaseAgent implements every Agent lifecycle callback as a no-op, so a
// concrete agent can embed it and override only HandleEvent and whichever
// callbacks it cares about.
type BaseAgent struct {
	id identity.AgentID
}

// NewBaseAgent returns a BaseAgent with the given identity.
func NewBaseAgent(id identity.AgentID) BaseAgent {
	return BaseAgent{id: id}
}

func (a BaseAgent) Identity() identity.AgentID                    { return a.id }
func (a BaseAgent) OnActivate(ctx context.Context) error           { return nil }
func (a BaseAgent) OnDeactivate(ctx context.Context) error         { return nil }
func (a BaseAgent) OnDestroy(ctx context.Context) error            { return nil }
func (a BaseAgent) OnBeforeMigration(ctx context.Context) error    { return nil }
func (a BaseAgent) OnAfterMigration(ctx context.Context) error     { return nil }
