// Package mobility declares the strong-mobility contract: an agent's
// ability to be dispatched, cloned, retracted, replicated, or federated
// across hosts. The core ships only NoOp, which preserves the interface
// for future agents to implement against without providing any behavior.
package mobility

import (
	"context"
	"errors"

	"github.com/agentmesh/amcp/identity"
)

// ErrNotImplemented is returned by every NoOp method.
var ErrNotImplemented = errors.New("mobility: not implemented in this build")

// Manager is the strong-mobility contract: move, duplicate, or withdraw
// an agent across mesh processes. runtime.Runtime holds one but never
// calls it; only an agent that implements mobility itself would.
type Manager interface {
	// Dispatch moves an agent to destination, suspending it locally and
	// resuming it there.
	Dispatch(ctx context.Context, agent identity.AgentID, destination string) error
	// Clone creates a running copy of agent at destination, leaving the
	// original in place.
	Clone(ctx context.Context, agent identity.AgentID, destination string) (identity.AgentID, error)
	// Retract recalls a previously dispatched or cloned agent back to
	// origin.
	Retract(ctx context.Context, agent identity.AgentID, origin string) error
	// Replicate creates running copies of agent at every destination.
	Replicate(ctx context.Context, agent identity.AgentID, destinations []string) ([]identity.AgentID, error)
	// Federate links this mesh to a peer mesh so their agents can address
	// one another.
	Federate(ctx context.Context, peer string) error
}

// NoOp implements Manager with every method returning ErrNotImplemented.
type NoOp struct{}

func (NoOp) Dispatch(ctx context.Context, agent identity.AgentID, destination string) error {
	return ErrNotImplemented
}

func (NoOp) Clone(ctx context.Context, agent identity.AgentID, destination string) (identity.AgentID, error) {
	return identity.AgentID{}, ErrNotImplemented
}

func (NoOp) Retract(ctx context.Context, agent identity.AgentID, origin string) error {
	return ErrNotImplemented
}

func (NoOp) Replicate(ctx context.Context, agent identity.AgentID, destinations []string) ([]identity.AgentID, error) {
	return nil, ErrNotImplemented
}

func (NoOp) Federate(ctx context.Context, peer string) error {
	return ErrNotImplemented
}
