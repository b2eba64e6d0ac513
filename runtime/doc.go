// Package runtime implements the Agent Runtime: the component that owns
// registered agents, drives their lifecycle state machine, and wires
// their subscriptions to the bus. An agent holds only a non-owning
// back-reference to its runtime; the runtime owns the agent and releases
// it on Shutdown.
package runtime
