// Package registry implements the Capability Registry: a directory of
// registered agents and what they can do, kept current by subscribing to
// the well-known agent.register/unregister/heartbeat/discover topics
// rather than by direct calls from agents.
package registry
