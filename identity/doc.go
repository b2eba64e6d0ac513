// Package identity implements AgentID, the globally unique, immutable
// identifier every agent and every event sender carries.
//
// An AgentID is the pair (namespace, id) plus an optional human-readable
// name, a creation timestamp, and free-form metadata. Two IDs are equal iff
// both namespace and id match; name and metadata are descriptive only and
// never participate in equality or hashing.
package identity
