package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultNamespace is used when no namespace is supplied to New.
const DefaultNamespace = "default"

// AgentID uniquely identifies an agent (or, for system-originated events,
// a well-known pseudo-agent such as "system"). It is immutable once
// constructed; mutating methods return a new value.
type AgentID struct {
	id        string
	namespace string
	name      string
	createdAt time.Time
	metadata  map[string]string
}

// New creates a fresh AgentID in namespace with a random id. name may be
// empty.
func New(namespace, name string) AgentID {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return AgentID{
		id:        uuid.NewString(),
		namespace: namespace,
		name:      name,
		createdAt: time.Now().UTC(),
		metadata:  map[string]string{},
	}
}

// NewWithID creates an AgentID from an explicit id, for callers (tests,
// deterministic demo agents) that need a stable identity across runs.
func NewWithID(namespace, id, name string) AgentID {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return AgentID{
		id:        id,
		namespace: namespace,
		name:      name,
		createdAt: time.Now().UTC(),
		metadata:  map[string]string{},
	}
}

// ID returns the opaque identifier component.
func (a AgentID) ID() string { return a.id }

// Namespace returns the namespace component.
func (a AgentID) Namespace() string { return a.namespace }

// Name returns the human-readable name, which may be empty.
func (a AgentID) Name() string { return a.name }

// CreatedAt returns when this value was constructed.
func (a AgentID) CreatedAt() time.Time { return a.createdAt }

// Metadata returns a copy of the metadata map.
func (a AgentID) Metadata() map[string]string {
	out := make(map[string]string, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy of a with key=value merged into its metadata.
func (a AgentID) WithMetadata(key, value string) AgentID {
	out := a
	out.metadata = a.Metadata()
	out.metadata[key] = value
	return out
}

// IsZero reports whether a is the zero value (no id and no namespace).
func (a AgentID) IsZero() bool {
	return a.id == "" && a.namespace == ""
}

// Equal reports whether a and b identify the same agent: namespace and id
// must both match. Name and metadata are not compared.
func (a AgentID) Equal(b AgentID) bool {
	return a.id == b.id && a.namespace == b.namespace
}

// String returns the canonical form: "name@id" when a name is set and the
// namespace is the default one (the only case in which Parse can recover
// the namespace from that shorter form), otherwise "namespace:id".
func (a AgentID) String() string {
	if a.name != "" && a.namespace == DefaultNamespace {
		return fmt.Sprintf("%s@%s", a.name, a.id)
	}
	return fmt.Sprintf("%s:%s", a.namespace, a.id)
}

// ControlTopic returns the topic this agent is auto-subscribed to for
// runtime control commands (PING, STATUS_REQUEST, SHUTDOWN, ...).
func (a AgentID) ControlTopic() string {
	return fmt.Sprintf("agent.%s.control", a.namespaceColonID())
}

// PongTopic returns the topic this agent replies to a PING control command
// on.
func (a AgentID) PongTopic() string {
	return fmt.Sprintf("agent.%s.pong", a.namespaceColonID())
}

func (a AgentID) namespaceColonID() string {
	return fmt.Sprintf("%s:%s", a.namespace, a.id)
}

// Parse parses the canonical string form produced by String back into an
// AgentID. Parse(id.String()) is Equal to id for every id: String uses the
// name@id form only for named IDs in DefaultNamespace, and Parse assigns
// DefaultNamespace to that form.
func Parse(s string) (AgentID, error) {
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		name, id := s[:idx], s[idx+1:]
		if name == "" || id == "" {
			return AgentID{}, fmt.Errorf("identity: invalid agent id %q", s)
		}
		return AgentID{id: id, namespace: DefaultNamespace, name: name, metadata: map[string]string{}}, nil
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		namespace, id := s[:idx], s[idx+1:]
		if namespace == "" || id == "" {
			return AgentID{}, fmt.Errorf("identity: invalid agent id %q", s)
		}
		return AgentID{id: id, namespace: namespace, metadata: map[string]string{}}, nil
	}
	return AgentID{}, fmt.Errorf("identity: invalid agent id %q: missing namespace or name separator", s)
}

// System is the pseudo-identity used as Event.Sender for events the mesh
// itself originates (dead-letter routing, alerts, control acks without a
// clear originating agent).
var System = NewWithID("system", "mesh", "system")
