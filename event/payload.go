package event

import "fmt"

// Payload is the sum type carried by an Event. Concrete variants are
// TaskRequest, TaskResponse, Heartbeat, CapabilityRegistration, and Raw for
// bodies that don't match a known schema. Implementations are restricted to
// this package via the unexported payloadMarker method.
type Payload interface {
	payloadMarker()
}

// UserContext accompanies a TaskRequest with the identity and permissions
// of the originating user.
type UserContext struct {
	UserID      string            `json:"userId"`
	SessionID   string            `json:"sessionId"`
	Roles       []string          `json:"roles,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TaskRequest is the payload published on orchestrator.task.request (and
// capability-specific task topics) asking an agent to execute a capability.
type TaskRequest struct {
	Capability  string         `json:"capability"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	UserContext UserContext    `json:"userContext"`
	Priority    int            `json:"priority,omitempty"`
	TimeoutMs   int            `json:"timeoutMs,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

func (TaskRequest) payloadMarker() {}

// Reserved TaskError codes. Agents may also report their own codes; these
// five are the ones the core (fallback.Manager in particular) recognizes
// and treats specially.
const (
	ErrCodeTaskTimeout       = "TASK_TIMEOUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAgentUnavailable  = "AGENT_UNAVAILABLE"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeExecutionFailed   = "EXECUTION_FAILED"
)

// TaskError is the machine-readable error shape carried by a failed
// TaskResponse. Code is one of the reserved error codes (TASK_TIMEOUT,
// UNAUTHORIZED, AGENT_UNAVAILABLE, INVALID_PARAMETERS, EXECUTION_FAILED) or
// an agent-specific code.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TaskResponse is the payload published back on orchestrator.task.response
// in reply to a TaskRequest.
type TaskResponse struct {
	Capability      string         `json:"capability"`
	Success         bool           `json:"success"`
	Result          map[string]any `json:"result,omitempty"`
	Error           *TaskError     `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	Timestamp       string         `json:"timestamp"`
}

func (TaskResponse) payloadMarker() {}

// Heartbeat is the payload agents publish on agent.heartbeat.{id} to report
// liveness to the capability registry.
type Heartbeat struct {
	AgentID   string            `json:"agentId"`
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (Heartbeat) payloadMarker() {}

// CapabilityRegistration is the payload agents publish on
// agent.register.{id} to announce what they can do.
type CapabilityRegistration struct {
	AgentID      string            `json:"agentId"`
	AgentType    string            `json:"agentType"`
	Capabilities []string          `json:"capabilities"`
	Description  string            `json:"description,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (CapabilityRegistration) payloadMarker() {}

// Raw carries a payload body that did not match any known schema, as a
// decoded JSON value (map[string]any, []any, or a scalar).
type Raw struct {
	Value any
}

func (Raw) payloadMarker() {}

// ErrPayloadType is returned by As when the event's payload is not of the
// requested type.
type ErrPayloadType struct {
	Wanted string
	Got    Payload
}

func (e *ErrPayloadType) Error() string {
	return fmt.Sprintf("event: payload is %T, want %s", e.Got, e.Wanted)
}

// As attempts to assert p to type T, returning an *ErrPayloadType on
// mismatch instead of panicking.
func As[T Payload](p Payload) (T, error) {
	v, ok := p.(T)
	if !ok {
		var zero T
		return zero, &ErrPayloadType{Wanted: fmt.Sprintf("%T", zero), Got: p}
	}
	return v, nil
}
