package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/amcp/identity"
)

// DefaultDataContentType is the content type assumed when none is given.
const DefaultDataContentType = "application/json"

// Event is the sole inter-agent message. Events are immutable after
// construction; every field is set once by New and never mutated.
type Event struct {
	id              string
	topic           string
	payload         Payload
	sender          identity.AgentID
	timestamp       time.Time
	correlationID   string
	traceID         string
	dataContentType string
	dataSchema      string
	metadata        map[string]string
	deliveryOptions DeliveryOptions
}

// Option configures an Event at construction time.
type Option func(*Event)

// WithID overrides the generated event ID. Mostly useful for tests and for
// replaying events across a wire boundary.
func WithID(id string) Option {
	return func(e *Event) { e.id = id }
}

// WithSender sets the publishing agent's identity.
func WithSender(sender identity.AgentID) Option {
	return func(e *Event) { e.sender = sender }
}

// WithCorrelationID threads a correlation ID through the event.
func WithCorrelationID(id string) Option {
	return func(e *Event) { e.correlationID = id }
}

// WithTraceID attaches a distributed trace ID.
func WithTraceID(id string) Option {
	return func(e *Event) { e.traceID = id }
}

// WithDataContentType overrides the default "application/json" content
// type.
func WithDataContentType(ct string) Option {
	return func(e *Event) { e.dataContentType = ct }
}

// WithDataSchema attaches a URI identifying the payload's schema.
func WithDataSchema(uri string) Option {
	return func(e *Event) { e.dataSchema = uri }
}

// WithMetadata attaches a single metadata key/value pair. Repeated calls
// accumulate.
func WithMetadata(key, value string) Option {
	return func(e *Event) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithDeliveryOptions overrides the default delivery options.
func WithDeliveryOptions(opts DeliveryOptions) Option {
	return func(e *Event) { e.deliveryOptions = opts }
}

// WithTimestamp overrides the generated timestamp. Intended for
// deserialization and tests; New() already stamps the current time.
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.timestamp = t }
}

// New constructs an Event for topic carrying payload, applying opts in
// order. topic must satisfy ValidateTopic; New panics if it does not,
// since a malformed topic is a programmer error, not a runtime condition.
// Use NewValidated to handle the error instead.
func New(topic string, payload Payload, opts ...Option) Event {
	e, err := NewValidated(topic, payload, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// NewValidated is like New but returns an error instead of panicking when
// topic is malformed.
func NewValidated(topic string, payload Payload, opts ...Option) (Event, error) {
	if err := ValidateTopic(topic); err != nil {
		return Event{}, err
	}
	e := Event{
		id:              uuid.NewString(),
		topic:           topic,
		payload:         payload,
		timestamp:       time.Now().UTC(),
		dataContentType: DefaultDataContentType,
		deliveryOptions: DefaultDeliveryOptions(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	e.deliveryOptions = e.deliveryOptions.Normalize()
	return e, nil
}

func (e Event) ID() string                        { return e.id }
func (e Event) Topic() string                      { return e.topic }
func (e Event) Payload() Payload                   { return e.payload }
func (e Event) Sender() identity.AgentID           { return e.sender }
func (e Event) Timestamp() time.Time               { return e.timestamp }
func (e Event) CorrelationID() string              { return e.correlationID }
func (e Event) TraceID() string                    { return e.traceID }
func (e Event) DataContentType() string            { return e.dataContentType }
func (e Event) DataSchema() string                 { return e.dataSchema }
func (e Event) DeliveryOptions() DeliveryOptions   { return e.deliveryOptions }

// Metadata returns a defensive copy of the event's metadata map.
func (e Event) Metadata() map[string]string {
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// WithPayload returns a copy of e carrying a different payload, leaving all
// other fields (including id) unchanged.
func (e Event) WithPayload(p Payload) Event {
	out := e
	out.payload = p
	return out
}

// Equal reports whether two events share the same ID. Per the data model,
// event equality is by ID alone.
func (e Event) Equal(other Event) bool {
	return e.id == other.id
}
