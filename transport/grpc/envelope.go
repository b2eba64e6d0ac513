package grpctransport

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/identity"
)

// payloadKind discriminates the JSON shape carried in envelope.PayloadJSON,
// since event.Payload has no exported type tag of its own.
type payloadKind string

const (
	kindTaskRequest             payloadKind = "TASK_REQUEST"
	kindTaskResponse            payloadKind = "TASK_RESPONSE"
	kindHeartbeat               payloadKind = "HEARTBEAT"
	kindCapabilityRegistration  payloadKind = "CAPABILITY_REGISTRATION"
	kindRaw                     payloadKind = "RAW"
)

// envelope is the wire representation of one event.Event, JSON-encoded
// and carried as the bytes of a wrapperspb.BytesValue.
type envelope struct {
	ID              string            `json:"id"`
	Topic           string            `json:"topic"`
	PayloadKind     payloadKind       `json:"payloadKind"`
	PayloadJSON     json.RawMessage   `json:"payload"`
	Sender          string            `json:"sender,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	CorrelationID   string            `json:"correlationId,omitempty"`
	TraceID         string            `json:"traceId,omitempty"`
	DataContentType string            `json:"dataContentType,omitempty"`
	DataSchema      string            `json:"dataSchema,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	DeliveryMode    int               `json:"deliveryMode"`
	Ordered         bool              `json:"ordered"`
	Priority        int               `json:"priority"`
}

// encodeEvent converts evt into a wrapperspb.BytesValue carrying its
// JSON-encoded envelope.
func encodeEvent(evt event.Event) (*wrapperspb.BytesValue, error) {
	kind, payloadJSON, err := encodePayload(evt.Payload())
	if err != nil {
		return nil, fmt.Errorf("grpctransport: encode payload: %w", err)
	}
	opts := evt.DeliveryOptions()
	env := envelope{
		ID:              evt.ID(),
		Topic:           evt.Topic(),
		PayloadKind:     kind,
		PayloadJSON:     payloadJSON,
		Sender:          evt.Sender().String(),
		Timestamp:       evt.Timestamp(),
		CorrelationID:   evt.CorrelationID(),
		TraceID:         evt.TraceID(),
		DataContentType: evt.DataContentType(),
		DataSchema:      evt.DataSchema(),
		Metadata:        evt.Metadata(),
		DeliveryMode:    int(opts.Mode),
		Ordered:         opts.Ordered,
		Priority:        opts.Priority,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("grpctransport: marshal envelope: %w", err)
	}
	return wrapperspb.Bytes(b), nil
}

// decodeEvent reverses encodeEvent.
func decodeEvent(msg *wrapperspb.BytesValue) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(msg.GetValue(), &env); err != nil {
		return event.Event{}, fmt.Errorf("grpctransport: unmarshal envelope: %w", err)
	}
	payload, err := decodePayload(env.PayloadKind, env.PayloadJSON)
	if err != nil {
		return event.Event{}, fmt.Errorf("grpctransport: decode payload: %w", err)
	}

	sender := identity.System
	if env.Sender != "" {
		if parsed, err := identity.Parse(env.Sender); err == nil {
			sender = parsed
		}
	}

	opts := event.DeliveryOptions{
		Mode:     event.DeliveryMode(env.DeliveryMode),
		Ordered:  env.Ordered,
		Priority: env.Priority,
	}.Normalize()

	ctorOpts := []event.Option{
		event.WithID(env.ID),
		event.WithSender(sender),
		event.WithCorrelationID(env.CorrelationID),
		event.WithTraceID(env.TraceID),
		event.WithTimestamp(env.Timestamp),
		event.WithDeliveryOptions(opts),
	}
	if env.DataContentType != "" {
		ctorOpts = append(ctorOpts, event.WithDataContentType(env.DataContentType))
	}
	if env.DataSchema != "" {
		ctorOpts = append(ctorOpts, event.WithDataSchema(env.DataSchema))
	}
	for k, v := range env.Metadata {
		ctorOpts = append(ctorOpts, event.WithMetadata(k, v))
	}

	return event.New(env.Topic, payload, ctorOpts...), nil
}

func encodePayload(p event.Payload) (payloadKind, json.RawMessage, error) {
	var kind payloadKind
	switch v := p.(type) {
	case event.TaskRequest:
		kind = kindTaskRequest
		b, err := json.Marshal(v)
		return kind, b, err
	case event.TaskResponse:
		kind = kindTaskResponse
		b, err := json.Marshal(v)
		return kind, b, err
	case event.Heartbeat:
		kind = kindHeartbeat
		b, err := json.Marshal(v)
		return kind, b, err
	case event.CapabilityRegistration:
		kind = kindCapabilityRegistration
		b, err := json.Marshal(v)
		return kind, b, err
	case event.Raw:
		kind = kindRaw
		b, err := json.Marshal(v.Value)
		return kind, b, err
	default:
		return "", nil, fmt.Errorf("grpctransport: unknown payload type %T", p)
	}
}

func decodePayload(kind payloadKind, raw json.RawMessage) (event.Payload, error) {
	switch kind {
	case kindTaskRequest:
		var v event.TaskRequest
		err := json.Unmarshal(raw, &v)
		return v, err
	case kindTaskResponse:
		var v event.TaskResponse
		err := json.Unmarshal(raw, &v)
		return v, err
	case kindHeartbeat:
		var v event.Heartbeat
		err := json.Unmarshal(raw, &v)
		return v, err
	case kindCapabilityRegistration:
		var v event.CapabilityRegistration
		err := json.Unmarshal(raw, &v)
		return v, err
	case kindRaw:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return event.Raw{Value: v}, nil
	default:
		return nil, fmt.Errorf("grpctransport: unknown payload kind %q", kind)
	}
}
