package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/amcp/identity"
)

// SpecVersion is the CloudEvents spec version this mapping implements.
const SpecVersion = "1.0"

// Extension attribute names used to carry AMCP-specific fields that have
// no CloudEvents core-attribute equivalent.
const (
	ExtTraceID         = "amcptraceid"
	ExtMetadata        = "amcpmetadata"
	ExtDeliveryOptions = "amcpdeliveryoptions"
	ExtPayloadType     = "amcppayloadtype"
)

// reservedAttributes are the CloudEvents core attribute names. Extension
// names must not collide with these.
var reservedAttributes = map[string]bool{
	"specversion":     true,
	"id":              true,
	"source":          true,
	"type":            true,
	"time":            true,
	"datacontenttype": true,
	"dataschema":      true,
	"data":            true,
}

// payloadTypeTag identifies which concrete Payload variant ExtPayloadType
// names, so FromCloudEvent can reconstruct the correct Go type.
const (
	tagTaskRequest  = "TaskRequest"
	tagTaskResponse = "TaskResponse"
	tagHeartbeat    = "Heartbeat"
	tagCapReg       = "CapabilityRegistration"
	tagRaw          = "Raw"
)

// CloudEvent is the JSON wire representation of an Event, mirroring the
// CloudEvents attribute names exactly (lowercase, no separators).
type CloudEvent struct {
	SpecVersion     string            `json:"specversion"`
	ID              string            `json:"id"`
	Source          string            `json:"source"`
	Type            string            `json:"type"`
	Time            string            `json:"time"`
	DataContentType string            `json:"datacontenttype,omitempty"`
	DataSchema      string            `json:"dataschema,omitempty"`
	Data            json.RawMessage   `json:"data,omitempty"`
	Extensions      map[string]string `json:"-"`
}

// cloudEventWire is the on-the-wire shape: core attributes plus extension
// attributes flattened alongside them, as CloudEvents JSON requires.
type cloudEventWire struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Time            string          `json:"time"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	DataSchema      string          `json:"dataschema,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	TraceID         string          `json:"amcptraceid,omitempty"`
	Metadata        string          `json:"amcpmetadata,omitempty"`
	DeliveryOptions string          `json:"amcpdeliveryoptions,omitempty"`
	PayloadType     string          `json:"amcppayloadtype,omitempty"`
	CorrelationID   string          `json:"amcpcorrelationid,omitempty"`
}

// payloadTag returns the ExtPayloadType tag for p's concrete type.
func payloadTag(p Payload) (string, error) {
	switch p.(type) {
	case TaskRequest:
		return tagTaskRequest, nil
	case TaskResponse:
		return tagTaskResponse, nil
	case Heartbeat:
		return tagHeartbeat, nil
	case CapabilityRegistration:
		return tagCapReg, nil
	case Raw:
		return tagRaw, nil
	default:
		return "", fmt.Errorf("event: unknown payload type %T", p)
	}
}

// rawData returns the JSON-ready value to place in the CloudEvents "data"
// attribute: Raw is unwrapped to its underlying value, every other variant
// is marshaled as-is.
func rawData(p Payload) any {
	if raw, ok := p.(Raw); ok {
		return raw.Value
	}
	return p
}

// ToCloudEvent renders e as its CloudEvents JSON wire form.
func ToCloudEvent(e Event) ([]byte, error) {
	tag, err := payloadTag(e.Payload())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(rawData(e.Payload()))
	if err != nil {
		return nil, fmt.Errorf("event: marshal payload: %w", err)
	}

	var metadataJSON string
	if len(e.metadata) > 0 {
		b, err := json.Marshal(e.metadata)
		if err != nil {
			return nil, fmt.Errorf("event: marshal metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	deliveryJSON, err := json.Marshal(e.deliveryOptions)
	if err != nil {
		return nil, fmt.Errorf("event: marshal delivery options: %w", err)
	}

	source := ""
	if !e.sender.IsZero() {
		source = e.sender.String()
	}

	wire := cloudEventWire{
		SpecVersion:     SpecVersion,
		ID:              e.id,
		Source:          source,
		Type:            e.topic,
		Time:            e.timestamp.Format(time.RFC3339Nano),
		DataContentType: e.dataContentType,
		DataSchema:      e.dataSchema,
		Data:            data,
		TraceID:         e.traceID,
		Metadata:        metadataJSON,
		DeliveryOptions: string(deliveryJSON),
		PayloadType:     tag,
		CorrelationID:   e.correlationID,
	}
	return json.Marshal(wire)
}

// FromCloudEvent parses a CloudEvents JSON wire form back into an Event.
func FromCloudEvent(data []byte) (Event, error) {
	var wire cloudEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("event: unmarshal cloudevent: %w", err)
	}
	if wire.SpecVersion != SpecVersion {
		return Event{}, fmt.Errorf("event: unsupported specversion %q", wire.SpecVersion)
	}
	if err := ValidateTopic(wire.Type); err != nil {
		return Event{}, fmt.Errorf("event: cloudevent type is not a valid topic: %w", err)
	}

	payload, err := decodePayload(wire.PayloadType, wire.Data)
	if err != nil {
		return Event{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, wire.Time)
	if err != nil {
		return Event{}, fmt.Errorf("event: parse time: %w", err)
	}

	var sender identity.AgentID
	if wire.Source != "" {
		sender, err = identity.Parse(wire.Source)
		if err != nil {
			return Event{}, fmt.Errorf("event: parse source: %w", err)
		}
	}

	var metadata map[string]string
	if wire.Metadata != "" {
		if err := json.Unmarshal([]byte(wire.Metadata), &metadata); err != nil {
			return Event{}, fmt.Errorf("event: unmarshal metadata extension: %w", err)
		}
	}

	delivery := DefaultDeliveryOptions()
	if wire.DeliveryOptions != "" {
		if err := json.Unmarshal([]byte(wire.DeliveryOptions), &delivery); err != nil {
			return Event{}, fmt.Errorf("event: unmarshal delivery options extension: %w", err)
		}
	}

	return Event{
		id:              wire.ID,
		topic:           wire.Type,
		payload:         payload,
		sender:          sender,
		timestamp:       ts,
		correlationID:   wire.CorrelationID,
		traceID:         wire.TraceID,
		dataContentType: wire.DataContentType,
		dataSchema:      wire.DataSchema,
		metadata:        metadata,
		deliveryOptions: delivery.Normalize(),
	}, nil
}

func decodePayload(tag string, data json.RawMessage) (Payload, error) {
	switch tag {
	case tagTaskRequest:
		var p TaskRequest
		return p, unmarshalOrEmpty(data, &p)
	case tagTaskResponse:
		var p TaskResponse
		return p, unmarshalOrEmpty(data, &p)
	case tagHeartbeat:
		var p Heartbeat
		return p, unmarshalOrEmpty(data, &p)
	case tagCapReg:
		var p CapabilityRegistration
		return p, unmarshalOrEmpty(data, &p)
	case tagRaw, "":
		var v any
		if len(data) == 0 {
			return Raw{}, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("event: unmarshal raw payload: %w", err)
		}
		return Raw{Value: v}, nil
	default:
		return nil, fmt.Errorf("event: unknown %s %q", ExtPayloadType, tag)
	}
}

func unmarshalOrEmpty[T any](data json.RawMessage, out *T) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("event: unmarshal payload: %w", err)
	}
	return nil
}

// ValidateExtensionNames reports an error if any key in names collides with
// a reserved CloudEvents core attribute name.
func ValidateExtensionNames(names ...string) error {
	for _, n := range names {
		if reservedAttributes[n] {
			return fmt.Errorf("event: extension attribute name %q collides with a reserved CloudEvents attribute", n)
		}
	}
	return nil
}
