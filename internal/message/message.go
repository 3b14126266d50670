package message

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Type discriminates where a message came from.
type Type string

// Message types.
const (
	TypeReceived  Type = "mqtt.message.received"
	TypePublished Type = "mqtt.message.published"
	TypeSimulated Type = "mqtt.message.simulated"
)

// Reserved payload keys populated by FromMQTT.
const (
	FieldTopic   = "topic"
	FieldQoS     = "qos"
	FieldRetain  = "retain"
	FieldMessage = "message"
	FieldSize    = "size"
)

// Metadata keys populated by FromMQTT.
const (
	MetaReceivedAt  = "received_at"
	MetaContentType = "content_type"
)

// Content types recorded in metadata.
const (
	ContentJSON = "json"
	ContentText = "text"
)

// Message is an immutable record of one MQTT message.
//
// Payload must contain the "topic" key. Callers must not mutate Payload or
// Metadata after the message has been handed to the engine or history.
type Message struct {
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// New creates a message stamped with the current UTC time.
func New(typ Type, source string, payload, metadata map[string]any) Message {
	if payload == nil {
		payload = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Message{
		Type:      typ,
		Payload:   payload,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// FromMQTT builds a message from a raw MQTT delivery.
//
// The raw body is kept under "message". When the body is a JSON object its
// keys are merged into the payload as well, without overwriting the reserved
// keys (topic, qos, retain, message, size).
func FromMQTT(typ Type, source, topic string, body []byte, qos byte, retained bool) Message {
	payload := map[string]any{
		FieldTopic:   topic,
		FieldQoS:     int(qos),
		FieldRetain:  retained,
		FieldMessage: string(body),
		FieldSize:    len(body),
	}

	contentType := ContentText
	if decoded, ok := decodeObject(body); ok {
		contentType = ContentJSON
		for k, v := range decoded {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
	}

	msg := New(typ, source, payload, map[string]any{
		MetaContentType: contentType,
	})
	msg.Metadata[MetaReceivedAt] = msg.Timestamp.Format(time.RFC3339Nano)
	return msg
}

// decodeObject decodes body when it is a JSON object.
func decodeObject(body []byte) (map[string]any, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var decoded map[string]any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, false
	}
	return normaliseNumbers(decoded).(map[string]any), true
}

// normaliseNumbers converts json.Number values to int64 where exact and
// float64 otherwise, so comparisons see native Go numbers.
func normaliseNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, item := range val {
			val[k] = normaliseNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normaliseNumbers(item)
		}
		return val
	default:
		return v
	}
}

// Topic returns the payload's topic, or "" when absent or not a string.
func (m Message) Topic() string {
	if t, ok := m.Payload[FieldTopic].(string); ok {
		return t
	}
	return ""
}

// Field resolves name against the payload, then the metadata.
func (m Message) Field(name string) (any, bool) {
	if v, ok := lookup(m.Payload, name); ok {
		return v, true
	}
	return lookup(m.Metadata, name)
}

// Fields returns a merged copy of metadata and payload. Payload keys win.
func (m Message) Fields() map[string]any {
	merged := make(map[string]any, len(m.Payload)+len(m.Metadata))
	for k, v := range m.Metadata {
		merged[k] = v
	}
	for k, v := range m.Payload {
		merged[k] = v
	}
	return merged
}

// lookup finds name in fields, walking nested maps for dotted names.
func lookup(fields map[string]any, name string) (any, bool) {
	if fields == nil {
		return nil, false
	}
	if v, ok := fields[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}

	var current any = fields
	for _, part := range strings.Split(name, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
