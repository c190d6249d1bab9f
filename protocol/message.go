// Package protocol implements the graphql-ws wire codec: serialization of
// outgoing control and start frames and classification of inbound frames.
//
// Every frame is a single JSON object with a "type" field from the fixed
// protocol vocabulary, an optional "id" correlating it to a subscription,
// and an optional "payload".
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/DeveloperBeau/AutoGraph/errors"
)

// SubProtocol is the WebSocket sub-protocol announced during the handshake.
const SubProtocol = "graphql-ws"

// Client-emitted message types
const (
	MsgConnectionInit      = "connection_init"
	MsgConnectionTerminate = "connection_terminate"
	MsgStart               = "start"
	MsgStop                = "stop"
)

// Server-emitted message types
const (
	MsgConnectionAck       = "connection_ack"
	MsgConnectionError     = "connection_error"
	MsgConnectionKeepAlive = "ka"
	MsgData                = "data"
	MsgError               = "error"
	MsgComplete            = "complete"
)

// MsgUnknown classifies inbound frames whose type is absent or unrecognized.
const MsgUnknown = "unknown"

// Message is the outgoing frame shape. ID is omitted for connection-level
// frames (connection_init, connection_terminate).
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Authorization carries the caller's bearer token and target host inside the
// start frame's extensions block.
type Authorization struct {
	Token string `json:"token"`
	Host  string `json:"host"`
}

// Extensions is the extensions block of a start frame payload.
type Extensions struct {
	Authorization Authorization `json:"authorization"`
}

// StartPayload is the payload of a start frame: the operation document, its
// variable bindings, and the authorization context.
type StartPayload struct {
	Query      string         `json:"query"`
	Variables  map[string]any `json:"variables"`
	Extensions Extensions     `json:"extensions"`
}

// EncodeControl serializes a connection-level or per-subscription control
// frame. id may be empty for connection-level kinds.
func EncodeControl(kind, id string) ([]byte, error) {
	data, err := json.Marshal(Message{Type: kind, ID: id})
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrFrameSerializationFailed, err),
			"protocol", "EncodeControl", "marshal frame")
	}
	return data, nil
}

// EncodeStart serializes a start frame carrying the operation payload for
// the given subscription id.
func EncodeStart(id string, payload StartPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrFrameSerializationFailed, err),
			"protocol", "EncodeStart", "marshal start payload")
	}

	data, err := json.Marshal(Message{Type: MsgStart, ID: id, Payload: raw})
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrFrameSerializationFailed, err),
			"protocol", "EncodeStart", "marshal frame")
	}
	return data, nil
}

// Frame is a classified inbound frame. Type is one of the server-emitted
// message types, or MsgUnknown when the type field is absent or not part of
// the protocol vocabulary.
type Frame struct {
	Type    string
	ID      string
	Payload json.RawMessage

	// Data is the nested payload.data value, populated for data and error
	// frames only.
	Data json.RawMessage
}

// HasID reports whether the frame carries a subscription correlation key.
func (f *Frame) HasID() bool {
	return f.ID != ""
}

// dataEnvelope is the payload shape of data and error frames.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Parse decodes raw frame bytes into a classified Frame. Structurally
// malformed input yields a nil frame and ErrFrameParseFailed. A data or
// error frame whose payload lacks the nested "data" key yields
// ErrMissingDataKey together with the partially decoded frame, so the
// failure can still be attributed to the subscription named by its ID.
// Parse never panics on adversarial input.
func Parse(data []byte) (*Frame, error) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrFrameParseFailed, err),
			"protocol", "Parse", "unmarshal frame")
	}

	frame := &Frame{
		Type:    classify(msg.Type),
		ID:      msg.ID,
		Payload: msg.Payload,
	}

	if frame.Type == MsgData || frame.Type == MsgError {
		var envelope dataEnvelope
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			return frame, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrFrameParseFailed, err),
				"protocol", "Parse", "unmarshal payload")
		}
		if envelope.Data == nil {
			return frame, errors.WrapInvalid(
				errors.ErrMissingDataKey,
				"protocol", "Parse", "extract payload data")
		}
		frame.Data = envelope.Data
	}

	return frame, nil
}

// classify maps an inbound type field onto the server vocabulary.
func classify(kind string) string {
	switch kind {
	case MsgConnectionAck, MsgConnectionError, MsgConnectionKeepAlive,
		MsgData, MsgError, MsgComplete:
		return kind
	default:
		return MsgUnknown
	}
}
