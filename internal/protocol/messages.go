// Package protocol defines the JSON envelopes exchanged between clients and
// the server. Every envelope is an object tagged by its "type" field.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client → server envelope types.
const (
	TypeSetName     = "SetName"
	TypeAddCount    = "AddCount"
	TypeSendMessage = "SendMessage"
)

// Server → client envelope types.
const (
	TypeUpdateState = "UpdateState"
	TypeLog         = "Log"
	TypeChatMessage = "ChatMessage"
)

var (
	// ErrMalformed reports a payload that is not a well-formed envelope.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownType reports a well-formed envelope with an unrecognized tag.
	ErrUnknownType = errors.New("unknown envelope type")
)

// ClientMessage is a decoded client envelope. Only the field matching Type
// is meaningful: Name for SetName, Delta for AddCount, Text for SendMessage.
type ClientMessage struct {
	Type  string
	Name  string
	Delta uint64
	Text  string
}

// SetName builds a name-claim envelope.
func SetName(name string) ClientMessage {
	return ClientMessage{Type: TypeSetName, Name: name}
}

// AddCount builds a counter increment envelope.
func AddCount(delta uint64) ClientMessage {
	return ClientMessage{Type: TypeAddCount, Delta: delta}
}

// SendMessage builds a chat envelope.
func SendMessage(text string) ClientMessage {
	return ClientMessage{Type: TypeSendMessage, Text: text}
}

type rawClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeClientMessage parses one client envelope. Errors wrap ErrMalformed
// or ErrUnknownType.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var raw rawClientMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing field `type`", ErrMalformed)
	}
	if len(raw.Data) == 0 || bytes.Equal(raw.Data, []byte("null")) {
		switch raw.Type {
		case TypeSetName, TypeAddCount, TypeSendMessage:
			return ClientMessage{}, fmt.Errorf("%w: missing field `data` for %s", ErrMalformed, raw.Type)
		}
	}

	msg := ClientMessage{Type: raw.Type}
	var err error
	switch raw.Type {
	case TypeSetName:
		err = json.Unmarshal(raw.Data, &msg.Name)
	case TypeAddCount:
		err = json.Unmarshal(raw.Data, &msg.Delta)
	case TypeSendMessage:
		err = json.Unmarshal(raw.Data, &msg.Text)
	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
	if err != nil {
		return ClientMessage{}, fmt.Errorf("%w: invalid data for %s: %v", ErrMalformed, raw.Type, err)
	}
	return msg, nil
}

// MarshalJSON encodes the envelope the way a client sends it.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	var data any
	switch m.Type {
	case TypeSetName:
		data = m.Name
	case TypeAddCount:
		data = m.Delta
	case TypeSendMessage:
		data = m.Text
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{m.Type, data})
}

// ServerMessage is an envelope delivered to exactly one connection.
// NewState is set for UpdateState; Message for Log and ChatMessage;
// Username for ChatMessage.
type ServerMessage struct {
	Type     string
	NewState map[string]uint64
	Message  string
	Username string
}

// UpdateState wraps a counter snapshot. The map is shared read-only between
// every recipient and must not be mutated afterwards.
func UpdateState(snapshot map[string]uint64) ServerMessage {
	return ServerMessage{Type: TypeUpdateState, NewState: snapshot}
}

// Log builds an informational text envelope.
func Log(message string) ServerMessage {
	return ServerMessage{Type: TypeLog, Message: message}
}

// Chat builds a chat envelope attributed to username.
func Chat(message, username string) ServerMessage {
	return ServerMessage{Type: TypeChatMessage, Message: message, Username: username}
}

type updateStateWire struct {
	Type     string            `json:"type"`
	NewState map[string]uint64 `json:"new_state"`
}

type logWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type chatWire struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// MarshalJSON emits only the fields that belong to the envelope's type.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case TypeUpdateState:
		st := m.NewState
		if st == nil {
			st = map[string]uint64{}
		}
		return json.Marshal(updateStateWire{Type: m.Type, NewState: st})
	case TypeLog:
		return json.Marshal(logWire{Type: m.Type, Message: m.Message})
	case TypeChatMessage:
		return json.Marshal(chatWire{Type: m.Type, Message: m.Message, Username: m.Username})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// UnmarshalJSON decodes a server envelope. Clients and tests use it; the
// server itself only encodes.
func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type     string            `json:"type"`
		NewState map[string]uint64 `json:"new_state"`
		Message  string            `json:"message"`
		Username string            `json:"username"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch wire.Type {
	case TypeUpdateState, TypeLog, TypeChatMessage:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, wire.Type)
	}
	*m = ServerMessage{
		Type:     wire.Type,
		NewState: wire.NewState,
		Message:  wire.Message,
		Username: wire.Username,
	}
	return nil
}
