package transport

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Message types.
const (
	TypeEvent = "event"
	TypeAck   = "ack"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// ErrInvalidMessage is returned for frames that fail validation.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a single websocket frame.
type Message struct {
	Type           string `json:"type"`
	SessionID      int32  `json:"session_id,omitempty"`
	EventID        int64  `json:"event_id,omitempty"`
	DispatchTimeMs int64  `json:"dispatch_time_ms,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EventMessage builds a dispatched-event frame.
func EventMessage(sessionID int32, eventID, dispatchTimeMs int64) Message {
	return Message{Type: TypeEvent, SessionID: sessionID, EventID: eventID, DispatchTimeMs: dispatchTimeMs}
}

// AckMessage builds an acknowledgement frame.
func AckMessage(sessionID int32, eventID int64) Message {
	return Message{Type: TypeAck, SessionID: sessionID, EventID: eventID}
}

// ErrorMessage builds an error frame.
func ErrorMessage(err string) Message {
	return Message{Type: TypeError, Error: err}
}

// Validate checks the fields a message type requires.
func (m Message) Validate() error {
	switch m.Type {
	case TypeEvent, TypeAck:
		if m.EventID < 0 {
			return fmt.Errorf("%w: negative event id %d", ErrInvalidMessage, m.EventID)
		}
	case TypePing, TypePong, TypeError:
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// Encode serializes a message.
func Encode(m Message) ([]byte, error) {
	return sonic.Marshal(m)
}

// Decode parses and validates a frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
