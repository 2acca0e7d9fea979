package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks an envelope whose "type" field names no known message
// kind. The router logs and drops these; they are never fatal.
var ErrUnknownType = errors.New("unknown message type")

// envelope is the wire frame wrapping every channel message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps the given payload in the wire envelope.
//
// Precondition: msg must be one of the concrete types declared in this package.
// Postcondition: Returns a JSON frame or a non-nil error.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s payload: %w", msg.messageType(), err)
	}
	frame, err := json.Marshal(envelope{Type: msg.messageType(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshalling %s envelope: %w", msg.messageType(), err)
	}
	return frame, nil
}

// Decode parses a wire frame into its typed payload. The envelope is parsed
// exactly once; handlers downstream receive a concrete Message.
//
// Postcondition: Returns a typed Message, or an error wrapping ErrUnknownType
// for unrecognised kinds, or a decode error for malformed payloads.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch env.Type {
	case TypeConnect:
		return Connected{}, nil
	case TypeJoinRoom:
		// JOIN_ROOM is the one kind with two payload shapes: the outbound
		// announcement and the inbound response. The response always carries
		// a "success" key.
		if hasKey(env.Data, "success") {
			var msg JoinRoomResponse
			if err := decodeData(env.Type, env.Data, &msg); err != nil {
				return nil, err
			}
			return msg, nil
		}
		var msg JoinRoom
		if err := decodeData(env.Type, env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeRoomUpdate:
		var msg RoomUpdate
		if err := decodeData(env.Type, env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypePlayerAction:
		var msg PlayerAction
		if err := decodeData(env.Type, env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeStateUpdate:
		var msg StateUpdate
		if err := decodeData(env.Type, env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeError:
		var msg ErrorMessage
		if err := decodeData(env.Type, env.Data, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeHeartbeat:
		return Heartbeat{}, nil
	case TypeGameStart:
		return GameStart{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeData(kind string, data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("decoding %s payload: missing data", kind)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", kind, err)
	}
	return nil
}

// hasKey reports whether the raw JSON object contains the given top-level key.
func hasKey(data json.RawMessage, key string) bool {
	if len(data) == 0 {
		return false
	}
	var keys map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&keys); err != nil {
		return false
	}
	_, ok := keys[key]
	return ok
}
