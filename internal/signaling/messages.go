package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	// Inbound.
	MessageTypeJoin         MessageType = "join"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"
	MessageTypeLeave        MessageType = "leave"

	// Outbound.
	MessageTypeUserJoined   MessageType = "user-joined"
	MessageTypeUserLeft     MessageType = "user-left"
	MessageTypeParticipants MessageType = "participants"
)

// ErrUnknownMessageType marks frames whose type is outside the protocol.
// Callers drop these without closing the connection.
var ErrUnknownMessageType = errors.New("unknown message type")

// SignalMessage is the JSON frame exchanged over the signaling WebSocket.
//
// SDP and Candidate are opaque to the relay. Signaling frames are forwarded to
// the target byte-for-byte, so these fields exist only so frames the relay
// originates can round-trip cleanly; they are never inspected.
type SignalMessage struct {
	Type     MessageType `json:"type"`
	RoomCode string      `json:"roomCode,omitempty"`
	Username string      `json:"username,omitempty"`
	Target   string      `json:"target,omitempty"`
	Users    []string    `json:"users,omitempty"`

	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ParseSignalMessage decodes and validates one inbound frame. Unknown fields
// are tolerated; clients attach payload data the relay has no business
// rejecting.
func ParseSignalMessage(data []byte) (SignalMessage, error) {
	var msg SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SignalMessage{}, err
	}
	if err := msg.validate(); err != nil {
		return SignalMessage{}, err
	}
	return msg, nil
}

func (m SignalMessage) validate() error {
	switch m.Type {
	case MessageTypeJoin:
		if m.RoomCode == "" {
			return fmt.Errorf("join message missing roomCode")
		}
		if m.Username == "" {
			return fmt.Errorf("join message missing username")
		}
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		if m.RoomCode == "" {
			return fmt.Errorf("%s message missing roomCode", m.Type)
		}
		if m.Target == "" {
			return fmt.Errorf("%s message missing target", m.Type)
		}
	case MessageTypeLeave:
		if m.RoomCode == "" {
			return fmt.Errorf("leave message missing roomCode")
		}
		if m.Username == "" {
			return fmt.Errorf("leave message missing username")
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownMessageType, m.Type)
	}
	return nil
}
