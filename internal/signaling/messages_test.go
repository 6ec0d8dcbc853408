package signaling

import (
	"errors"
	"testing"
)

func TestParseSignalMessage_Join(t *testing.T) {
	msg, err := ParseSignalMessage([]byte(`{"type":"join","roomCode":"R1","username":"alice"}`))
	if err != nil {
		t.Fatalf("ParseSignalMessage: %v", err)
	}
	if msg.Type != MessageTypeJoin || msg.RoomCode != "R1" || msg.Username != "alice" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestParseSignalMessage_JoinMissingRoom(t *testing.T) {
	if _, err := ParseSignalMessage([]byte(`{"type":"join","username":"alice"}`)); err == nil {
		t.Fatalf("expected error for join without roomCode")
	}
}

func TestParseSignalMessage_SignalingRequiresTarget(t *testing.T) {
	for _, kind := range []string{"offer", "answer", "ice-candidate"} {
		if _, err := ParseSignalMessage([]byte(`{"type":"` + kind + `","roomCode":"R1"}`)); err == nil {
			t.Fatalf("expected error for %s without target", kind)
		}
	}
}

func TestParseSignalMessage_OpaquePayloadTolerated(t *testing.T) {
	raw := `{"type":"offer","roomCode":"R1","target":"bob","sdp":{"type":"offer","sdp":"v=0"},"trace":"xyz"}`
	msg, err := ParseSignalMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseSignalMessage: %v", err)
	}
	if msg.Target != "bob" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestParseSignalMessage_UnknownType(t *testing.T) {
	_, err := ParseSignalMessage([]byte(`{"type":"subscribe","roomCode":"R1"}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("err=%v, want ErrUnknownMessageType", err)
	}
}

func TestParseSignalMessage_NotJSON(t *testing.T) {
	_, err := ParseSignalMessage([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if errors.Is(err, ErrUnknownMessageType) {
		t.Fatalf("decode failure misreported as unknown type")
	}
}
