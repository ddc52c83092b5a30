package chat

import (
	"encoding/json"
	"reflect"
	"testing"

	"ChatWire/tools/errs"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"send","data":{"roomId":"r1","content":"hi"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != EvtSend {
		t.Fatalf("type = %q", f.Type)
	}

	if _, err := ParseFrame([]byte(`not json`)); !errs.IsValidation(err) {
		t.Fatalf("bad json err = %v", err)
	}
	if _, err := ParseFrame([]byte(`{"data":{}}`)); !errs.IsValidation(err) {
		t.Fatalf("missing type err = %v", err)
	}
}

func TestPayloadDecode(t *testing.T) {
	f := &Frame{Type: EvtSetTyping, Data: map[string]any{"roomId": "r1", "isTyping": true}}
	p, err := Payload[SetTypingPayload](f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.RoomID != "r1" || !p.IsTyping {
		t.Fatalf("payload = %+v", p)
	}

	// required field enforced by the payload's check hook
	f = &Frame{Type: EvtJoinRoom, Data: map[string]any{}}
	if _, err := Payload[JoinRoomPayload](f); !errs.IsValidation(err) {
		t.Fatalf("missing roomId err = %v", err)
	}
}

func TestTypingEventPerKind(t *testing.T) {
	channel := RoomRef{ID: "c1", Kind: RoomChannel}
	conv := RoomRef{ID: "d1", Kind: RoomConversation}

	ev := typingEvent(channel, "u1", true, []string{"u1", "u2"})
	if ev.Type != EvtTypingFull {
		t.Fatalf("channel event type = %q", ev.Type)
	}
	data := ev.Data.(TypingFullData)
	if !reflect.DeepEqual(data.UserIDs, []string{"u1", "u2"}) {
		t.Fatalf("channel set = %v", data.UserIDs)
	}

	ev = typingEvent(conv, "u1", true, []string{"u1"})
	if ev.Type != EvtTypingDelta {
		t.Fatalf("conversation event type = %q", ev.Type)
	}
	delta := ev.Data.(TypingDeltaData)
	if delta.UserID != "u1" || !delta.IsTyping {
		t.Fatalf("delta = %+v", delta)
	}

	// empty channel set must encode as [], not null
	ev = typingEvent(channel, "u1", false, nil)
	raw, err := ev.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var wire struct {
		Data struct {
			UserIDs json.RawMessage `json:"userIds"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(wire.Data.UserIDs) != "[]" {
		t.Fatalf("empty set encoded as %s", wire.Data.UserIDs)
	}
}
