package chat

import (
	"encoding/json"
	"strings"

	decode "ChatWire/tools/decode"
	errs "ChatWire/tools/errs"
)

// Frame is the inbound wire envelope: {"type": "...", "data": {...}}.
// Data stays dynamic here; each handler decodes it into its own payload
// struct, rejecting unknown shapes as validation errors.
type Frame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	frame := &Frame{}
	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, errs.ErrValidation.WrapMsg("unmarshal frame", "err", err)
	}
	if strings.TrimSpace(frame.Type) == "" {
		return nil, errs.ErrValidation.WrapMsg("frame missing type")
	}
	return frame, nil
}

// Payload decodes f.Data into T and validates required fields via the
// payload's check hook.
func Payload[T interface{ check() error }](f *Frame) (*T, error) {
	if f.Data == nil {
		f.Data = map[string]any{}
	}
	p, err := decode.Map[T](f.Data)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("decode payload", "type", f.Type, "err", err)
	}
	if err := (*p).check(); err != nil {
		return nil, err
	}
	return p, nil
}

// ---- inbound payloads ----

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

func (p JoinRoomPayload) check() error {
	if p.RoomID == "" {
		return errs.ErrValidation.WrapMsg("join_room missing roomId")
	}
	return nil
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

func (p LeaveRoomPayload) check() error {
	if p.RoomID == "" {
		return errs.ErrValidation.WrapMsg("leave_room missing roomId")
	}
	return nil
}

type SendPayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

func (p SendPayload) check() error {
	if p.RoomID == "" {
		return errs.ErrValidation.WrapMsg("send missing roomId")
	}
	return nil
}

type SetTypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

func (p SetTypingPayload) check() error {
	if p.RoomID == "" {
		return errs.ErrValidation.WrapMsg("set_typing missing roomId")
	}
	return nil
}

// ---- outbound events ----

// Event is one immutable outbound broadcast record. RoomID/Global route the
// event; only Type and Data go on the wire.
type Event struct {
	Type   string
	RoomID string
	Global bool
	Data   any
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: e.Type, Data: e.Data})
}

type PresenceData struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type OnlineSnapshotData struct {
	UserIDs []string `json:"userIds"`
}

type RoomMessageData struct {
	RoomID  string        `json:"roomId"`
	Message StoredMessage `json:"message"`
}

type TypingFullData struct {
	RoomID  string   `json:"roomId"`
	UserIDs []string `json:"userIds"`
}

type TypingDeltaData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

func presenceEvent(userID string, online bool) Event {
	return Event{Type: EvtPresence, Global: true, Data: PresenceData{UserID: userID, IsOnline: online}}
}

func roomMessageEvent(msg StoredMessage) Event {
	return Event{Type: EvtRoomMessage, RoomID: msg.RoomID, Data: RoomMessageData{RoomID: msg.RoomID, Message: msg}}
}

// typingEvent picks the room's broadcast convention: channels get the full
// current set, conversations get the {userId, isTyping} delta.
func typingEvent(room RoomRef, userID string, isTyping bool, active []string) Event {
	if room.Kind == RoomConversation {
		return Event{
			Type:   EvtTypingDelta,
			RoomID: room.ID,
			Data:   TypingDeltaData{RoomID: room.ID, UserID: userID, IsTyping: isTyping},
		}
	}
	if active == nil {
		active = []string{}
	}
	return Event{
		Type:   EvtTypingFull,
		RoomID: room.ID,
		Data:   TypingFullData{RoomID: room.ID, UserIDs: active},
	}
}
