package chat

import (
	"context"
	"time"
)

// Inbound event names (client -> gateway).
const (
	EvtJoinRoom  = "join_room"
	EvtLeaveRoom = "leave_room"
	EvtSend      = "send"
	EvtSetTyping = "set_typing"
)

// Outbound event names (gateway -> clients).
const (
	EvtPresence       = "presence"
	EvtOnlineSnapshot = "online_snapshot"
	EvtRoomMessage    = "room_message"
	EvtTypingFull     = "typing_full"
	EvtTypingDelta    = "typing_delta"
)

// RoomKind tells channel-style rooms (typing updates carry the full set)
// apart from conversation-style rooms (typing updates carry a delta).
type RoomKind int

const (
	RoomChannel RoomKind = iota
	RoomConversation
)

func (k RoomKind) String() string {
	if k == RoomConversation {
		return "conversation"
	}
	return "channel"
}

// RoomRef identifies a broadcast group by its persistent store id.
type RoomRef struct {
	ID   string
	Kind RoomKind
}

// UserDisplay is the resolved sender identity attached to broadcast
// messages.
type UserDisplay struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// StoredMessage is a persisted message as broadcast to room subscribers.
type StoredMessage struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Sender    UserDisplay `json:"sender"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
}

// IdentityVerifier turns the handshake credential into a stable user id.
type IdentityVerifier interface {
	Verify(credential string) (string, error)
}

// UserStore carries the best-effort durable presence flags.
type UserStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	SetLastSeen(ctx context.Context, userID string, ts time.Time) error
}

// MembershipStore answers room membership questions against the durable
// store. Join re-validates through it on every call rather than trusting
// the connect-time snapshot.
type MembershipStore interface {
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	ListRoomsFor(ctx context.Context, userID string) ([]RoomRef, error)
	Resolve(ctx context.Context, roomID string) (RoomRef, error)
}

// MessageStore records what the pipeline broadcasts. Append is the one
// step whose failure aborts a send; UpdateLastActivity is best-effort.
type MessageStore interface {
	Append(ctx context.Context, room RoomRef, senderID, content string) (StoredMessage, error)
	UpdateLastActivity(ctx context.Context, room RoomRef, last StoredMessage) error
}

// PresenceMirror is the cross-node presence view (redis). All calls are
// best-effort from the gateway's perspective.
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// Handler processes one inbound event type.
type Handler interface {
	Type() string
	Handle(ctx *Context, f *Frame, c *Client) error
}

// Context carries the server and the request-scoped context through a
// handler call.
type Context struct {
	S   *Server
	Ctx context.Context
}
