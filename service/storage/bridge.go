package storage

import (
	"context"
	"time"

	"ChatWire/logger"
	"ChatWire/service/chat"
	mgo "ChatWire/service/storage/mongo"
	"ChatWire/tools/errs"
)

// Bridge adapts the mongo stores to the gateway core's boundary
// interfaces. Room ids are opaque to the core; here they resolve to
// either a channel or a conversation document.
type Bridge struct {
	Users         *mgo.UserStore
	Channels      *mgo.ChannelStore
	Conversations *mgo.ConversationStore
	Messages      *mgo.MessageStore
}

func NewBridge(users *mgo.UserStore, channels *mgo.ChannelStore, conversations *mgo.ConversationStore, messages *mgo.MessageStore) *Bridge {
	return &Bridge{Users: users, Channels: channels, Conversations: conversations, Messages: messages}
}

// ---- chat.UserStore ----

func (b *Bridge) SetOnline(ctx context.Context, userID string, online bool) error {
	return b.Users.SetOnline(ctx, userID, online)
}

func (b *Bridge) SetLastSeen(ctx context.Context, userID string, ts time.Time) error {
	return b.Users.SetLastSeen(ctx, userID, ts)
}

// ---- chat.MembershipStore ----

// Resolve tries the channel namespace first, then conversations. The two
// id spaces never collide (distinct collections, distinct object ids).
func (b *Bridge) Resolve(ctx context.Context, roomID string) (chat.RoomRef, error) {
	if _, err := b.Channels.Get(ctx, roomID); err == nil {
		return chat.RoomRef{ID: roomID, Kind: chat.RoomChannel}, nil
	} else if errs.IsDependency(err) {
		return chat.RoomRef{}, err
	}
	if _, err := b.Conversations.Get(ctx, roomID); err == nil {
		return chat.RoomRef{ID: roomID, Kind: chat.RoomConversation}, nil
	} else if errs.IsDependency(err) {
		return chat.RoomRef{}, err
	}
	return chat.RoomRef{}, errs.ErrRecordNotFound.WrapMsg("room", "id", roomID)
}

func (b *Bridge) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	room, err := b.Resolve(ctx, roomID)
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return false, nil
		}
		return false, err
	}
	if room.Kind == chat.RoomConversation {
		return b.Conversations.IsParticipant(ctx, roomID, userID)
	}
	return b.Channels.IsMember(ctx, roomID, userID)
}

func (b *Bridge) ListRoomsFor(ctx context.Context, userID string) ([]chat.RoomRef, error) {
	channels, err := b.Channels.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	conversations, err := b.Conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.RoomRef, 0, len(channels)+len(conversations))
	for _, ch := range channels {
		out = append(out, chat.RoomRef{ID: ch.ID.Hex(), Kind: chat.RoomChannel})
	}
	for _, conv := range conversations {
		out = append(out, chat.RoomRef{ID: conv.ID.Hex(), Kind: chat.RoomConversation})
	}
	return out, nil
}

// ---- chat.MessageStore ----

func (b *Bridge) Append(ctx context.Context, room chat.RoomRef, senderID, content string) (chat.StoredMessage, error) {
	msg, err := b.Messages.Append(ctx, room, senderID, content)
	if err != nil {
		return chat.StoredMessage{}, err
	}
	return b.toStored(ctx, msg), nil
}

func (b *Bridge) UpdateLastActivity(ctx context.Context, room chat.RoomRef, last chat.StoredMessage) error {
	if room.Kind == chat.RoomConversation {
		return b.Conversations.SetLastMessage(ctx, room.ID, last.Content, last.CreatedAt)
	}
	return b.Channels.SetLastActivity(ctx, room.ID, last.CreatedAt)
}

// toStored attaches the resolved sender identity. A failed lookup falls
// back to the bare id rather than blocking the message.
func (b *Bridge) toStored(ctx context.Context, msg *mgo.Message) chat.StoredMessage {
	sender := chat.UserDisplay{ID: msg.SenderID}
	if u, err := b.Users.FindByID(ctx, msg.SenderID); err == nil {
		sender = u.Display()
	} else {
		logger.Warnf("[storage] resolve sender id=%s err=%v", msg.SenderID, err)
	}
	return chat.StoredMessage{
		ID:        msg.ID.Hex(),
		RoomID:    msg.RoomID,
		Sender:    sender,
		Content:   msg.Content,
		CreatedAt: msg.CreateTime,
	}
}

// HistoryFor resolves a page of room history to wire shape for the REST
// surface.
func (b *Bridge) HistoryFor(ctx context.Context, room chat.RoomRef, limit int, before time.Time) ([]chat.StoredMessage, error) {
	page, err := b.Messages.History(ctx, room, limit, before)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page))
	for _, m := range page {
		ids = append(ids, m.SenderID)
	}
	displays, err := b.Users.DisplayMap(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]chat.StoredMessage, 0, len(page))
	for _, m := range page {
		sender, ok := displays[m.SenderID]
		if !ok {
			sender = chat.UserDisplay{ID: m.SenderID}
		}
		out = append(out, chat.StoredMessage{
			ID:        m.ID.Hex(),
			RoomID:    m.RoomID,
			Sender:    sender,
			Content:   m.Content,
			CreatedAt: m.CreateTime,
		})
	}
	return out, nil
}
