package mongo

import (
	"context"
	"time"

	"ChatWire/service/chat"
	"ChatWire/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collMessages       = "messages"
	collDirectMessages = "direct_messages"
)

// Message is one persisted room message. Channel and conversation
// messages share the shape but live in separate collections; Read is only
// meaningful for direct messages.
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	RoomID     string             `bson:"room_id"`
	SenderID   string             `bson:"sender_id"`
	Content    string             `bson:"content"`
	Read       bool               `bson:"read,omitempty"`
	CreateTime time.Time          `bson:"create_time"`
}

type MessageStore struct {
	channel *mongo.Collection
	direct  *mongo.Collection
}

func NewMessageStore(cli *Client) *MessageStore {
	return &MessageStore{
		channel: cli.GetDB().Collection(collMessages),
		direct:  cli.GetDB().Collection(collDirectMessages),
	}
}

func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	idx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "create_time", Value: -1}}},
	}
	if _, err := s.channel.Indexes().CreateMany(ctx, idx); err != nil {
		return err
	}
	_, err := s.direct.Indexes().CreateMany(ctx, idx)
	return err
}

func (s *MessageStore) collFor(kind chat.RoomKind) *mongo.Collection {
	if kind == chat.RoomConversation {
		return s.direct
	}
	return s.channel
}

func (s *MessageStore) Append(ctx context.Context, room chat.RoomRef, senderID, content string) (*Message, error) {
	msg := &Message{
		RoomID:     room.ID,
		SenderID:   senderID,
		Content:    content,
		CreateTime: time.Now(),
	}
	res, err := s.collFor(room.Kind).InsertOne(ctx, msg)
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("insert message", "room", room.ID)
	}
	msg.ID = res.InsertedID.(primitive.ObjectID)
	return msg, nil
}

// History pages backwards: newest-first query, optionally bounded by a
// `before` timestamp, returned oldest-first for rendering.
func (s *MessageStore) History(ctx context.Context, room chat.RoomRef, limit int, before time.Time) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	filter := bson.M{"room_id": room.ID}
	if !before.IsZero() {
		filter["create_time"] = bson.M{"$lt": before}
	}
	cur, err := s.collFor(room.Kind).Find(ctx, filter,
		options.Find().
			SetSort(bson.D{{Key: "create_time", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("list messages", "room", room.ID)
	}
	defer cur.Close(ctx)
	var page []*Message
	if err := cur.All(ctx, &page); err != nil {
		return nil, errs.ErrDependency.WrapMsg("decode messages", "room", room.ID)
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// MarkRead flags every direct message the peer sent to readerID as read.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := s.direct.UpdateMany(ctx,
		bson.M{"room_id": conversationID, "sender_id": bson.M{"$ne": readerID}, "read": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, errs.ErrDependency.WrapMsg("mark read", "room", conversationID)
	}
	return res.ModifiedCount, nil
}
