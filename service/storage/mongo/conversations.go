package mongo

import (
	"context"
	"sort"
	"time"

	"ChatWire/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collConversations = "conversations"

// Conversation is a two-party direct room. Participants is stored sorted
// so one pair of users maps to exactly one document.
type Conversation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Participants []string           `bson:"participants"`
	LastMessage  string             `bson:"last_message,omitempty"`
	LastActivity time.Time          `bson:"last_activity"`
	CreateTime   time.Time          `bson:"create_time"`
}

// PeerOf returns the other participant's id.
func (c *Conversation) PeerOf(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

type ConversationStore struct {
	coll *mongo.Collection
}

func NewConversationStore(cli *Client) *ConversationStore {
	return &ConversationStore{coll: cli.GetDB().Collection(collConversations)}
}

func (s *ConversationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "last_activity", Value: -1}}},
	})
	return err
}

// GetOrCreateWith finds the conversation between the two users, creating
// it on first contact. The sorted-pair unique index makes concurrent
// creation collapse onto one document.
func (s *ConversationStore) GetOrCreateWith(ctx context.Context, userID, peerID string) (*Conversation, error) {
	pair := []string{userID, peerID}
	sort.Strings(pair)
	now := time.Now()

	res := s.coll.FindOneAndUpdate(ctx,
		bson.M{"participants": pair},
		bson.M{"$setOnInsert": bson.M{
			"participants":  pair,
			"last_activity": now,
			"create_time":   now,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))

	conv := &Conversation{}
	if err := res.Decode(conv); err != nil {
		return nil, errs.ErrDependency.WrapMsg("get or create conversation")
	}
	return conv, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("bad conversation id", "id", id)
	}
	conv := &Conversation{}
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(conv)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("conversation", "id", id)
	}
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("find conversation")
	}
	return conv, nil
}

func (s *ConversationStore) ListForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	cur, err := s.coll.Find(ctx, bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("list conversations")
	}
	defer cur.Close(ctx)
	var out []*Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrDependency.WrapMsg("decode conversations")
	}
	return out, nil
}

func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return false, nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid, "participants": userID})
	if err != nil {
		return false, errs.ErrDependency.WrapMsg("conversation membership", "id", conversationID)
	}
	return n > 0, nil
}

// SetLastMessage records the preview text and bumps activity, so the
// conversation list sorts by freshness.
func (s *ConversationStore) SetLastMessage(ctx context.Context, conversationID, preview string, ts time.Time) error {
	oid, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad conversation id", "id", conversationID)
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"last_message":  preview,
		"last_activity": ts,
	}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("conversation activity", "id", conversationID)
	}
	return nil
}
