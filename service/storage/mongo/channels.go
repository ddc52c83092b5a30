package mongo

import (
	"context"
	"time"

	"ChatWire/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collChannels = "channels"

// Channel is a named multi-member room. Members holds user ids; the
// creator is always the first member.
type Channel struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Description  string             `bson:"description,omitempty"`
	CreatorID    string             `bson:"creator_id"`
	Members      []string           `bson:"members"`
	LastActivity time.Time          `bson:"last_activity"`
	CreateTime   time.Time          `bson:"create_time"`
}

type ChannelStore struct {
	coll *mongo.Collection
}

func NewChannelStore(cli *Client) *ChannelStore {
	return &ChannelStore{coll: cli.GetDB().Collection(collChannels)}
}

func (s *ChannelStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "members", Value: 1}}},
	})
	return err
}

func (s *ChannelStore) Create(ctx context.Context, name, description, creatorID string) (*Channel, error) {
	now := time.Now()
	ch := &Channel{
		Name:         name,
		Description:  description,
		CreatorID:    creatorID,
		Members:      []string{creatorID},
		LastActivity: now,
		CreateTime:   now,
	}
	res, err := s.coll.InsertOne(ctx, ch)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrRecordExists.WrapMsg("channel exists", "name", name)
		}
		return nil, errs.ErrDependency.WrapMsg("insert channel")
	}
	ch.ID = res.InsertedID.(primitive.ObjectID)
	return ch, nil
}

func (s *ChannelStore) Get(ctx context.Context, id string) (*Channel, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("bad channel id", "id", id)
	}
	ch := &Channel{}
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(ch)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("channel", "id", id)
	}
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("find channel")
	}
	return ch, nil
}

// ListAll is the browse view: every channel, most recently active first.
func (s *ChannelStore) ListAll(ctx context.Context) ([]*Channel, error) {
	return s.list(ctx, bson.M{})
}

func (s *ChannelStore) ListForUser(ctx context.Context, userID string) ([]*Channel, error) {
	return s.list(ctx, bson.M{"members": userID})
}

func (s *ChannelStore) list(ctx context.Context, filter bson.M) ([]*Channel, error) {
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}}))
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("list channels")
	}
	defer cur.Close(ctx)
	var out []*Channel
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrDependency.WrapMsg("decode channels")
	}
	return out, nil
}

// Join is idempotent; $addToSet keeps the member list duplicate-free.
func (s *ChannelStore) Join(ctx context.Context, channelID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(channelID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad channel id", "id", channelID)
	}
	res, err := s.coll.UpdateByID(ctx, oid, bson.M{"$addToSet": bson.M{"members": userID}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("join channel", "id", channelID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("channel", "id", channelID)
	}
	return nil
}

func (s *ChannelStore) Leave(ctx context.Context, channelID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(channelID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad channel id", "id", channelID)
	}
	res, err := s.coll.UpdateByID(ctx, oid, bson.M{"$pull": bson.M{"members": userID}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("leave channel", "id", channelID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("channel", "id", channelID)
	}
	return nil
}

func (s *ChannelStore) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(channelID)
	if err != nil {
		return false, nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": oid, "members": userID})
	if err != nil {
		return false, errs.ErrDependency.WrapMsg("channel membership", "id", channelID)
	}
	return n > 0, nil
}

func (s *ChannelStore) SetLastActivity(ctx context.Context, channelID string, ts time.Time) error {
	oid, err := primitive.ObjectIDFromHex(channelID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad channel id", "id", channelID)
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"last_activity": ts}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("channel activity", "id", channelID)
	}
	return nil
}
