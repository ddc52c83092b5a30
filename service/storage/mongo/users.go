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

const collUsers = "users"

// User is the account main record. PasswordHash never leaves the storage
// layer; handlers expose Display instead.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	IsOnline     bool               `bson:"is_online"`
	LastSeen     *time.Time         `bson:"last_seen,omitempty"`
	CreateTime   time.Time          `bson:"create_time"`
	UpdateTime   time.Time          `bson:"update_time"`
}

func (u *User) Display() chat.UserDisplay {
	return chat.UserDisplay{ID: u.ID.Hex(), Username: u.Username, Email: u.Email}
}

type UserStore struct {
	coll *mongo.Collection
}

func NewUserStore(cli *Client) *UserStore {
	return &UserStore{coll: cli.GetDB().Collection(collUsers)}
}

// EnsureIndexes creates the unique lookup indexes. Safe to call on every
// boot.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (s *UserStore) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	now := time.Now()
	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreateTime:   now,
		UpdateTime:   now,
	}
	res, err := s.coll.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrRecordExists.WrapMsg("user exists", "email", email)
		}
		return nil, errs.ErrDependency.WrapMsg("insert user")
	}
	u.ID = res.InsertedID.(primitive.ObjectID)
	return u, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "email", email)
	}
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("find user")
	}
	return u, nil
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.ErrValidation.WrapMsg("bad user id", "id", id)
	}
	u := &User{}
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(u)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "id", id)
	}
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("find user")
	}
	return u, nil
}

// List returns every account, newest first, without password hashes.
func (s *UserStore) List(ctx context.Context) ([]*User, error) {
	cur, err := s.coll.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "create_time", Value: -1}}).
			SetProjection(bson.M{"password_hash": 0}))
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("list users")
	}
	defer cur.Close(ctx)
	var out []*User
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrDependency.WrapMsg("decode users")
	}
	return out, nil
}

func (s *UserStore) SetOnline(ctx context.Context, userID string, online bool) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad user id", "id", userID)
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"is_online":   online,
		"update_time": time.Now(),
	}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("set online", "id", userID)
	}
	return nil
}

func (s *UserStore) SetLastSeen(ctx context.Context, userID string, ts time.Time) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return errs.ErrValidation.WrapMsg("bad user id", "id", userID)
	}
	_, err = s.coll.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"last_seen":   ts,
		"update_time": time.Now(),
	}})
	if err != nil {
		return errs.ErrDependency.WrapMsg("set last seen", "id", userID)
	}
	return nil
}

// DisplayMap resolves a batch of sender ids for message listings.
func (s *UserStore) DisplayMap(ctx context.Context, ids []string) (map[string]chat.UserDisplay, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetProjection(bson.M{"username": 1, "email": 1}))
	if err != nil {
		return nil, errs.ErrDependency.WrapMsg("resolve users")
	}
	defer cur.Close(ctx)
	out := make(map[string]chat.UserDisplay, len(ids))
	for cur.Next(ctx) {
		u := &User{}
		if err := cur.Decode(u); err != nil {
			return nil, errs.ErrDependency.WrapMsg("decode user")
		}
		out[u.ID.Hex()] = u.Display()
	}
	return out, cur.Err()
}
