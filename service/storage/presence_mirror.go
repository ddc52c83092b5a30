package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>
// Value: gateway_id, TTL controls the online validity period.
func presenceKey(user string) string { return "im:presence:" + user }

const defaultPresenceTTL = 90 * time.Second

// PresenceMirror publishes this gateway's presence view into redis so
// other nodes (and ops tooling) can answer "is this user online, and
// where" without asking every gateway. All writes are best-effort from
// the caller's perspective.
type PresenceMirror struct {
	rdb       *redis.Client
	gatewayID string
	ttl       time.Duration
}

func NewPresenceMirror(rdb *redis.Client, gatewayID string, ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &PresenceMirror{rdb: rdb, gatewayID: gatewayID, ttl: ttl}
}

// Online sets the user as online on this gateway and renews the TTL.
func (m *PresenceMirror) Online(ctx context.Context, user string) error {
	return m.rdb.Set(ctx, presenceKey(user), m.gatewayID, m.ttl).Err()
}

// Offline actively sets the user offline (deletes the key).
func (m *PresenceMirror) Offline(ctx context.Context, user string) error {
	return m.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup checks whether the user is online anywhere in the cluster.
func (m *PresenceMirror) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	val, err := m.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Refresh renews the TTL for every locally online user; the gateway runs
// it periodically so a crash lets the keys age out on their own.
func (m *PresenceMirror) Refresh(ctx context.Context, users []string) {
	for _, user := range users {
		_ = m.rdb.Expire(ctx, presenceKey(user), m.ttl).Err()
	}
}
