package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	once sync.Once
	cli  *redis.Client
)

// Config for the shared redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Init dials the process-wide client once and verifies it with a ping.
// Later calls return the first outcome.
func Init(c Config) error {
	var initErr error
	once.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:         c.Addr,
			Password:     c.Password,
			DB:           c.DB,
			PoolSize:     c.PoolSize,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = errors.Wrap(err, "redis ping")
			return
		}
		cli = rdb
	})
	return initErr
}

// Get returns the shared client; Init must have succeeded first.
func Get() *redis.Client {
	if cli == nil {
		panic("redis not initialized, call Init first")
	}
	return cli
}

// Close shuts the shared connection down.
func Close() error {
	if cli == nil {
		return nil
	}
	return cli.Close()
}
