package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Redis is a FeedCache backed by a redis hash per group. Use it when
// several hosts take turns running the pass and the cache has to outlive
// any one process.
type Redis struct {
	pool *redis.Pool
}

func NewRedis(addr string) *Redis {
	return &Redis{
		pool: &redis.Pool{
			MaxIdle:     2,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
		},
	}
}

func (r *Redis) Close() error {
	return r.pool.Close()
}

func (r *Redis) Get(ctx context.Context, groupID string) (Entry, bool, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	defer conn.Close()

	values, err := redis.Values(conn.Do("HMGET", feedKey(groupID), "body", "hash"))
	if err != nil {
		return Entry{}, false, err
	}

	body, _ := redis.Bytes(values[0], nil)
	hash, _ := redis.String(values[1], nil)
	if hash == "" {
		return Entry{}, false, nil
	}
	return Entry{Body: body, Hash: hash}, true, nil
}

func (r *Redis) Put(ctx context.Context, groupID string, e Entry) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("HSET", feedKey(groupID), "body", e.Body, "hash", e.Hash)
	return err
}

func feedKey(groupID string) string {
	return fmt.Sprintf("feed:%s", groupID)
}
