package inbox

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mds-form:inbox:"

// RedisStore keeps each owner's notifications in a capped Redis list.
type RedisStore struct {
	rdb goredis.Cmdable
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(rdb goredis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Push implements Store.
func (r *RedisStore) Push(ctx context.Context, owner string, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("inbox: encode: %w", err)
	}
	key := redisKeyPrefix + owner
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		pipe.LTrim(ctx, key, 0, MaxPerOwner-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("inbox: push %s: %w", owner, err)
	}
	return nil
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context, owner string, limit int) ([]Notification, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raws, err := r.rdb.LRange(ctx, redisKeyPrefix+owner, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("inbox: list %s: %w", owner, err)
	}
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("inbox: decode %s: %w", owner, err)
		}
		out = append(out, n)
	}
	return out, nil
}
