package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/formbind"
)

const redisKeyPrefix = "mds-form:session:"

type redisRecord struct {
	ID         string          `json:"id"`
	Username   string          `json:"username"`
	Role       string          `json:"role"`
	CreatedAt  time.Time       `json:"created_at"`
	ActivityID string          `json:"activity_id,omitempty"`
	Owner      string          `json:"owner,omitempty"`
	Payload    *document.Value `json:"payload,omitempty"`
}

// RedisStore keeps sessions as JSON strings with a TTL.
type RedisStore struct {
	rdb    goredis.Cmdable
	ttl    time.Duration
	schema *formbind.Schema
}

// NewRedisStore constructs a RedisStore. schema rebinds stored forms on read.
func NewRedisStore(rdb goredis.Cmdable, ttl time.Duration, schema *formbind.Schema) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, schema: schema}
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, username, role string) (*Session, error) {
	s, err := newSession(username, role, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := r.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	s := &Session{
		ID:        rec.ID,
		Username:  rec.Username,
		Role:      rec.Role,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Payload != nil {
		s.Form = formbind.Load(r.schema, rec.ActivityID, rec.Owner, *rec.Payload)
	}
	return s, nil
}

// Save implements Store and refreshes the TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	rec := redisRecord{
		ID:        s.ID,
		Username:  s.Username,
		Role:      s.Role,
		CreatedAt: s.CreatedAt,
	}
	if s.Form != nil {
		payload := s.Form.Payload
		rec.ActivityID = s.Form.ActivityID
		rec.Owner = s.Form.Owner
		rec.Payload = &payload
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+s.ID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", s.ID, err)
	}
	return nil
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}
