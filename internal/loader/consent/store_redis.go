package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"assent/pkg/platform/sentinel"
)

const (
	redisStateKeyPrefix    = "assent:consent:"
	redisLanguageKeyPrefix = "assent:lang:"
)

// RedisStore persists one visitor's state in Redis with a TTL. Server-side
// hosts that track visitors by an identifier use it to share consent across
// instances.
type RedisStore struct {
	client    *redis.Client
	visitorID string
	ttl       time.Duration
}

// NewRedisStore binds a store to one visitor. TTL <= 0 stores without expiry.
func NewRedisStore(client *redis.Client, visitorID string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, visitorID: visitorID, ttl: ttl}
}

func (r *RedisStore) LoadState(ctx context.Context, websiteID string) (*State, error) {
	data, err := r.client.Get(ctx, redisStateKeyPrefix+r.visitorID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load consent state: %v", sentinel.ErrUnavailable, err)
	}
	return DecodeOwned(data, websiteID), nil
}

func (r *RedisStore) SaveState(ctx context.Context, state *State) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisStateKeyPrefix+r.visitorID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save consent state: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStore) ClearState(ctx context.Context) error {
	if err := r.client.Del(ctx, redisStateKeyPrefix+r.visitorID).Err(); err != nil {
		return fmt.Errorf("%w: clear consent state: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStore) LoadLanguage(ctx context.Context) (string, error) {
	code, err := r.client.Get(ctx, redisLanguageKeyPrefix+r.visitorID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: load language: %v", sentinel.ErrUnavailable, err)
	}
	return code, nil
}

func (r *RedisStore) SaveLanguage(ctx context.Context, code string) error {
	if err := r.client.Set(ctx, redisLanguageKeyPrefix+r.visitorID, code, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: save language: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}
