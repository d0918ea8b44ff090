package bucket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps bucket entries in Redis under
// "{prefix}:{groupID}:{key}". Used when the host app and the coordinator run
// on different machines or containers.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisRepository)

// WithPrefix sets the key prefix. Default is "gophshare".
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		r.prefix = prefix
	}
}

// WithTTL expires entries after ttl. Zero (the default) keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepository) {
		r.ttl = ttl
	}
}

func NewRedisRepository(client redis.UniversalClient, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{client: client, prefix: "gophshare"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) groupKey(groupID string) string {
	return r.prefix + ":" + groupID + ":"
}

func (r *RedisRepository) Get(ctx context.Context, groupID, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.groupKey(groupID)+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket[%s/%s]: %w", groupID, key, err)
	}
	return b, nil
}

func (r *RedisRepository) Set(ctx context.Context, groupID, key string, value []byte) error {
	if err := r.client.Set(ctx, r.groupKey(groupID)+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set bucket[%s/%s]: %w", groupID, key, err)
	}
	return nil
}

func (r *RedisRepository) SetIfAbsent(ctx context.Context, groupID, key string, value []byte) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.groupKey(groupID)+key, value, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to insert bucket[%s/%s]: %w", groupID, key, err)
	}
	return ok, nil
}

func (r *RedisRepository) Delete(ctx context.Context, groupID, key string) error {
	if err := r.client.Del(ctx, r.groupKey(groupID)+key).Err(); err != nil {
		return fmt.Errorf("failed to delete bucket[%s/%s]: %w", groupID, key, err)
	}
	return nil
}

func (r *RedisRepository) List(ctx context.Context, groupID, prefix string) (map[string][]byte, error) {
	base := r.groupKey(groupID)
	pattern := escapeGlob(base+prefix) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list bucket[%s]: %w", groupID, err)
	}

	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket[%s]: %w", groupID, err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// deleted between SCAN and MGET
			continue
		}
		result[strings.TrimPrefix(keys[i], base)] = []byte(s)
	}
	return result, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
