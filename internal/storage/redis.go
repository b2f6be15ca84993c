package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"goldboard/internal/config"
	"goldboard/internal/retailer"
)

// RedisConfigStore keeps each retailer config document in a hash, one field
// per top-level key with a JSON-encoded value. HSET gives the merge semantics.
type RedisConfigStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient builds a go-redis client from runtime settings.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisConfigStore wraps client. Keys are stored as keyPrefix+key.
func NewRedisConfigStore(client redis.UniversalClient, keyPrefix string) *RedisConfigStore {
	return &RedisConfigStore{client: client, keyPrefix: keyPrefix}
}

// Get loads the document stored under key.
func (r *RedisConfigStore) Get(ctx context.Context, key string) (retailer.Partial, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.keyPrefix+key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	doc := make(retailer.Partial, len(fields))
	for name, raw := range fields {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, false, fmt.Errorf("decode field %s: %w", name, err)
		}
		doc[name] = value
	}
	return doc, true, nil
}

// Set merges partial into the stored document.
func (r *RedisConfigStore) Set(ctx context.Context, key string, partial retailer.Partial) error {
	if len(partial) == 0 {
		return nil
	}

	values := make(map[string]any, len(partial))
	for name, value := range partial {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", name, err)
		}
		values[name] = string(raw)
	}
	if err := r.client.HSet(ctx, r.keyPrefix+key, values).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

var _ retailer.Store = (*RedisConfigStore)(nil)
