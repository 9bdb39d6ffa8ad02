package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"liuproxy_harvest/proxypool/results"
)

const (
	defaultKeyPrefix    = "harvest"
	defaultRedisTimeout = 3 * time.Second
)

var _ results.Persister = (*RedisStorage)(nil)

// RedisStorage mirrors result collections into Redis lists so other
// processes can consume them:
//
//	<prefix>:<collection>         list of links, in order
//	<prefix>:<collection>:labels  hash link -> label
//	<prefix>:<collection>:meta    hash title/generated_at/total
type RedisStorage struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewRedisStorage(addr, password string, db int, keyPrefix string) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultRedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStorage{client: client, prefix: keyPrefix, timeout: defaultRedisTimeout}, nil
}

// WithPrefix returns a storage sharing the connection whose keys are
// namespaced further, e.g. "local_" for replay runs.
func (s *RedisStorage) WithPrefix(prefix string) *RedisStorage {
	return &RedisStorage{client: s.client, prefix: s.prefix + ":" + prefix, timeout: s.timeout}
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) key(collection string) string {
	return s.prefix + ":" + collection
}

// Write replaces the collection and its metadata in one transaction.
func (s *RedisStorage) Write(collection string, items []string, title string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.key(collection)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(items) > 0 {
		values := make([]interface{}, len(items))
		for i, item := range items {
			values[i] = item
		}
		pipe.RPush(ctx, key, values...)
	}
	pipe.HSet(ctx, key+":meta",
		"title", title,
		"generated_at", time.Now().UTC().Format(time.RFC3339),
		"total", len(items),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write %s failed: %w", key, err)
	}
	return nil
}

// Append pushes one item and records its label.
func (s *RedisStorage) Append(collection, item, label string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.key(collection)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, item)
	if label != "" {
		pipe.HSet(ctx, key+":labels", item, label)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append %s failed: %w", key, err)
	}
	return nil
}

// Load returns the items of a collection in order.
func (s *RedisStorage) Load(collection string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	items, err := s.client.LRange(ctx, s.key(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s failed: %w", s.key(collection), err)
	}
	return items, nil
}
