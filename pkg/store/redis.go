package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entity attributes in Redis. Two keys per write: the
// scoped attribute under attr:<bot>:<channel>:<user>:<key> and the
// channel-latest value under latest:<channel>:<key>, so Get stays a single
// O(1) lookup.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisConfig struct {
	URL          string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	ReadTimeout  int    `env:"REDIS_READ_TIMEOUT" envDefault:"3"`
	WriteTimeout int    `env:"REDIS_WRITE_TIMEOUT" envDefault:"3"`
	DialTimeout  int    `env:"REDIS_DIAL_TIMEOUT" envDefault:"5"`
}

// NewRedisStore connects and pings; a store that cannot reach Redis at boot
// is a configuration error, not something to discover on the first turn.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ReadTimeout = time.Duration(cfg.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(cfg.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(cfg.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, prefix: "botflow"}, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests with
// miniredis).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "botflow"}
}

func (s *RedisStore) attrKey(bot, channel, user, key string) string {
	return fmt.Sprintf("%s:attr:%s:%s:%s:%s", s.prefix, bot, channel, user, key)
}

func (s *RedisStore) latestKey(channel, key string) string {
	return fmt.Sprintf("%s:latest:%s:%s", s.prefix, channel, key)
}

func (s *RedisStore) Get(ctx context.Context, channel, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.latestKey(channel, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("entity get %s/%s: %w", channel, key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, bot, channel, user, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.attrKey(bot, channel, user, key), value, s.ttl)
	pipe.Set(ctx, s.latestKey(channel, key), value, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("entity upsert %s/%s: %w", channel, key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
