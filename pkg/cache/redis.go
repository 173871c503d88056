package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps go-redis with key prefixing and the stream helpers the
// relay needs.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(opts ...RedisOption) (*RedisClient, error) {
	cfg := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		Prefix:       "regimedesk",
		PingTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		PoolTimeout:  cfg.PoolTimeout,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisClient{client: client, prefix: cfg.Prefix}, nil
}

// Client returns the underlying redis client.
func (c *RedisClient) Client() *redis.Client { return c.client }

func (c *RedisClient) Close() error { return c.client.Close() }

// Key prefixes name.
func (c *RedisClient) Key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

// StreamEntry is one XADD. ID is left to the server.
type StreamEntry struct {
	Values map[string]interface{}
}

// XAddBatch appends entries to stream in one pipeline, trimming it to about
// maxLen entries when maxLen > 0. It returns the generated ids.
func (c *RedisClient) XAddBatch(ctx context.Context, stream string, maxLen int64, entries []StreamEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	key := c.Key(stream)
	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(entries))
	for _, e := range entries {
		args := &redis.XAddArgs{Stream: key, Values: e.Values}
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
		cmds = append(cmds, pipe.XAdd(ctx, args))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("xadd %s: %w", key, err)
	}
	ids := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		ids = append(ids, cmd.Val())
	}
	return ids, nil
}

// SetJSON stores value as JSON under the prefixed key.
func (c *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, c.Key(key), data, expiration).Err()
}

// GetJSON decodes the prefixed key into dest, or returns ErrCacheMiss.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, dest)
}
