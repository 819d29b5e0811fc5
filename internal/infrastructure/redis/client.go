package redis

import (
	"context"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = stderrors.New("key not found")

// RedisClient is the subset of Redis used for sessions and the balance cache.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

type Options struct {
	Addr     string
	Password string
	DB       int
	// OpTimeout bounds every read and write; 500ms when zero.
	OpTimeout time.Duration
}

type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 500 * time.Millisecond
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", opts.Addr, "db", opts.DB, "error", err)
		client.Close()
		return nil, err
	}

	slog.Info("connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return &Client{client: client}, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case stderrors.Is(err, redis.Nil):
		return "", ErrKeyNotFound
	case err != nil:
		slog.Warn("redis get failed", "key", key, "error", err)
		return "", err
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		slog.Warn("redis set failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Del removes keys in one round trip; deleting nothing is not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}
