package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
)

const (
	keyNamespace      = "agrimarket"
	idempotencyPrefix = "idempotency"
)

var (
	errNotInitialized = errors.New("redis: client not initialized")
	errNoEndpoint     = errors.New("redis: url or address is required")
)

// backend is the slice of redis.Cmdable used here; tests swap in a map.
type backend interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the idempotency middleware needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

var (
	_ IdempotencyStore = (*Client)(nil)
	_ Pinger           = (*Client)(nil)
)

// Client backs idempotent order mutations and the realtime order channels.
type Client struct {
	cmds backend
	conn *redis.Client
}

// New dials redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"redis_addr": opts.Addr,
			"redis_db":   opts.DB,
			"pool_size":  opts.PoolSize,
		}), "redis ready")
	}
	return &Client{cmds: conn, conn: conn}, nil
}

// optionsFromConfig prefers the URL form; explicit settings only fill what
// the URL leaves at zero.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	}
	if opts.Addr == "" {
		return nil, errNoEndpoint
	}

	orDefault(&opts.DB, cfg.DB)
	orDefault(&opts.PoolSize, cfg.PoolSize)
	orDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	orDefault(&opts.DialTimeout, cfg.DialTimeout)
	orDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	orDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func orDefault[T int | time.Duration](dst *T, fallback T) {
	if *dst == 0 {
		*dst = fallback
	}
}

func (c *Client) ready() (backend, error) {
	if c == nil || c.cmds == nil {
		return nil, errNotInitialized
	}
	return c.cmds, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := c.ready()
	if err != nil {
		return err
	}
	return b.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	b, err := c.ready()
	if err != nil {
		return "", err
	}
	return b.Get(ctx, key).Result()
}

// SetNX reports whether this call claimed the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	b, err := c.ready()
	if err != nil {
		return false, err
	}
	return b.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	b, err := c.ready()
	if err != nil {
		return err
	}
	return b.Del(ctx, keys...).Err()
}

// IdempotencyKey builds agrimarket:idempotency:<scope>:<id>, skipping blank parts.
func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced(idempotencyPrefix, scope, id)
}

// Publish returns how many subscribers received the message.
func (c *Client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	b, err := c.ready()
	if err != nil {
		return 0, err
	}
	return b.Publish(ctx, channel, message).Result()
}

func (c *Client) Ping(ctx context.Context) error {
	b, err := c.ready()
	if err != nil {
		return err
	}
	return b.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func namespaced(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
