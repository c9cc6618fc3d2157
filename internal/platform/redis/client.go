// Package redis connects the projector offset store to Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"schemaregistry/internal/platform/config"
)

// ClientName is sent with CLIENT SETNAME unless the URL names the client.
const ClientName = "schemaregistry-projector"

var errNoURL = errors.New("redis: REDIS_URL is not set")

// Options parses cfg.URL. Settings given as URL query parameters win over
// the environment; the environment fills whatever the URL leaves unset.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, errNoURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse URL: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = ClientName
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Conn is an open connection plus the health check registered for it.
type Conn struct {
	*redis.Client
	timeouts atomic.Uint32
}

// Open connects and pings once, bounded by the dial timeout.
func Open(ctx context.Context, cfg config.RedisConfig) (*Conn, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := ping(ctx, client, opts); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Conn{Client: client}, nil
}

func ping(ctx context.Context, client *redis.Client, opts *redis.Options) error {
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return nil
}

// Health pings the server and fails when callers timed out waiting for a
// pooled connection since the previous check, which means offset writes are
// queueing behind a pool that is too small.
func (c *Conn) Health(ctx context.Context) error {
	if err := ping(ctx, c.Client, c.Options()); err != nil {
		return err
	}
	now := c.PoolStats().Timeouts
	if prev := c.timeouts.Swap(now); now > prev {
		return fmt.Errorf("redis: %d pool wait timeout(s) since last check (pool size %d)", now-prev, c.Options().PoolSize)
	}
	return nil
}
