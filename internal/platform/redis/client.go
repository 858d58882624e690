package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"loankyc/internal/platform/config"
)

// Client is the shared connection used by the KYC status cache.
type Client struct {
	*redis.Client
}

// New dials Redis and pings it. A blank URL means the cache is disabled and
// New returns nil, nil.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// options overlays the non-zero pool and timeout settings on the URL's.
func options(cfg config.Redis) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Health pings the server. The error names the pool state so /healthz shows
// whether connections are exhausted.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		st := c.PoolStats()
		return fmt.Errorf("redis ping (total=%d idle=%d timeouts=%d): %w", st.TotalConns, st.IdleConns, st.Timeouts, err)
	}
	return nil
}
