// Package statuscache keeps the latest KYC status per client in Redis so that
// loan-origination checks avoid a database round trip.
package statuscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"loankyc/internal/kyc/models"
	id "loankyc/pkg/domain"
	"loankyc/pkg/platform/sentinel"
)

const keyPrefix = "kyc:status:"

// DefaultTTL bounds how long a status may be served without a refresh.
const DefaultTTL = 10 * time.Minute

// setIfNewer stores status with its record version unless the cached entry
// already carries the same or a later version. Returns 1 when written.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'status', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// RedisCache is a read-through status cache. The record store stays the
// source of truth; each entry is a hash of status and record version.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type Option func(*RedisCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...Option) *RedisCache {
	c := &RedisCache{client: client, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns sentinel.ErrNotFound on a miss.
func (c *RedisCache) Get(ctx context.Context, clientID id.ClientID) (models.Status, error) {
	raw, err := c.client.HGet(ctx, keyPrefix+clientID.String(), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return models.ParseStatus(raw)
}

// Set caches status as of record version. A write carrying an older version
// than the cached one is dropped, so a slow reader cannot undo a transition.
func (c *RedisCache) Set(ctx context.Context, clientID id.ClientID, status models.Status, version int64) error {
	return setIfNewer.Run(ctx, c.client,
		[]string{keyPrefix + clientID.String()},
		version, string(status), c.ttl.Milliseconds(),
	).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, clientID id.ClientID) error {
	return c.client.Del(ctx, keyPrefix+clientID.String()).Err()
}
