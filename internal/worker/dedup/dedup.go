// Package dedup remembers which queue messages a worker already processed so
// a broker redelivery of the same message is not run through the pipeline
// twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a processed message id is remembered
const DefaultTTL = 24 * time.Hour

// Guard records processed message ids. Implementations must be safe for
// concurrent use.
type Guard interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

// NoopGuard never reports a message as seen
type NoopGuard struct{}

func (NoopGuard) Seen(context.Context, string) (bool, error) { return false, nil }
func (NoopGuard) Mark(context.Context, string) error          { return nil }

// RedisGuard stores processed ids as expiring keys
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard parses url (redis://host:port/db) and builds a guard. It does
// not contact the server; use Ping for that.
func NewRedisGuard(url, prefix string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisGuard{
		client: redis.NewClient(opts),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (g *RedisGuard) key(messageID string) string {
	return g.prefix + messageID
}

// Seen reports whether messageID was marked within the TTL. Messages without
// an id are never considered seen.
func (g *RedisGuard) Seen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, nil
	}

	n, err := g.client.Exists(ctx, g.key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return n > 0, nil
}

// Mark remembers messageID for the guard's TTL
func (g *RedisGuard) Mark(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}

	ok, err := g.client.SetNX(ctx, g.key(messageID), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to mark message %s: %w", messageID, err)
	}
	if !ok {
		// already marked by a concurrent delivery; refresh the expiry
		return g.client.Expire(ctx, g.key(messageID), g.ttl).Err()
	}
	return nil
}

// Ping verifies the redis server is reachable
func (g *RedisGuard) Ping(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
