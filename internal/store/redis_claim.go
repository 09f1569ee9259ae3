package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimGuard implements ClaimGuard with SET NX. Keys expire so a crashed
// worker's claims free up on their own.
type RedisClaimGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClaimGuard connects a claim guard to the given Redis address.
func NewRedisClaimGuard(addr, prefix string, ttl time.Duration) *RedisClaimGuard {
	return &RedisClaimGuard{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Claim attempts SET NX on the signature key.
func (g *RedisClaimGuard) Claim(ctx context.Context, signature string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+signature, "1", g.ttl).Result()
}

// Close closes the Redis client.
func (g *RedisClaimGuard) Close() error {
	return g.client.Close()
}
