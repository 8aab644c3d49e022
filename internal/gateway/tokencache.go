package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/paybill-gateway/internal/domain"
)

// TokenCache keeps OAuth tokens until shortly before they expire.
type TokenCache interface {
	Get(ctx context.Context, key string) (token string, ok bool, err error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// tokenKey never contains the consumer pair in clear. A rotated secret
// yields a new key.
func tokenKey(consumerKey, consumerSecret string, env domain.Environment) string {
	sum := sha256.Sum256([]byte(consumerKey + "\x00" + consumerSecret + "\x00" + string(env)))
	return hex.EncodeToString(sum[:])
}

type RedisTokenCache struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisTokenCache(rdb redis.UniversalClient) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, prefix: "paybill:token:"}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, token, ttl).Err()
}

type memoryToken struct {
	token   string
	expires time.Time
}

type MemoryTokenCache struct {
	mu    sync.Mutex
	items map[string]memoryToken
	now   func() time.Time
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: map[string]memoryToken{}, now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(it.expires) {
		delete(c.items, key)
		return "", false, nil
	}
	return it.token, true, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryToken{token: token, expires: c.now().Add(ttl)}
	return nil
}
