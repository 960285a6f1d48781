package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tealwick/storefront/internal/redisx"
)

var ErrCacheMiss = errors.New("cart cache miss")

// Cache is a read-through cache for cart snapshots. Misses and failures are
// never fatal; the store stays the source of truth.
type Cache interface {
	Get(ctx context.Context, id Identity) (*Cart, error)
	Set(ctx context.Context, id Identity, c *Cart) error
	Invalidate(ctx context.Context, id Identity) error
}

type RedisCache struct{ RDB *redis.Client }

var _ Cache = (*RedisCache)(nil)

func cacheKey(id Identity) string {
	if id.UserID != "" {
		return fmt.Sprintf(redisx.KeyCartUser, id.UserID)
	}
	return fmt.Sprintf(redisx.KeyCartSession, id.SessionID)
}

func (c *RedisCache) Get(ctx context.Context, id Identity) (*Cart, error) {
	b, err := c.RDB.Get(ctx, cacheKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var cart Cart
	if err := json.Unmarshal(b, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *RedisCache) Set(ctx context.Context, id Identity, cart *Cart) error {
	b, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, cacheKey(id), b, redisx.TTLCartCache).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, id Identity) error {
	return c.RDB.Del(ctx, cacheKey(id)).Err()
}
