package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StockCache is a read-through cache of per-product on-hand quantities for
// the dashboard read path. The ledger remains the source of truth; entries
// are invalidated whenever an aggregate changes.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// ErrCacheMiss indicates the quantity is not cached.
var ErrCacheMiss = errors.New("platform/cache: miss")

// NewStockCache constructs a StockCache.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StockCache{client: client, ttl: ttl}
}

func stockKey(tenantID, productID int64) string {
	return fmt.Sprintf("stock:%d:%d", tenantID, productID)
}

// Get returns the cached quantity for a product.
func (c *StockCache) Get(ctx context.Context, tenantID, productID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheMiss
	}
	raw, err := c.client.Get(ctx, stockKey(tenantID, productID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, err
	}
	qty, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrCacheMiss
	}
	return qty, nil
}

// Set stores the quantity for a product.
func (c *StockCache) Set(ctx context.Context, tenantID, productID, qty int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, stockKey(tenantID, productID), strconv.FormatInt(qty, 10), c.ttl).Err()
}

// Invalidate drops the cached quantity for a product.
func (c *StockCache) Invalidate(ctx context.Context, tenantID, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, stockKey(tenantID, productID)).Err()
}
