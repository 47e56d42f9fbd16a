package balance

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the advisory balance cache. Misses and failures degrade to a
// direct aggregation; entries only ever hold slightly-stale data.
type Cache interface {
	Get(ctx context.Context, key string) (Balance, bool)
	Set(ctx context.Context, tenantID int64, accountCode, key string, b Balance)
	Invalidate(ctx context.Context, tenantID int64, accountCodes ...string) error
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds the read-through cache. Alongside each value an
// index set per (tenant, account) records the live keys so date/tag
// variants are dropped together on invalidation.
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisCache{client: client, ttl: ttl}
}

func indexKey(tenantID int64, accountCode string) string {
	return "balidx:" + strconv.FormatInt(tenantID, 10) + ":" + accountCode
}

func (c *redisCache) Get(ctx context.Context, key string) (Balance, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return Balance{}, false
	}
	var b Balance
	if err := json.Unmarshal(raw, &b); err != nil {
		return Balance{}, false
	}
	return b, true
}

func (c *redisCache) Set(ctx context.Context, tenantID int64, accountCode, key string, b Balance) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	idx := indexKey(tenantID, accountCode)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, raw, c.ttl)
	pipe.SAdd(ctx, idx, key)
	// Index outlives values slightly so stale members just miss on Get.
	pipe.Expire(ctx, idx, c.ttl*2)
	_, _ = pipe.Exec(ctx)
}

func (c *redisCache) Invalidate(ctx context.Context, tenantID int64, accountCodes ...string) error {
	for _, code := range accountCodes {
		idx := indexKey(tenantID, code)
		keys, err := c.client.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		keys = append(keys, idx)
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}

// NoopCache disables caching, used by tests and tooling.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (Balance, bool)         { return Balance{}, false }
func (NoopCache) Set(context.Context, int64, string, string, Balance) {}
func (NoopCache) Invalidate(context.Context, int64, ...string) error  { return nil }
