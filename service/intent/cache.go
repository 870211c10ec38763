package intent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daverbj/solana-llm-integration/service/metrics"
)

// DefaultCacheTTL is how long a resolved intent stays cached.
const DefaultCacheTTL = 10 * time.Minute

const cacheKeyPrefix = "intent:"

// CachedResolver wraps a Resolver with a Redis cache keyed by the query text.
// Redis failures fall through to the wrapped resolver; only successful
// resolutions are stored. A stored intent is returned for the same query until
// the ttl expires, even if the completion that produced it was wrong.
type CachedResolver struct {
	next    Resolver
	rdb     redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedResolver creates a CachedResolver. A ttl of zero uses DefaultCacheTTL.
func NewCachedResolver(next Resolver, rdb redis.Cmdable, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{
		next:    next,
		rdb:     rdb,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// CacheKey returns the Redis key for query. Whitespace runs are collapsed;
// case is preserved because addresses are case-sensitive.
func CacheKey(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	sum := sha256.Sum256([]byte(normalized))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Extract returns the cached intent for query or resolves and caches it.
func (c *CachedResolver) Extract(ctx context.Context, query string) (Intent, error) {
	key := CacheKey(query)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var intent Intent
		if err := json.Unmarshal([]byte(cached), &intent); err == nil {
			c.record("hit")
			return intent, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached intent", "key", key)
		c.record("miss")
	case errors.Is(err, redis.Nil):
		c.record("miss")
	default:
		c.logger.WarnContext(ctx, "intent cache lookup failed", "error", err)
		c.record("error")
	}

	intent, err := c.next.Extract(ctx, query)
	if err != nil {
		return Intent{}, err
	}

	data, err := json.Marshal(intent)
	if err != nil {
		return intent, nil
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to cache intent", "error", err)
	}
	return intent, nil
}

func (c *CachedResolver) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordIntentCache(result)
	}
}
