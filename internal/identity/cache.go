package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backoffice/internal/model"
	"backoffice/pkg/metrics"
)

// CachedResolver keeps resolved identities in redis for ttl. Misses and
// redis failures fall through to next; not-found answers are not cached.
type CachedResolver struct {
	next   Resolver
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedResolver(next Resolver, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(adminID string) string {
	return "identity:" + adminID
}

func (c *CachedResolver) Resolve(ctx context.Context, adminID string) (*model.Identity, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(adminID)).Bytes()
	switch {
	case err == nil:
		var id model.Identity
		if err := json.Unmarshal(raw, &id); err == nil {
			metrics.IdentityLookupCount.WithLabelValues("cache", "hit").Inc()
			return &id, nil
		}
		c.logger.Warn("Dropping undecodable cached identity", zap.String("admin_id", adminID))
	case errors.Is(err, redis.Nil):
		metrics.IdentityLookupCount.WithLabelValues("cache", "miss").Inc()
	default:
		metrics.IdentityLookupCount.WithLabelValues("cache", "error").Inc()
		c.logger.Warn("Identity cache read failed", zap.String("admin_id", adminID), zap.Error(err))
	}

	id, err := c.next.Resolve(ctx, adminID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(id); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(adminID), b, c.ttl).Err(); err != nil {
			c.logger.Warn("Identity cache write failed", zap.String("admin_id", adminID), zap.Error(err))
		}
	}
	return id, nil
}

// Invalidate drops the cached identity so the next join re-resolves it.
func (c *CachedResolver) Invalidate(ctx context.Context, adminID string) error {
	return c.rdb.Del(ctx, cacheKey(adminID)).Err()
}
