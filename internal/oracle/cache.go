package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache fronts another feed with a short-lived shared cache so several
// replicas do not all hit the upstream for the same observation. The TTL
// should stay well below the staleness bound.
type RedisCache struct {
	Next   Feed
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

func NewRedisCache(next Feed, client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisCache{Next: next, Client: client, TTL: ttl, Prefix: "mw:oracle:", Logger: logger}
}

func (c *RedisCache) key(feedID string) string {
	return c.Prefix + normalizeFeedID(feedID)
}

func (c *RedisCache) Read(ctx context.Context, feedID string) (Observation, error) {
	if c.Client != nil {
		b, err := c.Client.Get(ctx, c.key(feedID)).Bytes()
		switch {
		case err == nil:
			if obs, derr := DecodeObservation(b); derr == nil {
				return obs, nil
			} else if c.Logger != nil {
				c.Logger.Warn("oracle cache entry unreadable", zap.String("feed", feedID), zap.Error(derr))
			}
		case errors.Is(err, redis.Nil):
		default:
			if c.Logger != nil {
				c.Logger.Warn("oracle cache get failed", zap.String("feed", feedID), zap.Error(err))
			}
		}
	}

	obs, err := c.Next.Read(ctx, feedID)
	if err != nil {
		return Observation{}, err
	}
	if c.Client != nil {
		if err := c.Client.Set(ctx, c.key(feedID), EncodeObservation(obs), c.TTL).Err(); err != nil && c.Logger != nil {
			c.Logger.Warn("oracle cache set failed", zap.String("feed", feedID), zap.Error(err))
		}
	}
	return obs, nil
}
