package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"socialhub/internal/metrics"
)

const revokedPrefix = "revoked:"

// CachedLedger mirrors revocations into redis in front of an authoritative
// Ledger. Only positive answers are cached; redis failures fall back to the
// inner ledger.
type CachedLedger struct {
	inner  Ledger
	redis  *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewCachedLedger wraps inner with a redis mirror.
func NewCachedLedger(inner Ledger, client *redis.Client, logger *zap.Logger) *CachedLedger {
	return &CachedLedger{inner: inner, redis: client, logger: logger, now: time.Now}
}

func (c *CachedLedger) Revoke(ctx context.Context, jti string, owner primitive.ObjectID, expiresAt time.Time) error {
	if err := c.inner.Revoke(ctx, jti, owner, expiresAt); err != nil {
		return err
	}
	c.remember(ctx, jti, owner.Hex(), expiresAt)
	return nil
}

func (c *CachedLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.redis.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		c.logger.Warn("revocation cache lookup failed", zap.Error(err))
	} else if n > 0 {
		metrics.RevocationCacheHitsTotal.Inc()
		return true, nil
	}
	return c.inner.IsRevoked(ctx, jti)
}

func (c *CachedLedger) remember(ctx context.Context, jti, owner string, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	if err := c.redis.Set(ctx, revokedPrefix+jti, owner, ttl).Err(); err != nil {
		c.logger.Warn("revocation cache write failed", zap.Error(err))
	}
}
