package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	websitemetrics "assent/internal/website/metrics"
	"assent/internal/website/models"
)

const cacheKeyPrefix = "assent:website:"

// Cache is a Redis read-through decorator around a Store. Cache failures
// degrade to the inner store; a flaky Redis must never take config serving
// down with it.
type Cache struct {
	inner   Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *websitemetrics.Metrics
}

// NewCache decorates inner with a Redis read-through cache.
func NewCache(inner Store, client *redis.Client, ttl time.Duration, logger *slog.Logger, m *websitemetrics.Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{inner: inner, redis: client, ttl: ttl, logger: logger, metrics: m}
}

func cacheKey(siteID string) string {
	return cacheKeyPrefix + siteID
}

// cachedWebsite is the stored cache entry. The document keeps its wire shape
// so a schema change invalidates by failing to decode, which reads as a miss.
type cachedWebsite struct {
	Website *models.Website `json:"website"`
}

func (c *Cache) FindBySiteID(ctx context.Context, siteID string) (*models.Website, error) {
	payload, err := c.redis.Get(ctx, cacheKey(siteID)).Bytes()
	if err == nil {
		var entry cachedWebsite
		if jsonErr := json.Unmarshal(payload, &entry); jsonErr == nil && entry.Website != nil {
			c.metrics.RecordCacheLookup("hit")
			return entry.Website, nil
		}
		// Undecodable entries fall through to the store and get rewritten.
	} else if !errors.Is(err, redis.Nil) {
		c.metrics.RecordCacheLookup("bypass")
		c.logger.WarnContext(ctx, "config cache read failed",
			"site_id", siteID,
			"error", err,
		)
		return c.inner.FindBySiteID(ctx, siteID)
	}

	c.metrics.RecordCacheLookup("miss")
	website, err := c.inner.FindBySiteID(ctx, siteID)
	if err != nil {
		return nil, err
	}

	if err := c.write(ctx, website); err != nil {
		c.logger.WarnContext(ctx, "config cache write failed",
			"site_id", siteID,
			"error", err,
		)
	}
	return website, nil
}

func (c *Cache) Upsert(ctx context.Context, website *models.Website) error {
	if err := c.inner.Upsert(ctx, website); err != nil {
		return err
	}
	// Invalidate rather than write: the next read repopulates from the store,
	// so the cache can never hold a document the store rejected.
	return c.Purge(ctx, website.SiteID)
}

func (c *Cache) SetActive(ctx context.Context, siteID string, active bool) error {
	if err := c.inner.SetActive(ctx, siteID, active); err != nil {
		return err
	}
	return c.Purge(ctx, siteID)
}

// Purge drops the cache entry for a site. Serving continues from the inner
// store either way.
func (c *Cache) Purge(ctx context.Context, siteID string) error {
	if err := c.redis.Del(ctx, cacheKey(siteID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "config cache purge failed",
			"site_id", siteID,
			"error", err,
		)
		return fmt.Errorf("purge config cache: %w", err)
	}
	return nil
}

func (c *Cache) write(ctx context.Context, website *models.Website) error {
	payload, err := json.Marshal(cachedWebsite{Website: website})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.redis.Set(ctx, cacheKey(website.SiteID), payload, c.ttl).Err()
}
