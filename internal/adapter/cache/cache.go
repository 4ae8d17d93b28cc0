// Package cache puts Redis read-through caches in front of the context
// providers. Redis is optional: any Redis failure falls through to the
// wrapped provider and the request continues.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"studio/internal/domain"
)

const (
	DefaultBrandTTL    = 5 * time.Minute
	DefaultTemplateTTL = 15 * time.Minute

	brandPrefix    = "studio:brand:"
	templatePrefix = "studio:template:"
)

var tracer = otel.Tracer("studio/cache")

type readThrough struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

// load returns the cached value for key or fills it from loader. A nil value
// from loader is not cached.
func load[T any](ctx context.Context, c *readThrough, key string, loader func(context.Context) (*T, error)) (*T, error) {
	ctx, span := tracer.Start(ctx, "cache.GetOrLoad", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &v, nil
		}
		c.logger.Warn().Str("key", key).Msg("cache: undecodable entry, reloading")
	case errors.Is(err, redis.Nil):
	default:
		span.RecordError(err)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache: redis unavailable, reading through")
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (any, error) {
		v, err := loader(ctx)
		if err != nil || v == nil {
			return v, err
		}
		if encoded, mErr := json.Marshal(v); mErr == nil {
			if sErr := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); sErr != nil {
				span.RecordError(sErr)
			}
		}
		return v, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		return nil, err
	}
	v, _ := result.(*T)
	return v, nil
}

// BrandCache caches brand voices per user.
type BrandCache struct {
	next domain.BrandProvider
	rt   *readThrough
}

var _ domain.BrandProvider = (*BrandCache)(nil)

func NewBrandCache(rdb redis.UniversalClient, next domain.BrandProvider, ttl time.Duration, logger zerolog.Logger) *BrandCache {
	if ttl <= 0 {
		ttl = DefaultBrandTTL
	}
	return &BrandCache{next: next, rt: &readThrough{rdb: rdb, ttl: ttl, logger: logger}}
}

func (c *BrandCache) FetchBrand(ctx context.Context, userID string) (*domain.BrandVoice, error) {
	return load(ctx, c.rt, brandPrefix+userID, func(ctx context.Context) (*domain.BrandVoice, error) {
		return c.next.FetchBrand(ctx, userID)
	})
}

// Invalidate drops the cached brand for a user.
func (c *BrandCache) Invalidate(ctx context.Context, userID string) error {
	return c.rt.rdb.Del(ctx, brandPrefix+userID).Err()
}

// TemplateCache caches templates by id.
type TemplateCache struct {
	next domain.TemplateProvider
	rt   *readThrough
}

var _ domain.TemplateProvider = (*TemplateCache)(nil)

func NewTemplateCache(rdb redis.UniversalClient, next domain.TemplateProvider, ttl time.Duration, logger zerolog.Logger) *TemplateCache {
	if ttl <= 0 {
		ttl = DefaultTemplateTTL
	}
	return &TemplateCache{next: next, rt: &readThrough{rdb: rdb, ttl: ttl, logger: logger}}
}

func (c *TemplateCache) FetchTemplate(ctx context.Context, templateID string) (*domain.TemplateRecipe, error) {
	return load(ctx, c.rt, templatePrefix+templateID, func(ctx context.Context) (*domain.TemplateRecipe, error) {
		return c.next.FetchTemplate(ctx, templateID)
	})
}

func (c *TemplateCache) Invalidate(ctx context.Context, templateID string) error {
	return c.rt.rdb.Del(ctx, templatePrefix+templateID).Err()
}
