// Package compliancecache is a Redis read-through layer over a
// ComplianceStore. Transfer gating reads go straight to the substrate; the
// cache serves the read-only compliance endpoints, where a short TTL of
// staleness is acceptable. Writes pass through and invalidate.
package compliancecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"braza/internal/ledger/models"
	"braza/internal/ledger/ports"
	"braza/pkg/domain"
)

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "braza_compliance_cache_lookups_total",
	Help: "Compliance cache lookups by outcome",
}, []string{"outcome"})

const (
	recordKeyPrefix  = "compliance:record:"
	countryKeyPrefix = "compliance:country:"

	defaultTTL = 5 * time.Minute
)

// Cache decorates a ComplianceStore with Redis caching.
type Cache struct {
	next   ports.ComplianceStore
	client *redis.Client
	ttl    time.Duration
}

var _ ports.ComplianceStore = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New wraps next with a Redis cache. A nil client yields a pass-through.
func New(next ports.ComplianceStore, client *redis.Client, opts ...Option) *Cache {
	c := &Cache{next: next, client: client, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cache) Compliance(ctx context.Context, addr domain.Address) (models.ComplianceRecord, error) {
	if c.client == nil {
		return c.next.Compliance(ctx, addr)
	}
	key := recordKeyPrefix + addr.String()
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec models.ComplianceRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return rec, nil
		}
		// Corrupt entry: fall through to the substrate and overwrite.
	} else if !errors.Is(err, redis.Nil) {
		// Redis trouble never fails a read; serve from the substrate.
		cacheLookups.WithLabelValues("error").Inc()
		return c.next.Compliance(ctx, addr)
	}

	cacheLookups.WithLabelValues("miss").Inc()
	rec, err := c.next.Compliance(ctx, addr)
	if err != nil {
		return rec, err
	}
	if encoded, jsonErr := json.Marshal(rec); jsonErr == nil {
		c.client.Set(ctx, key, encoded, c.ttl)
	}
	return rec, nil
}

func (c *Cache) PutCompliance(ctx context.Context, rec models.ComplianceRecord) error {
	if err := c.next.PutCompliance(ctx, rec); err != nil {
		return err
	}
	if c.client != nil {
		c.client.Del(ctx, recordKeyPrefix+rec.Address.String())
	}
	return nil
}

func (c *Cache) CountryAllowed(ctx context.Context, code string) (bool, error) {
	if c.client == nil {
		return c.next.CountryAllowed(ctx, code)
	}
	key := countryKeyPrefix + code
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		cacheLookups.WithLabelValues("hit").Inc()
		return raw == "1", nil
	}
	if !errors.Is(err, redis.Nil) {
		cacheLookups.WithLabelValues("error").Inc()
		return c.next.CountryAllowed(ctx, code)
	}

	cacheLookups.WithLabelValues("miss").Inc()
	allowed, err := c.next.CountryAllowed(ctx, code)
	if err != nil {
		return false, err
	}
	value := "0"
	if allowed {
		value = "1"
	}
	c.client.Set(ctx, key, value, c.ttl)
	return allowed, nil
}

func (c *Cache) SetCountryAllowed(ctx context.Context, code string, allowed bool) error {
	if err := c.next.SetCountryAllowed(ctx, code, allowed); err != nil {
		return err
	}
	if c.client != nil {
		c.client.Del(ctx, countryKeyPrefix+code)
	}
	return nil
}
