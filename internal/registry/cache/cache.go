// Package cache keeps the gallery list out of the database for read-heavy
// deployments. Writers invalidate it in the same request that changes membership.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// GalleryKey is the Redis key of the cached gallery list.
const GalleryKey = "registry:galleries"

// Galleries caches the sorted list of gallery ids.
type Galleries interface {
	// Get returns the cached list; ok is false on a miss.
	Get(ctx context.Context) (names []string, ok bool, err error)
	Set(ctx context.Context, names []string) error
	Invalidate(ctx context.Context) error
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(context.Context) ([]string, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, []string) error         { return nil }
func (Noop) Invalidate(context.Context) error            { return nil }

// Redis stores the list as one JSON value.
type Redis struct {
	client  redis.Cmdable
	ttl     time.Duration
	lookups *prometheus.CounterVec
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithTTL bounds how long a cached list may be served.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithRegisterer exposes hit and miss counters on reg.
func WithRegisterer(reg prometheus.Registerer) RedisOption {
	return func(r *Redis) {
		r.lookups = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "registry_gallery_cache_lookups_total",
			Help: "Gallery cache lookups by result",
		}, []string{"result"})
	}
}

// NewRedis returns a cache over client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: time.Minute}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) Get(ctx context.Context) ([]string, bool, error) {
	raw, err := r.client.Get(ctx, GalleryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		r.count("miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read gallery cache: %w", err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, false, fmt.Errorf("decode gallery cache: %w", err)
	}
	r.count("hit")
	return names, true, nil
}

func (r *Redis) Set(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode gallery cache: %w", err)
	}
	return r.client.Set(ctx, GalleryKey, raw, r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, GalleryKey).Err()
}

func (r *Redis) count(result string) {
	if r.lookups != nil {
		r.lookups.WithLabelValues(result).Inc()
	}
}
