//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"registry/internal/registry/cache"
	"registry/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	reg   *prometheus.Registry
	cache *cache.Redis
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.reg = prometheus.NewRegistry()
	s.cache = cache.NewRedis(s.redis.Client, cache.WithTTL(time.Minute), cache.WithRegisterer(s.reg))
}

func (s *RedisCacheSuite) TestMissThenHit() {
	ctx := context.Background()

	_, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Set(ctx, []string{"G1", "G2"}))
	names, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]string{"G1", "G2"}, names)

	// one hit series and one miss series
	s.Equal(2, testutil.CollectAndCount(s.reg, "registry_gallery_cache_lookups_total"))
}

func (s *RedisCacheSuite) TestEmptyListIsAHit() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, nil))

	names, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.True(ok)
	s.Empty(names)
}

func (s *RedisCacheSuite) TestInvalidate() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, []string{"G1"}))
	s.Require().NoError(s.cache.Invalidate(ctx))

	_, ok, err := s.cache.Get(ctx)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestTTLIsApplied() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, []string{"G1"}))

	ttl, err := s.redis.Client.TTL(ctx, cache.GalleryKey).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}
