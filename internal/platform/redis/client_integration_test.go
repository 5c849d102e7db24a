//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "quizdeck/internal/platform/redis"
	"quizdeck/pkg/testutil/containers"
)

type FixedWindowLimiterSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *platformredis.Client
}

func TestFixedWindowLimiterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(FixedWindowLimiterSuite))
}

func (s *FixedWindowLimiterSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.client = &platformredis.Client{Client: s.redis.Client}
}

func (s *FixedWindowLimiterSuite) TearDownSuite() {
	s.redis.Container.Terminate(context.Background())
}

func (s *FixedWindowLimiterSuite) SetupTest() {
	err := s.redis.Client.FlushAll(context.Background()).Err()
	s.Require().NoError(err)
}

func (s *FixedWindowLimiterSuite) TestDeniesBeyondLimitWithinWindow() {
	ctx := context.Background()
	limiter := platformredis.NewFixedWindowLimiter(s.client, "guest_upload", 1, time.Hour)

	allowed, err := limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.True(allowed)

	allowed, err = limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.False(allowed, "second hit in the same window is over the limit")
}

func (s *FixedWindowLimiterSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	limiter := platformredis.NewFixedWindowLimiter(s.client, "guest_upload", 1, time.Hour)

	allowed, err := limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.True(allowed)

	allowed, err = limiter.Allow(ctx, "198.51.100.8")
	s.Require().NoError(err)
	s.True(allowed, "a different origin has its own window")
}

func (s *FixedWindowLimiterSuite) TestWindowExpiryResetsTheCount() {
	ctx := context.Background()
	limiter := platformredis.NewFixedWindowLimiter(s.client, "guest_upload", 1, time.Second)

	allowed, err := limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.True(allowed)

	allowed, err = limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.False(allowed)

	time.Sleep(1100 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "198.51.100.7")
	s.Require().NoError(err)
	s.True(allowed, "expired window starts fresh")
}

func (s *FixedWindowLimiterSuite) TestNilLimiterAllowsEverything() {
	var limiter *platformredis.FixedWindowLimiter
	allowed, err := limiter.Allow(context.Background(), "198.51.100.7")
	s.Require().NoError(err)
	s.True(allowed)
}
