//go:build integration

package jwttoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	jwttoken "vetting/internal/jwt_token"
	"vetting/pkg/testutil/containers"
)

type RevocationSuite struct {
	suite.Suite
	redis       *containers.RedisContainer
	revocations *jwttoken.RedisRevocations
}

func TestRevocationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RevocationSuite))
}

func (s *RevocationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.revocations = jwttoken.NewRedisRevocations(s.redis.Client)
}

func (s *RevocationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RevocationSuite) TestRevoke() {
	ctx := context.Background()

	revoked, err := s.revocations.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.revocations.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	revoked, err = s.revocations.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	ttl, err := s.redis.Client.TTL(ctx, "vetting:revoked-jti:jti-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RevocationSuite) TestExpiredTokenIsNotStored() {
	ctx := context.Background()
	s.Require().NoError(s.revocations.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute)))

	n, err := s.redis.Client.Exists(ctx, "vetting:revoked-jti:jti-old").Result()
	s.Require().NoError(err)
	s.Zero(n)
}
