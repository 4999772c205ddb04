//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesta/internal/auth/revocation"
	"attesta/pkg/testutil/containers"
)

type RedisTRLSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	trl   *revocation.RedisTRL
}

func TestRedisTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTRLSuite))
}

func (s *RedisTRLSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.trl = revocation.NewRedisTRL(s.redis.Client)
}

func (s *RedisTRLSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

func (s *RedisTRLSuite) TestRevokeThenCheck() {
	ctx := context.Background()
	jti := uuid.NewString()

	revoked, err := s.trl.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.trl.RevokeToken(ctx, jti, time.Minute))

	revoked, err = s.trl.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RedisTRLSuite) TestRevocationExpiresWithTTL() {
	ctx := context.Background()
	jti := uuid.NewString()

	s.Require().NoError(s.trl.RevokeToken(ctx, jti, 500*time.Millisecond))

	revoked, err := s.trl.IsRevoked(ctx, jti)
	s.Require().NoError(err)
	s.True(revoked)

	s.Eventually(func() bool {
		revoked, err := s.trl.IsRevoked(ctx, jti)
		return err == nil && !revoked
	}, 3*time.Second, 100*time.Millisecond, "revocation should expire with the token")
}

func (s *RedisTRLSuite) TestEmptyJTIIsNoop() {
	ctx := context.Background()

	s.Require().NoError(s.trl.RevokeToken(ctx, "", time.Minute))

	revoked, err := s.trl.IsRevoked(ctx, "")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisTRLSuite) TestRevocationsAreIndependent() {
	ctx := context.Background()
	revokedJTI := uuid.NewString()
	otherJTI := uuid.NewString()

	s.Require().NoError(s.trl.RevokeToken(ctx, revokedJTI, time.Minute))

	revoked, err := s.trl.IsRevoked(ctx, otherJTI)
	s.Require().NoError(err)
	s.False(revoked)
}
