//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "staygate/internal/platform/redis"
	"staygate/pkg/testutil/containers"
)

type RunLockSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *platformredis.Client
}

func TestRunLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RunLockSuite))
}

func (s *RunLockSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.client = &platformredis.Client{Client: s.redis.Client}
}

func (s *RunLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RunLockSuite) TestAcquireExcludesOtherHolders() {
	ctx := context.Background()
	first := platformredis.NewRunLock(s.client, "staygate:scheduler:run", time.Minute)
	second := platformredis.NewRunLock(s.client, "staygate:scheduler:run", time.Minute)

	ok, err := first.TryAcquire(ctx, "replica-a")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = second.TryAcquire(ctx, "replica-b")
	s.Require().NoError(err)
	s.False(ok, "lease held by another replica")

	s.Require().NoError(first.Release(ctx))

	ok, err = second.TryAcquire(ctx, "replica-b")
	s.Require().NoError(err)
	s.True(ok, "lease free after release")
}

func (s *RunLockSuite) TestReleaseOnlyByOwner() {
	ctx := context.Background()
	owner := platformredis.NewRunLock(s.client, "staygate:scheduler:run", time.Minute)
	stranger := platformredis.NewRunLock(s.client, "staygate:scheduler:run", time.Minute)

	ok, err := owner.TryAcquire(ctx, "replica-a")
	s.Require().NoError(err)
	s.Require().True(ok)

	// Never acquired, so its release must not free the owner's lease.
	s.Require().NoError(stranger.Release(ctx))

	ok, err = stranger.TryAcquire(ctx, "replica-b")
	s.Require().NoError(err)
	s.False(ok, "owner still holds the lease")
}

func (s *RunLockSuite) TestLeaseExpires() {
	ctx := context.Background()
	first := platformredis.NewRunLock(s.client, "staygate:scheduler:run", 50*time.Millisecond)
	second := platformredis.NewRunLock(s.client, "staygate:scheduler:run", time.Minute)

	ok, err := first.TryAcquire(ctx, "replica-a")
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().Eventually(func() bool {
		ok, err := second.TryAcquire(ctx, "replica-b")
		return err == nil && ok
	}, time.Second, 10*time.Millisecond, "lease frees itself after TTL")
}
