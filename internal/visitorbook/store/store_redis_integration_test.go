//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"visitorbook/internal/visitorbook/store"
	"visitorbook/pkg/testutil/containers"
)

var cacheContract = common.HexToAddress("0x00000000000000000000000000000000000000C0")

// countingBackend records reads that reach the backing store.
type countingBackend struct {
	*store.InMemoryStore
	visitorAt  int
	hasVisited int
	fee        int
}

func (b *countingBackend) VisitorAt(ctx context.Context, index uint64) (common.Address, error) {
	b.visitorAt++
	return b.InMemoryStore.VisitorAt(ctx, index)
}

func (b *countingBackend) HasVisited(ctx context.Context, addr common.Address) (bool, error) {
	b.hasVisited++
	return b.InMemoryStore.HasVisited(ctx, addr)
}

func (b *countingBackend) Fee(ctx context.Context) (*uint256.Int, error) {
	b.fee++
	return b.InMemoryStore.Fee(ctx)
}

type RedisCacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *countingBackend
	cache   *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.backend = &countingBackend{InMemoryStore: store.NewInMemoryStore()}
	s.cache = store.NewRedisCache(s.backend, s.redis.Client, cacheContract)
}

func (s *RedisCacheSuite) TestFeeServedFromCacheAfterFirstRead() {
	ctx := context.Background()
	s.Require().NoError(s.cache.InitFee(ctx, uint256.NewInt(100)))

	for range 3 {
		fee, err := s.cache.Fee(ctx)
		s.Require().NoError(err)
		s.Equal(uint64(100), fee.Uint64())
	}
	s.Equal(1, s.backend.fee)
}

func (s *RedisCacheSuite) TestVisitorIndexCached() {
	ctx := context.Background()
	a := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	s.Require().NoError(s.cache.AppendVisitor(ctx, a))

	for range 2 {
		got, err := s.cache.VisitorAt(ctx, 0)
		s.Require().NoError(err)
		s.Equal(a, got)
	}
	s.Equal(1, s.backend.visitorAt)
}

func (s *RedisCacheSuite) TestOnlyPositiveMembershipIsCached() {
	ctx := context.Background()
	a := common.HexToAddress("0x00000000000000000000000000000000000000A1")

	visited, err := s.cache.HasVisited(ctx, a)
	s.Require().NoError(err)
	s.False(visited)

	s.Require().NoError(s.cache.AppendVisitor(ctx, a))

	visited, err = s.cache.HasVisited(ctx, a)
	s.Require().NoError(err)
	s.True(visited, "a miss must not be cached")

	visited, err = s.cache.HasVisited(ctx, a)
	s.Require().NoError(err)
	s.True(visited)
	s.Equal(2, s.backend.hasVisited)
}

func (s *RedisCacheSuite) TestFallsThroughWhenRedisIsDown() {
	ctx := context.Background()
	s.Require().NoError(s.backend.InitFee(ctx, uint256.NewInt(100)))

	broken := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer broken.Close()
	cache := store.NewRedisCache(s.backend, broken, cacheContract)

	fee, err := cache.Fee(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(100), fee.Uint64())
}
