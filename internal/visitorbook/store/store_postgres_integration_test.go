//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"visitorbook/internal/visitorbook/store"
	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "registry_config", "visitors")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestFeeIsSetOnce() {
	ctx := context.Background()

	_, err := s.store.Fee(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.InitFee(ctx, uint256.NewInt(100)))
	s.ErrorIs(s.store.InitFee(ctx, uint256.NewInt(5)), sentinel.ErrAlreadyUsed)

	fee, err := s.store.Fee(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(100), fee.Uint64())
}

func (s *PostgresStoreSuite) TestFeeKeepsFullPrecision() {
	ctx := context.Background()
	huge := new(uint256.Int).SetAllOne()

	s.Require().NoError(s.store.InitFee(ctx, huge))

	fee, err := s.store.Fee(ctx)
	s.Require().NoError(err)
	s.True(huge.Eq(fee))
}

func (s *PostgresStoreSuite) TestVisitorsKeepInsertionOrder() {
	ctx := context.Background()
	addrs := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000A1"),
		common.HexToAddress("0x00000000000000000000000000000000000000B2"),
		common.HexToAddress("0x00000000000000000000000000000000000000C3"),
	}
	for _, a := range addrs {
		s.Require().NoError(s.store.AppendVisitor(ctx, a))
	}

	count, err := s.store.CountVisitors(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(3), count)

	for i, a := range addrs {
		got, err := s.store.VisitorAt(ctx, uint64(i))
		s.Require().NoError(err)
		s.Equal(a, got)

		visited, err := s.store.HasVisited(ctx, a)
		s.Require().NoError(err)
		s.True(visited)
	}

	_, err = s.store.VisitorAt(ctx, 3)
	s.ErrorIs(err, sentinel.ErrNotFound)

	list, err := s.store.ListVisitors(ctx)
	s.Require().NoError(err)
	s.Equal(addrs, list)
}

func (s *PostgresStoreSuite) TestDuplicateVisitorConflicts() {
	ctx := context.Background()
	a := common.HexToAddress("0x00000000000000000000000000000000000000A1")

	s.Require().NoError(s.store.AppendVisitor(ctx, a))
	s.ErrorIs(s.store.AppendVisitor(ctx, a), sentinel.ErrConflict)

	count, err := s.store.CountVisitors(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), count)
}

func (s *PostgresStoreSuite) TestUnknownAddressHasNotVisited() {
	visited, err := s.store.HasVisited(context.Background(), common.HexToAddress("0xdead"))
	s.Require().NoError(err)
	s.False(visited)
}
