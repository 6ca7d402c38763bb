package assets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/platform/sentinel"
)

type AssetStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestAssetStoreSuite(t *testing.T) {
	suite.Run(t, new(AssetStoreSuite))
}

func (s *AssetStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *AssetStoreSuite) TestDepositAndValue() {
	s.Require().NoError(s.store.Deposit(s.ctx, "pool", 500))
	s.Require().NoError(s.store.Deposit(s.ctx, "pool", 250))

	value, err := s.store.Value(s.ctx, "pool")
	s.Require().NoError(err)
	s.Equal(domain.Amount(750), value)
}

func (s *AssetStoreSuite) TestWithdraw() {
	s.Run("moves the full amount", func() {
		s.Require().NoError(s.store.Deposit(s.ctx, "pool", 100))
		s.Require().NoError(s.store.Withdraw(s.ctx, "pool", 60))

		value, err := s.store.Value(s.ctx, "pool")
		s.Require().NoError(err)
		s.Equal(domain.Amount(40), value)
	})

	s.Run("shortfall fails and moves nothing", func() {
		err := s.store.Withdraw(s.ctx, "empty", 1)
		s.Require().ErrorIs(err, sentinel.ErrInsufficientFunds)

		value, err := s.store.Value(s.ctx, "empty")
		s.Require().NoError(err)
		s.Equal(domain.Amount(0), value)
	})
}
