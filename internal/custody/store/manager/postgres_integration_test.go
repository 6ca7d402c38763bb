//go:build integration

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vouchsafe/internal/custody/models"
	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/platform/sentinel"
	"vouchsafe/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	store *Postgres
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.NewPostgresContainer(t)

	s := &PostgresStoreSuite{
		store: NewPostgres(pg.DB),
		ctx:   context.Background(),
	}
	if err := s.store.EnsureSchema(s.ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	suite.Run(t, s)
}

func (s *PostgresStoreSuite) newManager() *models.Manager {
	m, err := models.NewManager(domain.NewManagerID(), "addr-owner", time.Now().UTC())
	s.Require().NoError(err)
	return m
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	m := s.newManager()
	s.Require().NoError(s.store.Create(s.ctx, m))

	found, err := s.store.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(m.Owner, found.Owner)
	s.Empty(found.Users)
	s.Empty(found.Vouchers)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(s.ctx, domain.NewManagerID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateCreate() {
	m := s.newManager()
	s.Require().NoError(s.store.Create(s.ctx, m))
	s.Require().ErrorIs(s.store.Create(s.ctx, m), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestExecutePersistsFullRedemptionFlow() {
	m := s.newManager()
	s.Require().NoError(s.store.Create(s.ctx, m))
	now := time.Now().UTC()

	_, err := s.store.Execute(s.ctx, m.ID, nil, func(m *models.Manager) {
		m.ApplyAdminAdded("addr-admin", now)
		m.AppendUser("Alice", now)
		m.AppendVoucher("10% off", 100, now)
		m.ApplyFunding(500, now)
	})
	s.Require().NoError(err)

	updated, err := s.store.Execute(s.ctx, m.ID,
		func(m *models.Manager) error { return m.CanRedeem(0, 0) },
		func(m *models.Manager) { m.ApplyRedemption(0, 0, now) },
	)
	s.Require().NoError(err)
	s.Equal(domain.Amount(400), updated.Balance)

	// reload from scratch: everything survived the round trip
	fresh, err := s.store.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal([]domain.Address{"addr-admin"}, fresh.Admins)
	s.Require().Len(fresh.Users, 1)
	s.Require().Len(fresh.Vouchers, 1)
	s.Equal(domain.Amount(400), fresh.Balance)
	s.Equal(domain.Amount(100), fresh.Users[0].Balance)
	s.Equal([]domain.VoucherID{0}, fresh.Users[0].RedeemedVouchers)
	s.True(fresh.Vouchers[0].IsRedeemed)
}

func (s *PostgresStoreSuite) TestExecuteFailedCheckRollsBack() {
	m := s.newManager()
	s.Require().NoError(s.store.Create(s.ctx, m))
	now := time.Now().UTC()

	_, err := s.store.Execute(s.ctx, m.ID, nil, func(m *models.Manager) {
		m.AppendUser("Alice", now)
		m.AppendVoucher("big", 1000, now)
		m.ApplyFunding(10, now)
	})
	s.Require().NoError(err)

	_, err = s.store.Execute(s.ctx, m.ID,
		func(m *models.Manager) error { return m.CanRedeem(0, 0) },
		func(m *models.Manager) { m.ApplyRedemption(0, 0, now) },
	)
	s.Require().ErrorIs(err, models.ErrInsufficientFunds)

	fresh, err := s.store.FindByID(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal(domain.Amount(10), fresh.Balance)
	s.False(fresh.Vouchers[0].IsRedeemed)
	s.Empty(fresh.Users[0].RedeemedVouchers)
}
