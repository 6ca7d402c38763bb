package service

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"vouchsafe/internal/assets"
	custodymetrics "vouchsafe/internal/custody/metrics"
	"vouchsafe/internal/custody/models"
	managerstore "vouchsafe/internal/custody/store/manager"
	"vouchsafe/internal/events"
	"vouchsafe/pkg/domain"
	dErrors "vouchsafe/pkg/domain-errors"
	"vouchsafe/pkg/requestcontext"
)

const (
	ownerAddr    = domain.Address("addr-owner")
	adminAddr    = domain.Address("addr-admin")
	strangerAddr = domain.Address("addr-stranger")
)

type ServiceSuite struct {
	suite.Suite
	store      *managerstore.InMemory
	eventStore *events.InMemory
	assets     *assets.InMemory
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = managerstore.NewInMemory()
	s.eventStore = events.NewInMemory()
	s.assets = assets.NewInMemory()
	s.service = New(s.store,
		WithEventEmitter(events.NewPublisher(s.eventStore)),
		WithMetrics(custodymetrics.NewWith(prometheus.NewRegistry())),
		WithAssetStore(s.assets),
	)
}

// as returns a context authenticated as addr.
func (s *ServiceSuite) as(addr domain.Address) context.Context {
	return requestcontext.WithCaller(context.Background(), addr)
}

// anon returns an unauthenticated context, as redeem/stake callers have.
func (s *ServiceSuite) anon() context.Context {
	return context.Background()
}

func (s *ServiceSuite) createManager() *models.Manager {
	m, err := s.service.CreateManager(s.as(ownerAddr))
	s.Require().NoError(err)
	return m
}

func (s *ServiceSuite) eventsFor(id domain.ManagerID) []events.Event {
	listed, err := s.eventStore.ListByManager(context.Background(), id)
	s.Require().NoError(err)
	return listed
}

func (s *ServiceSuite) TestCreateManager() {
	s.Run("caller becomes owner", func() {
		m := s.createManager()
		s.Equal(ownerAddr, m.Owner)
		s.Empty(m.Admins)
		s.Equal(domain.Amount(0), m.Balance)
	})

	s.Run("requires caller identity", func() {
		_, err := s.service.CreateManager(s.anon())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("emits creation event", func() {
		m := s.createManager()
		evts := s.eventsFor(m.ID)
		s.Require().Len(evts, 1)
		s.Equal(events.KindManagerCreated, evts[0].Kind)
	})
}

func (s *ServiceSuite) TestRegisterUser() {
	s.Run("owner registers users with dense monotonic ids", func() {
		m := s.createManager()
		for i := 0; i < 3; i++ {
			user, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
			s.Require().NoError(err)
			s.Equal(domain.UserID(i), user.ID)
		}
	})

	s.Run("non-owner is rejected with no mutation and no event", func() {
		m := s.createManager()
		before := len(s.eventsFor(m.ID))

		_, err := s.service.RegisterUser(s.as(strangerAddr), m.ID, "Mallory")
		s.Require().ErrorIs(err, models.ErrUnauthorized)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		fresh, err := s.service.GetManager(s.anon(), m.ID)
		s.Require().NoError(err)
		s.Empty(fresh.Users)
		s.Len(s.eventsFor(m.ID), before)
	})

	s.Run("admin is not enough for registration", func() {
		m := s.createManager()
		_, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)

		_, err = s.service.RegisterUser(s.as(adminAddr), m.ID, "Bob")
		s.Require().ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("open registration admits any caller", func() {
		open := New(s.store,
			WithEventEmitter(events.NewPublisher(s.eventStore)),
			WithOpenRegistration(true),
		)
		m := s.createManager()

		user, err := open.RegisterUser(s.as(strangerAddr), m.ID, "Walk-in")
		s.Require().NoError(err)
		s.Equal(domain.UserID(0), user.ID)
	})

	s.Run("blank name rejected", func() {
		m := s.createManager()
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown manager", func() {
		_, err := s.service.RegisterUser(s.as(ownerAddr), domain.NewManagerID(), "Alice")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestIssueVoucher() {
	s.Run("admin issues with dense monotonic ids", func() {
		m := s.createManager()
		_, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)

		for i := 0; i < 3; i++ {
			voucher, err := s.service.IssueVoucher(s.as(adminAddr), m.ID, "10% off", 100)
			s.Require().NoError(err)
			s.Equal(domain.VoucherID(i), voucher.ID)
			s.False(voucher.IsRedeemed)
		}
	})

	s.Run("owner is implicitly admin", func() {
		m := s.createManager()
		_, err := s.service.IssueVoucher(s.as(ownerAddr), m.ID, "welcome", 50)
		s.Require().NoError(err)
	})

	s.Run("zero value vouchers are issuable", func() {
		m := s.createManager()
		voucher, err := s.service.IssueVoucher(s.as(ownerAddr), m.ID, "free hug", 0)
		s.Require().NoError(err)
		s.Equal(domain.Amount(0), voucher.Value)
	})

	s.Run("non-admin rejected with no mutation", func() {
		m := s.createManager()
		_, err := s.service.IssueVoucher(s.as(strangerAddr), m.ID, "nope", 10)
		s.Require().ErrorIs(err, models.ErrUnauthorized)

		fresh, err := s.service.GetManager(s.anon(), m.ID)
		s.Require().NoError(err)
		s.Empty(fresh.Vouchers)
	})
}

func (s *ServiceSuite) TestFundManager() {
	s.Run("admin funding accumulates", func() {
		m := s.createManager()
		updated, err := s.service.FundManager(s.as(ownerAddr), m.ID, 500)
		s.Require().NoError(err)
		s.Equal(domain.Amount(500), updated.Balance)

		updated, err = s.service.FundManager(s.as(ownerAddr), m.ID, 250)
		s.Require().NoError(err)
		s.Equal(domain.Amount(750), updated.Balance)
	})

	s.Run("non-admin rejected with no mutation and no event", func() {
		m := s.createManager()
		before := len(s.eventsFor(m.ID))

		_, err := s.service.FundManager(s.as(strangerAddr), m.ID, 500)
		s.Require().ErrorIs(err, models.ErrUnauthorized)

		fresh, err := s.service.GetManager(s.anon(), m.ID)
		s.Require().NoError(err)
		s.Equal(domain.Amount(0), fresh.Balance)
		s.Len(s.eventsFor(m.ID), before)
	})

	s.Run("settles into the pool asset account", func() {
		m := s.createManager()
		_, err := s.service.FundManager(s.as(ownerAddr), m.ID, 500)
		s.Require().NoError(err)

		value, err := s.assets.Value(context.Background(), "manager:"+m.ID.String())
		s.Require().NoError(err)
		s.Equal(domain.Amount(500), value)
	})
}

func (s *ServiceSuite) TestAddAdmin() {
	s.Run("only owner may add", func() {
		m := s.createManager()
		_, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)

		_, err = s.service.AddAdmin(s.as(adminAddr), m.ID, strangerAddr)
		s.Require().ErrorIs(err, models.ErrUnauthorized)
	})

	s.Run("duplicates are permitted", func() {
		m := s.createManager()
		_, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)
		updated, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)
		s.Len(updated.Admins, 2)
	})

	s.Run("granted admin can fund and issue", func() {
		m := s.createManager()
		_, err := s.service.AddAdmin(s.as(ownerAddr), m.ID, adminAddr)
		s.Require().NoError(err)

		_, err = s.service.FundManager(s.as(adminAddr), m.ID, 100)
		s.Require().NoError(err)
		_, err = s.service.IssueVoucher(s.as(adminAddr), m.ID, "by admin", 10)
		s.Require().NoError(err)
	})
}

// TestRedemptionScenario is the end-to-end path: create, register, issue,
// fund, redeem, and verify the second redemption fails without touching
// state.
func (s *ServiceSuite) TestRedemptionScenario() {
	m := s.createManager()

	user, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
	s.Require().NoError(err)
	s.Equal(domain.UserID(0), user.ID)

	voucher, err := s.service.IssueVoucher(s.as(ownerAddr), m.ID, "10% off", 100)
	s.Require().NoError(err)
	s.Equal(domain.VoucherID(0), voucher.ID)

	funded, err := s.service.FundManager(s.as(ownerAddr), m.ID, 500)
	s.Require().NoError(err)
	s.Equal(domain.Amount(500), funded.Balance)

	updated, err := s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
	s.Require().NoError(err)
	s.Equal(domain.Amount(400), updated.Balance)
	s.Equal(domain.Amount(100), updated.Users[0].Balance)
	s.True(updated.Vouchers[0].IsRedeemed)
	s.Equal([]domain.VoucherID{0}, updated.Users[0].RedeemedVouchers)

	evts := s.eventsFor(m.ID)
	last := evts[len(evts)-1]
	s.Equal(events.KindVoucherRedeemed, last.Kind)
	s.Equal(domain.UserID(0), last.UserID)
	s.Equal(domain.VoucherID(0), last.VoucherID)
	s.Equal(domain.Amount(100), last.Amount)

	// second redemption: idempotent failure, state untouched
	_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
	s.Require().ErrorIs(err, models.ErrVoucherAlreadyRedeemed)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	fresh, err := s.service.GetManager(s.anon(), m.ID)
	s.Require().NoError(err)
	s.Equal(domain.Amount(400), fresh.Balance)
	s.Equal(domain.Amount(100), fresh.Users[0].Balance)
	s.Equal([]domain.VoucherID{0}, fresh.Users[0].RedeemedVouchers)
	s.Len(s.eventsFor(m.ID), len(evts), "failed redemption emits nothing")
}

func (s *ServiceSuite) TestRedemptionFailures() {
	s.Run("invalid user id", func() {
		m := s.createManager()
		_, err := s.service.IssueVoucher(s.as(ownerAddr), m.ID, "v", 10)
		s.Require().NoError(err)

		_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
		s.Require().ErrorIs(err, models.ErrInvalidUserID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid voucher id", func() {
		m := s.createManager()
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
		s.Require().NoError(err)

		_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
		s.Require().ErrorIs(err, models.ErrInvalidVoucherID)
	})

	s.Run("insufficient funds rejects atomically", func() {
		m := s.createManager()
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
		s.Require().NoError(err)
		_, err = s.service.IssueVoucher(s.as(ownerAddr), m.ID, "big", 1000)
		s.Require().NoError(err)
		_, err = s.service.FundManager(s.as(ownerAddr), m.ID, 10)
		s.Require().NoError(err)

		_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
		s.Require().ErrorIs(err, models.ErrInsufficientFunds)
		s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

		fresh, err := s.service.GetManager(s.anon(), m.ID)
		s.Require().NoError(err)
		s.False(fresh.Vouchers[0].IsRedeemed)
		s.Equal(domain.Amount(10), fresh.Balance)
		s.Equal(domain.Amount(0), fresh.Users[0].Balance)
	})
}

// TestConservation: total value changes only through funding; any sequence
// of redemptions merely moves it.
func (s *ServiceSuite) TestConservation() {
	m := s.createManager()
	for _, name := range []string{"Alice", "Bob"} {
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, name)
		s.Require().NoError(err)
	}
	for _, value := range []domain.Amount{100, 250, 50} {
		_, err := s.service.IssueVoucher(s.as(ownerAddr), m.ID, "v", value)
		s.Require().NoError(err)
	}
	_, err := s.service.FundManager(s.as(ownerAddr), m.ID, 1000)
	s.Require().NoError(err)

	fresh, err := s.service.GetManager(s.anon(), m.ID)
	s.Require().NoError(err)
	s.Equal(domain.Amount(1000), fresh.TotalValue())

	_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 0)
	s.Require().NoError(err)
	_, err = s.service.RedeemVoucher(s.anon(), m.ID, 1, 1)
	s.Require().NoError(err)
	_, err = s.service.RedeemVoucher(s.anon(), m.ID, 0, 2)
	s.Require().NoError(err)

	fresh, err = s.service.GetManager(s.anon(), m.ID)
	s.Require().NoError(err)
	s.Equal(domain.Amount(1000), fresh.TotalValue(), "redemption conserves total value")
	s.Equal(domain.Amount(600), fresh.Balance)
	s.Equal(domain.Amount(150), fresh.Users[0].Balance)
	s.Equal(domain.Amount(250), fresh.Users[1].Balance)
}

func (s *ServiceSuite) TestStakeTokens() {
	s.Run("accumulates without a gate", func() {
		m := s.createManager()
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
		s.Require().NoError(err)

		user, err := s.service.StakeTokens(s.anon(), m.ID, 0, 30)
		s.Require().NoError(err)
		s.Equal(domain.Amount(30), user.StakedAmount)

		user, err = s.service.StakeTokens(s.anon(), m.ID, 0, 20)
		s.Require().NoError(err)
		s.Equal(domain.Amount(50), user.StakedAmount)
	})

	s.Run("invalid user id", func() {
		m := s.createManager()
		_, err := s.service.StakeTokens(s.anon(), m.ID, 5, 30)
		s.Require().ErrorIs(err, models.ErrInvalidUserID)
	})

	s.Run("staking does not touch custodial balances", func() {
		m := s.createManager()
		_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
		s.Require().NoError(err)
		_, err = s.service.FundManager(s.as(ownerAddr), m.ID, 100)
		s.Require().NoError(err)

		_, err = s.service.StakeTokens(s.anon(), m.ID, 0, 30)
		s.Require().NoError(err)

		fresh, err := s.service.GetManager(s.anon(), m.ID)
		s.Require().NoError(err)
		s.Equal(domain.Amount(100), fresh.Balance)
		s.Equal(domain.Amount(0), fresh.Users[0].Balance)
	})
}

func (s *ServiceSuite) TestLookups() {
	m := s.createManager()
	_, err := s.service.RegisterUser(s.as(ownerAddr), m.ID, "Alice")
	s.Require().NoError(err)

	user, err := s.service.GetUser(s.anon(), m.ID, 0)
	s.Require().NoError(err)
	s.Equal("Alice", user.Name)

	_, err = s.service.GetUser(s.anon(), m.ID, 1)
	s.Require().ErrorIs(err, models.ErrInvalidUserID)

	_, err = s.service.GetVoucher(s.anon(), m.ID, 0)
	s.Require().ErrorIs(err, models.ErrInvalidVoucherID)

	_, err = s.service.GetManager(s.anon(), domain.NewManagerID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// TestInstanceIsolation confirms managers share no state.
func (s *ServiceSuite) TestInstanceIsolation() {
	first := s.createManager()
	second := s.createManager()

	_, err := s.service.FundManager(s.as(ownerAddr), first.ID, 500)
	s.Require().NoError(err)

	fresh, err := s.service.GetManager(s.anon(), second.ID)
	s.Require().NoError(err)
	s.Equal(domain.Amount(0), fresh.Balance)
}
