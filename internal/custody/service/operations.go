package service

import (
	"context"
	"strings"

	"vouchsafe/internal/assets"
	"vouchsafe/internal/custody/models"
	"vouchsafe/internal/events"
	"vouchsafe/pkg/domain"
	dErrors "vouchsafe/pkg/domain-errors"
	"vouchsafe/pkg/requestcontext"
)

// CreateManager constructs a new manager instance owned by the caller.
func (s *Service) CreateManager(ctx context.Context) (*models.Manager, error) {
	ctx, span := s.tracer.Start(ctx, "custody.CreateManager")
	defer span.End()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	m, err := models.NewManager(domain.NewManagerID(), caller, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.managers.Create(ctx, m); err != nil {
		return nil, wrapErr(err, "failed to create manager")
	}

	s.emit(ctx, events.Event{ManagerID: m.ID, Kind: events.KindManagerCreated, Address: caller})
	s.logAudit(ctx, string(events.KindManagerCreated), "manager_id", m.ID.String(), "owner", string(caller))
	if s.metrics != nil {
		s.metrics.ManagersCreated.Inc()
	}
	return m, nil
}

// RegisterUser appends a new user record. Gated to the owner unless open
// registration is configured. Names need not be unique.
func (s *Service) RegisterUser(ctx context.Context, managerID domain.ManagerID, name string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "custody.RegisterUser")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user name is required")
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var registered models.User
	_, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			if !s.openRegistration && !m.IsOwner(caller) {
				return models.ErrUnauthorized
			}
			return nil
		},
		func(m *models.Manager) {
			registered = m.AppendUser(name, now).Clone()
		},
	)
	if err != nil {
		s.countUnauthorized(err)
		return nil, wrapErr(err, "failed to register user")
	}

	s.emit(ctx, events.Event{
		ManagerID: managerID,
		Kind:      events.KindUserRegistered,
		UserID:    registered.ID,
		Name:      registered.Name,
		Address:   caller,
	})
	s.logAudit(ctx, string(events.KindUserRegistered),
		"manager_id", managerID.String(),
		"user_id", uint64(registered.ID),
		"name", registered.Name,
	)
	if s.metrics != nil {
		s.metrics.UsersRegistered.Inc()
	}
	return &registered, nil
}

// IssueVoucher appends a new voucher record. Gated to admins (owner
// included). Zero values are not rejected.
func (s *Service) IssueVoucher(ctx context.Context, managerID domain.ManagerID, description string, value domain.Amount) (*models.Voucher, error) {
	ctx, span := s.tracer.Start(ctx, "custody.IssueVoucher")
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "voucher description is required")
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var issued models.Voucher
	_, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			if !m.IsAdmin(caller) {
				return models.ErrUnauthorized
			}
			return nil
		},
		func(m *models.Manager) {
			issued = *m.AppendVoucher(description, value, now)
		},
	)
	if err != nil {
		s.countUnauthorized(err)
		return nil, wrapErr(err, "failed to issue voucher")
	}

	s.emit(ctx, events.Event{
		ManagerID:   managerID,
		Kind:        events.KindVoucherIssued,
		VoucherID:   issued.ID,
		Description: issued.Description,
		Amount:      issued.Value,
		Address:     caller,
	})
	s.logAudit(ctx, string(events.KindVoucherIssued),
		"manager_id", managerID.String(),
		"voucher_id", uint64(issued.ID),
		"value", uint64(issued.Value),
	)
	if s.metrics != nil {
		s.metrics.VouchersIssued.Inc()
	}
	return &issued, nil
}

// FundManager credits the pooled balance. Gated to admins. This and
// external withdrawal are the only operations that change the total value
// held by the instance.
func (s *Service) FundManager(ctx context.Context, managerID domain.ManagerID, amount domain.Amount) (*models.Manager, error) {
	ctx, span := s.tracer.Start(ctx, "custody.FundManager")
	defer span.End()

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	updated, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			if !m.IsAdmin(caller) {
				return models.ErrUnauthorized
			}
			return nil
		},
		func(m *models.Manager) {
			m.ApplyFunding(amount, now)
		},
	)
	if err != nil {
		s.countUnauthorized(err)
		return nil, wrapErr(err, "failed to fund manager")
	}

	s.settle(ctx, func(a assets.Store) error {
		return a.Deposit(ctx, poolAccount(managerID), amount)
	})
	s.emit(ctx, events.Event{
		ManagerID: managerID,
		Kind:      events.KindManagerFunded,
		Amount:    amount,
		Address:   caller,
	})
	s.logAudit(ctx, string(events.KindManagerFunded),
		"manager_id", managerID.String(),
		"amount", uint64(amount),
		"balance", uint64(updated.Balance),
	)
	if s.metrics != nil {
		s.metrics.AmountFunded.Add(float64(amount))
	}
	return updated, nil
}

// AddAdmin appends an address to the admin set. Gated to the owner.
// Duplicate additions are permitted.
func (s *Service) AddAdmin(ctx context.Context, managerID domain.ManagerID, addr domain.Address) (*models.Manager, error) {
	ctx, span := s.tracer.Start(ctx, "custody.AddAdmin")
	defer span.End()

	if addr.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "admin address is required")
	}

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	updated, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			if !m.IsOwner(caller) {
				return models.ErrUnauthorized
			}
			return nil
		},
		func(m *models.Manager) {
			m.ApplyAdminAdded(addr, now)
		},
	)
	if err != nil {
		s.countUnauthorized(err)
		return nil, wrapErr(err, "failed to add admin")
	}

	s.emit(ctx, events.Event{
		ManagerID: managerID,
		Kind:      events.KindAdminAdded,
		Address:   addr,
	})
	s.logAudit(ctx, string(events.KindAdminAdded),
		"manager_id", managerID.String(),
		"admin", string(addr),
	)
	if s.metrics != nil {
		s.metrics.AdminsAdded.Inc()
	}
	return updated, nil
}

// RedeemVoucher performs the atomic redemption: all preconditions are
// checked read-only, then the voucher flag, the user record, and the balance
// move commit as one unit under the store's exclusivity. Deliberately
// ungated: any caller may redeem on behalf of a user id.
func (s *Service) RedeemVoucher(ctx context.Context, managerID domain.ManagerID, userID domain.UserID, voucherID domain.VoucherID) (*models.Manager, error) {
	ctx, span := s.tracer.Start(ctx, "custody.RedeemVoucher")
	defer span.End()

	now := requestcontext.Now(ctx)

	var value domain.Amount
	updated, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			return m.CanRedeem(userID, voucherID)
		},
		func(m *models.Manager) {
			value = m.Vouchers[voucherID].Value
			m.ApplyRedemption(userID, voucherID, now)
		},
	)
	if err != nil {
		return nil, wrapErr(err, "failed to redeem voucher")
	}

	s.settle(ctx, func(a assets.Store) error {
		if err := a.Withdraw(ctx, poolAccount(managerID), value); err != nil {
			return err
		}
		return a.Deposit(ctx, userAccount(managerID, userID), value)
	})
	s.emit(ctx, events.Event{
		ManagerID: managerID,
		Kind:      events.KindVoucherRedeemed,
		UserID:    userID,
		VoucherID: voucherID,
		Amount:    value,
	})
	s.logAudit(ctx, string(events.KindVoucherRedeemed),
		"manager_id", managerID.String(),
		"user_id", uint64(userID),
		"voucher_id", uint64(voucherID),
		"value", uint64(value),
	)
	if s.metrics != nil {
		s.metrics.VouchersRedeemed.Inc()
		s.metrics.AmountRedeemed.Add(float64(value))
	}
	return updated, nil
}

// StakeTokens locks amount into the user's staked balance. Ungated and
// deposit-only: no unstake operation exists in this design.
func (s *Service) StakeTokens(ctx context.Context, managerID domain.ManagerID, userID domain.UserID, amount domain.Amount) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "custody.StakeTokens")
	defer span.End()

	now := requestcontext.Now(ctx)

	var staked models.User
	_, err := s.managers.Execute(ctx, managerID,
		func(m *models.Manager) error {
			return m.CanStake(userID)
		},
		func(m *models.Manager) {
			m.ApplyStake(userID, amount, now)
			staked = m.Users[userID].Clone()
		},
	)
	if err != nil {
		return nil, wrapErr(err, "failed to stake tokens")
	}

	s.settle(ctx, func(a assets.Store) error {
		return a.Deposit(ctx, stakeAccount(managerID, userID), amount)
	})
	s.emit(ctx, events.Event{
		ManagerID: managerID,
		Kind:      events.KindUserStaked,
		UserID:    userID,
		Amount:    amount,
	})
	s.logAudit(ctx, string(events.KindUserStaked),
		"manager_id", managerID.String(),
		"user_id", uint64(userID),
		"amount", uint64(amount),
	)
	if s.metrics != nil {
		s.metrics.AmountStaked.Add(float64(amount))
	}
	return &staked, nil
}

// GetManager returns a snapshot of the aggregate.
func (s *Service) GetManager(ctx context.Context, managerID domain.ManagerID) (*models.Manager, error) {
	m, err := s.managers.FindByID(ctx, managerID)
	if err != nil {
		return nil, wrapErr(err, "failed to load manager")
	}
	return m, nil
}

// GetUser returns a snapshot of one user record.
func (s *Service) GetUser(ctx context.Context, managerID domain.ManagerID, userID domain.UserID) (*models.User, error) {
	m, err := s.managers.FindByID(ctx, managerID)
	if err != nil {
		return nil, wrapErr(err, "failed to load manager")
	}
	user, err := m.UserAt(userID)
	if err != nil {
		return nil, wrapErr(err, "failed to load user")
	}
	return user, nil
}

// GetVoucher returns a snapshot of one voucher record.
func (s *Service) GetVoucher(ctx context.Context, managerID domain.ManagerID, voucherID domain.VoucherID) (*models.Voucher, error) {
	m, err := s.managers.FindByID(ctx, managerID)
	if err != nil {
		return nil, wrapErr(err, "failed to load manager")
	}
	voucher, err := m.VoucherAt(voucherID)
	if err != nil {
		return nil, wrapErr(err, "failed to load voucher")
	}
	return voucher, nil
}
