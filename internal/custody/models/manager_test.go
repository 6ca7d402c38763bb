package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vouchsafe/pkg/domain"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(domain.NewManagerID(), "addr-owner", time.Now())
	require.NoError(t, err)
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("rejects empty owner", func(t *testing.T) {
		_, err := NewManager(domain.NewManagerID(), "", time.Now())
		assert.Error(t, err)
	})

	t.Run("rejects zero id", func(t *testing.T) {
		_, err := NewManager(domain.ManagerID{}, "addr-owner", time.Now())
		assert.Error(t, err)
	})
}

func TestRoles(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.IsOwner("addr-owner"))
	assert.True(t, m.IsAdmin("addr-owner"), "owner is implicitly admin")
	assert.False(t, m.IsAdmin("addr-bob"))

	m.ApplyAdminAdded("addr-bob", time.Now())
	assert.True(t, m.IsAdmin("addr-bob"))
	assert.False(t, m.IsOwner("addr-bob"))

	// duplicates are permitted and harmless
	m.ApplyAdminAdded("addr-bob", time.Now())
	assert.Len(t, m.Admins, 2)
	assert.True(t, m.IsAdmin("addr-bob"))
}

func TestDenseMonotonicIDs(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		user := m.AppendUser("Alice", now) // duplicate names allowed
		assert.Equal(t, domain.UserID(i), user.ID)
	}
	for i := 0; i < 3; i++ {
		voucher := m.AppendVoucher("10% off", 100, now)
		assert.Equal(t, domain.VoucherID(i), voucher.ID)
	}
}

func TestLookups(t *testing.T) {
	m := newTestManager(t)
	m.AppendUser("Alice", time.Now())

	_, err := m.UserAt(0)
	assert.NoError(t, err)
	_, err = m.UserAt(1)
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = m.VoucherAt(0)
	assert.ErrorIs(t, err, ErrInvalidVoucherID)
}

func TestCanRedeem(t *testing.T) {
	now := time.Now()

	t.Run("unknown user", func(t *testing.T) {
		m := newTestManager(t)
		m.AppendVoucher("v", 10, now)
		assert.ErrorIs(t, m.CanRedeem(0, 0), ErrInvalidUserID)
	})

	t.Run("unknown voucher", func(t *testing.T) {
		m := newTestManager(t)
		m.AppendUser("Alice", now)
		assert.ErrorIs(t, m.CanRedeem(0, 0), ErrInvalidVoucherID)
	})

	t.Run("already redeemed", func(t *testing.T) {
		m := newTestManager(t)
		m.AppendUser("Alice", now)
		m.AppendVoucher("v", 10, now)
		m.ApplyFunding(100, now)
		require.NoError(t, m.CanRedeem(0, 0))
		m.ApplyRedemption(0, 0, now)
		assert.ErrorIs(t, m.CanRedeem(0, 0), ErrVoucherAlreadyRedeemed)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		m := newTestManager(t)
		m.AppendUser("Alice", now)
		m.AppendVoucher("v", 10, now)
		m.ApplyFunding(9, now)
		assert.ErrorIs(t, m.CanRedeem(0, 0), ErrInsufficientFunds)
	})
}

func TestRedemptionMovesValue(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.AppendUser("Alice", now)
	m.AppendVoucher("10% off", 100, now)
	m.ApplyFunding(500, now)

	before := m.TotalValue()
	require.NoError(t, m.CanRedeem(0, 0))
	m.ApplyRedemption(0, 0, now)

	assert.Equal(t, domain.Amount(400), m.Balance)
	assert.Equal(t, domain.Amount(100), m.Users[0].Balance)
	assert.True(t, m.Vouchers[0].IsRedeemed)
	assert.Equal(t, []domain.VoucherID{0}, m.Users[0].RedeemedVouchers)
	assert.Equal(t, before, m.TotalValue(), "redemption conserves total value")
}

func TestStaking(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	assert.ErrorIs(t, m.CanStake(0), ErrInvalidUserID)

	m.AppendUser("Alice", now)
	require.NoError(t, m.CanStake(0))
	m.ApplyStake(0, 30, now)
	m.ApplyStake(0, 20, now)
	assert.Equal(t, domain.Amount(50), m.Users[0].StakedAmount)
}

func TestCloneIsDeep(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	m.AppendUser("Alice", now)
	m.AppendVoucher("v", 10, now)
	m.ApplyFunding(100, now)
	m.ApplyRedemption(0, 0, now)

	clone := m.Clone()
	clone.Users[0].RedeemedVouchers[0] = 99
	clone.Vouchers[0].IsRedeemed = false
	clone.ApplyAdminAdded("addr-x", now)

	assert.Equal(t, domain.VoucherID(0), m.Users[0].RedeemedVouchers[0])
	assert.True(t, m.Vouchers[0].IsRedeemed)
	assert.Empty(t, m.Admins)
}
