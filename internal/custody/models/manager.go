package models

import (
	"time"

	"vouchsafe/pkg/domain"
	dErrors "vouchsafe/pkg/domain-errors"
)

// Manager is the aggregate root: one pooled balance, the users and vouchers
// issued against it, and the addresses allowed to administer it.
//
// Invariants:
//   - Owner is non-empty and immutable after construction
//   - Users and Vouchers are append-only; ids are dense positional indexes,
//     never reused or removed
//   - Balance + sum of user balances changes only via funding; redemption
//     moves value, it never creates or destroys it
//   - Admins is append-only; duplicates are permitted (idempotency is not
//     enforced, a known gap in the original design, preserved)
//
// # Exclusivity
//
// The aggregate carries no locking. Each operation runs with exclusive
// mutable access to one instance for the duration of the call; the store
// provides that exclusivity (mutex in memory, row lock in Postgres).
// Different instances share no state.
type Manager struct {
	ID        domain.ManagerID `json:"id"`
	Owner     domain.Address   `json:"owner"`
	Admins    []domain.Address `json:"admins"`
	Balance   domain.Amount    `json:"balance"`
	Users     []User           `json:"users"`
	Vouchers  []Voucher        `json:"vouchers"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewManager(id domain.ManagerID, owner domain.Address, now time.Time) (*Manager, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "manager id cannot be zero")
	}
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "manager owner cannot be empty")
	}
	return &Manager{
		ID:        id,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsOwner reports whether addr is the owner.
func (m *Manager) IsOwner(addr domain.Address) bool {
	return !addr.IsZero() && addr == m.Owner
}

// IsAdmin reports whether addr may fund the pool or issue vouchers: the
// owner or any member of the admin set.
func (m *Manager) IsAdmin(addr domain.Address) bool {
	if m.IsOwner(addr) {
		return true
	}
	for _, admin := range m.Admins {
		if admin == addr {
			return true
		}
	}
	return false
}

// ApplyAdminAdded appends addr to the admin set. Duplicates are allowed;
// IsAdmin treats the slice as a set so they are harmless.
func (m *Manager) ApplyAdminAdded(addr domain.Address, now time.Time) {
	m.Admins = append(m.Admins, addr)
	m.UpdatedAt = now
}

// AppendUser registers a new user with the next dense id. Names are not
// required to be unique.
func (m *Manager) AppendUser(name string, now time.Time) *User {
	m.Users = append(m.Users, User{
		ID:           domain.UserID(len(m.Users)),
		Name:         name,
		RegisteredAt: now,
	})
	m.UpdatedAt = now
	return &m.Users[len(m.Users)-1]
}

// AppendVoucher issues a new voucher with the next dense id.
func (m *Manager) AppendVoucher(description string, value domain.Amount, now time.Time) *Voucher {
	m.Vouchers = append(m.Vouchers, Voucher{
		ID:          domain.VoucherID(len(m.Vouchers)),
		Description: description,
		Value:       value,
		IssuedAt:    now,
	})
	m.UpdatedAt = now
	return &m.Vouchers[len(m.Vouchers)-1]
}

// UserAt returns the user with the given positional id.
func (m *Manager) UserAt(id domain.UserID) (*User, error) {
	if uint64(id) >= uint64(len(m.Users)) {
		return nil, ErrInvalidUserID
	}
	return &m.Users[id], nil
}

// VoucherAt returns the voucher with the given positional id.
func (m *Manager) VoucherAt(id domain.VoucherID) (*Voucher, error) {
	if uint64(id) >= uint64(len(m.Vouchers)) {
		return nil, ErrInvalidVoucherID
	}
	return &m.Vouchers[id], nil
}

// ApplyFunding credits the pooled balance.
func (m *Manager) ApplyFunding(amount domain.Amount, now time.Time) {
	m.Balance += amount
	m.UpdatedAt = now
}

// CanRedeem checks every redemption precondition without mutating anything:
// the user and voucher exist, the voucher is unredeemed, and the pool covers
// its value. Use with ApplyRedemption under the store's exclusivity so the
// checks and the mutation form one atomic step.
func (m *Manager) CanRedeem(userID domain.UserID, voucherID domain.VoucherID) error {
	if _, err := m.UserAt(userID); err != nil {
		return err
	}
	voucher, err := m.VoucherAt(voucherID)
	if err != nil {
		return err
	}
	if err := voucher.CanRedeem(); err != nil {
		return err
	}
	if !m.Balance.CanCover(voucher.Value) {
		return ErrInsufficientFunds
	}
	return nil
}

// ApplyRedemption performs the redemption as one unit: flips the voucher
// flag, records the voucher on the user, and moves its value from the pool
// to the user's balance. Call CanRedeem first; ApplyRedemption assumes the
// preconditions hold.
func (m *Manager) ApplyRedemption(userID domain.UserID, voucherID domain.VoucherID, now time.Time) {
	voucher := &m.Vouchers[voucherID]
	user := &m.Users[userID]

	voucher.IsRedeemed = true
	user.RedeemedVouchers = append(user.RedeemedVouchers, voucherID)
	m.Balance -= voucher.Value
	user.Balance += voucher.Value
	m.UpdatedAt = now
}

// CanStake checks the staking precondition: the user exists. Staking has no
// access gate and no unstake path in this design.
func (m *Manager) CanStake(userID domain.UserID) error {
	_, err := m.UserAt(userID)
	return err
}

// ApplyStake locks amount into the user's staked balance.
func (m *Manager) ApplyStake(userID domain.UserID, amount domain.Amount, now time.Time) {
	m.Users[userID].StakedAmount += amount
	m.UpdatedAt = now
}

// TotalValue is the pooled balance plus all custodial user balances. It is
// invariant across redemptions and grows only through funding.
func (m *Manager) TotalValue() domain.Amount {
	total := m.Balance
	for i := range m.Users {
		total += m.Users[i].Balance
	}
	return total
}

// Clone returns a deep copy so snapshot reads never alias live state.
func (m *Manager) Clone() *Manager {
	out := *m
	out.Admins = append([]domain.Address(nil), m.Admins...)
	out.Users = make([]User, len(m.Users))
	for i := range m.Users {
		out.Users[i] = m.Users[i].Clone()
	}
	out.Vouchers = append([]Voucher(nil), m.Vouchers...)
	return &out
}
