package models

import (
	"time"

	"vouchsafe/pkg/domain"
)

// User is a custodial account inside a manager instance.
//
// Invariants:
//   - ID equals the user's position in the manager's users list; immutable
//   - Balance is credited only by redemption (value arrives from the pool)
//   - RedeemedVouchers is append-only and records each voucher at most once
//   - StakedAmount only grows (no unstake operation exists)
type User struct {
	ID               domain.UserID      `json:"id"`
	Name             string             `json:"name"`
	Balance          domain.Amount      `json:"balance"`
	RedeemedVouchers []domain.VoucherID `json:"redeemed_vouchers"`
	StakedAmount     domain.Amount      `json:"staked_amount"`
	RegisteredAt     time.Time          `json:"registered_at"`
}

// Clone returns a copy that shares no slices with the original.
func (u *User) Clone() User {
	out := *u
	out.RedeemedVouchers = append([]domain.VoucherID(nil), u.RedeemedVouchers...)
	return out
}
