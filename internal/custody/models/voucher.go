package models

import (
	"time"

	"vouchsafe/pkg/domain"
)

// Voucher is a value-bearing record redeemable once for its Value.
//
// Invariants:
//   - ID equals the voucher's position in the manager's vouchers list
//   - IsRedeemed transitions false -> true at most once, and only together
//     with the paired balance move and user record append (see
//     Manager.ApplyRedemption)
//   - Value is not validated as non-zero; zero-value vouchers are issuable
//     (a known gap in the original design, preserved)
type Voucher struct {
	ID          domain.VoucherID `json:"id"`
	Description string           `json:"description"`
	Value       domain.Amount    `json:"value"`
	IsRedeemed  bool             `json:"is_redeemed"`
	IssuedAt    time.Time        `json:"issued_at"`
}

// CanRedeem checks the voucher-local precondition.
func (v *Voucher) CanRedeem() error {
	if v.IsRedeemed {
		return ErrVoucherAlreadyRedeemed
	}
	return nil
}
