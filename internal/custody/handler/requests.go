package handler

import "vouchsafe/pkg/domain"

type registerUserRequest struct {
	Name string `json:"name"`
}

type issueVoucherRequest struct {
	Description string        `json:"description"`
	Value       domain.Amount `json:"value"`
}

type fundRequest struct {
	Amount domain.Amount `json:"amount"`
}

type addAdminRequest struct {
	Address domain.Address `json:"address"`
}

type redeemRequest struct {
	UserID    domain.UserID    `json:"user_id"`
	VoucherID domain.VoucherID `json:"voucher_id"`
}

type stakeRequest struct {
	UserID domain.UserID `json:"user_id"`
	Amount domain.Amount `json:"amount"`
}
