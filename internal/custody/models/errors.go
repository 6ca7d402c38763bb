package models

import "errors"

// Domain error kinds. Every failed operation surfaces exactly one of these;
// callers match with errors.Is. The service layer wraps them with coded
// errors for the HTTP surface without breaking the chain.
var (
	ErrUnauthorized           = errors.New("caller is not authorized")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidVoucherID       = errors.New("invalid voucher id")
	ErrVoucherAlreadyRedeemed = errors.New("voucher already redeemed")
	ErrInsufficientFunds      = errors.New("insufficient funds")
)
