package events

import (
	"time"

	"vouchsafe/pkg/domain"
)

// Kind names a ledger event. One kind per state-changing operation.
type Kind string

const (
	KindManagerCreated  Kind = "manager_created"
	KindUserRegistered  Kind = "user_registered"
	KindVoucherIssued   Kind = "voucher_issued"
	KindManagerFunded   Kind = "manager_funded"
	KindVoucherRedeemed Kind = "voucher_redeemed"
	KindUserStaked      Kind = "user_staked"
	KindAdminAdded      Kind = "admin_added"
)

// Event is emitted from domain logic after a committed state change. Keep it
// transport-agnostic so stores and sinks can fan out. Immutable once
// emitted; sinks are append-only.
type Event struct {
	Timestamp   time.Time        `json:"timestamp"`
	ManagerID   domain.ManagerID `json:"manager_id"`
	Kind        Kind             `json:"kind"`
	RequestID   string           `json:"request_id,omitempty"`
	UserID      domain.UserID    `json:"user_id,omitempty"`
	VoucherID   domain.VoucherID `json:"voucher_id,omitempty"`
	Address     domain.Address   `json:"address,omitempty"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Amount      domain.Amount    `json:"amount,omitempty"`
}
