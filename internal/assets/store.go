// Package assets defines the fungible-value primitive the ledger settles
// against. The custody aggregate remains the source of truth for balances;
// the asset store is the host-provided value layer those balances mirror.
package assets

import (
	"context"

	"vouchsafe/pkg/domain"
)

// Store is the contract the host's asset primitive must satisfy. Deposits
// and withdrawals are atomic: a withdrawal either moves the full amount or
// fails with sentinel.ErrInsufficientFunds and moves nothing.
type Store interface {
	// Value returns the current balance of an account.
	Value(ctx context.Context, account string) (domain.Amount, error)
	// Deposit credits amount to an account, creating it if needed.
	Deposit(ctx context.Context, account string, amount domain.Amount) error
	// Withdraw debits amount from an account.
	Withdraw(ctx context.Context, account string, amount domain.Amount) error
}
