package assets

import (
	"context"
	"fmt"
	"sync"

	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/platform/sentinel"
)

// InMemory is the in-process asset store. Each account holds one balance;
// operations are atomic under the store mutex.
type InMemory struct {
	mu       sync.Mutex
	accounts map[string]domain.Amount
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[string]domain.Amount)}
}

func (s *InMemory) Value(ctx context.Context, account string) (domain.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[account], nil
}

func (s *InMemory) Deposit(ctx context.Context, account string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account] += amount
	return nil
}

func (s *InMemory) Withdraw(ctx context.Context, account string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.accounts[account]
	if !balance.CanCover(amount) {
		return fmt.Errorf("withdraw %d from %s (balance %d): %w", amount, account, balance, sentinel.ErrInsufficientFunds)
	}
	s.accounts[account] = balance - amount
	return nil
}
