package memory

import (
	"context"
	"sync"

	"github.com/api-sage/settlement-ledger/internal/adapter/repository/repo_interfaces"
	"github.com/api-sage/settlement-ledger/internal/domain"
)

// Verify that AccountRepository implements the repository interface
var _ repo_interfaces.AccountRepository = (*AccountRepository)(nil)

// AccountRepository is the in-memory store: a mutex-guarded map from account
// id to account state. Load and Save exchange deep copies so callers never
// share mutable state with the store.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]domain.Account),
	}
}

func (r *AccountRepository) Load(_ context.Context, accountID string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return domain.NewAccount(accountID), nil
	}
	return account.Clone(), nil
}

func (r *AccountRepository) Save(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts[account.ID] = account.Clone()
	return nil
}
