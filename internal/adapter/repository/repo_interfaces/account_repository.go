package repo_interfaces

import (
	"context"

	"github.com/api-sage/settlement-ledger/internal/domain"
)

// AccountRepository persists per-account configuration and ledger state.
// Load returns a fresh zero-rate account for an unknown id, never an error
// for absence. Both operations are atomic with respect to a single account.
type AccountRepository interface {
	Load(ctx context.Context, accountID string) (domain.Account, error)
	Save(ctx context.Context, account domain.Account) error
}
