package interfaces

import (
	"context"

	"github.com/fundpool/fundpool/internal/models"
)

// Guard is a grant requirement enforced by the store inside the same
// transaction as the mutation it protects. This closes the window between
// an authorization check and the write it authorizes: a grant revoked after
// the check but before the write cannot slip through.
//
// A mutation guarded by g fails with models.ErrForbidden unless g.UserID
// holds a grant on the affected account whose level is in g.Levels.
type Guard struct {
	UserID string
	Levels []models.Level
}

// Satisfied reports whether level meets the guard.
func (g Guard) Satisfied(level models.Level) bool {
	for _, l := range g.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// Store is the persistence boundary for users, accounts, grants and
// transactions. Implementations must provide transactional multi-row
// writes, (user, account) grant uniqueness, and cascade-on-delete for an
// account's grants and transactions.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)

	// Accounts. CreateAccountWithGrant persists the account and the
	// creator's grant atomically: both rows or neither.
	CreateAccountWithGrant(ctx context.Context, account models.Account, grant models.Grant) error
	GetAccount(ctx context.Context, id string) (models.Account, error)
	ListAccountsForUser(ctx context.Context, userID string) ([]models.Account, error)
	UpdateAccount(ctx context.Context, account models.Account, guard Guard) error
	DeleteAccount(ctx context.Context, id string, guard Guard) error

	// Permission ledger. UpsertGrant replaces the level of an existing
	// (user, account) grant, keeping its ID stable.
	UpsertGrant(ctx context.Context, grant models.Grant, guard Guard) (models.Grant, error)
	GetGrant(ctx context.Context, id string) (models.Grant, error)
	ListGrantsForUser(ctx context.Context, userID string) ([]models.Grant, error)
	LookupGrant(ctx context.Context, userID, accountID string) (models.Level, bool, error)
	HasAnyGrant(ctx context.Context, userID, accountID string, levels []models.Level) (bool, error)
	RevokeGrant(ctx context.Context, id string, guard Guard) error

	// Transactions. Guards apply to the transaction's account.
	CreateTransaction(ctx context.Context, tx models.Transaction, guard Guard) error
	GetTransaction(ctx context.Context, id string) (models.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	UpdateTransaction(ctx context.Context, tx models.Transaction, guard Guard) error
	DeleteTransaction(ctx context.Context, id string, guard Guard) error
}
