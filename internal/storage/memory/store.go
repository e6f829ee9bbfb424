// Package memory is an in-memory implementation of interfaces.Store, used
// by tests and for running the server without postgres. A single mutex
// serializes every operation, so each guarded mutation is atomic with its
// permission check, matching the transactional guarantees of the postgres
// store.
package memory

import (
	"context"
	"sync"

	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/models"
)

type grantKey struct {
	userID    string
	accountID string
}

type Store struct {
	mu           sync.Mutex
	users        map[string]models.User        // by user ID
	accounts     map[string]models.Account     // by account ID
	grants       map[string]models.Grant       // by grant ID
	grantByPair  map[grantKey]string           // (user, account) -> grant ID
	transactions map[string]models.Transaction // by transaction ID
}

func NewStore() *Store {
	return &Store{
		users:        make(map[string]models.User),
		accounts:     make(map[string]models.Account),
		grants:       make(map[string]models.Grant),
		grantByPair:  make(map[grantKey]string),
		transactions: make(map[string]models.Transaction),
	}
}

// Users.

func (s *Store) CreateUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return models.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return models.User{}, models.ErrUserNotFound
}

func (s *Store) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return user, nil
}

// Accounts.

func (s *Store) CreateAccountWithGrant(_ context.Context, account models.Account, grant models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Both rows are written under one lock hold: all-or-nothing, like the
	// postgres transaction.
	s.accounts[account.ID] = account
	s.grants[grant.ID] = grant
	s.grantByPair[grantKey{grant.UserID, grant.AccountID}] = grant.ID
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return models.Account{}, models.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) ListAccountsForUser(_ context.Context, userID string) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Account
	for _, grant := range s.grants {
		if grant.UserID != userID {
			continue
		}
		if account, ok := s.accounts[grant.AccountID]; ok {
			out = append(out, account)
		}
	}
	return out, nil
}

func (s *Store) UpdateAccount(_ context.Context, account models.Account, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Guard before existence: an actor without a grant gets the same denial
	// whether or not the account exists.
	if !s.guardHolds(guard, account.ID) {
		return models.ErrForbidden
	}
	if _, ok := s.accounts[account.ID]; !ok {
		return models.ErrAccountNotFound
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardHolds(guard, id) {
		return models.ErrForbidden
	}
	if _, ok := s.accounts[id]; !ok {
		return models.ErrAccountNotFound
	}
	delete(s.accounts, id)
	// Cascade: drop the account's grants and transactions in the same
	// critical section.
	for grantID, grant := range s.grants {
		if grant.AccountID == id {
			delete(s.grants, grantID)
			delete(s.grantByPair, grantKey{grant.UserID, grant.AccountID})
		}
	}
	for txID, tx := range s.transactions {
		if tx.AccountID == id {
			delete(s.transactions, txID)
		}
	}
	return nil
}

// Permission ledger.

func (s *Store) UpsertGrant(_ context.Context, grant models.Grant, guard interfaces.Guard) (models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardHolds(guard, grant.AccountID) {
		return models.Grant{}, models.ErrForbidden
	}
	key := grantKey{grant.UserID, grant.AccountID}
	if existingID, ok := s.grantByPair[key]; ok {
		// Uniqueness on (user, account): re-issuing replaces the level and
		// keeps the original ID.
		grant.ID = existingID
	}
	s.grants[grant.ID] = grant
	s.grantByPair[key] = grant.ID
	return grant, nil
}

func (s *Store) GetGrant(_ context.Context, id string) (models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[id]
	if !ok {
		return models.Grant{}, models.ErrGrantNotFound
	}
	return grant, nil
}

func (s *Store) ListGrantsForUser(_ context.Context, userID string) ([]models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Grant
	for _, grant := range s.grants {
		if grant.UserID == userID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (s *Store) LookupGrant(_ context.Context, userID, accountID string) (models.Level, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.grantByPair[grantKey{userID, accountID}]
	if !ok {
		return "", false, nil
	}
	return s.grants[id].Level, true, nil
}

func (s *Store) HasAnyGrant(_ context.Context, userID, accountID string, levels []models.Level) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.grantByPair[grantKey{userID, accountID}]
	if !ok {
		return false, nil
	}
	level := s.grants[id].Level
	for _, l := range levels {
		if l == level {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RevokeGrant(_ context.Context, id string, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[id]
	if !ok {
		return models.ErrGrantNotFound
	}
	// Holders may relinquish their own grant; anyone else needs the guard.
	if grant.UserID != guard.UserID && !s.guardHolds(guard, grant.AccountID) {
		return models.ErrForbidden
	}
	delete(s.grants, id)
	delete(s.grantByPair, grantKey{grant.UserID, grant.AccountID})
	return nil
}

// Transactions.

func (s *Store) CreateTransaction(_ context.Context, tx models.Transaction, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.guardHolds(guard, tx.AccountID) {
		return models.ErrForbidden
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Store) ListTransactionsByAccount(_ context.Context, accountID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) ListTransactionsByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx models.Transaction, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[tx.ID]
	if !ok {
		return models.ErrTransactionNotFound
	}
	if !s.guardHolds(guard, existing.AccountID) {
		return models.ErrForbidden
	}
	s.transactions[tx.ID] = tx
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string, guard interfaces.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return models.ErrTransactionNotFound
	}
	if !s.guardHolds(guard, tx.AccountID) {
		return models.ErrForbidden
	}
	delete(s.transactions, id)
	return nil
}

// guardHolds must be called with s.mu held.
func (s *Store) guardHolds(guard interfaces.Guard, accountID string) bool {
	id, ok := s.grantByPair[grantKey{guard.UserID, accountID}]
	if !ok {
		return false
	}
	return guard.Satisfied(s.grants[id].Level)
}

// Compile-time check: Store implements the persistence boundary.
var _ interfaces.Store = (*Store)(nil)
