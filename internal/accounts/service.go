// Package accounts implements the operation handlers for shared investment
// accounts: entity CRUD orchestrated behind the authorization evaluator.
// Every disclosure and mutation is permission-checked before it happens;
// mutations carry the check into the store transaction itself.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fundpool/fundpool/internal/authz"
	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/models"
	"github.com/fundpool/fundpool/internal/models/events"
)

// Service orchestrates account, grant and transaction operations against
// the store, consulting the authz evaluator before any state is revealed
// or changed. The events publisher may be nil; state changes are then not
// announced.
type Service struct {
	store  interfaces.Store
	events interfaces.EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store interfaces.Store, events interfaces.EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Accounts.

// CreateAccount persists a new account together with a full-permission
// grant for the creator, atomically. Any authenticated actor may create an
// account; no prior grant is required.
func (s *Service) CreateAccount(ctx context.Context, actorID string, account models.Account) (models.Account, error) {
	if err := account.Validate(); err != nil {
		return models.Account{}, err
	}
	account.ID = uuid.New().String()
	grant := models.Grant{
		ID:        uuid.New().String(),
		UserID:    actorID,
		AccountID: account.ID,
		Level:     models.LevelFull,
	}
	if err := s.store.CreateAccountWithGrant(ctx, account, grant); err != nil {
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account created",
		"account_id", account.ID,
		"creator_id", actorID,
	)
	s.publish(ctx, events.TypeAccountCreated, events.AccountCreated{
		AccountID:  account.ID,
		CreatorID:  actorID,
		Name:       account.Name,
		OccurredAt: s.now(),
	})
	return account, nil
}

// GetAccount returns account details to any actor holding a grant on it.
// The grant is checked before the account is read, so an actor without one
// learns nothing about whether the account exists.
func (s *Service) GetAccount(ctx context.Context, actorID, accountID string) (models.Account, error) {
	if err := s.require(ctx, actorID, accountID, authz.OpViewAccount); err != nil {
		return models.Account{}, err
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		// The account can vanish between the grant check and the read; a
		// holder of a just-deleted account sees the same denial as a
		// stranger.
		return models.Account{}, fmt.Errorf("get account: %w", s.mask(err))
	}
	return account, nil
}

// ListAccounts returns exactly the accounts on which the actor holds any
// grant.
func (s *Service) ListAccounts(ctx context.Context, actorID string) ([]models.Account, error) {
	accounts, err := s.store.ListAccountsForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount replaces the account's name and description. Requires full
// permission, verified inside the store transaction.
func (s *Service) UpdateAccount(ctx context.Context, actorID string, account models.Account) (models.Account, error) {
	if err := account.Validate(); err != nil {
		return models.Account{}, err
	}
	guard := authz.GuardFor(actorID, authz.OpUpdateAccount)
	if err := s.store.UpdateAccount(ctx, account, guard); err != nil {
		return models.Account{}, fmt.Errorf("update account: %w", s.mask(err))
	}
	return account, nil
}

// DeleteAccount removes the account and, by cascade, all of its grants and
// transactions. Requires full permission.
func (s *Service) DeleteAccount(ctx context.Context, actorID, accountID string) error {
	guard := authz.GuardFor(actorID, authz.OpDeleteAccount)
	if err := s.store.DeleteAccount(ctx, accountID, guard); err != nil {
		return fmt.Errorf("delete account: %w", s.mask(err))
	}
	s.logger.Info("account deleted",
		"account_id", accountID,
		"actor_id", actorID,
	)
	s.publish(ctx, events.TypeAccountDeleted, events.AccountDeleted{
		AccountID:  accountID,
		ActorID:    actorID,
		OccurredAt: s.now(),
	})
	return nil
}

// Permission ledger.

// CreateGrant issues (or re-levels) a grant on an account. The actor must
// hold full permission on the account. Re-issuing a (user, account) pair
// replaces its level rather than duplicating the row.
func (s *Service) CreateGrant(ctx context.Context, actorID string, grant models.Grant) (models.Grant, error) {
	if err := validateGrant(grant); err != nil {
		return models.Grant{}, err
	}
	// Check the actor's permission before looking up the grantee, so an
	// actor without full permission cannot tell valid user IDs from
	// invalid ones. The store re-verifies the guard inside the upsert.
	if err := s.require(ctx, actorID, grant.AccountID, authz.OpManageGrants); err != nil {
		return models.Grant{}, err
	}
	if _, err := s.store.GetUser(ctx, grant.UserID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.Grant{}, &models.ValidationError{Field: "user_id", Reason: "unknown user"}
		}
		return models.Grant{}, fmt.Errorf("create grant: %w", err)
	}
	grant.ID = uuid.New().String()
	guard := authz.GuardFor(actorID, authz.OpManageGrants)
	stored, err := s.store.UpsertGrant(ctx, grant, guard)
	if err != nil {
		return models.Grant{}, fmt.Errorf("create grant: %w", s.mask(err))
	}
	s.logger.Info("grant issued",
		"grant_id", stored.ID,
		"account_id", stored.AccountID,
		"user_id", stored.UserID,
		"level", stored.Level,
		"actor_id", actorID,
	)
	return stored, nil
}

// GetGrant returns a grant to its own holder, or to an actor with full
// permission on the granted account.
func (s *Service) GetGrant(ctx context.Context, actorID, grantID string) (models.Grant, error) {
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return models.Grant{}, s.mask(err)
	}
	if grant.UserID == actorID {
		return grant, nil
	}
	if err := s.require(ctx, actorID, grant.AccountID, authz.OpManageGrants); err != nil {
		return models.Grant{}, err
	}
	return grant, nil
}

// ListGrants returns the actor's own grants across all accounts.
func (s *Service) ListGrants(ctx context.Context, actorID string) ([]models.Grant, error) {
	grants, err := s.store.ListGrantsForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// UpdateGrant re-issues an existing grant at a different level. Requires
// full permission on the granted account.
func (s *Service) UpdateGrant(ctx context.Context, actorID, grantID string, level models.Level) (models.Grant, error) {
	if !level.Valid() {
		return models.Grant{}, &models.ValidationError{Field: "permission", Reason: "not a recognised level"}
	}
	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return models.Grant{}, s.mask(err)
	}
	grant.Level = level
	guard := authz.GuardFor(actorID, authz.OpManageGrants)
	stored, err := s.store.UpsertGrant(ctx, grant, guard)
	if err != nil {
		return models.Grant{}, fmt.Errorf("update grant: %w", s.mask(err))
	}
	return stored, nil
}

// RevokeGrant deletes a grant. Allowed for an actor with full permission on
// the account, or for the grant's own holder relinquishing access.
func (s *Service) RevokeGrant(ctx context.Context, actorID, grantID string) error {
	guard := authz.GuardFor(actorID, authz.OpManageGrants)
	if err := s.store.RevokeGrant(ctx, grantID, guard); err != nil {
		return fmt.Errorf("revoke grant: %w", s.mask(err))
	}
	s.logger.Info("grant revoked", "grant_id", grantID, "actor_id", actorID)
	return nil
}

// Transactions.

// PostTransaction records a transaction on an account. The actor must hold
// a POST_TRANSACTION grant on the account; the transaction is attributed to
// the actor and timestamped by the server.
func (s *Service) PostTransaction(ctx context.Context, actorID string, tx models.Transaction) (models.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return models.Transaction{}, err
	}
	tx.ID = uuid.New().String()
	tx.UserID = actorID
	tx.CreatedAt = s.now()
	guard := authz.GuardFor(actorID, authz.OpPostTransaction)
	if err := s.store.CreateTransaction(ctx, tx, guard); err != nil {
		return models.Transaction{}, fmt.Errorf("post transaction: %w", s.mask(err))
	}
	s.logger.Info("transaction posted",
		"transaction_id", tx.ID,
		"account_id", tx.AccountID,
		"user_id", actorID,
	)
	s.publish(ctx, events.TypeTransactionPosted, events.TransactionPosted{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
		OccurredAt:    tx.CreatedAt,
	})
	return tx, nil
}

// GetTransaction returns one transaction to actors allowed to view its
// account's transactions.
func (s *Service) GetTransaction(ctx context.Context, actorID, txID string) (models.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return models.Transaction{}, s.mask(err)
	}
	if err := s.require(ctx, actorID, tx.AccountID, authz.OpViewTransactions); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// ListAccountTransactions returns all transactions of one account to actors
// holding VIEW or POST_TRANSACTION on it.
func (s *Service) ListAccountTransactions(ctx context.Context, actorID, accountID string) ([]models.Transaction, error) {
	if err := s.require(ctx, actorID, accountID, authz.OpViewTransactions); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// ListUserTransactions returns the actor's own transactions across all
// accounts.
func (s *Service) ListUserTransactions(ctx context.Context, actorID string) ([]models.Transaction, error) {
	txs, err := s.store.ListTransactionsByUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list user transactions: %w", err)
	}
	return txs, nil
}

// UpdateTransaction replaces a transaction's amount and description.
// Account, attributed user and creation time are immutable. Requires full
// permission on the transaction's account.
func (s *Service) UpdateTransaction(ctx context.Context, actorID, txID string, patch models.Transaction) (models.Transaction, error) {
	// Validate the patch before touching the store, so a malformed amount
	// fails the same way whether or not the transaction exists.
	if err := models.ValidateAmount(patch.Amount); err != nil {
		return models.Transaction{}, err
	}
	existing, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return models.Transaction{}, s.mask(err)
	}
	existing.Amount = patch.Amount
	existing.Description = patch.Description
	guard := authz.GuardFor(actorID, authz.OpUpdateTransaction)
	if err := s.store.UpdateTransaction(ctx, existing, guard); err != nil {
		return models.Transaction{}, fmt.Errorf("update transaction: %w", s.mask(err))
	}
	return existing, nil
}

// DeleteTransaction removes a transaction. Requires full permission on its
// account.
func (s *Service) DeleteTransaction(ctx context.Context, actorID, txID string) error {
	guard := authz.GuardFor(actorID, authz.OpDeleteTransaction)
	if err := s.store.DeleteTransaction(ctx, txID, guard); err != nil {
		return fmt.Errorf("delete transaction: %w", s.mask(err))
	}
	s.logger.Info("transaction deleted", "transaction_id", txID, "actor_id", actorID)
	return nil
}

// require denies with ErrForbidden unless the actor holds a grant on the
// account satisfying op. It is the read-path permission check; mutations
// use store guards instead so check and write share a transaction.
func (s *Service) require(ctx context.Context, actorID, accountID string, op authz.Operation) error {
	ok, err := s.store.HasAnyGrant(ctx, actorID, accountID, authz.RequiredLevels(op))
	if err != nil {
		return fmt.Errorf("check grant: %w", err)
	}
	if !ok {
		return models.ErrForbidden
	}
	return nil
}

// mask collapses not-found errors into ErrForbidden so that denial looks
// identical whether a resource is missing or merely hidden from the actor.
func (s *Service) mask(err error) error {
	switch {
	case errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrGrantNotFound),
		errors.Is(err, models.ErrTransactionNotFound):
		return models.ErrForbidden
	default:
		return err
	}
}

func (s *Service) publish(ctx context.Context, eventType string, event any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, event); err != nil {
		s.logger.Error("event publish failed",
			"event_type", eventType,
			"error", err.Error(),
		)
	}
}

func validateGrant(grant models.Grant) error {
	if grant.UserID == "" {
		return &models.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if grant.AccountID == "" {
		return &models.ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	if !grant.Level.Valid() {
		return &models.ValidationError{Field: "permission", Reason: "not a recognised level"}
	}
	return nil
}
