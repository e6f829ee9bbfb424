// Package postgres implements interfaces.Store on PostgreSQL. Guarded
// mutations run the permission check and the write inside one database
// transaction, with the grant row locked, so a grant revoked between check
// and write cannot be raced. Cascade deletion of an account's grants and
// transactions is delegated to foreign keys.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/models"
)

//go:embed schema.sql
var schema string

// pq error codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Users.

func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	const query = `INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT id, username, password_hash FROM users WHERE username = $1`
	var user models.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, mapError(err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT id, username, password_hash FROM users WHERE id = $1`
	var user models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, mapError(err)
	}
	return user, nil
}

// Accounts.

func (s *Store) CreateAccountWithGrant(ctx context.Context, account models.Account, grant models.Grant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const insertAccount = `INSERT INTO accounts (id, name, description) VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, insertAccount, account.ID, account.Name, account.Description); err != nil {
			return err
		}
		const insertGrant = `INSERT INTO account_grants (id, user_id, account_id, permission) VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, insertGrant, grant.ID, grant.UserID, grant.AccountID, grant.Level); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT id, name, description FROM accounts WHERE id = $1`
	var account models.Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(&account.ID, &account.Name, &account.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, mapError(err)
	}
	return account, nil
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID string) ([]models.Account, error) {
	const query = `
		SELECT a.id, a.name, a.description
		FROM accounts a
		JOIN account_grants g ON g.account_id = a.id
		WHERE g.user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Description); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, account models.Account, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkGuard(ctx, tx, guard, account.ID); err != nil {
			return err
		}
		const query = `UPDATE accounts SET name = $2, description = $3 WHERE id = $1`
		result, err := tx.ExecContext(ctx, query, account.ID, account.Name, account.Description)
		if err != nil {
			return err
		}
		return requireRow(result, models.ErrAccountNotFound)
	})
}

func (s *Store) DeleteAccount(ctx context.Context, id string, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkGuard(ctx, tx, guard, id); err != nil {
			return err
		}
		// Grants and transactions go with the account via ON DELETE CASCADE.
		result, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return requireRow(result, models.ErrAccountNotFound)
	})
}

// Permission ledger.

func (s *Store) UpsertGrant(ctx context.Context, grant models.Grant, guard interfaces.Guard) (models.Grant, error) {
	var stored models.Grant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkGuard(ctx, tx, guard, grant.AccountID); err != nil {
			return err
		}
		// Last-writer-wins on the (user, account) pair; the original grant
		// ID survives a re-issue.
		const query = `
			INSERT INTO account_grants (id, user_id, account_id, permission)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, account_id) DO UPDATE SET permission = EXCLUDED.permission
			RETURNING id, user_id, account_id, permission`
		return tx.QueryRowContext(ctx, query, grant.ID, grant.UserID, grant.AccountID, grant.Level).
			Scan(&stored.ID, &stored.UserID, &stored.AccountID, &stored.Level)
	})
	if err != nil {
		return models.Grant{}, err
	}
	return stored, nil
}

func (s *Store) GetGrant(ctx context.Context, id string) (models.Grant, error) {
	const query = `SELECT id, user_id, account_id, permission FROM account_grants WHERE id = $1`
	var grant models.Grant
	err := s.db.QueryRowContext(ctx, query, id).Scan(&grant.ID, &grant.UserID, &grant.AccountID, &grant.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Grant{}, models.ErrGrantNotFound
	}
	if err != nil {
		return models.Grant{}, mapError(err)
	}
	return grant, nil
}

func (s *Store) ListGrantsForUser(ctx context.Context, userID string) ([]models.Grant, error) {
	const query = `SELECT id, user_id, account_id, permission FROM account_grants WHERE user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var grant models.Grant
		if err := rows.Scan(&grant.ID, &grant.UserID, &grant.AccountID, &grant.Level); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

func (s *Store) LookupGrant(ctx context.Context, userID, accountID string) (models.Level, bool, error) {
	const query = `SELECT permission FROM account_grants WHERE user_id = $1 AND account_id = $2`
	var level models.Level
	err := s.db.QueryRowContext(ctx, query, userID, accountID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapError(err)
	}
	return level, true, nil
}

func (s *Store) HasAnyGrant(ctx context.Context, userID, accountID string, levels []models.Level) (bool, error) {
	const query = `SELECT 1 FROM account_grants WHERE user_id = $1 AND account_id = $2 AND permission = ANY($3) LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, query, userID, accountID, pq.Array(levelStrings(levels))).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (s *Store) RevokeGrant(ctx context.Context, id string, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const query = `SELECT user_id, account_id FROM account_grants WHERE id = $1 FOR UPDATE`
		var userID, accountID string
		err := tx.QueryRowContext(ctx, query, id).Scan(&userID, &accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrGrantNotFound
		}
		if err != nil {
			return err
		}
		// Holders may relinquish their own grant; anyone else needs the guard.
		if userID != guard.UserID {
			if err := checkGuard(ctx, tx, guard, accountID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM account_grants WHERE id = $1`, id)
		return err
	})
}

// Transactions.

func (s *Store) CreateTransaction(ctx context.Context, txn models.Transaction, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkGuard(ctx, tx, guard, txn.AccountID); err != nil {
			return err
		}
		const query = `
			INSERT INTO transactions (id, account_id, user_id, amount, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		_, err := tx.ExecContext(ctx, query, txn.ID, txn.AccountID, txn.UserID, txn.Amount, txn.Description, txn.CreatedAt)
		return err
	})
}

func (s *Store) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	const query = `SELECT id, account_id, user_id, amount, description, created_at FROM transactions WHERE id = $1`
	var txn models.Transaction
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&txn.ID, &txn.AccountID, &txn.UserID, &txn.Amount, &txn.Description, &txn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	if err != nil {
		return models.Transaction{}, mapError(err)
	}
	return txn, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	const query = `
		SELECT id, account_id, user_id, amount, description, created_at
		FROM transactions WHERE account_id = $1 ORDER BY created_at`
	return s.listTransactions(ctx, query, accountID)
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	const query = `
		SELECT id, account_id, user_id, amount, description, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at`
	return s.listTransactions(ctx, query, userID)
}

func (s *Store) listTransactions(ctx context.Context, query string, arg any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.UserID, &txn.Amount, &txn.Description, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (s *Store) UpdateTransaction(ctx context.Context, txn models.Transaction, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, err := lockTransaction(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		if err := checkGuard(ctx, tx, guard, accountID); err != nil {
			return err
		}
		const query = `UPDATE transactions SET amount = $2, description = $3 WHERE id = $1`
		_, err = tx.ExecContext(ctx, query, txn.ID, txn.Amount, txn.Description)
		return err
	})
}

func (s *Store) DeleteTransaction(ctx context.Context, id string, guard interfaces.Guard) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		accountID, err := lockTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkGuard(ctx, tx, guard, accountID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
		return err
	})
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}
	return mapError(tx.Commit())
}

// checkGuard verifies inside the current transaction that the guard's user
// holds a sufficient grant on the account, locking the grant row so it
// cannot be revoked before the transaction commits. No grant and an
// insufficient grant both fail with ErrForbidden, and so does an account
// that does not exist at all, which keeps denial uniform.
func checkGuard(ctx context.Context, tx *sql.Tx, guard interfaces.Guard, accountID string) error {
	const query = `SELECT permission FROM account_grants WHERE user_id = $1 AND account_id = $2 FOR UPDATE`
	var level models.Level
	err := tx.QueryRowContext(ctx, query, guard.UserID, accountID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrForbidden
	}
	if err != nil {
		return err
	}
	if !guard.Satisfied(level) {
		return models.ErrForbidden
	}
	return nil
}

// lockTransaction resolves a transaction's account and locks the row.
func lockTransaction(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	const query = `SELECT account_id FROM transactions WHERE id = $1 FOR UPDATE`
	var accountID string
	err := tx.QueryRowContext(ctx, query, id).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrTransactionNotFound
	}
	return accountID, err
}

func requireRow(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

// mapError translates driver-level constraint failures into domain errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return models.ErrConflict
		case codeForeignKeyViolation:
			return &models.ValidationError{Field: "id", Reason: "referenced record does not exist"}
		}
	}
	return err
}

func levelStrings(levels []models.Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

// Compile-time check: Store implements the persistence boundary.
var _ interfaces.Store = (*Store)(nil)
