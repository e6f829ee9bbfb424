// Package authz is the authorization evaluator: a pure mapping from
// protected operations to the grant levels that permit them. It holds no
// state and performs no I/O; callers look the actor's grant up in the
// permission ledger (directly for reads, or transactionally through a
// store Guard for mutations) and consult this table.
package authz

import (
	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/models"
)

// Operation enumerates every permission-checked operation. Creating an
// account is absent: it requires no prior grant.
type Operation int

const (
	// OpViewAccount covers retrieving account details and account listing
	// membership. Any grant at all suffices.
	OpViewAccount Operation = iota
	OpUpdateAccount
	OpDeleteAccount
	// OpViewTransactions covers listing and retrieving an account's
	// transactions.
	OpViewTransactions
	OpPostTransaction
	OpUpdateTransaction
	OpDeleteTransaction
	// OpManageGrants covers issuing, re-levelling and revoking grants on an
	// account.
	OpManageGrants
)

// RequiredLevels returns the grant levels that satisfy op. The returned
// slice must not be mutated.
func RequiredLevels(op Operation) []models.Level {
	switch op {
	case OpViewAccount:
		return models.Levels
	case OpViewTransactions:
		return []models.Level{models.LevelView, models.LevelPostTransaction}
	case OpPostTransaction:
		return []models.Level{models.LevelPostTransaction}
	default:
		// Account mutation, transaction mutation and grant management all
		// require full administrative control.
		return []models.Level{models.LevelFull}
	}
}

// Allowed reports whether a single grant at level permits op.
func Allowed(level models.Level, op Operation) bool {
	for _, required := range RequiredLevels(op) {
		if level == required {
			return true
		}
	}
	return false
}

// GuardFor builds the store guard enforcing op for actorID.
func GuardFor(actorID string, op Operation) interfaces.Guard {
	return interfaces.Guard{UserID: actorID, Levels: RequiredLevels(op)}
}
