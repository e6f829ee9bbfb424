// Package events defines the payloads published to the event bus when
// account state changes.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeAccountCreated    = "account_created"
	TypeAccountDeleted    = "account_deleted"
	TypeTransactionPosted = "transaction_posted"
)

type AccountCreated struct {
	AccountID  string    `json:"account_id"`
	CreatorID  string    `json:"creator_id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AccountDeleted struct {
	AccountID  string    `json:"account_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TransactionPosted struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
