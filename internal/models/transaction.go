package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single ledger movement on an investment account,
// attributed to the user who posted it. CreatedAt is assigned by the server
// at insert time and never caller-supplied.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks that the target account is named and that the amount is
// well-formed.
func (t Transaction) Validate() error {
	if t.AccountID == "" {
		return &ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	return ValidateAmount(t.Amount)
}

// ValidateAmount checks that d is a well-formed signed fixed-point value
// with at most two decimal places.
func ValidateAmount(d decimal.Decimal) error {
	if d.Exponent() < -2 {
		return &ValidationError{Field: "amount", Reason: "at most two decimal places"}
	}
	return nil
}
