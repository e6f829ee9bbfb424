package models

import (
	"errors"
	"fmt"
)

// Domain errors shared by services, stores and the HTTP layer. The HTTP
// layer maps each to a status code; nothing below it inspects status codes.
var (
	// ErrUnauthenticated means no verified identity accompanied the request.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the actor's grant level does not satisfy the
	// operation. It deliberately carries no resource detail: a missing
	// resource and a forbidden one surface identically to callers that hold
	// no grant, so probing cannot reveal which accounts exist.
	ErrForbidden = errors.New("insufficient permission")

	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrGrantNotFound       = errors.New("grant not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConflict means a uniqueness constraint was violated, e.g. a raced
	// duplicate (user, account) grant or a duplicate username.
	ErrConflict = errors.New("conflict with existing record")
)

// ValidationError reports a malformed payload with field-level detail.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
