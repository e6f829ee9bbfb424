package models

// Account is a shared investment account. It carries no owner field: the
// permission ledger is the only source of authority over it.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Validate checks the account's own fields. A nil return does not imply the
// caller may persist it; authorization is decided elsewhere.
func (a Account) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}
