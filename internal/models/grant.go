package models

// Level is a permission level held by one user on one investment account.
type Level string

const (
	LevelView Level = "VIEW"
	// LevelFull grants unrestricted administrative control over an account:
	// update, delete, grant management and transaction mutation. The wire
	// value is "CREATE" for compatibility with existing clients, which
	// historically overloaded the create permission to mean full CRUD.
	LevelFull            Level = "CREATE"
	LevelRead            Level = "READ"
	LevelUpdate          Level = "UPDATE"
	LevelDelete          Level = "DELETE"
	LevelPostTransaction Level = "POST_TRANSACTION"
)

// Levels lists every recognised permission level.
var Levels = []Level{
	LevelView,
	LevelFull,
	LevelRead,
	LevelUpdate,
	LevelDelete,
	LevelPostTransaction,
}

// Valid reports whether l is one of the closed enumeration of levels.
func (l Level) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// Grant is a single permission ledger record: one user, one account, one
// level. At most one grant exists per (user, account) pair; re-granting the
// pair replaces the level.
type Grant struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Level     Level  `json:"permission"`
}
