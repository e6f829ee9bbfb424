package models

// User is an authenticated principal. PasswordHash is a bcrypt hash and is
// never serialized.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
