package domain

import (
	"errors"
	"time"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is a registered user. The display name of an authenticated
// connection is always the account's username.
type Account struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a Account) Identity() Identity {
	return Identity{ID: a.ID, DisplayName: a.Username}
}
