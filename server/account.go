package server

import (
	"time"

	"github.com/existflow/ironnotes/internal/protocol"
)

// Account is a registered user of the task service. Every entity the
// action engine stores belongs to exactly one account.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the identity a sync session is bound to
func (a Account) Principal() protocol.User {
	return protocol.User{ID: a.ID, Name: a.Username}
}

// Session is a bearer token issued at login or registration
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session no longer authenticates at now
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
