package domain

import "time"

// User is an account identity. Email is unique across all users. The
// password hash never leaves the server; it is excluded from JSON.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
