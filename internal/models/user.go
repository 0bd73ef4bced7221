package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose this to the client
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
