package models

import "time"

// Event represents a recorded marketplace activity.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`   // e.g., "listing.create", "booking.create"
	Level     string    `json:"level" db:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message" db:"message"`
	UserID    *int64    `json:"user_id,omitempty" db:"user_id"` // Nullable for system-wide events
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
