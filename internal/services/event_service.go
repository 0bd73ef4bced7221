package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *int64) error
	GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error)
}

// EventService records marketplace activity.
type EventService struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *sqlx.DB) *EventService {
	return &EventService{db: db, now: time.Now}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *int64) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events (id, type, level, message, user_id, created_at)
		VALUES (:id, :type, :level, :message, :user_id, :created_at)`, event)
	return err
}

// GetRecentEvents retrieves the most recent events concerning a user.
func (s *EventService) GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error) {
	events := []models.Event{}
	err := s.db.SelectContext(ctx, &events, s.db.Rebind(`
		SELECT id, type, level, message, user_id, created_at
		FROM events WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}
