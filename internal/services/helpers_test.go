package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.New(database.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// setupMockDB returns a postgres-flavoured sqlx handle backed by sqlmock.
func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, database.DriverPostgres), mock
}

func seedUser(t *testing.T, db *sqlx.DB, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@hawkpark.test"}
	err := db.QueryRowx(db.Rebind(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?) RETURNING id"),
		user.Username, user.Email, "not-a-hash",
	).Scan(&user.ID)
	require.NoError(t, err)
	return user
}

// fixedClock puts "today" just before the June 2025 dates the tests book.
func fixedClock() time.Time {
	return time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)
}

func moneyPtr(m models.Money) *models.Money { return &m }

func strPtr(s string) *string { return &s }

func weekdayListing() models.ListingInput {
	days, _ := models.NewDaySet("Monday", "Wednesday", "Friday")
	return models.ListingInput{
		Address:          "200 University Ave W, Waterloo",
		ParkingNumber:    strPtr("P-12"),
		VehicleSize:      models.VehicleMedium,
		IndoorOutdoor:    models.PlacementOutdoor,
		AvailabilityFrom: "8:00 AM",
		AvailabilityTo:   "5:00 PM",
		Days:             days,
		Price:            moneyPtr(models.Cents(450)),
	}
}

type notification struct {
	UserID int64
	Action string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyUser(userID int64, action string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Action: action})
}

type stubGeocoder struct {
	coords map[string]*models.Coordinates
	err    error
}

func (g stubGeocoder) Lookup(_ context.Context, address string) (*models.Coordinates, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.coords[address], nil
}

func countEvents(t *testing.T, db *sqlx.DB, eventType string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, db.Rebind("SELECT COUNT(*) FROM events WHERE type = ?"), eventType))
	return n
}
