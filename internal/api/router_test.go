package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkpark/hawkpark-be/internal/auth"
	"github.com/hawkpark/hawkpark-be/internal/booking"
	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/models"
	"github.com/hawkpark/hawkpark-be/internal/services"
	"github.com/hawkpark/hawkpark-be/internal/websocket"
)

type testAPI struct {
	handler http.Handler
	db      *sqlx.DB
	hub     *websocket.Hub
}

func newTestAPI(t *testing.T, tokens *auth.TokenIssuer) testAPI {
	t.Helper()
	db, err := database.New(database.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	mode := auth.ModeHeader
	if tokens != nil {
		mode = auth.ModeJWT
	}

	events := services.NewEventService(db)
	users := services.NewUserService(db)
	listings := services.NewListingService(db, events, nil, services.ListingRules{MaxPerOwner: 3, MaxPrice: models.Cents(2000)})
	// Bookings are made against a fixed "today" of Friday 2025-05-30.
	bookings := services.NewBookingService(db, events, hub).WithClock(func() time.Time {
		return time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)
	})

	router := NewRouter(Deps{
		DB:             db,
		Hub:            hub,
		Auth:           auth.NewAuthenticator(mode, users, tokens),
		Users:          users,
		Listings:       listings,
		Bookings:       bookings,
		Events:         events,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	return testAPI{handler: router, db: db, hub: hub}
}

// do sends a request as userID (0 for anonymous) and returns the recorder.
func (a testAPI) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(auth.UserIDHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a testAPI) register(t *testing.T, username string) models.User {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/users/register", 0, map[string]string{
		"username": username,
		"email":    username + "@hawkpark.test",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Message string      `json:"message"`
		User    models.User `json:"user"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "User registered successfully", body.Message)
	return body.User
}

func (a testAPI) createListing(t *testing.T, owner int64) models.Listing {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/listings", owner, map[string]interface{}{
		"address":           "200 University Ave W, Waterloo",
		"parking_number":    "P-12",
		"vehicle_size":      "Medium",
		"indoor_outdoor":    "Outdoor",
		"availability_from": "8:00 AM",
		"availability_to":   "5:00 PM",
		"days":              []string{"Monday", "Wednesday"},
		"price":             4.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Listing models.Listing `json:"listing"`
	}
	decode(t, rec, &body)
	return body.Listing
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	decode(t, rec, &body)
	return body.Code
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(t, http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/metrics", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hawkpark_http_request_duration_seconds")
}

func TestHealth_DatabaseDown(t *testing.T) {
	a := newTestAPI(t, nil)
	require.NoError(t, a.db.Close())

	rec := a.do(t, http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUserRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	olivia := a.register(t, "olivia")
	rita := a.register(t, "rita")

	t.Run("duplicate registration", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/users/register", 0, map[string]string{
			"username": "olivia2", "email": "olivia@hawkpark.test", "password": "x",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, models.CodeDuplicateAccount, errorCode(t, rec))
	})

	t.Run("login", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/users/login", 0, map[string]string{
			"email": "olivia@hawkpark.test", "password": "correct horse",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]interface{}
		decode(t, rec, &body)
		assert.Equal(t, "Login successful", body["message"])
		assert.NotContains(t, body, "token")

		rec = a.do(t, http.MethodPost, "/api/users/login", 0, map[string]string{
			"email": "olivia@hawkpark.test", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, models.CodeInvalidCredentials, errorCode(t, rec))
	})

	t.Run("own profile only", func(t *testing.T) {
		path := fmt.Sprintf("/api/users/%d", olivia.ID)

		rec := a.do(t, http.MethodGet, path, olivia.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodGet, path, rita.ID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, models.CodeForbidden, errorCode(t, rec))

		rec = a.do(t, http.MethodGet, path, 0, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("update profile and password", func(t *testing.T) {
		path := fmt.Sprintf("/api/users/%d", rita.ID)
		rec := a.do(t, http.MethodPut, path, rita.ID, map[string]string{"username": "rita.k"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			User models.User `json:"user"`
		}
		decode(t, rec, &body)
		assert.Equal(t, "rita.k", body.User.Username)

		rec = a.do(t, http.MethodPut, path+"/password", rita.ID, map[string]string{
			"current_password": "correct horse", "new_password": "battery staple",
		})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = a.do(t, http.MethodPost, "/api/users/login", 0, map[string]string{
			"email": "rita@hawkpark.test", "password": "battery staple",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeInvalidFields, errorCode(t, rec))
	})
}

func TestListingRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	olivia := a.register(t, "olivia")
	rita := a.register(t, "rita")
	listing := a.createListing(t, olivia.ID)

	t.Run("anonymous create is rejected", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/listings", 0, map[string]string{"address": "x"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("price above ceiling", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/listings", olivia.ID, map[string]interface{}{
			"address": "1 King St", "vehicle_size": "Small", "indoor_outdoor": "Indoor",
			"availability_from": "8:00 AM", "availability_to": "5:00 PM",
			"days": []string{"Friday"}, "price": 25,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeInvalidFields, errorCode(t, rec))
	})

	t.Run("browse and filter", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/listings?day=monday&max_price=5", 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var found []models.Listing
		decode(t, rec, &found)
		require.Len(t, found, 1)
		assert.Equal(t, listing.ID, found[0].ID)

		rec = a.do(t, http.MethodGet, "/api/listings?day=friday", 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &found)
		assert.Empty(t, found)

		rec = a.do(t, http.MethodGet, "/api/listings?day=someday", 0, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("slots", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, fmt.Sprintf("/api/listings/%d/slots", listing.ID), 0, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var slots struct {
			Starts []booking.Slot `json:"start_times"`
			Ends   []booking.Slot `json:"end_times"`
		}
		decode(t, rec, &slots)
		require.Len(t, slots.Starts, 9)
		require.Len(t, slots.Ends, 9)
		assert.Equal(t, "08:00", slots.Starts[0].Value)
		assert.Equal(t, "17:00", slots.Ends[8].Value)
	})

	t.Run("update by non-owner", func(t *testing.T) {
		rec := a.do(t, http.MethodPut, fmt.Sprintf("/api/listings/%d", listing.ID), rita.ID, map[string]interface{}{"price": 3})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, models.CodeNotFoundOrNotOwned, errorCode(t, rec))
	})

	t.Run("update by owner", func(t *testing.T) {
		rec := a.do(t, http.MethodPut, fmt.Sprintf("/api/listings/%d", listing.ID), olivia.ID, map[string]interface{}{"price": 5})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			Listing models.Listing `json:"listing"`
		}
		decode(t, rec, &body)
		assert.Equal(t, models.Cents(500), body.Listing.Price)

		rec = a.do(t, http.MethodPut, fmt.Sprintf("/api/listings/%d", listing.ID), olivia.ID, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, models.CodeNoFieldsProvided, errorCode(t, rec))
	})

	t.Run("owner listings", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/listings", olivia.ID), olivia.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Listings []models.Listing `json:"listings"`
		}
		decode(t, rec, &body)
		assert.Len(t, body.Listings, 1)
	})

	t.Run("delete", func(t *testing.T) {
		path := fmt.Sprintf("/api/listings/%d", listing.ID)
		rec := a.do(t, http.MethodDelete, path, rita.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = a.do(t, http.MethodDelete, path, olivia.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodGet, path, 0, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestBookingRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	olivia := a.register(t, "olivia")
	rita := a.register(t, "rita")
	listing := a.createListing(t, olivia.ID)

	// 2025-06-02 is a Monday.
	request := map[string]interface{}{
		"listing_id":   listing.ID,
		"booking_date": "2025-06-02",
		"start_time":   "09:00",
		"end_time":     "11:00",
		"total_price":  1.00,
	}

	t.Run("quote", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, fmt.Sprintf("/api/listings/%d/quote", listing.ID), 0, request)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var quote booking.Quote
		decode(t, rec, &quote)
		assert.Equal(t, 2, quote.Hours)
		assert.Equal(t, models.Cents(900), quote.Total)
	})

	var created models.Booking
	t.Run("create", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/api/bookings", rita.ID, request)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var body struct {
			Message string         `json:"message"`
			Booking models.Booking `json:"booking"`
		}
		decode(t, rec, &body)
		created = body.Booking
		assert.Equal(t, "Booking created successfully", body.Message)
		assert.Equal(t, models.Cents(900), created.TotalPrice)
		assert.Equal(t, models.BookingConfirmed, created.Status)
	})

	t.Run("same date conflicts", func(t *testing.T) {
		other := map[string]interface{}{
			"listing_id": listing.ID, "booking_date": "2025-06-02", "start_time": "14:00", "end_time": "15:00",
		}
		rec := a.do(t, http.MethodPost, "/api/bookings", olivia.ID, other)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, models.CodeSlotConflict, errorCode(t, rec))
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name string
			date string
			from string
			to   string
			code string
		}{
			{name: "closed day", date: "2025-06-03", from: "09:00", to: "10:00", code: models.CodeDayNotAvailable},
			{name: "inverted", date: "2025-06-04", from: "11:00", to: "09:00", code: models.CodeInvalidTimeRange},
			{name: "after closing", date: "2025-06-04", from: "16:00", to: "18:00", code: models.CodeOutsideAvailability},
			{name: "past monday", date: "2025-05-26", from: "09:00", to: "10:00", code: models.CodeInvalidFields},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				rec := a.do(t, http.MethodPost, "/api/bookings", rita.ID, map[string]interface{}{
					"listing_id": listing.ID, "booking_date": tc.date, "start_time": tc.from, "end_time": tc.to,
				})
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, tc.code, errorCode(t, rec))
			})
		}
	})

	t.Run("lists", func(t *testing.T) {
		var body struct {
			Bookings []models.BookingDetail `json:"bookings"`
		}
		rec := a.do(t, http.MethodGet, "/api/bookings/renter", rita.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &body)
		require.Len(t, body.Bookings, 1)
		assert.Equal(t, listing.Address, body.Bookings[0].Address)

		rec = a.do(t, http.MethodGet, "/api/bookings/owner", olivia.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &body)
		assert.Len(t, body.Bookings, 1)

		rec = a.do(t, http.MethodGet, "/api/bookings/owner", rita.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &body)
		assert.Empty(t, body.Bookings)
	})

	t.Run("status", func(t *testing.T) {
		path := fmt.Sprintf("/api/bookings/%d/status", created.ID)
		rec := a.do(t, http.MethodPatch, path, olivia.ID, map[string]string{"status": "bogus"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = a.do(t, http.MethodPatch, path, olivia.ID, map[string]string{"status": models.BookingCompleted})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			Booking models.Booking `json:"booking"`
		}
		decode(t, rec, &body)
		assert.Equal(t, models.BookingCompleted, body.Booking.Status)
	})

	t.Run("delete", func(t *testing.T) {
		path := fmt.Sprintf("/api/bookings/%d", created.ID)
		rec := a.do(t, http.MethodDelete, path, olivia.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = a.do(t, http.MethodDelete, path, rita.ID, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(t, http.MethodPost, "/api/bookings", olivia.ID, request)
		assert.Equal(t, http.StatusCreated, rec.Code, "deleting a booking frees its date")
	})

	t.Run("events", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/events?limit=5", rita.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var events []models.Event
		decode(t, rec, &events)
		assert.NotEmpty(t, events)
		assert.LessOrEqual(t, len(events), 5)
	})
}

func TestJWTMode(t *testing.T) {
	a := newTestAPI(t, auth.NewTokenIssuer("test-secret", time.Hour))
	rita := a.register(t, "rita")

	rec := a.do(t, http.MethodPost, "/api/users/login", 0, map[string]string{
		"email": "rita@hawkpark.test", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	decode(t, rec, &body)
	require.NotEmpty(t, body.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.TokenCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// The user id header is not trusted in jwt mode.
	rec = a.do(t, http.MethodGet, "/api/bookings/renter", rita.ID, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/renter", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebSocketNotifications(t *testing.T) {
	a := newTestAPI(t, nil)
	olivia := a.register(t, "olivia")
	rita := a.register(t, "rita")
	listing := a.createListing(t, olivia.ID)

	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	header := http.Header{}
	header.Set(auth.UserIDHeader, strconv.FormatInt(olivia.ID, 10))
	conn, _, err := gws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	read := func() websocket.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// A pong means the connection has joined the hub.
	require.NoError(t, conn.WriteJSON(websocket.Message{Action: "ping"}))
	assert.Equal(t, "pong", read().Action)

	require.NoError(t, conn.WriteJSON(websocket.Message{Action: "dance"}))
	assert.Equal(t, "error", read().Action)

	rec := a.do(t, http.MethodPost, "/api/bookings", rita.ID, map[string]interface{}{
		"listing_id": listing.ID, "booking_date": "2025-06-02", "start_time": "09:00", "end_time": "10:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "booking.created", read().Action)
}

func TestWebSocket_RequiresAuth(t *testing.T) {
	a := newTestAPI(t, nil)
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
