package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := map[string]int{
		models.CodeMissingFields:       http.StatusBadRequest,
		models.CodeNoFieldsProvided:    http.StatusBadRequest,
		models.CodeDayNotAvailable:     http.StatusBadRequest,
		models.CodeOutsideAvailability: http.StatusBadRequest,
		models.CodeUnauthenticated:     http.StatusUnauthorized,
		models.CodeForbidden:           http.StatusForbidden,
		models.CodeNotFoundOrNotOwned:  http.StatusNotFound,
		models.CodeSlotConflict:        http.StatusConflict,
		models.CodeListingLimitReached: http.StatusConflict,
		models.CodeStorageError:        http.StatusInternalServerError,
		"SOMETHING_NEW":                http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, StatusFor(code), code)
	}
}

func TestRespondError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings/1", nil)

	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		respondError(rec, req, models.NewAppError(models.CodeSlotConflict, "This time slot is already booked"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		var body models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, models.ErrorResponse{Error: "This time slot is already booked", Code: models.CodeSlotConflict}, body)
	})

	t.Run("internal cause is hidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		respondError(rec, req, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		var body models.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, models.CodeStorageError, body.Code)
	})
}

func TestParseListingFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/listings?address=king&vehicle_size=Small&day=Tue&max_price=7.25", nil)
	filter, err := parseListingFilter(req)
	require.NoError(t, err)
	assert.Equal(t, "king", filter.Address)
	assert.Equal(t, models.VehicleSmall, filter.VehicleSize)
	require.NotNil(t, filter.Day)
	assert.Equal(t, "Tuesday", filter.Day.String())
	require.NotNil(t, filter.MaxPrice)
	assert.Equal(t, models.Cents(725), *filter.MaxPrice)

	for _, q := range []string{"vehicle_size=Huge", "indoor_outdoor=Roof", "day=x", "max_price=cheap"} {
		_, err := parseListingFilter(httptest.NewRequest(http.MethodGet, "/api/listings?"+q, nil))
		assert.True(t, models.HasCode(err, models.CodeInvalidFields), q)
	}
}
